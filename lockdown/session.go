package lockdown

import (
	"time"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
	"github.com/navin772/appium-ios-remotexpc/usbmux"
)

const label = "appium-ios-remotexpc"

// StartSession runs the lockdown handshake: send StartSession, read the
// response, and upgrade to TLS using the pair record's host cert/key
// when the device asks for it.
func (c *Conn) StartSession(pair usbmux.PairRecord) error {
	req := plist.DictValue(
		plist.NewDict().
			Set("Label", plist.String(label)).
			Set("ProtocolVersion", plist.String("2")).
			Set("Request", plist.String("StartSession")).
			Set("HostID", plist.String(pair.HostID)).
			Set("SystemBUID", plist.String(pair.SystemBUID)),
	)

	resp, err := c.sendAndReceive(req, 0)
	if err != nil {
		return err
	}
	dict, ok := resp.Dict()
	if !ok {
		return &ioserr.ProtocolError{Msg: "StartSession response is not a dict"}
	}
	if errVal, hasErr := dict.Get("Error"); hasErr {
		return &ioserr.ProtocolError{Msg: "StartSession failed: " + errVal.String()}
	}

	sessionID, _ := dict.Get("SessionID")
	c.mu.Lock()
	c.sessionID = sessionID.String()
	c.mu.Unlock()

	enableSSL, _ := dict.Get("EnableSessionSSL")
	if b, _ := enableSSL.Bool(); b {
		if err := c.upgradeToTLS(pair.HostCertificate, pair.HostPrivateKey); err != nil {
			return err
		}
	}
	return nil
}

// StopSession sends StopSession for the current session, if any. It is
// a no-op when no session has been started. The response is read and
// discarded, matching lockdownd's stateless acknowledgement.
func (c *Conn) StopSession() error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	req := plist.DictValue(
		plist.NewDict().
			Set("Label", plist.String(label)).
			Set("Request", plist.String("StopSession")).
			Set("SessionID", plist.String(sessionID)),
	)
	_, err := c.sendAndReceive(req, 0)
	return err
}

// SendAndReceive writes msg and waits for the next decoded plist,
// bounding the round trip by timeout when positive.
func (c *Conn) SendAndReceive(msg plist.Value, timeout time.Duration) (plist.Value, error) {
	return c.sendAndReceive(msg, timeout)
}
