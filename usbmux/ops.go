package usbmux

import (
	"fmt"
	"net"
	"time"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
)

const (
	progName            = "appium-ios-remotexpc"
	clientVersionString = "appium-ios-remotexpc-0.1"
	libUSBMuxVersion    = 3
)

// DefaultListDevicesTimeout bounds how long ListDevices waits for
// usbmuxd to answer before giving up with a timeout error.
const DefaultListDevicesTimeout = 5 * time.Second

func baseRequest(messageType string) *plist.Dict {
	return plist.NewDict().
		Set("MessageType", plist.String(messageType)).
		Set("ProgName", plist.String(progName)).
		Set("ClientVersionString", plist.String(clientVersionString))
}

// ListDevices asks usbmuxd for the set of currently attached devices.
// A response that does not arrive within timeout surfaces as
// ioserr.TimeoutError carrying the requested duration.
func (c *Conn) ListDevices(timeout time.Duration) ([]Device, error) {
	req := plist.DictValue(baseRequest("ListDevices"))
	resp, err := c.sendAndReceive(req, timeout)
	if err != nil {
		return nil, err
	}
	return devicesFromValue(resp)
}

// ReadPairRecord fetches the pair record usbmuxd holds for udid.
func (c *Conn) ReadPairRecord(udid string) (PairRecord, error) {
	req := plist.DictValue(
		baseRequest("ReadPairRecord").
			Set("PairRecordID", plist.String(udid)).
			Set("LibUSBMuxVersion", plist.Int(libUSBMuxVersion)),
	)
	resp, err := c.sendAndReceive(req, 0)
	if err != nil {
		return PairRecord{}, err
	}
	return pairRecordFromResponse(resp)
}

// ntohs byte-swaps a uint16 from host to network order, matching what
// usbmuxd expects for the Connect request's PortNumber field.
func ntohs(port uint16) uint16 {
	return port<<8 | port>>8
}

// Connect asks usbmuxd to pipe deviceID's TCP port through this
// connection. On success the underlying socket becomes a raw byte
// stream to that port: the mux protocol must not be used on it again.
// The caller should use Release to obtain the raw net.Conn.
func (c *Conn) Connect(deviceID int, port uint16) error {
	req := plist.DictValue(
		baseRequest("Connect").
			Set("LibUSBMuxVersion", plist.Int(libUSBMuxVersion)).
			Set("DeviceID", plist.Int(int64(deviceID))).
			Set("PortNumber", plist.Int(int64(ntohs(port)))),
	)
	resp, err := c.sendAndReceive(req, 0)
	if err != nil {
		return err
	}
	dict, ok := resp.Dict()
	if !ok {
		return &ioserr.ProtocolError{Msg: "connect response is not a dict"}
	}
	if n, failed := responseErrorNumber(dict); failed {
		return &ioserr.ProtocolError{Msg: fmt.Sprintf("mux connect refused: %d", n)}
	}
	return nil
}

// ListDevices dials usbmuxd, lists devices and closes the connection.
func ListDevices(timeout time.Duration) ([]Device, error) {
	c, err := Dial()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.ListDevices(timeout)
}

// ReadPairRecord dials usbmuxd, reads udid's pair record and closes the
// connection.
func ReadPairRecord(udid string) (PairRecord, error) {
	c, err := Dial()
	if err != nil {
		return PairRecord{}, err
	}
	defer c.Close()
	return c.ReadPairRecord(udid)
}

// ConnectAndRelease dials usbmuxd, issues Connect for deviceID/port and
// returns the raw net.Conn usbmuxd has switched over to that port, with
// mux bookkeeping detached.
func ConnectAndRelease(deviceID int, port uint16) (net.Conn, error) {
	c, err := Dial()
	if err != nil {
		return nil, err
	}
	if err := c.Connect(deviceID, port); err != nil {
		c.Close()
		return nil, err
	}
	return c.Release(), nil
}
