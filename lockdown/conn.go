// Package lockdown implements the client side of lockdownd's session
// handshake: plist messages framed with a 4-byte big-endian length
// prefix, with an optional in-place TLS upgrade once a session starts.
package lockdown

import (
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
	"github.com/navin772/appium-ios-remotexpc/usbmux"
)

// Port is the TCP port lockdownd always listens on once usbmuxd has
// handed a device's socket off as a raw stream.
const Port uint16 = 62078

// Conn is a lockdown session over a stream obtained from usbmux
// Connect. At most one sendAndReceive is in flight at a time: a mutex
// held for the whole round trip makes concurrent callers wait their turn.
type Conn struct {
	mu        sync.Mutex
	nc        net.Conn
	sessionID string
	closed    bool
}

// NewConn wraps an already-connected stream, as returned by
// usbmux.ConnectAndRelease(deviceID, lockdown.Port).
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// DialDevice connects to lockdownd on deviceID via usbmuxd.
func DialDevice(deviceID int) (*Conn, error) {
	nc, err := usbmux.ConnectAndRelease(deviceID, Port)
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}

// Close is idempotent: it sends StopSession for any open session, then
// tears down the TLS session, if any, and the underlying stream.
func (c *Conn) Close() error {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	_ = c.StopSession()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}

func (c *Conn) send(v plist.Value) error {
	body := plist.ToXML(v)
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	log.Tracef("lockdown send len=%d", len(body))
	if _, err := c.nc.Write(header); err != nil {
		return &ioserr.TransportError{Msg: "write lockdown header", Err: err}
	}
	if _, err := c.nc.Write(body); err != nil {
		return &ioserr.TransportError{Msg: "write lockdown payload", Err: err}
	}
	return nil
}

func (c *Conn) receive() (plist.Value, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.nc, header); err != nil {
		return plist.Value{}, &ioserr.TransportError{Msg: "read lockdown header", Err: err}
	}
	length := binary.BigEndian.Uint32(header)
	payload := make([]byte, length)
	n, err := io.ReadFull(c.nc, payload)
	if err != nil {
		return plist.Value{}, &ioserr.TransportError{
			Msg: fmt.Sprintf("lockdown payload had incorrect size: %d expected %d", n, length),
			Err: err,
		}
	}
	v, err := plist.ParsePlist(payload)
	if err != nil {
		return plist.Value{}, err
	}
	return v, nil
}

// sendAndReceive writes msg and waits for the next decoded plist on the
// same connection, bounding the round trip by timeout when positive.
// Concurrent calls are serialized by c.mu, which is held for the whole
// round trip: a second caller blocks until the first one's response has
// been read.
func (c *Conn) sendAndReceive(v plist.Value, timeout time.Duration) (plist.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return plist.Value{}, &ioserr.StateError{Msg: "lockdown connection is closed"}
	}
	if timeout > 0 {
		_ = c.nc.SetDeadline(time.Now().Add(timeout))
		defer c.nc.SetDeadline(time.Time{})
	}
	if err := c.send(v); err != nil {
		return plist.Value{}, err
	}
	return c.receive()
}

// upgradeToTLS wraps the underlying connection in a TLS client using
// the pair record's host certificate and key, with peer verification
// disabled: the pair record itself is the trust anchor.
func (c *Conn) upgradeToTLS(cert, key []byte) error {
	tlsCert, err := tls.X509KeyPair(cert, key)
	if err != nil {
		return &ioserr.CryptographyError{Msg: "load host cert/key pair", Err: err}
	}
	conf := &tls.Config{
		InsecureSkipVerify: true,
		Certificates:       []tls.Certificate{tlsCert},
		MinVersion:         tls.VersionTLS12,
	}
	tlsConn := tls.Client(c.nc, conf)
	if err := tlsConn.Handshake(); err != nil {
		return &ioserr.CryptographyError{Msg: "lockdown TLS handshake", Err: err}
	}
	c.nc = tlsConn
	return nil
}
