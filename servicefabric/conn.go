// Package servicefabric implements the client side of a remote-XPC
// domain service connection: the RSD check-in handshake every
// per-service TCP connection inside a tunnel requires, followed by
// whichever of request/response, notification-stream, or heartbeat
// interaction the service calls for.
package servicefabric

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
)

// DefaultCreateConnectionTimeout bounds how long Dial waits to
// establish the TCP connection before giving up.
const DefaultCreateConnectionTimeout = 30 * time.Second

const checkinLabel = "appium-internal"

// Conn is a service-fabric connection: one TCP (optionally TLS)
// stream, framed the same way as lockdown, that has completed RSD
// check-in. Exactly one sendPlistRequest may be in flight at a time.
type Conn struct {
	mu     sync.Mutex
	nc     net.Conn
	closed bool
}

// NewConn wraps an already-established net.Conn, skipping both the
// dial and the RSD check-in. Used by tests and by callers that already
// did their own check-in over a connection type Dial doesn't cover.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// Dial opens a TCP connection to (host, port), disables any read/write
// deadline beyond what individual calls set, enables TCP keep-alive,
// and performs the RSD check-in handshake.
func Dial(host string, port int, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = DefaultCreateConnectionTimeout
	}
	nc, err := net.DialTimeout("tcp", fmt.Sprintf("[%s]:%d", host, port), timeout)
	if err != nil {
		return nil, &ioserr.TransportError{Msg: "dial service fabric connection", Err: err}
	}
	if tcpConn, ok := nc.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
	}

	c := &Conn{nc: nc}
	if err := c.checkin(); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// DialTLS is Dial followed by an in-place TLS upgrade, for services
// that run their control channel directly over TLS inside the tunnel.
func DialTLS(host string, port int, timeout time.Duration, conf *tls.Config) (*Conn, error) {
	if timeout <= 0 {
		timeout = DefaultCreateConnectionTimeout
	}
	nc, err := net.DialTimeout("tcp", fmt.Sprintf("[%s]:%d", host, port), timeout)
	if err != nil {
		return nil, &ioserr.TransportError{Msg: "dial service fabric connection", Err: err}
	}
	if tcpConn, ok := nc.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
	}

	tlsConn := tls.Client(nc, conf)
	if err := tlsConn.Handshake(); err != nil {
		nc.Close()
		return nil, &ioserr.CryptographyError{Msg: "service fabric TLS handshake", Err: err}
	}

	c := &Conn{nc: tlsConn}
	if err := c.checkin(); err != nil {
		tlsConn.Close()
		return nil, err
	}
	return c, nil
}

// Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}

func (c *Conn) checkin() error {
	req := plist.DictValue(
		plist.NewDict().
			Set("Label", plist.String(checkinLabel)).
			Set("ProtocolVersion", plist.String("2")).
			Set("Request", plist.String("RSDCheckin")),
	)
	resp, err := c.sendPlistRequest(req, DefaultCreateConnectionTimeout)
	if err != nil {
		return err
	}
	log.Debugf("service fabric checkin response: %v", resp)
	return nil
}

func (c *Conn) send(v plist.Value) error {
	body := plist.ToXML(v)
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	if _, err := c.nc.Write(header); err != nil {
		return &ioserr.TransportError{Msg: "write service fabric header", Err: err}
	}
	if _, err := c.nc.Write(body); err != nil {
		return &ioserr.TransportError{Msg: "write service fabric payload", Err: err}
	}
	return nil
}

func (c *Conn) receive() (plist.Value, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.nc, header); err != nil {
		return plist.Value{}, &ioserr.TransportError{Msg: "read service fabric header", Err: err}
	}
	length := binary.BigEndian.Uint32(header)
	payload := make([]byte, length)
	n, err := io.ReadFull(c.nc, payload)
	if err != nil {
		return plist.Value{}, &ioserr.TransportError{
			Msg: fmt.Sprintf("service fabric payload had incorrect size: %d expected %d", n, length),
			Err: err,
		}
	}
	return plist.ParsePlist(payload)
}

// sendPlistRequest writes one plist and returns the first complete
// plist received after it. Concurrent calls are serialized by c.mu,
// which is held for the whole round trip.
func (c *Conn) sendPlistRequest(v plist.Value, timeout time.Duration) (plist.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return plist.Value{}, &ioserr.StateError{Msg: "service fabric connection is closed"}
	}
	if timeout > 0 {
		_ = c.nc.SetDeadline(time.Now().Add(timeout))
		defer c.nc.SetDeadline(time.Time{})
	}
	if err := c.send(v); err != nil {
		if isTimeout(err) {
			return plist.Value{}, &ioserr.TimeoutError{Msg: fmt.Sprintf("timed out waiting for plist response after %s", timeout), Err: err}
		}
		return plist.Value{}, err
	}
	resp, err := c.receive()
	if err != nil {
		if isTimeout(err) {
			return plist.Value{}, &ioserr.TimeoutError{Msg: fmt.Sprintf("timed out waiting for plist response after %s", timeout), Err: err}
		}
		return plist.Value{}, err
	}
	return resp, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	for u := err; u != nil; u = unwrapErr(u) {
		if ne, ok := u.(net.Error); ok && ne.Timeout() {
			netErr = ne
			break
		}
	}
	return netErr != nil
}

func unwrapErr(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

// SendPlistRequest is the public form of sendPlistRequest, used by
// domain service wrappers built on top of Conn.
func (c *Conn) SendPlistRequest(v plist.Value, timeout time.Duration) (plist.Value, error) {
	return c.sendPlistRequest(v, timeout)
}

// Send writes v without waiting for a reply. Used by wrappers whose
// request/response pairing is asynchronous, and by tests standing in
// for the device side of a Conn.
func (c *Conn) Send(v plist.Value) error {
	return c.send(v)
}

// Receive blocks for the next complete plist on the connection. Used
// by wrappers whose request/response pairing is asynchronous, and by
// tests standing in for the device side of a Conn.
func (c *Conn) Receive() (plist.Value, error) {
	return c.receive()
}
