// Package usbmux implements the client side of the usbmuxd wire protocol:
// dialing the mux daemon, listing attached devices, reading pair records
// and handing a device port off to a raw byte stream.
package usbmux

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
)

// header fields are fixed by the protocol: version 1, request type 8
// ("plist").
const (
	muxVersion     = 1
	muxRequestType = 8
	headerSize     = 16
)

// muxHeader is the 16-byte little-endian header in front of every plist
// body exchanged with usbmuxd.
type muxHeader struct {
	Length  uint32
	Version uint32
	Type    uint32
	Tag     uint32
}

// Conn is a connection to the usbmuxd daemon. A Conn speaks the mux
// protocol until Connect succeeds, at which point the underlying socket
// becomes a raw byte stream to the device port and the Conn must not be
// used for further mux requests.
type Conn struct {
	mu     sync.Mutex
	nc     net.Conn
	tag    uint32
	closed bool
}

// SocketAddress returns the platform default address for the usbmuxd
// socket, honoring USBMUXD_SOCKET_ADDRESS when set.
func SocketAddress() string {
	if override := os.Getenv("USBMUXD_SOCKET_ADDRESS"); override != "" {
		if strings.Contains(override, ":") {
			return "tcp://" + override
		}
		return "unix://" + override
	}
	if runtime.GOOS == "windows" {
		return "tcp://127.0.0.1:27015"
	}
	return "unix:///var/run/usbmuxd"
}

func dialAddress(socketAddress string) (string, string) {
	parts := strings.SplitN(socketAddress, "://", 2)
	if len(parts) != 2 {
		return "unix", socketAddress
	}
	return parts[0], parts[1]
}

// Dial opens a new connection to the usbmuxd daemon at the platform
// default socket address.
func Dial() (*Conn, error) {
	return DialAddress(SocketAddress())
}

// DialAddress opens a new connection to usbmuxd at the given
// scheme://address, e.g. "unix:///var/run/usbmuxd" or "tcp://127.0.0.1:27015".
func DialAddress(socketAddress string) (*Conn, error) {
	network, address := dialAddress(socketAddress)
	nc, err := net.Dial(network, address)
	if err != nil {
		return nil, &ioserr.TransportError{Msg: "dial usbmuxd", Err: err}
	}
	return &Conn{nc: nc}, nil
}

// NewConn wraps an already-connected net.Conn, e.g. one returned by a
// debug proxy or a test listener.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// Close closes the underlying socket. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}

// Release detaches the underlying net.Conn from mux bookkeeping and
// returns it for raw use, as Connect does once usbmuxd has switched the
// socket over to the device port.
func (c *Conn) Release() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	nc := c.nc
	c.closed = true
	return nc
}

// send encodes v as an XML plist, wraps it in the mux header and writes
// it to the socket. The connection's tag is incremented first, so tags
// are 1-based and monotonically increasing per connection.
func (c *Conn) send(v plist.Value) error {
	body := plist.ToXML(v)
	c.tag++
	hdr := muxHeader{
		Length:  headerSize + uint32(len(body)),
		Version: muxVersion,
		Type:    muxRequestType,
		Tag:     c.tag,
	}
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return &ioserr.TransportError{Msg: "encode mux header", Err: err}
	}
	buf.Write(body)
	log.Tracef("usbmux send tag=%d len=%d", c.tag, hdr.Length)
	if _, err := c.nc.Write(buf.Bytes()); err != nil {
		return &ioserr.TransportError{Msg: "write to usbmuxd", Err: err}
	}
	return nil
}

// receive reads the next full mux message and decodes its plist body.
func (c *Conn) receive() (plist.Value, error) {
	var hdr muxHeader
	if err := binary.Read(c.nc, binary.LittleEndian, &hdr); err != nil {
		return plist.Value{}, &ioserr.TransportError{Msg: "read mux header", Err: err}
	}
	if hdr.Length < headerSize {
		return plist.Value{}, &ioserr.ProtocolError{Msg: fmt.Sprintf("implausible mux message length %d", hdr.Length)}
	}
	payload := make([]byte, hdr.Length-headerSize)
	if _, err := io.ReadFull(c.nc, payload); err != nil {
		return plist.Value{}, &ioserr.TransportError{Msg: "read mux payload", Err: err}
	}
	v, err := plist.ParsePlist(payload)
	if err != nil {
		return plist.Value{}, err
	}
	return v, nil
}

// sendAndReceive sends v and reads back the next message, applying
// deadline as a read/write deadline on the socket. A deadline exceeded
// error is reported as ioserr.TimeoutError carrying the requested
// duration.
func (c *Conn) sendAndReceive(v plist.Value, timeout time.Duration) (plist.Value, error) {
	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		_ = c.nc.SetDeadline(deadline)
		defer c.nc.SetDeadline(time.Time{})
	}
	if err := c.send(v); err != nil {
		if isTimeout(err) {
			return plist.Value{}, &ioserr.TimeoutError{Msg: fmt.Sprintf("usbmux request (%s)", timeout), Err: err}
		}
		return plist.Value{}, err
	}
	resp, err := c.receive()
	if err != nil {
		if isTimeout(err) {
			return plist.Value{}, &ioserr.TimeoutError{Msg: fmt.Sprintf("usbmux request (%s)", timeout), Err: err}
		}
		return plist.Value{}, err
	}
	return resp, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	for u := err; u != nil; u = unwrap(u) {
		if ne, ok := u.(net.Error); ok && ne.Timeout() {
			netErr = ne
			break
		}
	}
	return netErr != nil
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}
