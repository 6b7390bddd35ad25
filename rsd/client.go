// Package rsd implements a minimal HTTP/2 client sufficient to read a
// device's Remote Service Discovery catalog: the set of named
// services reachable inside an established tunnel and the TCP port
// each one listens on.
package rsd

import (
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
)

// handshakeStreamID is the single request stream this client opens to
// retrieve the catalog.
const handshakeStreamID = 1

// settingEnableConnectProtocol is SETTINGS_ENABLE_CONNECT_PROTOCOL
// (RFC 8441), not exported by this version of golang.org/x/net/http2.
const settingEnableConnectProtocol http2.SettingID = 0x8

const (
	initialWindowSize    = 1048576
	connectionWindowBump = 983041
)

// Client speaks just enough HTTP/2 to receive an RSD catalog: DATA,
// HEADERS, SETTINGS and WINDOW_UPDATE frames. HPACK is not needed since
// header contents are never consulted.
type Client struct {
	mu       sync.Mutex
	nc       net.Conn
	framer   *http2.Framer
	closed   bool
	services []Service
}

// Dial opens a TCP connection to (address, port), disables Nagle,
// enables keep-alive, and runs the RSD handshake to completion.
func Dial(address string, port int) (*Client, error) {
	nc, err := net.Dial("tcp", fmt.Sprintf("[%s]:%d", address, port))
	if err != nil {
		return nil, &ioserr.TransportError{Msg: "dial rsd", Err: err}
	}
	if tcpConn, ok := nc.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
	}

	c := &Client{nc: nc, framer: http2.NewFramer(nc, nc)}
	if err := c.handshake(); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying connection. It is idempotent and safe to
// call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}

// ListAllServices returns the catalog in the order services appeared
// in the handshake DATA payload.
func (c *Client) ListAllServices() []Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}

// FindService looks up a service by exact name.
func (c *Client) FindService(name string) (Service, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.services {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}

// handshake runs the minimal HTTP/2 client preface: write the
// connection preface and an initial SETTINGS frame advertising
// ENABLE_CONNECT_PROTOCOL and MAX_CONCURRENT_STREAMS, open the single
// request stream, then drain frames until the device has finished
// streaming the catalog.
func (c *Client) handshake() error {
	if _, err := c.nc.Write([]byte(http2.ClientPreface)); err != nil {
		return &ioserr.TransportError{Msg: "write http2 preface", Err: err}
	}

	err := c.framer.WriteSettings(
		http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: 100},
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: initialWindowSize},
		http2.Setting{ID: settingEnableConnectProtocol, Val: 1},
	)
	if err != nil {
		return &ioserr.TransportError{Msg: "write http2 settings", Err: err}
	}
	if err := c.framer.WriteWindowUpdate(0, connectionWindowBump); err != nil {
		return &ioserr.TransportError{Msg: "write http2 window update", Err: err}
	}
	if err := c.framer.WriteHeaders(http2.HeadersFrameParam{StreamID: handshakeStreamID, EndHeaders: true}); err != nil {
		return &ioserr.TransportError{Msg: "open rsd handshake stream", Err: err}
	}

	var payload []byte
	for {
		frame, err := c.framer.ReadFrame()
		if err != nil {
			return &ioserr.TransportError{Msg: "read rsd handshake frame", Err: err}
		}
		switch f := frame.(type) {
		case *http2.SettingsFrame:
			if f.IsAck() {
				continue
			}
			if err := c.framer.WriteSettingsAck(); err != nil {
				return &ioserr.TransportError{Msg: "ack http2 settings", Err: err}
			}
		case *http2.WindowUpdateFrame:
			// nothing to do: the device is telling us how much it will
			// accept from us, which we never saturate for a catalog read.
		case *http2.HeadersFrame:
			// header block is opaque; the catalog rides entirely in DATA.
		case *http2.DataFrame:
			payload = append(payload, f.Data()...)
			if len(f.Data()) > 0 {
				if err := c.framer.WriteWindowUpdate(handshakeStreamID, uint32(len(f.Data()))); err != nil {
					return &ioserr.TransportError{Msg: "write stream window update", Err: err}
				}
			}
			if f.StreamEnded() {
				c.services = extractCatalog(payload)
				log.Debugf("rsd handshake: %d services discovered", len(c.services))
				return nil
			}
		case *http2.GoAwayFrame:
			return &ioserr.ProtocolError{Msg: fmt.Sprintf("rsd handshake: received GOAWAY, code %v", f.ErrCode)}
		case *http2.RSTStreamFrame:
			return &ioserr.ProtocolError{Msg: fmt.Sprintf("rsd handshake: received RST_STREAM, code %v", f.ErrCode)}
		default:
			// frame types outside DATA/HEADERS/SETTINGS/WINDOW_UPDATE are
			// not expected on an RSD handshake stream; ignore rather than
			// fail on one.
		}
	}
}
