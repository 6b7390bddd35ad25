// Package diagnostics wraps the com.apple.mobile.diagnostics_relay
// service fabric connection: a handful of one-shot Request/response
// dictionaries for battery, IORegistry and MobileGestalt queries.
package diagnostics

import (
	"time"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
	"github.com/navin772/appium-ios-remotexpc/servicefabric"
)

// DefaultTimeout bounds how long a single request waits for its reply.
const DefaultTimeout = 30 * time.Second

// Connection is a checked-in diagnostics_relay connection.
type Connection struct {
	conn *servicefabric.Conn
}

// New wraps conn, which must have already completed RSD check-in
// (servicefabric.Dial does this).
func New(conn *servicefabric.Conn) *Connection {
	return &Connection{conn: conn}
}

// AllValues issues {Request:"All"} and returns the full diagnostics
// dictionary (GasGauge, HDMI, NAND, WiFi and friends) verbatim.
func (c *Connection) AllValues(timeout time.Duration) (plist.Value, error) {
	req := plist.DictValue(plist.NewDict().Set("Request", plist.String("All")))
	return c.request(req, timeout)
}

// Goodbye issues {Request:"Goodbye"}, the relay's graceful-shutdown
// request, without closing the underlying connection itself.
func (c *Connection) Goodbye(timeout time.Duration) error {
	req := plist.DictValue(plist.NewDict().Set("Request", plist.String("Goodbye")))
	_, err := c.request(req, timeout)
	return err
}

// MobileGestalt issues {Request:"MobileGestalt", MobileGestaltKeys:keys}
// and returns the decoded response dictionary.
func (c *Connection) MobileGestalt(keys []string, timeout time.Duration) (plist.Value, error) {
	items := make([]plist.Value, len(keys))
	for i, k := range keys {
		items[i] = plist.String(k)
	}
	req := plist.DictValue(
		plist.NewDict().
			Set("Request", plist.String("MobileGestalt")).
			Set("MobileGestaltKeys", plist.Array(items...)),
	)
	return c.request(req, timeout)
}

// IORegistryOptions narrows an IORegistry query. An empty field is
// omitted from the request, matching the relay's own optional filters.
type IORegistryOptions struct {
	Plane string
	Name  string
	Class string
}

// IORegistry issues {Request:"IORegistry", ...opts} and returns the
// decoded response dictionary.
func (c *Connection) IORegistry(opts IORegistryOptions, timeout time.Duration) (plist.Value, error) {
	dict := plist.NewDict().Set("Request", plist.String("IORegistry"))
	if opts.Plane != "" {
		dict.Set("CurrentPlane", plist.String(opts.Plane))
	}
	if opts.Name != "" {
		dict.Set("EntryName", plist.String(opts.Name))
	}
	if opts.Class != "" {
		dict.Set("EntryClass", plist.String(opts.Class))
	}
	return c.request(plist.DictValue(dict), timeout)
}

func (c *Connection) request(v plist.Value, timeout time.Duration) (plist.Value, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	resp, err := c.conn.SendPlistRequest(v, timeout)
	if err != nil {
		return plist.Value{}, err
	}
	if dict, ok := resp.Dict(); ok {
		if errVal, hasErr := dict.Get("Error"); hasErr {
			return plist.Value{}, &ioserr.ProtocolError{Msg: "diagnostics relay error: " + errVal.String()}
		}
	}
	return resp, nil
}

// Close closes the underlying connection. It is idempotent.
func (c *Connection) Close() error {
	return c.conn.Close()
}
