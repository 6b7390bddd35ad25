// Package syslog implements the com.apple.syslog_relay service: after
// RSD check-in, log lines are not delivered over the TLS control
// channel but arrive out of band as raw TCP packets on the owning
// tunnel's packet source.
package syslog

import (
	"bytes"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/navin772/appium-ios-remotexpc/plist"
	"github.com/navin772/appium-ios-remotexpc/servicefabric"
	"github.com/navin772/appium-ios-remotexpc/tunnelregistry"
)

// ServiceName is the syslog_relay RSD service name.
const ServiceName = "com.apple.syslog_relay"

// ShimServiceName is the tunnel-side variant of ServiceName, used when
// the device is reachable only through a QUIC tunnel's shim port.
const ShimServiceName = "com.apple.syslog_relay.shim.remote"

// printableRatioThreshold is the fraction of bytes in 0x20-0x7E that a
// packet's payload must exceed to be treated as a log message rather
// than discarded as unrelated tunnel traffic.
const printableRatioThreshold = 0.5

// EventKind distinguishes a plain message event from one that also
// carries an embedded plist.
type EventKind int

const (
	MessageEvent EventKind = iota
	PlistEvent
)

// Event is one item emitted for a qualifying packet: a message event
// carries Message; a plist event carries only Plist, parsed from an
// embedded plist header found in the same packet, and follows that
// packet's message event.
type Event struct {
	Kind    EventKind
	Message string
	Plist   plist.Value
}

// Connection drives StartActivity over the control channel and
// listens on the tunnel's packet source for the resulting log
// packets.
type Connection struct {
	conn   *servicefabric.Conn
	source *tunnelregistry.PacketSource

	consumerID int
	events     chan Event

	mu      sync.Mutex
	stopped bool
}

// New issues StartActivity for pid (-1 for every process) over conn,
// then registers as a packet consumer on source. conn must have
// already completed RSD check-in.
func New(conn *servicefabric.Conn, source *tunnelregistry.PacketSource, pid int, timeout time.Duration) (*Connection, error) {
	c := &Connection{
		conn:   conn,
		source: source,
		events: make(chan Event, 64),
	}
	if err := c.startActivity(pid, timeout); err != nil {
		return nil, err
	}
	c.consumerID = source.AddConsumer(c.handlePacket)
	return c, nil
}

func (c *Connection) startActivity(pid int, timeout time.Duration) error {
	req := plist.DictValue(
		plist.NewDict().
			Set("Request", plist.String("StartActivity")).
			Set("MessageFilter", plist.Int(65535)).
			Set("Pid", plist.Int(int64(pid))).
			Set("StreamFlags", plist.Int(60)),
	)
	_, err := c.conn.SendPlistRequest(req, timeout)
	return err
}

// Events returns the channel message/plist events are published on.
func (c *Connection) Events() <-chan Event {
	return c.events
}

func (c *Connection) handlePacket(packet tunnelregistry.Packet) {
	if packet.Protocol != "TCP" {
		return
	}
	if !mostlyPrintable(packet.Payload) {
		return
	}
	message := stripNonPrintable(packet.Payload)
	if len(message) == 0 {
		return
	}
	c.publish(Event{Kind: MessageEvent, Message: string(message)})

	if v, ok := extractEmbeddedPlist(packet.Payload); ok {
		c.publish(Event{Kind: PlistEvent, Plist: v})
	}
}

func (c *Connection) publish(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Warn("syslog event dropped, events channel full")
	}
}

func mostlyPrintable(packet []byte) bool {
	if len(packet) == 0 {
		return false
	}
	printable := 0
	for _, b := range packet {
		if b >= 0x20 && b <= 0x7E {
			printable++
		}
	}
	return float64(printable)/float64(len(packet)) > printableRatioThreshold
}

func stripNonPrintable(packet []byte) []byte {
	out := make([]byte, 0, len(packet))
	for _, b := range packet {
		if b >= 0x20 && b <= 0x7E {
			out = append(out, b)
		}
	}
	return out
}

var plistHeaders = [][]byte{
	[]byte("<?xml"),
	[]byte("<plist"),
	[]byte("bplist00"),
	[]byte("Ibplist00"),
}

func extractEmbeddedPlist(packet []byte) (plist.Value, bool) {
	start := -1
	for _, header := range plistHeaders {
		if i := bytes.Index(packet, header); i >= 0 && (start == -1 || i < start) {
			start = i
		}
	}
	if start == -1 {
		return plist.Value{}, false
	}
	v, err := plist.ParsePlist(packet[start:])
	if err != nil {
		return plist.Value{}, false
	}
	return v, true
}

// Stop tears down the packet listener and closes the control
// connection. It is idempotent.
func (c *Connection) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.source.RemoveConsumer(c.consumerID)
	return c.conn.Close()
}
