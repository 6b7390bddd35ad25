package servicefabric

import (
	"sync"
	"time"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
)

// NotificationStream layers the notification-proxy interaction pattern
// over a Conn: observe(name) registers interest, post(name) raises a
// notification, and pulled messages are delivered as dicts until the
// connection closes.
type NotificationStream struct {
	conn *Conn

	mu       sync.Mutex
	observed bool

	messages chan plist.Value
	done     chan struct{}
	readErr  error
}

// NewNotificationStream wraps conn. The caller must have completed RSD
// check-in already (Conn.Dial does this).
func NewNotificationStream(conn *Conn) *NotificationStream {
	n := &NotificationStream{conn: conn, messages: make(chan plist.Value, 16), done: make(chan struct{})}
	go n.readLoop()
	return n
}

func (n *NotificationStream) readLoop() {
	defer close(n.done)
	for {
		v, err := n.conn.receive()
		if err != nil {
			n.readErr = err
			return
		}
		select {
		case n.messages <- v:
		case <-n.done:
			return
		}
	}
}

// Observe registers interest in notification name. It must be called
// at least once before Post or before pulling from the stream.
func (n *NotificationStream) Observe(name string) error {
	n.mu.Lock()
	n.observed = true
	n.mu.Unlock()

	req := plist.DictValue(
		plist.NewDict().
			Set("Command", plist.String("ObserveNotification")).
			Set("Name", plist.String(name)),
	)
	return n.conn.send(req)
}

// Post raises notification name on the device.
func (n *NotificationStream) Post(name string) error {
	n.mu.Lock()
	observed := n.observed
	n.mu.Unlock()
	if !observed {
		return &ioserr.StateError{Msg: "must call Observe before Post"}
	}

	req := plist.DictValue(
		plist.NewDict().
			Set("Command", plist.String("PostNotification")).
			Set("Name", plist.String(name)),
	)
	return n.conn.send(req)
}

// ExpectNotification returns the next message or fails with a timeout
// once timeout elapses.
func (n *NotificationStream) ExpectNotification(timeout time.Duration) (plist.Value, error) {
	n.mu.Lock()
	observed := n.observed
	n.mu.Unlock()
	if !observed {
		return plist.Value{}, &ioserr.StateError{Msg: "must call Observe before pulling notifications"}
	}

	select {
	case v := <-n.messages:
		return v, nil
	case <-n.done:
		if n.readErr != nil {
			return plist.Value{}, n.readErr
		}
		return plist.Value{}, &ioserr.TransportError{Msg: "notification stream closed"}
	case <-time.After(timeout):
		return plist.Value{}, &ioserr.TimeoutError{Msg: "timed out waiting for notification"}
	}
}

// ExpectNotifications returns a channel that yields successive
// messages until the connection closes. The channel is not closed when
// the stream ends: after the last message it simply yields nothing
// more, and Err reports the error that ended the read loop.
func (n *NotificationStream) ExpectNotifications() <-chan plist.Value {
	return n.messages
}

// Err returns the error that ended the read loop, if any.
func (n *NotificationStream) Err() error {
	return n.readErr
}
