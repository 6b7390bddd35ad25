// Package notificationproxy wraps the notification-proxy interaction
// pattern (observe/post/pull) for a checked-in service fabric
// connection, plus the convenience of waiting for a named
// notification instead of pulling messages by hand.
package notificationproxy

import (
	"time"

	"github.com/navin772/appium-ios-remotexpc/plist"
	"github.com/navin772/appium-ios-remotexpc/servicefabric"
)

// springboardStartedNotification fires once springboard has finished
// its own startup sequence, the usual signal that a freshly booted or
// freshly unlocked device is ready to receive UI-driving commands.
const springboardStartedNotification = "com.apple.springboard.finishedstartup"

// Connection is a notification-proxy session over a checked-in
// service fabric connection.
type Connection struct {
	stream *servicefabric.NotificationStream
}

// New wraps conn, which must have already completed RSD check-in.
func New(conn *servicefabric.Conn) *Connection {
	return &Connection{stream: servicefabric.NewNotificationStream(conn)}
}

// Observe registers interest in notification name. It must be called
// at least once before Post or before pulling notifications.
func (c *Connection) Observe(name string) error {
	return c.stream.Observe(name)
}

// Post raises notification name on the device.
func (c *Connection) Post(name string) error {
	return c.stream.Post(name)
}

// ExpectNotification returns the next observed notification or fails
// once timeout elapses.
func (c *Connection) ExpectNotification(timeout time.Duration) (plist.Value, error) {
	return c.stream.ExpectNotification(timeout)
}

// Notifications returns a channel of successive notifications until
// the connection closes. The channel itself is not closed then; Err
// reports why the stream ended.
func (c *Connection) Notifications() <-chan plist.Value {
	return c.stream.ExpectNotifications()
}

// Err returns the error that ended the underlying read loop, if any.
func (c *Connection) Err() error {
	return c.stream.Err()
}

// WaitUntilSpringboardStarted observes the springboard startup
// notification and blocks until it fires or timeout elapses.
func (c *Connection) WaitUntilSpringboardStarted(timeout time.Duration) error {
	if err := c.Observe(springboardStartedNotification); err != nil {
		return err
	}
	_, err := c.ExpectNotification(timeout)
	return err
}
