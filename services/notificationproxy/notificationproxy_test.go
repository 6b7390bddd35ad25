package notificationproxy

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navin772/appium-ios-remotexpc/plist"
	"github.com/navin772/appium-ios-remotexpc/servicefabric"
)

func pipedConn() (*servicefabric.Conn, *servicefabric.Conn) {
	a, b := net.Pipe()
	return servicefabric.NewConn(a), servicefabric.NewConn(b)
}

type assertErr string

func (a assertErr) Error() string { return string(a) }

func TestObserveSendsObserveNotificationCommand(t *testing.T) {
	client, server := pipedConn()
	defer client.Close()
	defer server.Close()
	conn := New(client)

	done := make(chan error, 1)
	go func() {
		v, err := server.Receive()
		if err != nil {
			done <- err
			return
		}
		dict, _ := v.Dict()
		cmd, _ := dict.Get("Command")
		name, _ := dict.Get("Name")
		if cmd.String() != "ObserveNotification" || name.String() != "com.apple.test" {
			done <- assertErr("unexpected observe request")
			return
		}
		done <- nil
	}()

	require.NoError(t, conn.Observe("com.apple.test"))
	require.NoError(t, <-done)
}

func TestPostRequiresPriorObserve(t *testing.T) {
	client, server := pipedConn()
	defer client.Close()
	defer server.Close()
	conn := New(client)

	err := conn.Post("com.apple.test")
	assert.Error(t, err)
}

func TestExpectNotificationDeliversPushedMessage(t *testing.T) {
	client, server := pipedConn()
	defer client.Close()
	defer server.Close()
	conn := New(client)

	drain := make(chan error, 1)
	go func() {
		_, err := server.Receive() // ObserveNotification
		drain <- err
	}()
	require.NoError(t, conn.Observe("com.apple.test"))
	require.NoError(t, <-drain)

	resp := plist.DictValue(
		plist.NewDict().
			Set("Name", plist.String("com.apple.test")).
			Set("Command", plist.String("RelayNotification")),
	)
	require.NoError(t, server.Send(resp))

	v, err := conn.ExpectNotification(time.Second)
	require.NoError(t, err)
	dict, _ := v.Dict()
	name, _ := dict.Get("Name")
	assert.Equal(t, "com.apple.test", name.String())
}

func TestWaitUntilSpringboardStartedObservesExpectedName(t *testing.T) {
	client, server := pipedConn()
	defer client.Close()
	defer server.Close()
	conn := New(client)

	done := make(chan error, 1)
	go func() {
		v, err := server.Receive()
		if err != nil {
			done <- err
			return
		}
		dict, _ := v.Dict()
		name, _ := dict.Get("Name")
		if name.String() != "com.apple.springboard.finishedstartup" {
			done <- assertErr("unexpected notification name")
			return
		}
		resp := plist.DictValue(plist.NewDict().Set("Name", name))
		done <- server.Send(resp)
	}()

	require.NoError(t, conn.WaitUntilSpringboardStarted(time.Second))
	require.NoError(t, <-done)
}
