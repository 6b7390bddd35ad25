package servicefabric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navin772/appium-ios-remotexpc/plist"
)

func TestPostBeforeObserveFails(t *testing.T) {
	client, server := pipedConns()
	defer client.Close()
	defer server.Close()

	stream := NewNotificationStream(client)
	err := stream.Post("com.apple.x")
	assert.Error(t, err)
}

func TestObserveThenExpectNotificationDeliversMessage(t *testing.T) {
	client, server := pipedConns()
	defer client.Close()
	defer server.Close()

	stream := NewNotificationStream(client)

	done := make(chan error, 1)
	go func() {
		req, err := server.receive()
		if err != nil {
			done <- err
			return
		}
		dict, _ := req.Dict()
		cmd, _ := dict.Get("Command")
		if cmd.String() != "ObserveNotification" {
			done <- assertErr("expected ObserveNotification")
			return
		}
		notif := plist.DictValue(
			plist.NewDict().
				Set("Command", plist.String("RelayNotification")).
				Set("Name", plist.String("com.apple.springboard.finishedstartup")),
		)
		done <- server.send(notif)
	}()

	require.NoError(t, stream.Observe("com.apple.springboard.finishedstartup"))
	require.NoError(t, <-done)

	msg, err := stream.ExpectNotification(time.Second)
	require.NoError(t, err)
	dict, _ := msg.Dict()
	name, _ := dict.Get("Name")
	assert.Equal(t, "com.apple.springboard.finishedstartup", name.String())
}

func TestExpectNotificationTimesOutWithoutMessage(t *testing.T) {
	client, server := pipedConns()
	defer client.Close()
	defer server.Close()

	stream := NewNotificationStream(client)

	recvDone := make(chan error, 1)
	go func() {
		_, err := server.receive()
		recvDone <- err
	}()
	require.NoError(t, stream.Observe("com.apple.x"))
	require.NoError(t, <-recvDone)

	_, err := stream.ExpectNotification(50 * time.Millisecond)
	assert.Error(t, err)
}
