package usbmux

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navin772/appium-ios-remotexpc/plist"
)

// pipedConns returns a client Conn and a server-side Conn wired together
// over an in-memory net.Pipe, standing in for the usbmuxd socket.
func pipedConns() (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}

func TestListDevicesRoundTrip(t *testing.T) {
	client, server := pipedConns()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		_, err := server.receive()
		if err != nil {
			done <- err
			return
		}
		done <- server.send(sampleDeviceListResponse())
	}()

	devices, err := client.ListDevices(time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Len(t, devices, 1)
	assert.Equal(t, "00008020-001A2D1234567890", devices[0].UDID)
}

func TestReadPairRecordRoundTrip(t *testing.T) {
	client, server := pipedConns()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		req, err := server.receive()
		if err != nil {
			done <- err
			return
		}
		dict, _ := req.Dict()
		udid, _ := stringField(dict, "PairRecordID")
		if udid != "the-udid" {
			done <- assertionFailure("unexpected udid in request")
			return
		}
		inner := plist.ToXML(samplePairRecordValue())
		resp := plist.DictValue(plist.NewDict().Set("PairRecordData", plist.Data(inner)))
		done <- server.send(resp)
	}()

	pr, err := client.ReadPairRecord("the-udid")
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, "host-id", pr.HostID)
}

func TestConnectSucceedsOnZeroNumber(t *testing.T) {
	client, server := pipedConns()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		_, err := server.receive()
		if err != nil {
			done <- err
			return
		}
		resp := plist.DictValue(plist.NewDict().Set("Number", plist.Int(0)))
		done <- server.send(resp)
	}()

	err := client.Connect(4, 62078)
	assert.NoError(t, err)
	require.NoError(t, <-done)
}

func TestConnectFailsWithMuxErrorCode(t *testing.T) {
	client, server := pipedConns()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		_, err := server.receive()
		if err != nil {
			done <- err
			return
		}
		resp := plist.DictValue(plist.NewDict().Set("Number", plist.Int(3)))
		done <- server.send(resp)
	}()

	err := client.Connect(4, 62078)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mux connect refused: 3")
	require.NoError(t, <-done)
}

func TestNtohsByteSwapsPort(t *testing.T) {
	assert.Equal(t, uint16(0x7b5b), ntohs(0x5b7b))
}

type assertionFailure string

func (a assertionFailure) Error() string { return string(a) }
