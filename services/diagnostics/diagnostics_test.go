package diagnostics

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
	"github.com/navin772/appium-ios-remotexpc/servicefabric"
)

func pipedConn() (*servicefabric.Conn, *servicefabric.Conn) {
	a, b := net.Pipe()
	return servicefabric.NewConn(a), servicefabric.NewConn(b)
}

type assertErr string

func (a assertErr) Error() string { return string(a) }

func TestAllValuesSendsAllRequest(t *testing.T) {
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
		req, _ := dict.Get("Request")
		if req.String() != "All" {
			done <- assertErr("expected All request")
			return
		}
		resp := plist.DictValue(plist.NewDict().Set("Status", plist.String("Success")))
		done <- server.Send(resp)
	}()

	_, err := conn.AllValues(time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestMobileGestaltEncodesKeys(t *testing.T) {
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
		keys, _ := dict.Get("MobileGestaltKeys")
		arr, _ := keys.Array()
		if len(arr) != 2 || arr[0].String() != "UniqueDeviceID" {
			done <- assertErr("unexpected MobileGestaltKeys")
			return
		}
		resp := plist.DictValue(plist.NewDict().Set("UniqueDeviceID", plist.String("abc")))
		done <- server.Send(resp)
	}()

	resp, err := conn.MobileGestalt([]string{"UniqueDeviceID", "ProductType"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)
	dict, _ := resp.Dict()
	v, _ := dict.Get("UniqueDeviceID")
	assert.Equal(t, "abc", v.String())
}

func TestIORegistryOmitsUnsetFilters(t *testing.T) {
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
		if _, ok := dict.Get("CurrentPlane"); ok {
			done <- assertErr("did not expect CurrentPlane")
			return
		}
		if _, ok := dict.Get("EntryClass"); !ok {
			done <- assertErr("expected EntryClass")
			return
		}
		done <- server.Send(plist.DictValue(plist.NewDict()))
	}()

	_, err := conn.IORegistry(IORegistryOptions{Class: "IOPlatformDevice"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestRequestReportsProtocolErrorOnErrorField(t *testing.T) {
	client, server := pipedConn()
	defer client.Close()
	defer server.Close()
	conn := New(client)

	done := make(chan error, 1)
	go func() {
		_, err := server.Receive()
		if err != nil {
			done <- err
			return
		}
		resp := plist.DictValue(plist.NewDict().Set("Error", plist.String("denied")))
		done <- server.Send(resp)
	}()

	_, err := conn.AllValues(time.Second)
	assert.Error(t, err)
	var protoErr *ioserr.ProtocolError
	assert.ErrorAs(t, err, &protoErr)
	require.NoError(t, <-done)
}
