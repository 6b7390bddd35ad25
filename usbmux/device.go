package usbmux

import (
	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
)

// Device is the mux daemon's identity record for one attached device.
// DeviceID is only unique within the lifetime of a single mux session;
// UDID is the globally stable key.
type Device struct {
	DeviceID        int
	UDID            string
	ConnectionType  string
	ConnectionSpeed int
	ProductID       int
	LocationID      int
}

func deviceFromValue(v plist.Value) (Device, error) {
	dict, ok := v.Dict()
	if !ok {
		return Device{}, &ioserr.ParseError{Msg: "device list entry is not a dict"}
	}
	deviceID, _ := intField(dict, "DeviceID")

	propsVal, ok := dict.Get("Properties")
	if !ok {
		return Device{}, &ioserr.ParseError{Msg: "device list entry missing Properties"}
	}
	props, ok := propsVal.Dict()
	if !ok {
		return Device{}, &ioserr.ParseError{Msg: "device Properties is not a dict"}
	}

	udid, _ := stringField(props, "SerialNumber")
	connType, _ := stringField(props, "ConnectionType")
	speed, _ := intField(props, "ConnectionSpeed")
	productID, _ := intField(props, "ProductID")
	locationID, _ := intField(props, "LocationID")

	return Device{
		DeviceID:        deviceID,
		UDID:            udid,
		ConnectionType:  connType,
		ConnectionSpeed: speed,
		ProductID:       productID,
		LocationID:      locationID,
	}, nil
}

func devicesFromValue(v plist.Value) ([]Device, error) {
	dict, ok := v.Dict()
	if !ok {
		return nil, &ioserr.ParseError{Msg: "device list response is not a dict"}
	}
	listVal, ok := dict.Get("DeviceList")
	if !ok {
		return nil, &ioserr.ParseError{Msg: "device list response missing DeviceList"}
	}
	items, ok := listVal.Array()
	if !ok {
		return nil, &ioserr.ParseError{Msg: "DeviceList is not an array"}
	}
	devices := make([]Device, 0, len(items))
	for _, item := range items {
		d, err := deviceFromValue(item)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func stringField(d *plist.Dict, key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok || v.Kind() != plist.KindString {
		return "", false
	}
	return v.String(), true
}

func intField(d *plist.Dict, key string) (int, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	i, ok := v.Int()
	if !ok {
		return 0, false
	}
	return int(i), true
}
