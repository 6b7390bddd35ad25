package lockdown

import (
	"time"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
)

// GetValue issues lockdown's GetValue request for key in the root
// domain and returns the decoded Value reply verbatim.
func (c *Conn) GetValue(key string, timeout time.Duration) (plist.Value, error) {
	return c.getValue(key, "", timeout)
}

// GetValueForDomain is GetValue scoped to domain, as battery,
// IORegistry and MobileGestalt queries require.
func (c *Conn) GetValueForDomain(key, domain string, timeout time.Duration) (plist.Value, error) {
	return c.getValue(key, domain, timeout)
}

func (c *Conn) getValue(key, domain string, timeout time.Duration) (plist.Value, error) {
	dict := plist.NewDict().
		Set("Label", plist.String(label)).
		Set("Request", plist.String("GetValue"))
	if key != "" {
		dict.Set("Key", plist.String(key))
	}
	if domain != "" {
		dict.Set("Domain", plist.String(domain))
	}

	resp, err := c.sendAndReceive(plist.DictValue(dict), timeout)
	if err != nil {
		return plist.Value{}, err
	}
	respDict, ok := resp.Dict()
	if !ok {
		return plist.Value{}, &ioserr.ProtocolError{Msg: "GetValue response is not a dict"}
	}
	if errVal, hasErr := respDict.Get("Error"); hasErr {
		return plist.Value{}, &ioserr.ProtocolError{Msg: "GetValue failed: " + errVal.String()}
	}
	value, ok := respDict.Get("Value")
	if !ok {
		return plist.Value{}, &ioserr.ProtocolError{Msg: "GetValue response missing Value"}
	}
	return value, nil
}
