// Package imagemounter wraps the com.apple.mobile.mobile_image_mounter
// service: a dedicated plist request/response session used to mount
// and query developer/personalized disk images.
package imagemounter

import (
	"time"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
	"github.com/navin772/appium-ios-remotexpc/servicefabric"
)

// ServiceName is the mobile_image_mounter RSD service name.
const ServiceName = "com.apple.mobile.mobile_image_mounter"

// DefaultTimeout bounds how long a single request waits for its reply.
const DefaultTimeout = 30 * time.Second

// Connection is a checked-in mobile_image_mounter session.
type Connection struct {
	conn *servicefabric.Conn
}

// New wraps conn, which must have already completed RSD check-in.
func New(conn *servicefabric.Conn) *Connection {
	return &Connection{conn: conn}
}

// Lookup returns the signatures of every currently mounted image of
// imageType ("Developer" or "Personalized"). An empty result is not
// an error: it means no image of that type is mounted.
func (c *Connection) Lookup(imageType string, timeout time.Duration) ([][]byte, error) {
	req := plist.DictValue(
		plist.NewDict().
			Set("Command", plist.String("LookupImage")).
			Set("ImageType", plist.String(imageType)),
	)
	resp, err := c.request(req, timeout)
	if err != nil {
		return nil, err
	}
	dict, ok := resp.Dict()
	if !ok {
		return nil, &ioserr.ProtocolError{Msg: "LookupImage response is not a dict"}
	}
	sigs, ok := dict.Get("ImageSignature")
	if !ok {
		return [][]byte{}, nil
	}
	items, ok := sigs.Array()
	if !ok {
		return nil, &ioserr.ProtocolError{Msg: "ImageSignature is not an array"}
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		b, ok := item.Data()
		if !ok {
			return nil, &ioserr.ProtocolError{Msg: "ImageSignature entry is not data"}
		}
		out = append(out, b)
	}
	return out, nil
}

// IsPersonalizedImageMounted reports whether a Personalized image is
// currently mounted.
func (c *Connection) IsPersonalizedImageMounted(timeout time.Duration) (bool, error) {
	sigs, err := c.Lookup("Personalized", timeout)
	if err != nil {
		return false, err
	}
	return len(sigs) > 0, nil
}

// Mount uploads image together with its personalization manifest and
// trust cache and asks the device to mount it as a Personalized
// image. The image/manifest/trustcache bytes travel as plist Data
// values on the same request/response session every other L5
// interaction uses, rather than the raw byte-stream upload the real
// device protocol also supports.
func (c *Connection) Mount(image, manifest, trustcache []byte, timeout time.Duration) error {
	req := plist.DictValue(
		plist.NewDict().
			Set("Command", plist.String("MountImage")).
			Set("ImageType", plist.String("Personalized")).
			Set("ImageSignature", plist.Data(image)).
			Set("PersonalizationManifest", plist.Data(manifest)).
			Set("TrustCache", plist.Data(trustcache)),
	)
	resp, err := c.request(req, timeout)
	if err != nil {
		return err
	}
	return requireStatus(resp, "Complete")
}

// UnmountImage unmounts the image currently mounted at mountPath.
func (c *Connection) UnmountImage(mountPath string, timeout time.Duration) error {
	req := plist.DictValue(
		plist.NewDict().
			Set("Command", plist.String("UnmountImage")).
			Set("MountPath", plist.String(mountPath)),
	)
	_, err := c.request(req, timeout)
	return err
}

// QueryNonce requests a fresh personalization nonce for imageType and
// returns it verbatim.
func (c *Connection) QueryNonce(imageType string, timeout time.Duration) ([]byte, error) {
	req := plist.DictValue(
		plist.NewDict().
			Set("Command", plist.String("QueryNonce")).
			Set("PersonalizedImageType", plist.String(imageType)),
	)
	resp, err := c.request(req, timeout)
	if err != nil {
		return nil, err
	}
	dict, ok := resp.Dict()
	if !ok {
		return nil, &ioserr.ProtocolError{Msg: "QueryNonce response is not a dict"}
	}
	nonce, ok := dict.Get("PersonalizationNonce")
	if !ok {
		return nil, &ioserr.ProtocolError{Msg: "QueryNonce response missing PersonalizationNonce"}
	}
	b, ok := nonce.Data()
	if !ok {
		return nil, &ioserr.ProtocolError{Msg: "PersonalizationNonce is not data"}
	}
	return b, nil
}

// QueryPersonalizationIdentifiers returns the device's personalization
// identifiers dictionary for imageType ("" queries every type).
func (c *Connection) QueryPersonalizationIdentifiers(imageType string, timeout time.Duration) (plist.Value, error) {
	dict := plist.NewDict().Set("Command", plist.String("QueryPersonalizationIdentifiers"))
	if imageType != "" {
		dict.Set("PersonalizedImageType", plist.String(imageType))
	}
	return c.request(plist.DictValue(dict), timeout)
}

// QueryPersonalizationManifest returns the personalization manifest
// for the image identified by signature.
func (c *Connection) QueryPersonalizationManifest(imageType string, signature []byte, timeout time.Duration) ([]byte, error) {
	req := plist.DictValue(
		plist.NewDict().
			Set("Command", plist.String("QueryPersonalizationManifest")).
			Set("PersonalizationManifestType", plist.String(imageType)).
			Set("ImageSignature", plist.Data(signature)),
	)
	resp, err := c.request(req, timeout)
	if err != nil {
		return nil, err
	}
	dict, ok := resp.Dict()
	if !ok {
		return nil, &ioserr.ProtocolError{Msg: "QueryPersonalizationManifest response is not a dict"}
	}
	manifest, ok := dict.Get("ImageSignature")
	if !ok {
		return nil, &ioserr.ProtocolError{Msg: "QueryPersonalizationManifest response missing ImageSignature"}
	}
	b, ok := manifest.Data()
	if !ok {
		return nil, &ioserr.ProtocolError{Msg: "ImageSignature is not data"}
	}
	return b, nil
}

// CopyDevices returns the relay's raw CopyDevices response, listing
// every currently mounted image's metadata.
func (c *Connection) CopyDevices(timeout time.Duration) (plist.Value, error) {
	req := plist.DictValue(plist.NewDict().Set("Command", plist.String("CopyDevices")))
	return c.request(req, timeout)
}

// QueryDeveloperModeStatus reports whether Developer Mode is enabled.
func (c *Connection) QueryDeveloperModeStatus(timeout time.Duration) (bool, error) {
	req := plist.DictValue(plist.NewDict().Set("Command", plist.String("QueryDeveloperModeStatus")))
	resp, err := c.request(req, timeout)
	if err != nil {
		return false, err
	}
	dict, ok := resp.Dict()
	if !ok {
		return false, &ioserr.ProtocolError{Msg: "QueryDeveloperModeStatus response is not a dict"}
	}
	status, ok := dict.Get("DeveloperModeStatus")
	if !ok {
		return false, &ioserr.ProtocolError{Msg: "QueryDeveloperModeStatus response missing DeveloperModeStatus"}
	}
	b, ok := status.Bool()
	if !ok {
		return false, &ioserr.ProtocolError{Msg: "DeveloperModeStatus is not a bool"}
	}
	return b, nil
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
			return plist.Value{}, &ioserr.ProtocolError{Msg: "image mounter error: " + errVal.String()}
		}
	}
	return resp, nil
}

func requireStatus(resp plist.Value, want string) error {
	dict, ok := resp.Dict()
	if !ok {
		return &ioserr.ProtocolError{Msg: "response is not a dict"}
	}
	status, ok := dict.Get("Status")
	if !ok || status.String() != want {
		return &ioserr.ProtocolError{Msg: "expected Status " + want + ", got " + status.String()}
	}
	return nil
}

// Close closes the underlying connection. It is idempotent.
func (c *Connection) Close() error {
	return c.conn.Close()
}
