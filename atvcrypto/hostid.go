package atvcrypto

import (
	"github.com/google/uuid"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
)

// HostID deterministically derives a UUIDv3 from hostname, namespaced
// under the DNS-name UUID namespace.
func HostID(hostname string) (uuid.UUID, error) {
	if hostname == "" {
		return uuid.UUID{}, &ioserr.ParseError{Msg: "hostname must not be empty"}
	}
	return uuid.NewMD5(uuid.NameSpaceDNS, []byte(hostname)), nil
}
