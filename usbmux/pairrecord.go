package usbmux

import (
	"bytes"
	"encoding/base64"
	"strconv"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
)

// PairRecord is the long-lived secret bundle usbmuxd holds for one
// paired device. HostCertificate and HostPrivateKey form a valid
// keypair; HostID and SystemBUID are required to start a lockdown
// session. Never persisted by this package; callers that want to cache
// it across runs must do so themselves.
type PairRecord struct {
	HostID            string
	SystemBUID        string
	HostCertificate   []byte
	HostPrivateKey    []byte
	DeviceCertificate []byte
	RootCertificate   []byte
	RootPrivateKey    []byte
	EscrowBag         []byte
	WiFiMACAddress    string
}

const pemHeader = "-----BEGIN"

// normalizePEM accepts certificate/key bytes in either raw PEM form or
// base64-encoded PEM form (some usbmuxd implementations double-encode
// these fields) and always returns raw PEM bytes.
func normalizePEM(b []byte) []byte {
	if bytes.HasPrefix(b, []byte(pemHeader)) {
		return b
	}
	decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(b)))
	if err == nil && bytes.HasPrefix(decoded, []byte(pemHeader)) {
		return decoded
	}
	return b
}

func dataField(d *plist.Dict, key string) []byte {
	v, ok := d.Get(key)
	if !ok || v.Kind() != plist.KindData {
		return nil
	}
	b, _ := v.Data()
	return b
}

func pairRecordFromValue(v plist.Value) (PairRecord, error) {
	dict, ok := v.Dict()
	if !ok {
		return PairRecord{}, &ioserr.ParseError{Msg: "pair record is not a dict"}
	}

	hostID, _ := stringField(dict, "HostID")
	systemBUID, _ := stringField(dict, "SystemBUID")
	wifiMAC, _ := stringField(dict, "WiFiMACAddress")

	return PairRecord{
		HostID:            hostID,
		SystemBUID:        systemBUID,
		HostCertificate:   normalizePEM(dataField(dict, "HostCertificate")),
		HostPrivateKey:    normalizePEM(dataField(dict, "HostPrivateKey")),
		DeviceCertificate: normalizePEM(dataField(dict, "DeviceCertificate")),
		RootCertificate:   normalizePEM(dataField(dict, "RootCertificate")),
		RootPrivateKey:    normalizePEM(dataField(dict, "RootPrivateKey")),
		EscrowBag:         dataField(dict, "EscrowBag"),
		WiFiMACAddress:    wifiMAC,
	}, nil
}

// pairRecordFromResponse unwraps the ReadPairRecord response envelope:
// its PairRecordData field is itself a plist blob holding the record.
func pairRecordFromResponse(v plist.Value) (PairRecord, error) {
	dict, ok := v.Dict()
	if !ok {
		return PairRecord{}, &ioserr.ParseError{Msg: "read pair record response is not a dict"}
	}
	inner := dataField(dict, "PairRecordData")
	if inner == nil {
		if n, isErr := responseErrorNumber(dict); isErr {
			return PairRecord{}, &ioserr.NotFoundError{Msg: "pair record not found, mux error code " + strconv.Itoa(n)}
		}
		return PairRecord{}, &ioserr.ParseError{Msg: "read pair record response missing PairRecordData"}
	}
	innerVal, err := plist.ParsePlist(inner)
	if err != nil {
		return PairRecord{}, err
	}
	return pairRecordFromValue(innerVal)
}

func responseErrorNumber(d *plist.Dict) (int, bool) {
	n, ok := intField(d, "Number")
	return n, ok && n != 0
}
