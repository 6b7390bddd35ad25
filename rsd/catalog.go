package rsd

import (
	"regexp"
	"sort"
)

// Service is one entry from the RSD catalog: a dotted reverse-DNS
// service name and the decimal TCP port it listens on inside the
// tunnel. Names are unique within a single catalog snapshot.
type Service struct {
	Name string
	Port string
}

// serviceNamePattern matches the reverse-DNS service names that appear
// as free text inside the RSD DATA payload, among otherwise binary
// framing.
var serviceNamePattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*(?:\.[A-Za-z0-9_-]+){1,}`)

var portMarkerPattern = regexp.MustCompile(`Port`)

var digitsPattern = regexp.MustCompile(`[0-9]{1,5}`)

// portSearchWindow bounds how far past a "Port" marker the decimal
// value is expected to appear.
const portSearchWindow = 32

// extractCatalog scans a raw RSD DATA payload for interleaved service
// names and "Port" markers, in byte order, and pairs each name with
// the nearest following port. When two names appear consecutively
// with no port between them, the first is dropped: only the pairing
// that actually has a port survives.
func extractCatalog(payload []byte) []Service {
	type occurrence struct {
		pos    int
		isPort bool
		name   string
	}

	var occs []occurrence
	for _, loc := range serviceNamePattern.FindAllStringIndex(string(payload), -1) {
		occs = append(occs, occurrence{pos: loc[0], name: string(payload[loc[0]:loc[1]])})
	}
	for _, loc := range portMarkerPattern.FindAllStringIndex(string(payload), -1) {
		occs = append(occs, occurrence{pos: loc[0], isPort: true})
	}
	sort.Slice(occs, func(i, j int) bool { return occs[i].pos < occs[j].pos })

	var services []Service
	pendingName := ""
	for _, o := range occs {
		if !o.isPort {
			pendingName = o.name
			continue
		}
		if pendingName == "" {
			continue
		}
		end := o.pos + portSearchWindow
		if end > len(payload) {
			end = len(payload)
		}
		port := digitsPattern.FindString(string(payload[o.pos:end]))
		if port == "" {
			continue
		}
		services = append(services, Service{Name: pendingName, Port: port})
		pendingName = ""
	}
	return services
}
