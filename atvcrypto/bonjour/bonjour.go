// Package bonjour discovers Apple-TV pairing services over mDNS,
// tracking which (name, type, domain, interface) tuples are currently
// advertised and emitting added/removed events as that set changes.
package bonjour

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	log "github.com/sirupsen/logrus"
)

// Key identifies one advertised service instance.
type Key struct {
	Name           string
	Type           string
	Domain         string
	InterfaceIndex int
}

// Service is a discovered mDNS service instance.
type Service struct {
	Key
	Hostname string
	Port     int
	AddrsV4  []net.IP
	AddrsV6  []net.IP
	Text     []string
	expires  time.Time
}

// EventKind distinguishes an added service from a removed one.
type EventKind int

const (
	ServiceAdded EventKind = iota
	ServiceRemoved
)

// Event reports a change to the discovered-service set.
type Event struct {
	Kind    EventKind
	Service Service
}

// expirySweepInterval bounds how often Browse checks for services whose
// TTL has lapsed without a refresh.
const expirySweepInterval = 10 * time.Second

// Browser maintains the in-memory set of currently discovered services
// and publishes Events as the set changes.
type Browser struct {
	mu       sync.Mutex
	services map[Key]Service
	events   chan Event
}

// NewBrowser creates a Browser whose Events channel has the given
// buffer size.
func NewBrowser(eventBuffer int) *Browser {
	return &Browser{
		services: make(map[Key]Service),
		events:   make(chan Event, eventBuffer),
	}
}

// Events returns the channel Event values are published on. Callers
// must drain it; Browse drops events (logging a warning) rather than
// block when it is full.
func (b *Browser) Events() <-chan Event {
	return b.events
}

// Services returns a snapshot of all currently tracked services.
func (b *Browser) Services() []Service {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Service, 0, len(b.services))
	for _, s := range b.services {
		out = append(out, s)
	}
	return out
}

// Browse runs one zeroconf resolver per multicast-capable local
// interface, the way FindDeviceInterfaceAddress enumerates interfaces
// for the iOS remote-pairing service, and feeds discovered entries into
// the shared service set until ctx is canceled.
func (b *Browser) Browse(ctx context.Context, serviceType, domain string) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		wg.Add(1)
		go func(iface net.Interface) {
			defer wg.Done()
			b.browseInterface(ctx, iface, serviceType, domain)
		}(iface)
	}

	sweep := time.NewTicker(expirySweepInterval)
	defer sweep.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweep.C:
				b.expireStale()
			}
		}
	}()

	wg.Wait()
	return nil
}

func (b *Browser) browseInterface(ctx context.Context, iface net.Interface, serviceType, domain string) {
	resolver, err := zeroconf.NewResolver(zeroconf.SelectIfaces([]net.Interface{iface}))
	if err != nil {
		log.WithError(err).WithField("interface", iface.Name).Debug("bonjour resolver init failed")
		return
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				b.upsert(iface.Index, entry)
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, serviceType, domain, entries); err != nil {
		log.WithError(err).WithField("interface", iface.Name).Debug("bonjour browse failed")
	}
	<-ctx.Done()
}

func (b *Browser) upsert(interfaceIndex int, entry *zeroconf.ServiceEntry) {
	key := Key{
		Name:           entry.Instance,
		Type:           entry.Service,
		Domain:         entry.Domain,
		InterfaceIndex: interfaceIndex,
	}
	svc := Service{
		Key:      key,
		Hostname: entry.HostName,
		Port:     entry.Port,
		AddrsV4:  entry.AddrIPv4,
		AddrsV6:  entry.AddrIPv6,
		Text:     entry.Text,
		expires:  time.Now().Add(time.Duration(entry.TTL) * time.Second),
	}

	b.mu.Lock()
	_, existed := b.services[key]
	b.services[key] = svc
	b.mu.Unlock()

	if !existed {
		b.publish(Event{Kind: ServiceAdded, Service: svc})
	}
}

func (b *Browser) expireStale() {
	now := time.Now()
	var removed []Service

	b.mu.Lock()
	for key, svc := range b.services {
		if !svc.expires.IsZero() && now.After(svc.expires) {
			delete(b.services, key)
			removed = append(removed, svc)
		}
	}
	b.mu.Unlock()

	for _, svc := range removed {
		b.publish(Event{Kind: ServiceRemoved, Service: svc})
	}
}

func (b *Browser) publish(ev Event) {
	select {
	case b.events <- ev:
	default:
		log.WithField("key", ev.Service.Key).Warn("bonjour event dropped, events channel full")
	}
}
