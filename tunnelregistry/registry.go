// Package tunnelregistry tracks which devices currently have an
// established tunnel and exposes that state over a small HTTP API so
// sibling processes can discover a running tunnel without sharing
// memory with the process that owns it.
package tunnelregistry

import (
	"sync"
	"time"
)

// Entry describes one device's established tunnel.
type Entry struct {
	UDID             string    `json:"udid"`
	DeviceID         int       `json:"deviceId"`
	Address          string    `json:"address"`
	RsdPort          int       `json:"rsdPort"`
	PacketStreamPort *int      `json:"packetStreamPort,omitempty"`
	ConnectionType   string    `json:"connectionType"`
	ProductID        int       `json:"productId"`
	CreatedAt        time.Time `json:"createdAt"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// Metadata summarizes the registry's current contents.
type Metadata struct {
	LastUpdated  time.Time `json:"lastUpdated"`
	TotalTunnels int       `json:"totalTunnels"`
}

// Snapshot is the full registry contents as returned by the HTTP API.
type Snapshot struct {
	Tunnels  map[string]Entry `json:"tunnels"`
	Metadata Metadata         `json:"metadata"`
}

// Registry is a process-local udid -> Entry map. All mutating
// operations hold an exclusive lock; readers observe a consistent
// snapshot taken under a brief read lock. The registry never opens or
// closes a device tunnel itself; callers register and deregister.
type Registry struct {
	mu          sync.RWMutex
	tunnels     map[string]Entry
	lastUpdated time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tunnels: map[string]Entry{}}
}

// Snapshot returns a copy of the registry's current contents.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tunnels := make(map[string]Entry, len(r.tunnels))
	for udid, e := range r.tunnels {
		tunnels[udid] = e
	}
	return Snapshot{
		Tunnels: tunnels,
		Metadata: Metadata{
			LastUpdated:  r.lastUpdated,
			TotalTunnels: len(tunnels),
		},
	}
}

// Get returns the entry for udid, or false if no such entry exists.
func (r *Registry) Get(udid string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tunnels[udid]
	return e, ok
}

// GetByDeviceID returns the first entry matching deviceID, or false if
// none matches. Order among entries with the same device id is not
// defined.
func (r *Registry) GetByDeviceID(deviceID int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.tunnels {
		if e.DeviceID == deviceID {
			return e, true
		}
	}
	return Entry{}, false
}

// Upsert inserts or updates the entry for entry.UDID, stamping
// LastUpdated (and CreatedAt, on first insert) with now. It returns
// the stored entry.
func (r *Registry) Upsert(entry Entry, now time.Time) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tunnels[entry.UDID]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.CreatedAt = now
	}
	entry.LastUpdated = now
	r.tunnels[entry.UDID] = entry
	r.lastUpdated = now
	return entry
}

// Remove deregisters udid's tunnel, if any.
func (r *Registry) Remove(udid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tunnels, udid)
	r.lastUpdated = time.Now()
}
