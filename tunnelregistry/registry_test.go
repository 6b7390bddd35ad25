package tunnelregistry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertInsertsAndStampsCreatedAt(t *testing.T) {
	r := New()
	now := time.Now()

	stored := r.Upsert(Entry{UDID: "abc", DeviceID: 1}, now)
	assert.Equal(t, now, stored.CreatedAt)
	assert.Equal(t, now, stored.LastUpdated)

	entry, ok := r.Get("abc")
	require.True(t, ok)
	assert.Equal(t, stored, entry)
}

func TestUpsertPreservesCreatedAtOnUpdate(t *testing.T) {
	r := New()
	created := time.Now()
	r.Upsert(Entry{UDID: "abc"}, created)

	updated := created.Add(time.Minute)
	stored := r.Upsert(Entry{UDID: "abc", Address: "fe80::1"}, updated)

	assert.Equal(t, created, stored.CreatedAt)
	assert.Equal(t, updated, stored.LastUpdated)
	assert.True(t, stored.LastUpdated.After(stored.CreatedAt))
}

func TestGetByDeviceIDFindsMatchingEntry(t *testing.T) {
	r := New()
	now := time.Now()
	r.Upsert(Entry{UDID: "a", DeviceID: 1}, now)
	r.Upsert(Entry{UDID: "b", DeviceID: 2}, now)

	entry, ok := r.GetByDeviceID(2)
	require.True(t, ok)
	assert.Equal(t, "b", entry.UDID)

	_, ok = r.GetByDeviceID(99)
	assert.False(t, ok)
}

func TestSnapshotCountsTotalTunnels(t *testing.T) {
	r := New()
	now := time.Now()
	r.Upsert(Entry{UDID: "a"}, now)
	r.Upsert(Entry{UDID: "b"}, now)

	snap := r.Snapshot()
	assert.Equal(t, 2, snap.Metadata.TotalTunnels)
	assert.Len(t, snap.Tunnels, 2)
}

func TestUpsertStoresOptionalAndDeviceFields(t *testing.T) {
	r := New()
	now := time.Now()
	port := 12345
	stored := r.Upsert(Entry{
		UDID:             "a",
		Address:          "fe80::1",
		RsdPort:          58783,
		PacketStreamPort: &port,
		ConnectionType:   "USB",
		ProductID:        4779,
	}, now)

	require.NotNil(t, stored.PacketStreamPort)
	assert.Equal(t, port, *stored.PacketStreamPort)
	assert.Equal(t, "USB", stored.ConnectionType)
	assert.Equal(t, 4779, stored.ProductID)
}

func TestRemoveDeletesEntry(t *testing.T) {
	r := New()
	r.Upsert(Entry{UDID: "a"}, time.Now())
	r.Remove("a")

	_, ok := r.Get("a")
	assert.False(t, ok)
}
