package tunnelregistry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tcpPacket(payload string) Packet {
	return Packet{Protocol: "TCP", Src: "fe80::1", Dst: "fe80::2", SourcePort: 1234, DestPort: 5678, Payload: []byte(payload)}
}

func TestPublishDeliversToAllConsumers(t *testing.T) {
	p := NewPacketSource()
	var mu sync.Mutex
	var got []Packet

	p.AddConsumer(func(packet Packet) {
		mu.Lock()
		got = append(got, packet)
		mu.Unlock()
	})
	p.AddConsumer(func(packet Packet) {
		mu.Lock()
		got = append(got, packet)
		mu.Unlock()
	})

	p.Publish(tcpPacket("hello"))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 2)
}

func TestRemoveConsumerStopsDelivery(t *testing.T) {
	p := NewPacketSource()
	var calls int
	id := p.AddConsumer(func(packet Packet) { calls++ })

	p.RemoveConsumer(id)
	p.Publish(tcpPacket("hello"))

	assert.Equal(t, 0, calls)
}

func TestRemoveConsumerIsIdempotent(t *testing.T) {
	p := NewPacketSource()
	id := p.AddConsumer(func(packet Packet) {})

	p.RemoveConsumer(id)
	p.RemoveConsumer(id)
	p.RemoveConsumer(id + 100)
}

func TestAddConsumerConcurrentSafe(t *testing.T) {
	p := NewPacketSource()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := p.AddConsumer(func(packet Packet) {})
			p.RemoveConsumer(id)
		}()
	}
	wg.Wait()
}
