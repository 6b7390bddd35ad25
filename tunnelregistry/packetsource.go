package tunnelregistry

import "sync"

// Packet is one IP packet observed on a tunnel's packet source, with
// enough of its header decoded for consumers to filter by protocol and
// endpoint without re-parsing the payload themselves.
type Packet struct {
	Protocol   string
	Src        string
	Dst        string
	SourcePort int
	DestPort   int
	Payload    []byte
}

// PacketConsumer receives one packet as it arrives on a tunnel's packet
// source.
type PacketConsumer func(packet Packet)

// PacketSource is the multi-producer packet handle a TunnelConnection
// exposes alongside its control channel, fanning each packet out to
// every registered consumer: whatever
// carries IP packets into the device (the TUN/TAP bridge and QUIC
// driver, both out of scope here) publishes into it, and domain
// services such as syslog register to receive a copy of every packet.
// Registering and deregistering a consumer is thread-safe and
// idempotent.
type PacketSource struct {
	mu        sync.Mutex
	consumers map[int]PacketConsumer
	nextID    int
}

// NewPacketSource creates an empty PacketSource.
func NewPacketSource() *PacketSource {
	return &PacketSource{consumers: map[int]PacketConsumer{}}
}

// AddConsumer registers consumer and returns a token to pass to
// RemoveConsumer.
func (p *PacketSource) AddConsumer(consumer PacketConsumer) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.consumers[id] = consumer
	return id
}

// RemoveConsumer deregisters the consumer identified by id. Removing
// an unknown or already-removed id is a no-op.
func (p *PacketSource) RemoveConsumer(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, id)
}

// Publish delivers packet to every consumer registered at the time of
// the call. Safe to call concurrently from multiple producers.
func (p *PacketSource) Publish(packet Packet) {
	p.mu.Lock()
	consumers := make([]PacketConsumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.mu.Unlock()

	for _, c := range consumers {
		c(packet)
	}
}
