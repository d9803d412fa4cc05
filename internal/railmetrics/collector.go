// Package railmetrics exposes the engine's internal counters to Prometheus
// via a custom Collector that snapshots state on Collect rather than
// updating metrics inline on every tick (grounded on
// runZeroInc-sockstats's pkg/exporter.TCPInfoCollector).
package railmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector reports per-room engine counters. One Collector is registered
// per process; rooms update their snapshot under lock, Collect reads it
// without touching the hot tick-pump path.
type Collector struct {
	mu sync.Mutex

	bytesSent     uint64
	bytesReceived uint64
	droppedDeltas uint64
	eventRetries  uint64

	entityDesc        *prometheus.Desc
	peerDesc          *prometheus.Desc
	bytesSentDesc     *prometheus.Desc
	bytesReceivedDesc *prometheus.Desc
	droppedDeltaDesc  *prometheus.Desc
	eventRetryDesc    *prometheus.Desc

	rooms map[string]*roomSnapshot
}

type roomSnapshot struct {
	entities int
	peers    int
}

// New builds a Collector. constLabels is attached to every metric it
// reports (e.g. {"server_name": "railgunnet"}).
func New(constLabels prometheus.Labels) *Collector {
	return &Collector{
		rooms: make(map[string]*roomSnapshot),
		entityDesc: prometheus.NewDesc("railgunnet_room_entities", "Live entities in a room.",
			[]string{"room"}, constLabels),
		peerDesc: prometheus.NewDesc("railgunnet_room_peers", "Connected peers in a room.",
			[]string{"room"}, constLabels),
		bytesSentDesc: prometheus.NewDesc("railgunnet_bytes_sent_total", "Total payload bytes sent.",
			nil, constLabels),
		bytesReceivedDesc: prometheus.NewDesc("railgunnet_bytes_received_total", "Total payload bytes received.",
			nil, constLabels),
		droppedDeltaDesc: prometheus.NewDesc("railgunnet_dropped_oversized_deltas_total", "Deltas left out of a send-tick packet (over MAXSIZE_ENTITY, past the packet's total cap, or failing to encode).",
			nil, constLabels),
		eventRetryDesc: prometheus.NewDesc("railgunnet_event_retries_total", "Reliable event send attempts beyond the first.",
			nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.entityDesc
	descs <- c.peerDesc
	descs <- c.bytesSentDesc
	descs <- c.bytesReceivedDesc
	descs <- c.droppedDeltaDesc
	descs <- c.eventRetryDesc
}

// Collect implements prometheus.Collector, snapshotting whatever the engine
// last reported via SetRoomCounts/AddBytesSent/etc.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for room, snap := range c.rooms {
		metrics <- prometheus.MustNewConstMetric(c.entityDesc, prometheus.GaugeValue, float64(snap.entities), room)
		metrics <- prometheus.MustNewConstMetric(c.peerDesc, prometheus.GaugeValue, float64(snap.peers), room)
	}
	metrics <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(c.bytesSent))
	metrics <- prometheus.MustNewConstMetric(c.bytesReceivedDesc, prometheus.CounterValue, float64(c.bytesReceived))
	metrics <- prometheus.MustNewConstMetric(c.droppedDeltaDesc, prometheus.CounterValue, float64(c.droppedDeltas))
	metrics <- prometheus.MustNewConstMetric(c.eventRetryDesc, prometheus.CounterValue, float64(c.eventRetries))
}

// SetRoomCounts records the current entity/peer counts for a named room.
func (c *Collector) SetRoomCounts(room string, entities, peers int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = &roomSnapshot{entities: entities, peers: peers}
}

// RemoveRoom drops a room's snapshot, e.g. on shutdown.
func (c *Collector) RemoveRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

// AddBytesSent increments the sent-bytes counter.
func (c *Collector) AddBytesSent(n uint64) {
	c.mu.Lock()
	c.bytesSent += n
	c.mu.Unlock()
}

// AddBytesReceived increments the received-bytes counter.
func (c *Collector) AddBytesReceived(n uint64) {
	c.mu.Lock()
	c.bytesReceived += n
	c.mu.Unlock()
}

// IncDroppedDelta records one delta left out of a send-tick packet: over
// MAXSIZE_ENTITY, past the packet's total cap, or failing to encode.
func (c *Collector) IncDroppedDelta() {
	c.mu.Lock()
	c.droppedDeltas++
	c.mu.Unlock()
}

// IncEventRetry records a reliable event resend attempt.
func (c *Collector) IncEventRetry() {
	c.mu.Lock()
	c.eventRetries++
	c.mu.Unlock()
}
