package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/metrics"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/session"
	"github.com/gorilla/websocket"
)

// ChannelSystem carries runtime stats. It bypasses client channel filters.
const ChannelSystem = "system"

// Hub manages WebSocket clients and fans session events out to them.
// Each event type is a channel ("evaluation", "position", "exit", "cross",
// "status"). The hub keeps the latest envelope per channel for clients that
// join late, and a replay buffer per channel for gap backfill.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	// Event-to-broadcast latency
	Latency *LatencyTracker

	Broadcaster *Broadcaster

	metrics *metrics.Metrics
	now     func() time.Time
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

// NewHub creates a Hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(10000),
		metrics:     m,
		now:         time.Now,
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Run broadcasts session events until events is closed or ctx is cancelled.
func (h *Hub) Run(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			h.Publish(e)
		}
	}
}

// Publish broadcasts one event on the channel named by its type.
func (h *Hub) Publish(e session.Event) {
	data, err := json.Marshal(eventPayload(e))
	if err != nil {
		log.Printf("[gateway] marshal %s event: %v", e.Type, err)
		return
	}
	if !e.At.IsZero() {
		if ms := float64(h.now().Sub(e.At).Microseconds()) / 1000.0; ms >= 0 {
			h.Latency.Record(ms)
		}
	}
	h.Broadcaster.Broadcast(string(e.Type), data)
}

// eventPayload returns the single payload an event carries.
func eventPayload(e session.Event) interface{} {
	switch e.Type {
	case session.EventEvaluation:
		return e.Evaluation
	case session.EventPosition:
		return e.Position
	case session.EventExit:
		return e.Exit
	case session.EventCross:
		return e.Cross
	case session.EventStatus:
		return e.Status
	}
	return e
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
// Channels updated after lastTS (all when empty) are sent immediately.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := newClient(h, conn)
	conn.EnableWriteCompression(true)

	count := h.addClient(client)
	log.Printf("[gateway] ws client connected (%d total)", count)

	client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

func (h *Hub) addClient(c *Client) int {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.setClientGauge(count)
	return count
}

// RemoveClient removes a client from the hub and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	h.setClientGauge(count)
}

func (h *Hub) setClientGauge(n int) {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
}

// GetLatestAll returns the latest payload of every channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
// Used by /api/missed for client gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartSystemBroadcast sends runtime stats to all WS clients every interval.
func (h *Hub) StartSystemBroadcast(ctx context.Context, start time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			envelope, _ := json.Marshal(map[string]interface{}{
				"channel": ChannelSystem,
				"data":    h.SystemStats(start),
			})
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- envelope:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
