package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendQueue  = 256
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Channel filter; empty means every channel.
	mu       sync.RWMutex
	channels map[string]bool
}

// controlMsg is what clients send: a subscription change or an application ping.
//
//	{"type":"subscribe","channels":["evaluation","exit"]}
//	{"type":"unsubscribe","channels":["cross"]}
//	{"ping":1718000000000}
type controlMsg struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
	Ping     int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, sendQueue),
		hub:      h,
		channels: make(map[string]bool),
	}
}

// accepts reports whether the client wants messages on channel.
func (c *Client) accepts(channel string) bool {
	if channel == ChannelSystem {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels) == 0 || c.channels[channel]
}

func (c *Client) subscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		c.channels[ch] = true
	}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
	c.mu.Unlock()
}

// sendInitialState queues the latest payload of every channel updated after lastTS.
func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		envelope, _ := json.Marshal(map[string]interface{}{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

// trySend queues v as JSON, dropping it when the queue is full.
func (c *Client) trySend(v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg controlMsg) {
	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Channels)
	case "unsubscribe":
		c.unsubscribe(msg.Channels)
	default:
		if msg.Ping > 0 {
			c.trySend(map[string]interface{}{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": c.hub.now().UnixMilli(),
			})
		}
	}
}
