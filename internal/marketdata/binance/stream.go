// Package binance streams live trade prints from the Binance public
// WebSocket API.
package binance

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// DefaultURL is the raw-stream endpoint; the stream name is appended.
const DefaultURL = "wss://stream.binance.com:9443/ws"

// Config holds stream settings.
type Config struct {
	URL    string // base endpoint, e.g. DefaultURL
	Stream string // e.g. "xrpusdt@trade"

	// Reconnect backoff bounds.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Stream implements marketdata.TickStream over a single trade stream.
type Stream struct {
	cfg    Config
	dialer *websocket.Dialer

	// Optional metrics hooks
	OnReconnect func()
	OnDrop      func()
}

// New creates a trade stream.
func New(cfg Config) *Stream {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Stream == "" {
		cfg.Stream = "xrpusdt@trade"
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Stream{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Endpoint returns the full stream URL.
func (s *Stream) Endpoint() string {
	return strings.TrimRight(s.cfg.URL, "/") + "/" + s.cfg.Stream
}

// Run connects and pushes every trade into out, reconnecting with exponential
// backoff on failure. A full out channel drops the tick. Blocks until ctx is
// cancelled and then returns ctx.Err().
func (s *Stream) Run(ctx context.Context, out chan<- model.Tick) error {
	backoff := s.cfg.MinBackoff
	for {
		connected, err := s.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.cfg.MinBackoff
		}
		log.Printf("[binance] stream interrupted: %v (retry in %s)", err, backoff)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

// session runs one connection until it fails. connected reports whether the
// dial succeeded.
func (s *Stream) session(ctx context.Context, out chan<- model.Tick) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.Endpoint(), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	log.Printf("[binance] connected to %s", s.Endpoint())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		tick, err := ParseTrade(msg)
		if err != nil {
			log.Printf("[binance] parse error: %v", err)
			continue
		}
		select {
		case out <- tick:
		default:
			if s.OnDrop != nil {
				s.OnDrop()
			} else {
				log.Println("[binance] tick channel full, dropping tick")
			}
		}
	}
}

// ParseTrade extracts the symbol, price and trade time from a trade event.
func ParseTrade(msg []byte) (model.Tick, error) {
	if !gjson.ValidBytes(msg) {
		return model.Tick{}, fmt.Errorf("invalid JSON frame")
	}
	fields := gjson.GetManyBytes(msg, "s", "p", "T")

	price, err := strconv.ParseFloat(fields[1].String(), 64)
	if err != nil {
		return model.Tick{}, fmt.Errorf("bad price %q", fields[1].String())
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return model.Tick{}, fmt.Errorf("non-positive price %v", price)
	}

	ts := time.Now().UTC()
	if ms := fields[2].Int(); ms > 0 {
		ts = time.UnixMilli(ms).UTC()
	}
	return model.Tick{Symbol: fields[0].String(), Price: price, TickTS: ts}, nil
}
