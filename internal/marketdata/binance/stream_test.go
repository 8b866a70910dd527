package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

func TestParseTrade(t *testing.T) {
	tick, err := ParseTrade([]byte(`{"e":"trade","E":1700000000100,"s":"XRPUSDT","t":1,"p":"0.61230000","q":"100.0","T":1700000000000,"m":true}`))
	if err != nil {
		t.Fatalf("ParseTrade: %v", err)
	}
	if tick.Symbol != "XRPUSDT" || tick.Price != 0.6123 || tick.TickTS.UnixMilli() != 1700000000000 {
		t.Errorf("unexpected tick %+v", tick)
	}
}

func TestParseTrade_Rejects(t *testing.T) {
	bad := []string{
		`not json`,
		`{"s":"XRPUSDT"}`,
		`{"s":"XRPUSDT","p":"abc"}`,
		`{"s":"XRPUSDT","p":"0"}`,
		`{"s":"XRPUSDT","p":"NaN"}`,
	}
	for _, frame := range bad {
		if _, err := ParseTrade([]byte(frame)); err == nil {
			t.Errorf("expected error for %s", frame)
		}
	}
}

func TestStream_DeliversTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/xrpusdt@trade" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"XRPUSDT","p":"0.5000","T":1700000000000}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"XRPUSDT","p":"0.5100","T":1700000001000}`))
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	s := New(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", Stream: "xrpusdt@trade"})
	out := make(chan model.Tick, 4)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, out) }()

	var got []float64
	for len(got) < 2 {
		select {
		case tick := <-out:
			got = append(got, tick.Price)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != 0.5 || got[1] != 0.51 {
		t.Errorf("prices = %v", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
