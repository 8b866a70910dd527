package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/session"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
	Initial    bool            `json:"initial"`
}

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestHub() *Hub {
	h := NewHub(nil)
	h.now = func() time.Time { return testNow }
	return h
}

// attach registers a connectionless client whose queue the test drains.
func attach(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := newClient(h, nil)
	h.addClient(c)
	return c
}

func recv(t *testing.T, c *Client) envelope {
	t.Helper()
	select {
	case msg := <-c.send:
		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, msg)
		}
		return env
	default:
		t.Fatal("expected a queued message")
	}
	return envelope{}
}

func expectEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %s", msg)
	default:
	}
}

func evaluationEvent(close float64, at time.Time) session.Event {
	return session.Event{
		Type:       session.EventEvaluation,
		At:         at,
		Evaluation: &model.Evaluation{At: at, LastClose: close, Points: 60},
	}
}

// ── envelope ──

func TestBuildEnvelopeFormat(t *testing.T) {
	data := []byte(`{"last_close":0.52,"points":60}`)
	buf := buildEnvelope("evaluation", data, testNow, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != "evaluation" {
		t.Errorf("channel: got %q", env.Channel)
	}
	if env.Seq != 42 || env.ChannelSeq != 7 {
		t.Errorf("seq/channel_seq: got %d/%d, want 42/7", env.Seq, env.ChannelSeq)
	}
	if string(env.Data) != string(data) {
		t.Errorf("data: got %s, want %s", env.Data, data)
	}
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil || !parsed.Equal(testNow) {
		t.Errorf("ts: got %q (%v), want %v", env.TS, err, testNow)
	}
}

// ── fan-out ──

func TestPublishDeliversEventPayload(t *testing.T) {
	h := newTestHub()
	c := attach(t, h)

	h.Publish(evaluationEvent(0.52, testNow.Add(-5*time.Millisecond)))

	env := recv(t, c)
	if env.Channel != "evaluation" || env.Seq != 1 || env.ChannelSeq != 1 {
		t.Fatalf("envelope = %+v", env)
	}
	var ev model.Evaluation
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("data: %v", err)
	}
	if ev.LastClose != 0.52 || ev.Points != 60 {
		t.Errorf("payload = %+v", ev)
	}
	if h.Latency.Count() != 1 {
		t.Errorf("latency samples = %d, want 1", h.Latency.Count())
	}
	if p50, _, _ := h.Latency.Percentiles(); p50 != 5 {
		t.Errorf("latency p50 = %f, want 5", p50)
	}
}

func TestPerChannelSeq(t *testing.T) {
	h := newTestHub()
	c := attach(t, h)

	h.Publish(evaluationEvent(1, testNow))
	h.Publish(session.Event{Type: session.EventStatus, At: testNow, Status: &session.Status{Points: 3}})
	h.Publish(evaluationEvent(2, testNow))

	want := []struct {
		channel         string
		seq, channelSeq int64
	}{
		{"evaluation", 1, 1},
		{"status", 2, 1},
		{"evaluation", 3, 2},
	}
	for _, w := range want {
		env := recv(t, c)
		if env.Channel != w.channel || env.Seq != w.seq || env.ChannelSeq != w.channelSeq {
			t.Errorf("got %s seq=%d channel_seq=%d, want %s %d/%d",
				env.Channel, env.Seq, env.ChannelSeq, w.channel, w.seq, w.channelSeq)
		}
	}
	if got := h.GetChannelSeq("evaluation"); got != 2 {
		t.Errorf("GetChannelSeq(evaluation) = %d, want 2", got)
	}
}

func TestClientChannelFilter(t *testing.T) {
	h := newTestHub()
	c := attach(t, h)
	c.handle(controlMsg{Type: "subscribe", Channels: []string{"exit"}})

	h.Publish(evaluationEvent(1, testNow))
	expectEmpty(t, c)

	exit := model.ExitEvent{ID: "x1", Kind: model.ExitTakeProfit, Price: 1.1, At: testNow}
	h.Publish(session.Event{Type: session.EventExit, At: testNow, Exit: &exit})
	if env := recv(t, c); env.Channel != "exit" {
		t.Errorf("channel = %q, want exit", env.Channel)
	}

	c.handle(controlMsg{Type: "unsubscribe", Channels: []string{"exit"}})
	h.Publish(evaluationEvent(2, testNow))
	if env := recv(t, c); env.Channel != "evaluation" {
		t.Errorf("empty filter should accept everything, got %q", env.Channel)
	}
	if !c.accepts(ChannelSystem) {
		t.Error("system channel must bypass filters")
	}
}

func TestPingGetsPong(t *testing.T) {
	h := newTestHub()
	c := attach(t, h)

	c.handle(controlMsg{Ping: 123})

	var pong struct {
		Type     string `json:"type"`
		Ping     int64  `json:"ping"`
		ServerTS int64  `json:"server_ts"`
	}
	select {
	case msg := <-c.send:
		if err := json.Unmarshal(msg, &pong); err != nil {
			t.Fatal(err)
		}
	default:
		t.Fatal("no pong queued")
	}
	if pong.Type != "pong" || pong.Ping != 123 || pong.ServerTS != testNow.UnixMilli() {
		t.Errorf("pong = %+v", pong)
	}
}

func TestInitialStateRespectsLastTS(t *testing.T) {
	h := newTestHub()
	h.Publish(evaluationEvent(1, testNow))

	late := newClient(h, nil)
	late.sendInitialState("")
	env := recv(t, late)
	if !env.Initial || env.Channel != "evaluation" || env.ChannelSeq != 1 {
		t.Errorf("initial envelope = %+v", env)
	}

	current := newClient(h, nil)
	current.sendInitialState(testNow.Format(time.RFC3339Nano))
	expectEmpty(t, current)
}

func TestReplayRangeAndLatest(t *testing.T) {
	h := newTestHub()
	for i := 1; i <= 4; i++ {
		h.Publish(evaluationEvent(float64(i), testNow))
	}

	got := h.GetReplayRange("evaluation", 2, 3)
	if len(got) != 2 {
		t.Fatalf("replay range len = %d, want 2", len(got))
	}
	var env envelope
	if err := json.Unmarshal(got[0], &env); err != nil || env.ChannelSeq != 2 {
		t.Errorf("first replayed = %+v (%v)", env, err)
	}
	if h.GetReplayRange("cross", 1, 10) != nil {
		t.Error("unknown channel should replay nothing")
	}

	var latest model.Evaluation
	if err := json.Unmarshal(h.GetLatestAll()["evaluation"], &latest); err != nil || latest.LastClose != 4 {
		t.Errorf("latest = %+v (%v)", latest, err)
	}
}

func TestRemoveClientClosesQueue(t *testing.T) {
	h := newTestHub()
	c := attach(t, h)
	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d", h.ClientCount())
	}

	h.RemoveClient(c)
	h.RemoveClient(c)

	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", h.ClientCount())
	}
	if _, ok := <-c.send; ok {
		t.Error("send queue should be closed")
	}
	// Broadcasting after removal must not panic.
	h.Publish(evaluationEvent(1, testNow))
}
