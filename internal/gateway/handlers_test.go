package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/marketdata"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/notification"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/position"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/session"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/store/sqlite"
)

// ── fakes ──

type fakeSession struct {
	mu       sync.Mutex
	snap     session.Snapshot
	enterErr error
	closeErr error
	entered  []model.Side
	settings []session.Settings
	refreshs int
}

func (f *fakeSession) Snapshot() *session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snap
	return &s
}

func (f *fakeSession) Enter(ctx context.Context, side model.Side) (model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enterErr != nil {
		return model.Position{}, f.enterErr
	}
	f.entered = append(f.entered, side)
	return model.Position{ID: "p1", Side: side, Entry: 0.5, OpenedAt: testNow}, nil
}

func (f *fakeSession) Close(ctx context.Context) (model.ExitEvent, error) {
	if f.closeErr != nil {
		return model.ExitEvent{}, f.closeErr
	}
	return model.ExitEvent{ID: "x1", PositionID: "p1", Kind: model.ExitManualClose, Price: 0.55}, nil
}

func (f *fakeSession) Refresh(ctx context.Context) error {
	f.mu.Lock()
	f.refreshs++
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) UpdateSettings(ctx context.Context, next session.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = append(f.settings, next)
	return nil
}

type fakeFundamentals struct{ err error }

func (f fakeFundamentals) FetchFundamentals(ctx context.Context, vs string) (marketdata.Fundamentals, error) {
	if f.err != nil {
		return marketdata.Fundamentals{}, f.err
	}
	return marketdata.Fundamentals{Name: "XRP", Symbol: "xrp", Currency: vs, Price: 0.52}, nil
}

type fakeHistory struct{}

func (fakeHistory) Trades(ctx context.Context, limit int) ([]sqlite.TradeRecord, error) {
	return []sqlite.TradeRecord{{PositionID: "p0", Side: model.SideLong, Entry: 0.5, ExitPrice: 0.55, PnLPct: 10}}, nil
}

func (fakeHistory) RecentTicks(ctx context.Context, limit int) ([]model.Tick, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Alert
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, a notification.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, a)
	return nil
}

// ── harness ──

func newServer(t *testing.T, sess *fakeSession, mutate func(*Routes)) (*httptest.Server, *Hub) {
	t.Helper()
	hub := newTestHub()
	rt := Routes{
		Hub:          hub,
		Session:      sess,
		Fundamentals: fakeFundamentals{},
		History:      fakeHistory{},
		Notifier:     &recordingNotifier{},
		Start:        testNow.Add(-time.Minute),
	}
	if mutate != nil {
		mutate(&rt)
	}
	mux := http.NewServeMux()
	RegisterRoutes(mux, rt)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, hub
}

func do(t *testing.T, method, url, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, []byte(buf.String())
}

func expectStatus(t *testing.T, resp *http.Response, body []byte, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func sessionWithEvaluation() *fakeSession {
	return &fakeSession{snap: session.Snapshot{
		Evaluation: &model.Evaluation{
			LastClose: 1.0,
			Levels:    []model.Level{{Price: 0.9, Hits: 3}, {Price: 1.2, Hits: 1}},
		},
		Status: session.Status{Settings: session.Settings{Days: 30, VSCurrency: "usd"}},
	}}
}

// ── read endpoints ──

func TestEvaluationNotReady(t *testing.T) {
	srv, _ := newServer(t, &fakeSession{}, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/evaluation", "", nil)
	expectStatus(t, resp, body, http.StatusNotFound)
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestLevelsClassified(t *testing.T) {
	srv, _ := newServer(t, sessionWithEvaluation(), nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/levels", "", nil)
	expectStatus(t, resp, body, http.StatusOK)

	var out LevelsOut
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Levels) != 2 {
		t.Fatalf("levels = %+v", out.Levels)
	}
	if out.Levels[0].Kind != model.LevelSupport || out.Levels[1].Kind != model.LevelResistance {
		t.Errorf("kinds = %s, %s", out.Levels[0].Kind, out.Levels[1].Kind)
	}
	if out.Below == nil || *out.Below != 0.9 || out.Above == nil || *out.Above != 1.2 {
		t.Errorf("nearest = %v / %v", out.Below, out.Above)
	}
}

func TestFundamentalsUsesSessionCurrency(t *testing.T) {
	srv, _ := newServer(t, sessionWithEvaluation(), nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/fundamentals", "", nil)
	expectStatus(t, resp, body, http.StatusOK)
	var f marketdata.Fundamentals
	if err := json.Unmarshal(body, &f); err != nil {
		t.Fatal(err)
	}
	if f.Currency != "usd" || f.Symbol != "xrp" {
		t.Errorf("fundamentals = %+v", f)
	}
}

func TestFundamentalsUpstreamFailure(t *testing.T) {
	srv, _ := newServer(t, sessionWithEvaluation(), func(rt *Routes) {
		rt.Fundamentals = fakeFundamentals{err: &marketdata.FetchError{Source: "fundamentals", Status: 429}}
	})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/fundamentals", "", nil)
	expectStatus(t, resp, body, http.StatusBadGateway)
}

func TestTradesAndTicks(t *testing.T) {
	srv, _ := newServer(t, &fakeSession{}, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/trades?limit=5", "", nil)
	expectStatus(t, resp, body, http.StatusOK)
	var trades []sqlite.TradeRecord
	if err := json.Unmarshal(body, &trades); err != nil || len(trades) != 1 || trades[0].PnLPct != 10 {
		t.Errorf("trades = %+v (%v)", trades, err)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/ticks", "", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("ticks body = %s, want []", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t, &fakeSession{}, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/status", "", nil)
	expectStatus(t, resp, body, http.StatusMethodNotAllowed)

	resp, body = do(t, http.MethodOptions, srv.URL+"/api/position/enter", "", nil)
	expectStatus(t, resp, body, http.StatusOK)
}

// ── position actions ──

func TestEnterPosition(t *testing.T) {
	sess := &fakeSession{}
	srv, _ := newServer(t, sess, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/position/enter", `{"side":"long"}`, nil)
	expectStatus(t, resp, body, http.StatusCreated)
	if len(sess.entered) != 1 || sess.entered[0] != model.SideLong {
		t.Errorf("entered = %v", sess.entered)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/position/enter", `{"side":"NEUTRAL"}`, nil)
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/position/enter", `{"side":`, nil)
	expectStatus(t, resp, body, http.StatusBadRequest)
}

func TestPositionErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"side mismatch", position.ErrSideMismatch, http.StatusConflict},
		{"already open", position.ErrAlreadyOpen, http.StatusConflict},
		{"no data", position.ErrNoData, http.StatusNotFound},
		{"stopped", session.ErrStopped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, &fakeSession{enterErr: tt.err}, nil)
			resp, body := do(t, http.MethodPost, srv.URL+"/api/position/enter", `{"side":"SHORT"}`, nil)
			expectStatus(t, resp, body, tt.want)
		})
	}

	srv, _ := newServer(t, &fakeSession{closeErr: position.ErrNoPosition}, nil)
	resp, body := do(t, http.MethodPost, srv.URL+"/api/position/close", "", nil)
	expectStatus(t, resp, body, http.StatusNotFound)
}

func TestTOTPGuardsOperatorActions(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	sess := &fakeSession{}
	srv, _ := newServer(t, sess, func(rt *Routes) { rt.TOTPSecret = secret })

	resp, body := do(t, http.MethodPost, srv.URL+"/api/position/enter", `{"side":"LONG"}`, nil)
	expectStatus(t, resp, body, http.StatusUnauthorized)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/position/close", `{"code":"000000x"}`, nil)
	expectStatus(t, resp, body, http.StatusUnauthorized)

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	resp, body = do(t, http.MethodPost, srv.URL+"/api/position/enter", `{"side":"LONG"}`,
		map[string]string{totpHeader: code})
	expectStatus(t, resp, body, http.StatusCreated)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/position/close", `{"code":"`+code+`"}`, nil)
	expectStatus(t, resp, body, http.StatusOK)
}

// ── settings, refresh, alerts ──

func TestUpdateSettings(t *testing.T) {
	sess := sessionWithEvaluation()
	srv, _ := newServer(t, sess, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/settings", `{"vs_currency":"EUR"}`, nil)
	expectStatus(t, resp, body, http.StatusAccepted)
	if len(sess.settings) != 1 || sess.settings[0] != (session.Settings{Days: 30, VSCurrency: "eur"}) {
		t.Errorf("settings = %+v", sess.settings)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/settings", `{"days":45}`, nil)
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/refresh", "", nil)
	expectStatus(t, resp, body, http.StatusAccepted)
	if sess.refreshs != 1 {
		t.Errorf("refreshs = %d", sess.refreshs)
	}
}

func TestAlertTest(t *testing.T) {
	n := &recordingNotifier{}
	srv, _ := newServer(t, &fakeSession{}, func(rt *Routes) { rt.Notifier = n })

	resp, body := do(t, http.MethodPost, srv.URL+"/api/alerts/test", "", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if len(n.sent) != 1 || n.sent[0].Level != notification.AlertInfo {
		t.Fatalf("sent = %+v", n.sent)
	}

	n.err = notification.ErrThrottled
	resp, body = do(t, http.MethodPost, srv.URL+"/api/alerts/test", `{"message":"hi"}`, nil)
	expectStatus(t, resp, body, http.StatusTooManyRequests)

	n.err = errors.New("telegram down")
	resp, body = do(t, http.MethodPost, srv.URL+"/api/alerts/test", "", nil)
	expectStatus(t, resp, body, http.StatusBadGateway)
}

// ── replay ──

func TestMissedEndpoint(t *testing.T) {
	srv, hub := newServer(t, &fakeSession{}, nil)
	for i := 1; i <= 3; i++ {
		hub.Publish(evaluationEvent(float64(i), testNow))
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/api/missed?channel=evaluation&from=2&to=3", "", nil)
	expectStatus(t, resp, body, http.StatusOK)
	var got []envelope
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("body is not a JSON array: %v\n%s", err, body)
	}
	if len(got) != 2 || got[0].ChannelSeq != 2 || got[1].ChannelSeq != 3 {
		t.Errorf("missed = %+v", got)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/missed?channel=evaluation&from=x", "", nil)
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/missed?channel=cross&from=1&to=9", "", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if string(body) != "[]" {
		t.Errorf("empty replay body = %s", body)
	}
}
