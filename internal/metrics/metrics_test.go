package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TicksTotal.Inc()
	m.ExitsTotal.WithLabelValues("take-profit").Inc()
	m.ExitsTotal.WithLabelValues("take-profit").Inc()

	if got := testutil.ToFloat64(m.TicksTotal); got != 1 {
		t.Errorf("ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ExitsTotal.WithLabelValues("take-profit")); got != 2 {
		t.Errorf("exits = %v, want 2", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("gather: n=%d err=%v", n, err)
	}
}

func TestSideValue(t *testing.T) {
	tests := map[string]float64{"LONG": 1, "SHORT": -1, "NEUTRAL": 0, "": 0}
	for side, want := range tests {
		if got := SideValue(side); got != want {
			t.Errorf("SideValue(%q) = %v, want %v", side, got, want)
		}
	}
}

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *HealthStatus)
		code   int
		status string
	}{
		{
			name:   "no history yet",
			setup:  func(h *HealthStatus) { h.SQLiteOK = true },
			code:   http.StatusServiceUnavailable,
			status: "unhealthy",
		},
		{
			name: "history without live feed",
			setup: func(h *HealthStatus) {
				h.SQLiteOK = true
				h.SetRefreshed(time.Now(), 720)
			},
			code:   http.StatusOK,
			status: "degraded",
		},
		{
			name: "all up",
			setup: func(h *HealthStatus) {
				h.SQLiteOK = true
				h.SetRefreshed(time.Now(), 720)
				h.SetFeedConnected(true)
				h.SetLastTickTime(time.Now())
			},
			code:   http.StatusOK,
			status: "healthy",
		},
		{
			name: "redis enabled but down",
			setup: func(h *HealthStatus) {
				h.SQLiteOK = true
				h.SetRefreshed(time.Now(), 720)
				h.SetFeedConnected(true)
				h.SetRedisEnabled(true)
			},
			code:   http.StatusOK,
			status: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus()
			tt.setup(h)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.status {
				t.Errorf("status = %q, want %q", body.Status, tt.status)
			}
		})
	}
}
