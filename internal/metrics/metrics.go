package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal service.
type Metrics struct {
	// Live feed
	TicksTotal   prometheus.Counter
	DroppedTicks prometheus.Counter
	WSReconnects prometheus.Counter

	// History refresh
	HistoryFetches *prometheus.CounterVec // labels: result=ok|error|cached
	HistoryPoints  prometheus.Gauge

	// Evaluation
	EvaluationsTotal prometheus.Counter
	EvaluationDur    prometheus.Histogram
	UpProbability    prometheus.Gauge
	SignalSide       prometheus.Gauge // 1=long, -1=short, 0=neutral

	// Position lifecycle
	PositionOpen prometheus.Gauge
	ExitsTotal   *prometheus.CounterVec // labels: kind
	LevelCrosses *prometheus.CounterVec // labels: direction

	// Alerts
	AlertsSent      prometheus.Counter
	AlertsFailed    prometheus.Counter
	AlertsThrottled prometheus.Counter

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Gateway
	WSClients prometheus.Gauge

	// Fan-out queue fill ratio; labels: bus, subscriber
	QueueFill *prometheus.GaugeVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_ticks_total",
			Help: "Total trade ticks received from the live feed",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_dropped_ticks_total",
			Help: "Ticks dropped because the session channel was full",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_ws_reconnects_total",
			Help: "Total live feed reconnection attempts",
		}),

		HistoryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_history_fetches_total",
			Help: "History refreshes by result",
		}, []string{"result"}),
		HistoryPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_history_points",
			Help: "Points in the current price series",
		}),

		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_evaluations_total",
			Help: "Total analysis passes",
		}),
		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_evaluation_duration_seconds",
			Help:    "Latency of one analysis pass",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		UpProbability: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_up_probability",
			Help: "Latest directional up probability",
		}),
		SignalSide: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_signal_side",
			Help: "Latest signal side (1=long, -1=short, 0=neutral)",
		}),

		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_position_open",
			Help: "Open position side (1=long, -1=short, 0=flat)",
		}),
		ExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_exits_total",
			Help: "Position exits by rule",
		}, []string{"kind"}),
		LevelCrosses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_level_crosses_total",
			Help: "Support/resistance crossings by direction",
		}, []string{"direction"}),

		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_alerts_sent_total",
			Help: "Alerts delivered to the notifier chain",
		}),
		AlertsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_alerts_failed_total",
			Help: "Alerts the notifier chain failed to deliver",
		}),
		AlertsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_alerts_throttled_total",
			Help: "Alerts dropped by the rate limiter",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_ws_clients",
			Help: "Connected dashboard WebSocket clients",
		}),

		QueueFill: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signald_queue_fill_ratio",
			Help: "Buffered fraction of each fan-out subscriber queue",
		}, []string{"bus", "subscriber"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.DroppedTicks,
		m.WSReconnects,
		m.HistoryFetches,
		m.HistoryPoints,
		m.EvaluationsTotal,
		m.EvaluationDur,
		m.UpProbability,
		m.SignalSide,
		m.PositionOpen,
		m.ExitsTotal,
		m.LevelCrosses,
		m.AlertsSent,
		m.AlertsFailed,
		m.AlertsThrottled,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
		m.QueueFill,
	)

	return m
}

// SideValue maps a side name to the gauge encoding used by SignalSide and PositionOpen.
func SideValue(side string) float64 {
	switch side {
	case "LONG":
		return 1
	case "SHORT":
		return -1
	}
	return 0
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	LastRefresh    time.Time `json:"last_refresh"`
	Points         int       `json:"points"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	RedisBreaker   string    `json:"redis_breaker"`
	RedisTrips     int64     `json:"redis_breaker_trips"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// SetRefreshed records a successful history refresh of n points.
func (h *HealthStatus) SetRefreshed(t time.Time, n int) {
	h.mu.Lock()
	h.LastRefresh = t
	h.Points = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

// SetRedisBreaker records the mirror's circuit breaker state.
func (h *HealthStatus) SetRedisBreaker(state string, trips int64) {
	h.mu.Lock()
	h.RedisBreaker = state
	h.RedisTrips = trips
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	if h.LastRefresh.IsZero() || !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.FeedConnected || redisDown {
		// History-only evaluation still works without the live feed.
		overallStatus = "degraded"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		LastRefresh     string  `json:"last_refresh"`
		Points          int     `json:"points"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		RedisBreaker    string  `json:"redis_breaker,omitempty"`
		RedisTrips      int64   `json:"redis_breaker_trips"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		LastRefresh:     h.LastRefresh.Format(time.RFC3339),
		Points:          h.Points,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		RedisBreaker:    h.RedisBreaker,
		RedisTrips:      h.RedisTrips,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
