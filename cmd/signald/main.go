// cmd/signald runs the XRP signal service: it loads price history, splices in
// live trades, evaluates the indicator model, manages the single paper
// position and pushes everything to the dashboard, alert channels and Redis.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/config"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/gateway"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/logger"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/marketdata/binance"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/marketdata/bus"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/marketdata/coingecko"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/metrics"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/notification"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/session"
	redisstore "github.com/andreyvoland980-afk/xrp-analysis-spa/internal/store/redis"
	sqlitestore "github.com/andreyvoland980-afk/xrp-analysis-spa/internal/store/sqlite"
)

const (
	tickBuffer  = 1024
	eventBuffer = 256
)

func main() {
	processStart := time.Now()
	cfg := config.Load()
	logger.Init("signald", logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
	slog.Info("starting", "coin", cfg.CoinID, "vs", cfg.VSCurrency, "days", cfg.HistoryDays, "live_feed", cfg.LiveFeed)

	if !config.ValidDays(cfg.HistoryDays) || !config.ValidCurrency(cfg.VSCurrency) {
		log.Fatalf("[signald] unsupported HISTORY_DAYS=%d or VS_CURRENCY=%q", cfg.HistoryDays, cfg.VSCurrency)
	}

	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite: history cache, journal, tick log, snapshots ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	sq, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[signald] sqlite init failed: %v", err)
	}
	defer sq.Close()
	health.CheckSQLite(ctx, sq.DB())
	log.Printf("[signald] sqlite ready at %s", cfg.SQLitePath)

	// ---- Redis: optional mirror of evaluations and the open position ----
	var rs *redisstore.Store
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		rs, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			log.Printf("[signald] WARNING: redis init failed: %v (continuing without redis)", err)
			rs = nil
		} else {
			defer rs.Close()
			wireBreaker(rs.Breaker(), prom, health)
			health.CheckRedis(ctx, rs.Client())
			log.Println("[signald] redis ready")
		}
	}
	if rs != nil {
		health.StartLivenessChecker(ctx, rs.Client(), sq.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sq.DB(), 10*time.Second)
	}

	// ---- Upstream market data ----
	gecko := coingecko.New(coingecko.Config{
		BaseURL:           cfg.CoinGeckoBaseURL,
		CoinID:            cfg.CoinID,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})

	// ---- Session ----
	deps := session.Deps{
		History:   gecko,
		Cache:     sq,
		Journal:   sq,
		Snapshots: sq,
		Metrics:   prom,
	}
	if rs != nil {
		deps.Positions = rs
	}
	liveCurrency := ""
	if cfg.LiveFeed {
		liveCurrency = "usd"
	}
	sess := session.New(session.Config{
		CoinID:          cfg.CoinID,
		Settings:        session.Settings{Days: cfg.HistoryDays, VSCurrency: cfg.VSCurrency},
		LiveCurrency:    liveCurrency,
		EvalInterval:    cfg.EvalInterval,
		RefreshInterval: cfg.RefreshInterval,
		EventBuffer:     eventBuffer,
	}, deps)

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// ---- Live feed: stream -> fan-out -> session, tick log, health ----
	var sessionTicks <-chan model.Tick
	if cfg.LiveFeed {
		raw := make(chan model.Tick, tickBuffer)
		stream := binance.New(binance.Config{URL: cfg.BinanceWSURL, Stream: cfg.BinanceStream})
		stream.OnReconnect = func() {
			prom.WSReconnects.Inc()
			health.SetFeedConnected(false)
		}
		stream.OnDrop = func() { prom.DroppedTicks.Inc() }

		ticks := bus.New[model.Tick](tickBuffer)
		ticks.OnDrop = func(string) { prom.DroppedTicks.Inc() }
		sessionTicks = ticks.Subscribe("session")
		tickLog := ticks.Subscribe("sqlite")
		tickHealth := ticks.Subscribe("health")
		spawn(func() { reportQueues(ctx, prom, "ticks", ticks.ChannelStats) })

		spawn(func() {
			if err := stream.Run(ctx, raw); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[signald] live feed stopped: %v", err)
			}
		})
		spawn(func() { ticks.Run(ctx, raw) })
		spawn(func() { sq.RunTicks(ctx, tickLog) })
		spawn(func() {
			for tk := range tickHealth {
				prom.TicksTotal.Inc()
				health.SetFeedConnected(true)
				health.SetLastTickTime(tk.TickTS)
			}
		})
	}

	// ---- Session events -> dashboard, alerts, redis, health ----
	events := bus.New[session.Event](eventBuffer)
	events.OnDrop = func(sub string) { log.Printf("[signald] event dropped for %s", sub) }

	hub := gateway.NewHub(prom)
	hubEvents := events.Subscribe("gateway")
	alertEvents := events.Subscribe("alerts")
	statusEvents := events.Subscribe("health")

	notifier := buildNotifier(ctx, cfg)
	alerter := session.NewAlerter(notifier, prom)

	spawn(func() { hub.Run(ctx, hubEvents) })
	spawn(func() { alerter.Run(ctx, alertEvents) })
	spawn(func() {
		for e := range statusEvents {
			if e.Type == session.EventStatus && !e.Status.LastRefresh.IsZero() {
				health.SetRefreshed(e.Status.LastRefresh, e.Status.Points)
			}
		}
	})
	if rs != nil {
		mirrorEvents := events.Subscribe("redis")
		spawn(func() { session.NewMirror(rs).Run(ctx, mirrorEvents) })
	}
	spawn(func() { events.Run(ctx, sess.Events()) })
	spawn(func() { reportQueues(ctx, prom, "events", events.ChannelStats) })
	spawn(func() { hub.StartSystemBroadcast(ctx, processStart, 2*time.Second) })

	spawn(func() {
		if err := sess.Run(ctx, sessionTicks); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[signald] session stopped: %v", err)
		}
	})

	// ---- HTTP: REST + WebSocket ----
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, gateway.Routes{
		Hub:          hub,
		Session:      sess,
		Fundamentals: gecko,
		History:      sq,
		Notifier:     notifier,
		Health:       health,
		TOTPSecret:   cfg.OperatorTOTPSecret,
		Start:        processStart,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[signald] http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[signald] http server error: %v", err)
			sigCh <- syscall.SIGTERM
		}
	}()

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[signald] shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	cancel()
	wg.Wait()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[signald] shutdown complete.")
}

// buildNotifier assembles the alert chain: the relay webhook with direct
// Telegram as fallback, FCM topic push alongside, all behind a rate limit.
// With nothing configured alerts are only logged.
func buildNotifier(ctx context.Context, cfg *config.Config) notification.Notifier {
	var chat notification.Notifier
	var telegram notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegram = notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	}
	switch {
	case cfg.AlertWebhookURL != "" && telegram != nil:
		chat = &notification.Fallback{
			Primary:   notification.NewWebhookNotifier(cfg.AlertWebhookURL),
			Secondary: telegram,
		}
	case cfg.AlertWebhookURL != "":
		chat = notification.NewWebhookNotifier(cfg.AlertWebhookURL)
	case telegram != nil:
		chat = telegram
	}

	var all notification.Multi
	if chat != nil {
		all = append(all, chat)
	}
	if cfg.FirebaseCredentialsPath != "" {
		fcm, err := notification.NewFCMNotifier(ctx, cfg.FirebaseCredentialsPath, cfg.FCMTopic)
		if err != nil {
			log.Printf("[signald] WARNING: fcm disabled: %v", err)
		} else {
			all = append(all, fcm)
		}
	}
	if len(all) == 0 {
		log.Println("[signald] no alert channel configured, alerts go to the log")
		return notification.NewLogNotifier()
	}
	return notification.NewThrottled(all, cfg.AlertsPerMinute)
}

// wireBreaker exports the Redis breaker state to Prometheus and /healthz.
func wireBreaker(cb *redisstore.CircuitBreaker, prom *metrics.Metrics, health *metrics.HealthStatus) {
	health.SetRedisBreaker(cb.CurrentState().String(), 0)
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to redisstore.State) {
		if prev != nil {
			prev(from, to)
		}
		health.SetRedisBreaker(to.String(), cb.Stats().Trips)
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
	}
}

// reportQueues exports how full each subscriber queue of a fan-out is.
func reportQueues(ctx context.Context, prom *metrics.Metrics, name string, stats func() []bus.ChannelStat) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range stats() {
				if st.Cap == 0 {
					continue
				}
				prom.QueueFill.WithLabelValues(name, st.Name).Set(float64(st.Len) / float64(st.Cap))
			}
		}
	}
}
