// cmd/analyze evaluates the XRP series once and prints the result, without
// running the service. The series comes from the SQLite history cache the
// service keeps, or straight from CoinGecko.
//
// Usage:
//
//	go run ./cmd/analyze --days=30 --vs=usd --source=auto
//	go run ./cmd/analyze --latest          # last snapshot stored by the service
//	go run ./cmd/analyze --watch --redis=localhost:6379
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/config"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/analysis"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/marketdata/coingecko"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	redisstore "github.com/andreyvoland980-afk/xrp-analysis-spa/internal/store/redis"
	sqlitestore "github.com/andreyvoland980-afk/xrp-analysis-spa/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := config.Load()

	days := flag.Int("days", cfg.HistoryDays, "History range in days (1, 7, 30, 90, 180, 365)")
	vs := flag.String("vs", cfg.VSCurrency, "Quote currency (usd, eur, uah, btc)")
	coin := flag.String("coin", cfg.CoinID, "CoinGecko coin id")
	source := flag.String("source", "auto", "Series source: auto (cache, then API), cache, api")
	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	rows := flag.Int("rows", 10, "Indicator frame rows to print")
	latest := flag.Bool("latest", false, "Print the latest evaluation snapshot stored by the service")
	watch := flag.Bool("watch", false, "Print evaluations published to Redis until interrupted")
	exits := flag.Int("exits", 0, "Print the last N exit events mirrored to Redis")
	redisAddr := flag.String("redis", cfg.RedisAddr, "Redis address for --watch and --exits")
	flag.Parse()

	*vs = strings.ToLower(*vs)
	if !config.ValidDays(*days) || !config.ValidCurrency(*vs) {
		log.Fatalf("[analyze] unsupported --days=%d or --vs=%q", *days, *vs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if *exits > 0 {
		if err := printRedisExits(ctx, *redisAddr, cfg.RedisPrefix, *exits); err != nil {
			log.Fatalf("[analyze] exits: %v", err)
		}
		return
	}

	if *watch {
		if err := watchRedis(ctx, *redisAddr, cfg.RedisPrefix, *rows); err != nil && ctx.Err() == nil {
			log.Fatalf("[analyze] watch: %v", err)
		}
		return
	}

	db, err := sqlitestore.Open(sqlitestore.Config{DBPath: *dbPath})
	if err != nil && (*latest || *source == "cache") {
		log.Fatalf("[analyze] sqlite open failed: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	if *latest {
		ev, err := db.LatestEvaluation(ctx)
		if err != nil {
			log.Fatalf("[analyze] load snapshot: %v", err)
		}
		if ev == nil {
			log.Fatal("[analyze] no stored evaluation yet")
		}
		PrintEvaluation(os.Stdout, "stored snapshot", ev, *rows)
		return
	}

	loader := seriesLoader{
		key:   model.SeriesKey(*coin, *vs, *days),
		cache: db,
		api: coingecko.New(coingecko.Config{
			BaseURL:           cfg.CoinGeckoBaseURL,
			CoinID:            *coin,
			RequestsPerMinute: cfg.RequestsPerMinute,
		}),
		days: *days,
		vs:   *vs,
	}
	series, from, err := loader.load(ctx, *source)
	if err != nil {
		log.Fatalf("[analyze] %v", err)
	}

	start := time.Now()
	ev := analysis.Evaluate(series)
	log.Printf("[analyze] evaluated %d points from %s in %s", len(series), from, time.Since(start))
	PrintEvaluation(os.Stdout, from, &ev, *rows)
}

// seriesLoader resolves the series from the cache, the API, or both.
type seriesLoader struct {
	key   string
	cache *sqlitestore.Store // nil when the database could not be opened
	api   *coingecko.Client
	days  int
	vs    string
}

func (l seriesLoader) load(ctx context.Context, source string) (model.Series, string, error) {
	switch source {
	case "cache":
		s, err := l.cache.LoadSeries(ctx, l.key)
		if err != nil {
			return nil, "", fmt.Errorf("load cache: %w", err)
		}
		if len(s) == 0 {
			return nil, "", fmt.Errorf("no cached series for %s", l.key)
		}
		return s, "cache " + l.key, nil
	case "api":
		return l.fetch(ctx)
	case "auto":
		if l.cache != nil {
			if s, err := l.cache.LoadSeries(ctx, l.key); err == nil && len(s) > 0 {
				return s, "cache " + l.key, nil
			}
		}
		return l.fetch(ctx)
	}
	return nil, "", fmt.Errorf("unknown --source %q", source)
}

func (l seriesLoader) fetch(ctx context.Context) (model.Series, string, error) {
	s, err := l.api.FetchSeries(ctx, l.days, l.vs)
	if err != nil {
		return nil, "", err
	}
	if l.cache != nil {
		if err := l.cache.SaveSeries(ctx, l.key, s); err != nil {
			log.Printf("[analyze] cache save failed: %v", err)
		}
	}
	return s, "coingecko", nil
}

func printRedisExits(ctx context.Context, addr, prefix string, n int) error {
	if addr == "" {
		return fmt.Errorf("--redis address required")
	}
	rs, err := redisstore.New(redisstore.Config{Addr: addr, Prefix: prefix})
	if err != nil {
		return err
	}
	defer rs.Close()

	exits, err := rs.RecentExits(ctx, int64(n))
	if err != nil {
		return err
	}
	PrintExits(os.Stdout, exits)
	return nil
}

func watchRedis(ctx context.Context, addr, prefix string, rows int) error {
	if addr == "" {
		return fmt.Errorf("--redis address required")
	}
	rs, err := redisstore.New(redisstore.Config{Addr: addr, Prefix: prefix})
	if err != nil {
		return err
	}
	defer rs.Close()

	if ev, err := rs.LatestEvaluation(ctx); err == nil && ev != nil {
		PrintEvaluation(os.Stdout, "redis latest", ev, rows)
	}

	out := make(chan *model.Evaluation, 16)
	errCh := make(chan error, 1)
	go func() { errCh <- rs.SubscribeEvaluations(ctx, out) }()
	for {
		select {
		case ev := <-out:
			PrintEvaluation(os.Stdout, "redis live", ev, rows)
		case err := <-errCh:
			return err
		}
	}
}
