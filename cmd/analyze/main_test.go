package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/analysis"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	sqlitestore "github.com/andreyvoland980-afk/xrp-analysis-spa/internal/store/sqlite"
)

func rising(n int) model.Series {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(model.Series, n)
	for i := range s {
		s[i] = model.PricePoint{Time: start.Add(time.Duration(i) * time.Hour), Close: 0.5 + 0.002*float64(i)}
	}
	return s
}

func openDB(t *testing.T) *sqlitestore.Store {
	t.Helper()
	db, err := sqlitestore.Open(sqlitestore.Config{DBPath: filepath.Join(t.TempDir(), "xrp.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ── series loading ──

func TestLoaderPrefersCache(t *testing.T) {
	db := openDB(t)
	key := model.SeriesKey("ripple", "usd", 30)
	if err := db.SaveSeries(context.Background(), key, rising(80)); err != nil {
		t.Fatal(err)
	}

	l := seriesLoader{key: key, cache: db, days: 30, vs: "usd"}
	for _, source := range []string{"cache", "auto"} {
		s, from, err := l.load(context.Background(), source)
		if err != nil {
			t.Fatalf("%s: %v", source, err)
		}
		if len(s) != 80 || !strings.HasPrefix(from, "cache") {
			t.Errorf("%s: got %d points from %q", source, len(s), from)
		}
	}
}

func TestLoaderErrors(t *testing.T) {
	l := seriesLoader{key: "ripple:usd:7d", cache: openDB(t), days: 7, vs: "usd"}

	if _, _, err := l.load(context.Background(), "cache"); err == nil {
		t.Error("empty cache should be an error")
	}
	if _, _, err := l.load(context.Background(), "disk"); err == nil {
		t.Error("unknown source should be an error")
	}
}

// ── report ──

func TestPrintEvaluation(t *testing.T) {
	ev := analysis.Evaluate(rising(80))
	ev.Levels = []model.Level{{Price: 0.55, Hits: 3}, {Price: 0.9, Hits: 1}}

	var buf bytes.Buffer
	PrintEvaluation(&buf, "cache ripple:usd:30d", &ev, 3)
	out := buf.String()

	for _, want := range []string{
		"XRP SIGNAL ANALYSIS",
		"cache ripple:usd:30d",
		string(ev.Signal.Side),
		"0.55         3      support",
		"0.9          1      resistance",
		"TIME",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	// Header plus three frame rows after the blank line.
	tail := out[strings.LastIndex(out, "TIME"):]
	if got := strings.Count(strings.TrimRight(tail, "\n"), "\n"); got != 3 {
		t.Errorf("frame rows = %d, want 3", got)
	}
}

func TestPrintExits(t *testing.T) {
	at := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	exits := []model.ExitEvent{
		{Kind: model.ExitTakeProfit, Side: model.SideLong, Entry: 0.6, Price: 0.609, At: at},
		{Kind: model.ExitStopLoss, Side: model.SideShort, Entry: 0.6, Price: 0.6048, At: at.Add(-time.Hour)},
	}

	var buf bytes.Buffer
	PrintExits(&buf, exits)
	out := buf.String()
	for _, want := range []string{"2026-03-02 14:30", "take-profit", "+1.50%", "stop-loss", "-0.80%"} {
		if !strings.Contains(out, want) {
			t.Errorf("exits missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	PrintExits(&buf, nil)
	if !strings.Contains(buf.String(), "no exits recorded") {
		t.Errorf("empty exits = %q", buf.String())
	}
}
