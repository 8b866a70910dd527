// Package session owns the live analysis state: the current price series and
// the single open position.
//
// All state lives inside the goroutine started by Run. History batches, live
// ticks, timer passes and operator commands are all delivered to that
// goroutine and handled one at a time, so every evaluation sees a consistent
// series and position. Readers get immutable Snapshots; downstream consumers
// (dashboard, alerts, Redis) receive Events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/analysis"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/logger"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/marketdata"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/metrics"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/position"
)

var (
	// ErrStopped is returned by commands issued after Run has returned.
	ErrStopped = errors.New("session: stopped")

	// ErrInvalidSettings is returned for a non-positive range or empty currency.
	ErrInvalidSettings = errors.New("session: invalid settings")

	// ErrPositionOpen is returned when changing the quote currency while a
	// position priced in the old currency is open.
	ErrPositionOpen = errors.New("session: cannot change currency while a position is open")
)

const (
	defaultFetchTimeout = 20 * time.Second
	defaultEventBuffer  = 256
	storeTimeout        = 3 * time.Second
)

// Config configures a Session.
type Config struct {
	CoinID   string
	Settings Settings

	// LiveCurrency is the quote currency of the live feed. Ticks are spliced
	// into the series only while Settings.VSCurrency equals it; "" ignores ticks.
	LiveCurrency string

	EvalInterval    time.Duration // periodic re-evaluation; 0 disables
	RefreshInterval time.Duration // periodic history refresh; 0 disables
	FetchTimeout    time.Duration
	EventBuffer     int
}

// SnapshotStore keeps evaluation snapshots for offline inspection.
type SnapshotStore interface {
	SaveEvaluation(ctx context.Context, ev *model.Evaluation) error
}

// Deps are the session's collaborators. Only History is required.
type Deps struct {
	History   marketdata.HistoryFetcher
	Cache     model.SeriesCache
	Journal   model.PositionJournal
	Positions model.PositionStore
	Snapshots SnapshotStore
	Metrics   *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// historyResult is a completed fetch delivered back to the loop.
type historyResult struct {
	settings  Settings
	series    model.Series
	fromCache bool
	err       error
}

// Session is the single-writer analysis loop.
type Session struct {
	cfg  Config
	deps Deps

	cmds    chan func()
	fetched chan historyResult
	events  chan Event
	stopped chan struct{}
	snap    atomic.Pointer[Snapshot]

	// Owned by the Run goroutine.
	ctx       context.Context
	settings  Settings
	series    model.Series
	eval      *model.Evaluation
	pos       *model.Position
	status    Status
	fetching  bool
	lastCross *model.LevelCross
}

// New creates a session. Call Run to start it.
func New(cfg Config, deps Deps) *Session {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Session{
		cfg:      cfg,
		deps:     deps,
		cmds:     make(chan func()),
		fetched:  make(chan historyResult, 1),
		events:   make(chan Event, cfg.EventBuffer),
		stopped:  make(chan struct{}),
		settings: cfg.Settings,
	}
	s.status.Settings = cfg.Settings
	s.status.LiveFeed = s.liveApplies()
	s.publish()
	return s
}

// Events returns the channel of session events. It is closed when Run returns.
func (s *Session) Events() <-chan Event { return s.events }

// Snapshot returns the latest published state. Never nil.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

// Run restores persisted state, starts the first history refresh and then
// handles stimuli until ctx is cancelled. ticks may be nil.
func (s *Session) Run(ctx context.Context, ticks <-chan model.Tick) error {
	defer close(s.events)
	defer close(s.stopped)

	s.ctx = ctx
	s.restore(ctx)
	s.refresh(ctx)

	var evalC, refreshC <-chan time.Time
	if s.cfg.EvalInterval > 0 {
		t := time.NewTicker(s.cfg.EvalInterval)
		defer t.Stop()
		evalC = t.C
	}
	if s.cfg.RefreshInterval > 0 {
		t := time.NewTicker(s.cfg.RefreshInterval)
		defer t.Stop()
		refreshC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.cmds:
			fn()
		case tk, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			s.onTick(tk)
		case res := <-s.fetched:
			s.onHistory(ctx, res)
		case <-evalC:
			s.pass()
		case <-refreshC:
			s.refresh(ctx)
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		fn()
		close(done)
	}
	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enter opens a position on side from the current signal.
func (s *Session) Enter(ctx context.Context, side model.Side) (model.Position, error) {
	var pos model.Position
	var err error
	if derr := s.do(ctx, func() { pos, err = s.enter(side) }); derr != nil {
		return model.Position{}, derr
	}
	return pos, err
}

// Close exits the open position at the last close.
func (s *Session) Close(ctx context.Context) (model.ExitEvent, error) {
	var ev model.ExitEvent
	var err error
	if derr := s.do(ctx, func() { ev, err = s.closePosition() }); derr != nil {
		return model.ExitEvent{}, derr
	}
	return ev, err
}

// Refresh starts a history refresh unless one is already in flight.
func (s *Session) Refresh(ctx context.Context) error {
	return s.do(ctx, func() { s.refresh(s.ctx) })
}

// UpdateSettings switches the tracked range and currency and refreshes history.
func (s *Session) UpdateSettings(ctx context.Context, next Settings) error {
	var err error
	if derr := s.do(ctx, func() { err = s.updateSettings(next) }); derr != nil {
		return derr
	}
	return err
}

// ── loop-side handlers ──

func (s *Session) restore(ctx context.Context) {
	if s.deps.Positions != nil {
		rctx, cancel := context.WithTimeout(ctx, storeTimeout)
		pos, err := s.deps.Positions.LoadPosition(rctx)
		cancel()
		switch {
		case err != nil:
			log.Printf("[session] restore position: %v", err)
		case pos != nil:
			s.pos = pos
			log.Printf("[session] restored %s position %s @ %v", pos.Side, pos.ID, pos.Entry)
		}
	}

	if s.deps.Cache != nil {
		key := s.cacheKey(s.settings)
		cached, err := s.deps.Cache.LoadSeries(ctx, key)
		if err != nil {
			log.Printf("[session] load cached series %s: %v", key, err)
		} else if len(cached) > 0 {
			s.series = cached
			s.status.FromCache = true
			s.status.Points = len(cached)
			log.Printf("[session] warm start from cache %s (%d points)", key, len(cached))
		}
	}

	// Cached prices may be stale, so exits wait for fresh data.
	s.evaluate()
	s.publish()
}

func (s *Session) refresh(ctx context.Context) {
	if s.fetching {
		return
	}
	s.fetching = true
	s.status.Refreshing = true
	settings := s.settings
	go func() {
		res := s.fetch(ctx, settings)
		select {
		case s.fetched <- res:
		case <-ctx.Done():
		}
	}()
}

// fetch runs off the loop goroutine; it only touches its arguments and the
// stateless collaborators.
func (s *Session) fetch(ctx context.Context, settings Settings) historyResult {
	ctx = logger.WithTraceID(ctx, logger.NewTraceID("refresh"))
	res := historyResult{settings: settings}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	series, err := s.deps.History.FetchSeries(fctx, settings.Days, settings.VSCurrency)
	cancel()

	if err == nil && len(series) == 0 {
		err = fmt.Errorf("%w: empty history", marketdata.ErrFetch)
	}
	key := s.cacheKey(settings)
	if err == nil {
		res.series = series
		if s.deps.Cache != nil {
			if cerr := s.deps.Cache.SaveSeries(ctx, key, series); cerr != nil {
				log.Printf("[session] cache series %s: %v", key, cerr)
			}
		}
		return res
	}

	res.err = err
	if s.deps.Cache != nil {
		cached, cerr := s.deps.Cache.LoadSeries(ctx, key)
		if cerr == nil && len(cached) > 0 {
			res.series = cached
			res.fromCache = true
		}
	}
	args := append([]any{"days", settings.Days, "vs", settings.VSCurrency, "error", err}, logger.LogWithTrace(ctx)...)
	slog.Warn("history fetch failed", args...)
	return res
}

func (s *Session) onHistory(ctx context.Context, res historyResult) {
	s.fetching = false
	s.status.Refreshing = false

	if res.settings != s.settings {
		// Settings changed while the fetch was in flight.
		s.refresh(ctx)
		return
	}

	now := s.deps.Now()
	if res.err != nil {
		s.status.LastError = res.err.Error()
		s.status.LastErrorAt = now
		s.observe(func(m *metrics.Metrics) { m.HistoryFetches.WithLabelValues("error").Inc() })
		if len(s.series) > 0 || len(res.series) == 0 {
			s.emitStatus(now)
			s.publish()
			return
		}
		s.observe(func(m *metrics.Metrics) { m.HistoryFetches.WithLabelValues("cached").Inc() })
	} else {
		s.status.LastError = ""
		s.status.LastRefresh = now
		s.observe(func(m *metrics.Metrics) { m.HistoryFetches.WithLabelValues("ok").Inc() })
	}

	s.series = res.series
	s.status.FromCache = res.fromCache
	s.status.Points = len(res.series)
	s.lastCross = nil
	s.observe(func(m *metrics.Metrics) { m.HistoryPoints.Set(float64(len(res.series))) })

	s.emitStatus(now)
	if ev := s.pass(); ev != nil && s.deps.Snapshots != nil && !res.fromCache {
		if err := s.deps.Snapshots.SaveEvaluation(ctx, ev); err != nil {
			log.Printf("[session] save evaluation snapshot: %v", err)
		}
	}
}

func (s *Session) onTick(tk model.Tick) {
	if !s.liveApplies() || len(s.series) == 0 {
		return
	}
	if tk.Price <= 0 {
		return
	}
	s.status.LastTick = tk.TickTS

	prev, _ := s.series.LastClose()
	s.series = s.series.WithLiveTick(tk.Price)
	ev := s.pass()
	if ev != nil {
		s.detectCrossings(prev, tk.Price, ev.Levels, s.deps.Now())
	}
}

// pass evaluates the current series, applies the exit rules to the open
// position and publishes the result. Returns nil when there is no data.
func (s *Session) pass() *model.Evaluation {
	ev := s.evaluate()
	if ev != nil {
		s.checkExit()
	}
	s.publish()
	return ev
}

func (s *Session) evaluate() *model.Evaluation {
	if len(s.series) == 0 {
		return nil
	}

	start := time.Now()
	ev := analysis.Evaluate(s.series)
	elapsed := time.Since(start)

	s.eval = &ev
	s.observe(func(m *metrics.Metrics) {
		m.EvaluationsTotal.Inc()
		m.EvaluationDur.Observe(elapsed.Seconds())
		m.UpProbability.Set(ev.Probability.Up)
		m.SignalSide.Set(metrics.SideValue(string(ev.Signal.Side)))
	})
	s.emit(Event{Type: EventEvaluation, At: s.deps.Now(), Evaluation: &ev})
	return &ev
}

func (s *Session) checkExit() {
	if s.pos == nil || s.eval == nil {
		return
	}
	res := position.Evaluate(s.pos, s.series, s.eval.Frame, s.deps.Now())
	if res.Exit != nil {
		s.closed(*res.Exit)
	}
}

func (s *Session) detectCrossings(prev, curr float64, levels []model.Level, at time.Time) {
	above, below := analysis.Nearest(levels, prev)
	for _, c := range analysis.Crossings(levels, prev, curr) {
		nearest := (c.Direction == model.CrossUp && above != nil && c.Level.Price == *above) ||
			(c.Direction == model.CrossDown && below != nil && c.Level.Price == *below)
		if !nearest {
			continue
		}
		if s.lastCross != nil && s.lastCross.Level.Price == c.Level.Price && s.lastCross.Direction == c.Direction {
			continue
		}
		c.At = at
		cross := c
		s.lastCross = &cross
		s.observe(func(m *metrics.Metrics) { m.LevelCrosses.WithLabelValues(string(cross.Direction)).Inc() })
		s.emit(Event{Type: EventCross, At: at, Cross: &cross})
	}
}

func (s *Session) enter(side model.Side) (model.Position, error) {
	if s.pos != nil {
		return model.Position{}, position.ErrAlreadyOpen
	}
	if s.eval == nil {
		return model.Position{}, position.ErrNoData
	}
	pos, err := position.Enter(side, s.eval.Signal, s.series, s.deps.Now())
	if err != nil {
		return model.Position{}, err
	}

	s.pos = &pos
	s.storePosition(&pos)
	if s.deps.Journal != nil {
		jctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
		if err := s.deps.Journal.RecordEntry(jctx, pos); err != nil {
			log.Printf("[session] journal entry %s: %v", pos.ID, err)
		}
		cancel()
	}
	slog.Info("position opened", "id", pos.ID, "side", pos.Side, "entry", pos.Entry)
	s.emit(Event{Type: EventPosition, At: pos.OpenedAt, Position: &pos})

	// The exit rules apply from the first pass, including this one.
	s.checkExit()
	s.publish()
	return pos, nil
}

func (s *Session) closePosition() (model.ExitEvent, error) {
	ev, err := position.Close(s.pos, s.series, s.deps.Now())
	if err != nil {
		return model.ExitEvent{}, err
	}
	s.closed(ev)
	s.publish()
	return ev, nil
}

// closed records an exit and clears the position.
func (s *Session) closed(ev model.ExitEvent) {
	s.pos = nil
	s.storePosition(nil)
	if s.deps.Journal != nil {
		jctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
		if err := s.deps.Journal.RecordExit(jctx, ev); err != nil {
			log.Printf("[session] journal exit %s: %v", ev.ID, err)
		}
		cancel()
	}
	s.observe(func(m *metrics.Metrics) { m.ExitsTotal.WithLabelValues(string(ev.Kind)).Inc() })
	slog.Info("position closed", "id", ev.PositionID, "kind", ev.Kind, "price", ev.Price)
	s.emit(Event{Type: EventExit, At: ev.At, Exit: &ev})
}

// storePosition writes the open position (nil when flat) straight to the
// position store. Events may be dropped under load; this write may not.
func (s *Session) storePosition(pos *model.Position) {
	if s.deps.Positions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()
	if err := s.deps.Positions.SavePosition(ctx, pos); err != nil {
		log.Printf("[session] store position: %v", err)
	}
}

func (s *Session) updateSettings(next Settings) error {
	if next.Days <= 0 || next.VSCurrency == "" {
		return ErrInvalidSettings
	}
	if next == s.settings {
		return nil
	}
	if next.VSCurrency != s.settings.VSCurrency {
		if s.pos != nil {
			return ErrPositionOpen
		}
		// A series in another currency must not be evaluated against new ticks.
		s.series = nil
		s.eval = nil
		s.status.Points = 0
	}
	s.settings = next
	s.status.Settings = next
	s.status.LiveFeed = s.liveApplies()
	s.lastCross = nil

	s.emitStatus(s.deps.Now())
	s.publish()
	s.refresh(s.ctx)
	return nil
}

// ── helpers ──

func (s *Session) liveApplies() bool {
	return s.cfg.LiveCurrency != "" && s.settings.VSCurrency == s.cfg.LiveCurrency
}

func (s *Session) cacheKey(st Settings) string {
	return model.SeriesKey(s.cfg.CoinID, st.VSCurrency, st.Days)
}

// emit delivers e without blocking; a full buffer drops the event.
func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		log.Printf("[session] event buffer full, dropping %s event", e.Type)
	}
}

func (s *Session) emitStatus(at time.Time) {
	st := s.status
	s.emit(Event{Type: EventStatus, At: at, Status: &st})
}

// publish stores a fresh immutable snapshot for readers.
func (s *Session) publish() {
	snap := &Snapshot{Evaluation: s.eval, Status: s.status}
	if s.pos != nil {
		p := *s.pos
		snap.Position = &p
	}
	s.snap.Store(snap)

	side := ""
	if s.pos != nil {
		side = string(s.pos.Side)
	}
	s.observe(func(m *metrics.Metrics) { m.PositionOpen.Set(metrics.SideValue(side)) })
}

func (s *Session) observe(fn func(m *metrics.Metrics)) {
	if s.deps.Metrics != nil {
		fn(s.deps.Metrics)
	}
}
