// Package position implements the single-position state machine.
//
// A position is either flat (nil) or open. Enter opens one from the current
// signal, Evaluate applies the automatic exit rules on every update, and Close
// exits unconditionally. Each function takes the current value and returns the
// next one; none of them keep state between calls.
package position

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

var (
	// ErrSideMismatch is returned when the requested side differs from the
	// side of the current signal (a NEUTRAL signal matches nothing).
	ErrSideMismatch = errors.New("position: requested side does not match signal")

	// ErrNoData is returned when there is no price to enter at.
	ErrNoData = errors.New("position: no entry price available")

	// ErrNoPosition is returned when closing while flat.
	ErrNoPosition = errors.New("position: no open position")

	// ErrAlreadyOpen is returned by callers that refuse to replace an open position.
	ErrAlreadyOpen = errors.New("position: a position is already open")
)

// Momentum-fade thresholds.
const (
	Overbought = 70.0
	Oversold   = 30.0

	fadeRatio = 0.5
)

// Result is the outcome of one Evaluate pass. Exactly one of the following holds:
// Exit is nil and Position is the unchanged input, or Exit is set and Position is nil.
type Result struct {
	Position *model.Position
	Exit     *model.ExitEvent
}

// Enter opens a position on side using the signal's entry, stop and target.
// The entry falls back to the series' last close when the signal has none.
func Enter(side model.Side, sig model.Signal, s model.Series, now time.Time) (model.Position, error) {
	if !side.Tradable() || sig.Side != side {
		return model.Position{}, ErrSideMismatch
	}

	var entry float64
	switch {
	case sig.Entry != nil:
		entry = *sig.Entry
	default:
		last, ok := s.LastClose()
		if !ok {
			return model.Position{}, ErrNoData
		}
		entry = last
	}

	return model.Position{
		ID:         uuid.NewString(),
		Side:       side,
		Entry:      entry,
		StopLoss:   copyPrice(sig.StopLoss),
		TakeProfit: copyPrice(sig.TakeProfit),
		OpenedAt:   now,
	}, nil
}

// Evaluate applies the exit rules to pos at the series' last close, in order:
// take-profit touch, stop-loss touch, then momentum fade. An exit is stamped
// with now, not the bar time. A nil pos or an empty series returns pos unchanged.
func Evaluate(pos *model.Position, s model.Series, frame model.IndicatorFrame, now time.Time) Result {
	if pos == nil {
		return Result{}
	}
	last, ok := s.Last()
	if !ok {
		return Result{Position: pos}
	}

	if kind, hit := exitKind(pos, last.Close, frame); hit {
		ev := exitEvent(pos, kind, last.Close, now)
		return Result{Exit: &ev}
	}
	return Result{Position: pos}
}

// Close exits pos at the series' last close regardless of the exit rules.
func Close(pos *model.Position, s model.Series, now time.Time) (model.ExitEvent, error) {
	if pos == nil {
		return model.ExitEvent{}, ErrNoPosition
	}
	last, ok := s.Last()
	if !ok {
		return model.ExitEvent{}, ErrNoData
	}
	return exitEvent(pos, model.ExitManualClose, last.Close, now), nil
}

func exitKind(pos *model.Position, price float64, frame model.IndicatorFrame) (model.ExitKind, bool) {
	long := pos.Side == model.SideLong
	short := pos.Side == model.SideShort

	if tp := pos.TakeProfit; tp != nil {
		if (long && price >= *tp) || (short && price <= *tp) {
			return model.ExitTakeProfit, true
		}
	}
	if sl := pos.StopLoss; sl != nil {
		if (long && price <= *sl) || (short && price >= *sl) {
			return model.ExitStopLoss, true
		}
	}

	rsi, ok := frame.LastRSI()
	if !ok {
		rsi = 50
	}
	if (long && rsi > Overbought) || (short && rsi < Oversold) {
		if Fading(frame) {
			return model.ExitMomentumFade, true
		}
	}
	return "", false
}

// Fading reports whether the histogram's last value flipped sign from the
// previous one or shrank below half of its magnitude. A missing last value
// reads as 0 and a missing previous value as the last.
func Fading(frame model.IndicatorFrame) bool {
	last, ok := frame.HistogramAt(-1)
	if !ok {
		last = 0
	}
	prev, ok := frame.HistogramAt(-2)
	if !ok {
		prev = last
	}
	return sign(prev) != sign(last) || math.Abs(last) < math.Abs(prev)*fadeRatio
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func exitEvent(pos *model.Position, kind model.ExitKind, price float64, at time.Time) model.ExitEvent {
	return model.ExitEvent{
		ID:         uuid.NewString(),
		PositionID: pos.ID,
		Kind:       kind,
		Side:       pos.Side,
		Entry:      pos.Entry,
		Price:      price,
		At:         at,
	}
}

func copyPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return model.Float(*p)
}
