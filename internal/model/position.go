package model

import "time"

// Position is the single open trade tracked by the session.
type Position struct {
	ID         string    `json:"id"`
	Side       Side      `json:"side"`
	Entry      float64   `json:"entry"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
	OpenedAt   time.Time `json:"opened_at"`
}

// PnLPct returns the unrealized return of the position at price, as a fraction.
func (p *Position) PnLPct(price float64) float64 {
	if p.Entry == 0 {
		return 0
	}
	if p.Side == SideShort {
		return (p.Entry - price) / p.Entry
	}
	return (price - p.Entry) / p.Entry
}

// ExitKind names the rule that closed a position.
type ExitKind string

const (
	ExitTakeProfit   ExitKind = "take-profit"
	ExitStopLoss     ExitKind = "stop-loss"
	ExitMomentumFade ExitKind = "momentum-fade"
	ExitManualClose  ExitKind = "manual-close"
)

// ExitEvent reports a position being closed.
type ExitEvent struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Kind       ExitKind  `json:"kind"`
	Side       Side      `json:"side"`
	Entry      float64   `json:"entry"`
	Price      float64   `json:"price"`
	At         time.Time `json:"at"`
}
