package model

import "time"

// Side is the direction of a signal or position.
type Side string

const (
	SideLong    Side = "LONG"
	SideShort   Side = "SHORT"
	SideNeutral Side = "NEUTRAL"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	switch s {
	case SideLong, SideShort, SideNeutral:
		return true
	}
	return false
}

// Tradable reports whether a position can be opened on this side.
func (s Side) Tradable() bool {
	return s == SideLong || s == SideShort
}

// Probability is the directional estimate. Up + Down == 1 always.
// Score is the blended driver before logistic squashing.
type Probability struct {
	Up    float64 `json:"up"`
	Down  float64 `json:"down"`
	Score float64 `json:"score"`
}

// NeutralProbability is returned when there is not enough data.
var NeutralProbability = Probability{Up: 0.5, Down: 0.5, Score: 0}

// Components are the individual drivers blended into Probability.Score.
type Components struct {
	RSITilt  float64 `json:"rsi_tilt"`
	MATrend  float64 `json:"ma_trend"`
	Momentum float64 `json:"momentum"`
}

// Level is a price cluster that repeatedly acted as a local extremum.
type Level struct {
	Price float64 `json:"price"`
	Hits  int     `json:"hits"`
}

// LevelKind classifies a level relative to the last close.
type LevelKind string

const (
	LevelSupport    LevelKind = "support"
	LevelResistance LevelKind = "resistance"
)

// Projection is the short-horizon expected move.
type Projection struct {
	Pct    float64     `json:"pct"`
	Target float64     `json:"target"`
	Prob   Probability `json:"prob"`
}

// Signal is the discrete trade recommendation for the current series.
type Signal struct {
	Side       Side     `json:"side"`
	LongPct    int      `json:"long_pct"`
	ShortPct   int      `json:"short_pct"`
	Entry      *float64 `json:"entry"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
	Reason     string   `json:"reason"`
}

// Evaluation is the full result bundle of one analysis pass.
type Evaluation struct {
	At          time.Time      `json:"at"`
	Points      int            `json:"points"`
	LastClose   float64        `json:"last_close"`
	Frame       IndicatorFrame `json:"frame"`
	Probability Probability    `json:"probability"`
	Components  Components     `json:"components"`
	Levels      []Level        `json:"levels"`
	Projection  Projection     `json:"projection"`
	Signal      Signal         `json:"signal"`
}

// Float returns a pointer to v. Used for optional price fields.
func Float(v float64) *float64 { return &v }

// CrossDirection is the side a price moved through a level.
type CrossDirection string

const (
	CrossUp   CrossDirection = "up"
	CrossDown CrossDirection = "down"
)

// LevelCross reports the last close moving through a level between two updates.
type LevelCross struct {
	Level     Level          `json:"level"`
	Direction CrossDirection `json:"direction"`
	Price     float64        `json:"price"`
	At        time.Time      `json:"at"`
}
