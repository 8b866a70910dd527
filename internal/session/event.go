package session

import (
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// EventType names what changed in the session.
type EventType string

const (
	EventEvaluation EventType = "evaluation" // new analysis result
	EventPosition   EventType = "position"   // position opened
	EventExit       EventType = "exit"       // position closed
	EventCross      EventType = "cross"      // price moved through a level
	EventStatus     EventType = "status"     // refresh state or settings changed
)

// Event is emitted by the session loop after each state change. Exactly one
// payload field is set, matching Type. Payloads are never mutated after emission.
type Event struct {
	Type       EventType         `json:"type"`
	At         time.Time         `json:"at"`
	Evaluation *model.Evaluation `json:"evaluation,omitempty"`
	Position   *model.Position   `json:"position,omitempty"`
	Exit       *model.ExitEvent  `json:"exit,omitempty"`
	Cross      *model.LevelCross `json:"cross,omitempty"`
	Status     *Status           `json:"status,omitempty"`
}

// Settings selects the history the session tracks.
type Settings struct {
	Days       int    `json:"days"`
	VSCurrency string `json:"vs_currency"`
}

// Status describes the freshness of the session's data.
type Status struct {
	Settings    Settings  `json:"settings"`
	Points      int       `json:"points"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	FromCache   bool      `json:"from_cache"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	LastTick    time.Time `json:"last_tick,omitempty"`
	LiveFeed    bool      `json:"live_feed"`
	Refreshing  bool      `json:"refreshing"`
}

// Snapshot is an immutable view of the session published after every pass.
type Snapshot struct {
	Evaluation *model.Evaluation `json:"evaluation"`
	Position   *model.Position   `json:"position"`
	Status     Status            `json:"status"`
}
