package model

import "time"

// Tick is a single trade print from the live feed.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	TickTS time.Time `json:"tick_ts"` // UTC
}
