package gateway

import (
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/analysis"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// LevelOut is the REST response type for /api/levels.
type LevelOut struct {
	Price float64         `json:"price"`
	Hits  int             `json:"hits"`
	Kind  model.LevelKind `json:"kind"`
}

// LevelsOut is the level table relative to the last close.
type LevelsOut struct {
	LastClose float64    `json:"last_close"`
	Above     *float64   `json:"nearest_resistance"`
	Below     *float64   `json:"nearest_support"`
	Levels    []LevelOut `json:"levels"`
}

func levelTable(ev *model.Evaluation) LevelsOut {
	out := LevelsOut{LastClose: ev.LastClose, Levels: make([]LevelOut, 0, len(ev.Levels))}
	for _, l := range ev.Levels {
		out.Levels = append(out.Levels, LevelOut{
			Price: l.Price,
			Hits:  l.Hits,
			Kind:  analysis.Classify(l, ev.LastClose),
		})
	}
	out.Above, out.Below = analysis.Nearest(ev.Levels, ev.LastClose)
	return out
}

// EnterRequest is the body of POST /api/position/enter.
type EnterRequest struct {
	Side model.Side `json:"side"`
	Code string     `json:"code,omitempty"`
}

// CloseRequest is the body of POST /api/position/close.
type CloseRequest struct {
	Code string `json:"code,omitempty"`
}

// SettingsRequest is the body of POST /api/settings. Zero fields keep the
// current value.
type SettingsRequest struct {
	Days       int    `json:"days"`
	VSCurrency string `json:"vs_currency"`
}

// AlertTestRequest is the body of POST /api/alerts/test.
type AlertTestRequest struct {
	Message string `json:"message"`
}
