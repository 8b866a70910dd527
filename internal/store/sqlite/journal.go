package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// RecordEntry persists a newly opened position.
func (s *Store) RecordEntry(ctx context.Context, pos model.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO position_entries (position_id, side, entry, stop_loss, take_profit, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		pos.ID,
		string(pos.Side),
		pos.Entry,
		nullable(pos.StopLoss),
		nullable(pos.TakeProfit),
		pos.OpenedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite record entry: %w", err)
	}
	return nil
}

// RecordExit persists a position exit.
func (s *Store) RecordExit(ctx context.Context, ev model.ExitEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO position_exits (id, position_id, kind, side, entry, price, exited_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.PositionID,
		string(ev.Kind),
		string(ev.Side),
		ev.Entry,
		ev.Price,
		ev.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite record exit: %w", err)
	}
	return nil
}

// TradeRecord is one closed position: its entry joined with its exit.
// Times are stored as unix milliseconds and reported as RFC 3339.
type TradeRecord struct {
	PositionID string         `json:"position_id"`
	Side       model.Side     `json:"side"`
	Entry      float64        `json:"entry"`
	StopLoss   *float64       `json:"stop_loss,omitempty"`
	TakeProfit *float64       `json:"take_profit,omitempty"`
	OpenedAt   string         `json:"opened_at"`
	Kind       model.ExitKind `json:"exit_kind"`
	ExitPrice  float64        `json:"exit_price"`
	ExitedAt   string         `json:"exited_at"`
	PnLPct     float64        `json:"pnl_pct"`
}

// Trades returns the last limit closed positions, newest first.
func (s *Store) Trades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x.position_id, x.side, x.entry, e.stop_loss, e.take_profit,
		        e.opened_at, x.kind, x.price, x.exited_at
		 FROM position_exits x
		 LEFT JOIN position_entries e ON e.position_id = x.position_id
		 ORDER BY x.exited_at DESC, x.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var sl, tp sql.NullFloat64
		var opened sql.NullInt64
		var exited int64
		if err := rows.Scan(&t.PositionID, &t.Side, &t.Entry, &sl, &tp,
			&opened, &t.Kind, &t.ExitPrice, &exited); err != nil {
			return nil, fmt.Errorf("sqlite scan trades: %w", err)
		}
		if opened.Valid {
			t.OpenedAt = formatMillis(opened.Int64)
		}
		t.ExitedAt = formatMillis(exited)
		if sl.Valid {
			t.StopLoss = model.Float(sl.Float64)
		}
		if tp.Valid {
			t.TakeProfit = model.Float(tp.Float64)
		}
		pos := model.Position{Side: t.Side, Entry: t.Entry}
		t.PnLPct = pos.PnLPct(t.ExitPrice)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// formatMillis renders a stored unix-millisecond time for the API.
func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
