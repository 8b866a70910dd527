package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// SaveSeries replaces the cached series for key in a single transaction.
// Points are stored by position, so repeated timestamps are kept.
func (s *Store) SaveSeries(ctx context.Context, key string, series model.Series) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite save series: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM price_points WHERE series_key = ?`, key); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite save series: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_points (series_key, idx, ts, close)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite save series: prepare: %w", err)
	}
	defer stmt.Close()

	for i, p := range series {
		if _, err := stmt.ExecContext(ctx, key, i, p.Time.UnixMilli(), p.Close); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite save series: insert: %w", err)
		}
	}

	return tx.Commit()
}

// LoadSeries returns the cached series for key in saved order. An unknown key
// yields an empty series.
func (s *Store) LoadSeries(ctx context.Context, key string) (model.Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, close FROM price_points
		WHERE series_key = ?
		ORDER BY idx ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("sqlite query price_points: %w", err)
	}
	defer rows.Close()

	var out model.Series
	for rows.Next() {
		var ms int64
		var p model.PricePoint
		if err := rows.Scan(&ms, &p.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan price_points: %w", err)
		}
		p.Time = time.UnixMilli(ms).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
