package sqlite

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// RunTicks reads ticks from tickCh and inserts them in batched transactions.
// Flushes every batchSize ticks OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or tickCh is closed.
func (s *Store) RunTicks(ctx context.Context, tickCh <-chan model.Tick) {
	batch := make([]model.Tick, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insertTicks(batch); err != nil {
			log.Printf("[sqlite] tick batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case tick, ok := <-tickCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, tick)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertTicks inserts a batch of ticks in a single transaction.
func (s *Store) insertTicks(ticks []model.Tick) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO ticks (symbol, ts, price) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.Exec(t.Symbol, t.TickTS.UnixMilli(), t.Price); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RecentTicks returns the last limit ticks, oldest first.
func (s *Store) RecentTicks(ctx context.Context, limit int) ([]model.Tick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, ts, price FROM (
			SELECT id, symbol, ts, price FROM ticks ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	defer rows.Close()

	var out []model.Tick
	for rows.Next() {
		var t model.Tick
		var ms int64
		if err := rows.Scan(&t.Symbol, &ms, &t.Price); err != nil {
			return nil, fmt.Errorf("sqlite scan ticks: %w", err)
		}
		t.TickTS = time.UnixMilli(ms).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
