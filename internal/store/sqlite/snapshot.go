package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

const keepSnapshots = 10

// SaveEvaluation stores an evaluation snapshot, keeping the most recent ten.
func (s *Store) SaveEvaluation(ctx context.Context, ev *model.Evaluation) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluation_snapshots (data, created_at) VALUES (?, ?)`,
		string(data), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite insert evaluation: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM evaluation_snapshots WHERE id NOT IN (SELECT id FROM evaluation_snapshots ORDER BY id DESC LIMIT ?)`,
		keepSnapshots)
	if err != nil {
		log.Printf("[sqlite] prune evaluations warning: %v", err)
	}
	return nil
}

// LatestEvaluation loads the most recent snapshot, or nil when none exists.
func (s *Store) LatestEvaluation(ctx context.Context) (*model.Evaluation, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM evaluation_snapshots
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read evaluation: %w", err)
	}

	var ev model.Evaluation
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, fmt.Errorf("unmarshal evaluation: %w", err)
	}
	return &ev, nil
}
