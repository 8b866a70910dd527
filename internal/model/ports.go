package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the session loop from concrete storage
// implementations (SQLite, Redis). Each implementation satisfies one or more.

// SeriesCache persists fetched price history so restarts and the CLI can
// evaluate without hitting the upstream API.
type SeriesCache interface {
	// SaveSeries replaces the cached series for key.
	SaveSeries(ctx context.Context, key string, s Series) error

	// LoadSeries returns the cached series for key, oldest first.
	// Returns an empty series and nil error when nothing is cached.
	LoadSeries(ctx context.Context, key string) (Series, error)
}

// PositionJournal records position lifecycle events for audit.
type PositionJournal interface {
	RecordEntry(ctx context.Context, pos Position) error
	RecordExit(ctx context.Context, ev ExitEvent) error
}

// PositionStore keeps the single open position across restarts.
type PositionStore interface {
	// SavePosition stores pos; a nil pos clears the stored position.
	SavePosition(ctx context.Context, pos *Position) error

	// LoadPosition returns the stored position or nil when flat.
	LoadPosition(ctx context.Context) (*Position, error)
}

// EvaluationPublisher fans evaluation results out to other processes.
type EvaluationPublisher interface {
	PublishEvaluation(ctx context.Context, ev *Evaluation) error
}
