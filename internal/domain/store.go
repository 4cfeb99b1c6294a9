package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// IntentStore persists the ordered intent log for audit and replay.
type IntentStore interface {
	Insert(ctx context.Context, intent Intent) error
	InsertBatch(ctx context.Context, intents []Intent) error
	ListByPosition(ctx context.Context, positionID string) ([]Intent, error)
	ListBySession(ctx context.Context, symbol, date string, opts ListOpts) ([]Intent, error)
}

// PositionStore persists position lifecycles.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListBySession(ctx context.Context, symbol, date string) ([]Position, error)
}

// SessionStore persists end-of-session summaries.
type SessionStore interface {
	Upsert(ctx context.Context, summary SessionSummary) error
	Get(ctx context.Context, symbol, date string) (SessionSummary, error)
	ListRecent(ctx context.Context, symbol string, limit int) ([]SessionSummary, error)
}
