package domain

import (
	"context"
	"time"
)

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries serialized intents to external consumers over pub/sub
// for live fan-out and over a durable stream for replayable delivery.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RiskStateStore shares one DailyRiskState across symbol engines (and
// processes) when daily risk is aggregated account-wide. Implementations
// must make Record atomic; per-symbol engines otherwise keep a private
// in-memory state and never touch this interface.
type RiskStateStore interface {
	// Load returns the state for the given date, zeroed if absent.
	Load(ctx context.Context, date string) (DailyRiskState, error)
	// Record atomically applies one realized R and returns the new state.
	Record(ctx context.Context, date string, realizedR float64) (DailyRiskState, error)
	// Reset clears the state for a new trading day.
	Reset(ctx context.Context, date string) error
}

// LockManager provides distributed locks so only one process runs a given
// symbol's session at a time.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function. It returns ErrLockHeld when another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles outbound calls to external services such as
// notification APIs.
type RateLimiter interface {
	// Allow reports whether one more request fits inside the sliding
	// window, counting it when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads serialized session artifacts to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// Archiver writes end-of-session archives (bars and intents) to blob storage.
type Archiver interface {
	ArchiveSession(ctx context.Context, summary SessionSummary, bars []Bar, intents []Intent) (string, error)
}
