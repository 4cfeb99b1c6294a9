package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// IntentStore implements domain.IntentStore using PostgreSQL.
type IntentStore struct {
	pool *pgxpool.Pool
}

// NewIntentStore creates an IntentStore backed by the given connection pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

const intentSelectCols = `id, intent_type, position_id, symbol, session_date::text,
	direction, price, stop_level, target_level, size_fraction, reason,
	elapsed_ms, created_at`

func scanIntentRows(rows pgx.Rows) ([]domain.Intent, error) {
	var intents []domain.Intent
	for rows.Next() {
		var in domain.Intent
		var intentType, direction string
		var elapsedMS int64

		if err := rows.Scan(
			&in.ID, &intentType, &in.PositionID, &in.Symbol, &in.SessionDate,
			&direction, &in.Price, &in.StopLevel, &in.TargetLevel,
			&in.SizeFraction, &in.Reason,
			&elapsedMS, &in.CreatedAt,
		); err != nil {
			return nil, err
		}
		in.Type = domain.IntentType(intentType)
		in.Direction = domain.Direction(direction)
		in.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		intents = append(intents, in)
	}
	return intents, rows.Err()
}

// Insert appends one intent to the audit log.
func (s *IntentStore) Insert(ctx context.Context, in domain.Intent) error {
	const query = `
		INSERT INTO intents (
			id, intent_type, position_id, symbol, session_date,
			direction, price, stop_level, target_level, size_fraction,
			reason, elapsed_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		in.ID, string(in.Type), in.PositionID, in.Symbol, in.SessionDate,
		string(in.Direction), in.Price, in.StopLevel, in.TargetLevel, in.SizeFraction,
		in.Reason, in.Elapsed.Milliseconds(), in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert intent %s: %w", in.ID, err)
	}
	return nil
}

// InsertBatch appends a slice of intents in a single round trip.
func (s *IntentStore) InsertBatch(ctx context.Context, intents []domain.Intent) error {
	if len(intents) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO intents (
			id, intent_type, position_id, symbol, session_date,
			direction, price, stop_level, target_level, size_fraction,
			reason, elapsed_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		)`
	for _, in := range intents {
		batch.Queue(query,
			in.ID, string(in.Type), in.PositionID, in.Symbol, in.SessionDate,
			string(in.Direction), in.Price, in.StopLevel, in.TargetLevel, in.SizeFraction,
			in.Reason, in.Elapsed.Milliseconds(), in.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range intents {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert intent batch: %w", err)
		}
	}
	return nil
}

// ListByPosition returns the full intent sequence for one position, oldest first.
func (s *IntentStore) ListByPosition(ctx context.Context, positionID string) ([]domain.Intent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+intentSelectCols+` FROM intents
		 WHERE position_id = $1
		 ORDER BY elapsed_ms ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list intents for position %s: %w", positionID, err)
	}
	defer rows.Close()
	return scanIntentRows(rows)
}

// ListBySession returns a session's intents in emission order.
func (s *IntentStore) ListBySession(ctx context.Context, symbol, date string, opts domain.ListOpts) ([]domain.Intent, error) {
	query := `SELECT ` + intentSelectCols + ` FROM intents
		 WHERE symbol = $1 AND session_date = $2
		 ORDER BY elapsed_ms ASC`
	args := []any{symbol, date}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list intents for %s %s: %w", symbol, date, err)
	}
	defer rows.Close()
	return scanIntentRows(rows)
}
