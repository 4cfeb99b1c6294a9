package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, setup_id, symbol, session_date::text, direction, state,
	entry_price, size_fraction, remaining_fraction,
	stop_level, initial_stop, target_level, at_breakeven,
	opened_at_ms, closed_at_ms, exit_price, realized_r, close_reason`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var direction, state, closeReason string
	var openedMS, closedMS int64

	err := row.Scan(
		&p.ID, &p.SetupID, &p.Symbol, &p.SessionDate, &direction, &state,
		&p.EntryPrice, &p.SizeFraction, &p.RemainingFraction,
		&p.StopLevel, &p.InitialStop, &p.TargetLevel, &p.AtBreakeven,
		&openedMS, &closedMS, &p.ExitPrice, &p.RealizedR, &closeReason,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Direction = domain.Direction(direction)
	p.State = domain.PositionState(state)
	p.CloseReason = domain.CloseReason(closeReason)
	p.OpenedAt = time.Duration(openedMS) * time.Millisecond
	p.ClosedAt = time.Duration(closedMS) * time.Millisecond
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, setup_id, symbol, session_date, direction, state,
			entry_price, size_fraction, remaining_fraction,
			stop_level, initial_stop, target_level, at_breakeven,
			opened_at_ms, closed_at_ms, exit_price, realized_r, close_reason,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17, $18, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.SetupID, p.Symbol, p.SessionDate, string(p.Direction), string(p.State),
		p.EntryPrice, p.SizeFraction, p.RemainingFraction,
		p.StopLevel, p.InitialStop, p.TargetLevel, p.AtBreakeven,
		p.OpenedAt.Milliseconds(), p.ClosedAt.Milliseconds(), p.ExitPrice, p.RealizedR, string(p.CloseReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			state              = $2,
			entry_price        = $3,
			size_fraction      = $4,
			remaining_fraction = $5,
			stop_level         = $6,
			initial_stop       = $7,
			target_level       = $8,
			at_breakeven       = $9,
			closed_at_ms       = $10,
			exit_price         = $11,
			realized_r         = $12,
			close_reason       = $13,
			updated_at         = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, string(p.State),
		p.EntryPrice, p.SizeFraction, p.RemainingFraction,
		p.StopLevel, p.InitialStop, p.TargetLevel, p.AtBreakeven,
		p.ClosedAt.Milliseconds(), p.ExitPrice, p.RealizedR, string(p.CloseReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListBySession returns a session's positions in open order.
func (s *PositionStore) ListBySession(ctx context.Context, symbol, date string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE symbol = $1 AND session_date = $2
		 ORDER BY opened_at_ms ASC`, symbol, date)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s %s: %w", symbol, date, err)
	}
	defer rows.Close()
	return scanPositionRows(rows)
}
