package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// SessionStore implements domain.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a SessionStore backed by the given connection pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

const sessionSelectCols = `symbol, session_date::text,
	ib_high, ib_low, ib_range, ib_midpoint, ib_volume, ib_width_class, ib_open_type,
	final_poc, final_vah, final_val, trades_taken, wins, losses, realized_r`

func scanSessionRow(row pgx.Row) (domain.SessionSummary, error) {
	var sum domain.SessionSummary
	var widthClass, openType string

	err := row.Scan(
		&sum.Symbol, &sum.Date,
		&sum.IB.High, &sum.IB.Low, &sum.IB.Range, &sum.IB.Midpoint, &sum.IB.Volume,
		&widthClass, &openType,
		&sum.FinalPOC, &sum.FinalVAH, &sum.FinalVAL,
		&sum.TradesTaken, &sum.Wins, &sum.Losses, &sum.RealizedR,
	)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	sum.IB.WidthClass = domain.WidthClass(widthClass)
	sum.IB.OpenType = domain.OpenType(openType)
	return sum, nil
}

// Upsert writes a session summary, replacing any existing row for the same
// symbol and date.
func (s *SessionStore) Upsert(ctx context.Context, sum domain.SessionSummary) error {
	const query = `
		INSERT INTO session_summaries (
			symbol, session_date,
			ib_high, ib_low, ib_range, ib_midpoint, ib_volume,
			ib_width_class, ib_open_type,
			final_poc, final_vah, final_val,
			trades_taken, wins, losses, realized_r, updated_at
		) VALUES (
			$1, $2,
			$3, $4, $5, $6, $7,
			$8, $9,
			$10, $11, $12,
			$13, $14, $15, $16, NOW()
		)
		ON CONFLICT (symbol, session_date) DO UPDATE SET
			ib_high        = EXCLUDED.ib_high,
			ib_low         = EXCLUDED.ib_low,
			ib_range       = EXCLUDED.ib_range,
			ib_midpoint    = EXCLUDED.ib_midpoint,
			ib_volume      = EXCLUDED.ib_volume,
			ib_width_class = EXCLUDED.ib_width_class,
			ib_open_type   = EXCLUDED.ib_open_type,
			final_poc      = EXCLUDED.final_poc,
			final_vah      = EXCLUDED.final_vah,
			final_val      = EXCLUDED.final_val,
			trades_taken   = EXCLUDED.trades_taken,
			wins           = EXCLUDED.wins,
			losses         = EXCLUDED.losses,
			realized_r     = EXCLUDED.realized_r,
			updated_at     = NOW()`

	_, err := s.pool.Exec(ctx, query,
		sum.Symbol, sum.Date,
		sum.IB.High, sum.IB.Low, sum.IB.Range, sum.IB.Midpoint, sum.IB.Volume,
		string(sum.IB.WidthClass), string(sum.IB.OpenType),
		sum.FinalPOC, sum.FinalVAH, sum.FinalVAL,
		sum.TradesTaken, sum.Wins, sum.Losses, sum.RealizedR,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert session %s %s: %w", sum.Symbol, sum.Date, err)
	}
	return nil
}

// Get returns the summary for one symbol and session date.
func (s *SessionStore) Get(ctx context.Context, symbol, date string) (domain.SessionSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionSelectCols+` FROM session_summaries
		 WHERE symbol = $1 AND session_date = $2`, symbol, date)

	sum, err := scanSessionRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionSummary{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("postgres: get session %s %s: %w", symbol, date, err)
	}
	return sum, nil
}

// ListRecent returns the most recent summaries for a symbol, newest first.
// Callers use it to seed the rolling average IB range for new sessions.
func (s *SessionStore) ListRecent(ctx context.Context, symbol string, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionSelectCols+` FROM session_summaries
		 WHERE symbol = $1
		 ORDER BY session_date DESC
		 LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent sessions for %s: %w", symbol, err)
	}
	defer rows.Close()

	var sums []domain.SessionSummary
	for rows.Next() {
		sum, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}
