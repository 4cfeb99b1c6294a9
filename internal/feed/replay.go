// Package feed supplies ordered OHLCV bars to the session engines: a CSV
// replay source for deterministic backruns and a WebSocket source for live
// sessions. Both push bars through the same handler, so the engine cannot
// tell them apart.
package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// BarHandler consumes one bar for one symbol. Returning an error stops the
// feed; the error is propagated to the caller.
type BarHandler func(ctx context.Context, symbol string, bar domain.Bar) error

// ReplayFeed reads a session's bars from a CSV file and replays them in file
// order. Expected columns: symbol, RFC3339 timestamp, open, high, low,
// close, volume. A header row is detected and skipped. Session-relative
// elapsed time is measured from each symbol's first bar.
type ReplayFeed struct {
	path   string
	onBar  BarHandler
	logger *slog.Logger
	opens  map[string]time.Time
}

// NewReplayFeed creates a replay source for the given CSV file.
func NewReplayFeed(path string, onBar BarHandler, logger *slog.Logger) *ReplayFeed {
	return &ReplayFeed{
		path:   path,
		onBar:  onBar,
		logger: logger.With(slog.String("component", "replay_feed")),
		opens:  make(map[string]time.Time),
	}
}

// Run replays the file to completion, honoring ctx cancellation between
// rows. Bars are delivered synchronously in file order.
func (f *ReplayFeed) Run(ctx context.Context) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("feed: open replay file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = 7
	r.TrimLeadingSpace = true

	rows := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := r.Read()
		if err == io.EOF {
			f.logger.Info("replay complete", slog.Int("bars", rows))
			return nil
		}
		if err != nil {
			return fmt.Errorf("feed: read replay row: %w", err)
		}
		if rows == 0 && rec[1] == "timestamp" {
			continue
		}

		symbol, bar, err := f.parseRow(rec)
		if err != nil {
			return fmt.Errorf("feed: row %d: %w", rows+1, err)
		}
		rows++

		if err := f.onBar(ctx, symbol, bar); err != nil {
			return err
		}
	}
}

func (f *ReplayFeed) parseRow(rec []string) (string, domain.Bar, error) {
	symbol := rec[0]
	ts, err := time.Parse(time.RFC3339, rec[1])
	if err != nil {
		return "", domain.Bar{}, fmt.Errorf("timestamp %q: %w", rec[1], err)
	}

	vals := make([]float64, 5)
	for i, raw := range rec[2:7] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", domain.Bar{}, fmt.Errorf("field %d %q: %w", i+2, raw, err)
		}
		vals[i] = v
	}

	open, ok := f.opens[symbol]
	if !ok {
		open = ts
		f.opens[symbol] = ts
	}

	return symbol, domain.Bar{
		Timestamp: ts,
		Elapsed:   ts.Sub(open),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}
