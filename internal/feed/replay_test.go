package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

func writeReplayFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write replay file: %v", err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReplayFeedDeliversOrderedBars(t *testing.T) {
	body := `symbol,timestamp,open,high,low,close,volume
ES,2026-03-09T09:30:00-04:00,4490,4494,4488,4492,500
ES,2026-03-09T09:31:00-04:00,4492,4495,4491,4493,450
NQ,2026-03-09T09:30:00-04:00,18200,18220,18190,18210,300
ES,2026-03-09T09:32:00-04:00,4493,4494,4490,4491,400
`
	path := writeReplayFile(t, body)

	type rec struct {
		symbol string
		bar    domain.Bar
	}
	var got []rec
	f := NewReplayFeed(path, func(_ context.Context, symbol string, bar domain.Bar) error {
		got = append(got, rec{symbol, bar})
		return nil
	}, discardLogger())

	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("delivered %d bars, want 4", len(got))
	}

	if got[0].symbol != "ES" || got[0].bar.Elapsed != 0 {
		t.Fatalf("first bar = %+v, want ES at elapsed 0", got[0])
	}
	if got[1].bar.Elapsed != time.Minute {
		t.Fatalf("second ES bar elapsed = %v, want 1m", got[1].bar.Elapsed)
	}
	// Each symbol gets its own session clock.
	if got[2].symbol != "NQ" || got[2].bar.Elapsed != 0 {
		t.Fatalf("NQ bar = %+v, want elapsed 0", got[2])
	}
	if got[3].bar.Elapsed != 2*time.Minute {
		t.Fatalf("third ES bar elapsed = %v, want 2m", got[3].bar.Elapsed)
	}
	if got[0].bar.Close != 4492 || got[0].bar.Volume != 500 {
		t.Fatalf("bar fields = %+v", got[0].bar)
	}
}

func TestReplayFeedStopsOnHandlerError(t *testing.T) {
	body := `ES,2026-03-09T09:30:00-04:00,4490,4494,4488,4492,500
ES,2026-03-09T09:31:00-04:00,4492,4495,4491,4493,450
`
	path := writeReplayFile(t, body)

	sentinel := errors.New("engine rejected bar")
	calls := 0
	f := NewReplayFeed(path, func(context.Context, string, domain.Bar) error {
		calls++
		return sentinel
	}, discardLogger())

	if err := f.Run(context.Background()); !errors.Is(err, sentinel) {
		t.Fatalf("Run err = %v, want the handler error", err)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times after an error, want 1", calls)
	}
}

func TestReplayFeedRejectsMalformedRow(t *testing.T) {
	body := `ES,2026-03-09T09:30:00-04:00,4490,4494,not-a-number,4492,500
`
	path := writeReplayFile(t, body)
	f := NewReplayFeed(path, func(context.Context, string, domain.Bar) error {
		return nil
	}, discardLogger())

	if err := f.Run(context.Background()); err == nil {
		t.Fatal("malformed row must fail the replay")
	}
}

func TestReplayFeedMissingFile(t *testing.T) {
	f := NewReplayFeed(filepath.Join(t.TempDir(), "nope.csv"), nil, discardLogger())
	if err := f.Run(context.Background()); err == nil {
		t.Fatal("missing file must fail")
	}
}
