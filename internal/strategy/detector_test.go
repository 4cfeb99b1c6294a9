package strategy

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/ibfadebot/internal/config"
	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

type stubPOC struct {
	poc   float64
	ready bool
}

func (s stubPOC) Ready() bool         { return s.ready }
func (s stubPOC) CurrentPOC() float64 { return s.poc }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mediumIB() domain.IBSnapshot {
	return domain.IBSnapshot{
		High:       4500,
		Low:        4480,
		Range:      20,
		Midpoint:   4490,
		Volume:     24000,
		WidthClass: domain.WidthMedium,
		OpenType:   domain.OpenAuction,
	}
}

func minuteBar(min int, o, h, l, c, v float64) domain.Bar {
	elapsed := time.Duration(min) * time.Minute
	return domain.Bar{
		Timestamp: time.Date(2026, 3, 9, 9, 30, 0, 0, time.UTC).Add(elapsed),
		Elapsed:   elapsed,
		Open:      o, High: h, Low: l, Close: c, Volume: v,
	}
}

func newTestDetector(t *testing.T, ib domain.IBSnapshot, poc POCSource) *SetupDetector {
	t.Helper()
	cfg := config.Defaults().Strategy
	return NewSetupDetector(cfg, "ES", ib, 400, 0.25, poc, testLogger())
}

// breakBar dips below the IB low without printing a confirmation pattern.
func breakBar(min int) domain.Bar {
	return domain.Bar{
		Timestamp: time.Date(2026, 3, 9, 9, 30, 0, 0, time.UTC).Add(time.Duration(min) * time.Minute),
		Elapsed:   time.Duration(min) * time.Minute,
		Open:      4481, High: 4481.5, Low: 4478, Close: 4478.5, Volume: 450,
	}
}

// hammerBar prints a long-lower-wick rejection at a 0.7x extension below
// the 4480 IB low, on volume below the 400/bar IB average.
func hammerBar(min int) domain.Bar {
	return minuteBar(min, 4467.5, 4468, 4462, 4466, 300)
}

func TestDetectorScoresQualifiedFade(t *testing.T) {
	d := newTestDetector(t, mediumIB(), stubPOC{poc: 4495, ready: true})

	if s := d.OnBar(breakBar(70)); s != nil {
		t.Fatalf("trigger bar alone must not score, got %+v", s)
	}
	setup := d.OnBar(hammerBar(71))
	if setup == nil {
		t.Fatal("expected a scored setup after a rejection candle in the entry zone")
	}

	if setup.Direction != domain.Long {
		t.Fatalf("direction = %s, want long", setup.Direction)
	}
	if setup.State != domain.SetupScored {
		t.Fatalf("state = %s, want scored", setup.State)
	}
	if setup.TriggerLevel != 4480 {
		t.Fatalf("trigger level = %v, want 4480", setup.TriggerLevel)
	}
	if setup.EntryZoneLow != 4460 || setup.EntryZoneHigh != 4470 {
		t.Fatalf("entry zone = [%v,%v], want [4460,4470]", setup.EntryZoneLow, setup.EntryZoneHigh)
	}
	// Target 4495, zone mid 4465, stop distance 10 points.
	if math.Abs(setup.RiskReward-3.0) > 1e-9 {
		t.Fatalf("risk reward = %v, want 3.0", setup.RiskReward)
	}
	if setup.Score != 10 {
		t.Fatalf("score = %d, want 10", setup.Score)
	}
	if setup.SizeFraction != 1.0 {
		t.Fatalf("size fraction = %v, want 1.0 for a 10-score", setup.SizeFraction)
	}
	if len(setup.Confirmations) == 0 {
		t.Fatal("expected at least one confirmation signal recorded")
	}
}

func TestDetectorNarrowIBNeverScores(t *testing.T) {
	ib := mediumIB()
	ib.WidthClass = domain.WidthNarrow
	d := newTestDetector(t, ib, stubPOC{poc: 4495, ready: true})

	d.OnBar(breakBar(70))
	for min := 71; min < 90; min++ {
		if s := d.OnBar(hammerBar(min)); s != nil {
			t.Fatalf("narrow IB session produced a setup: %+v", s)
		}
	}
}

func TestDetectorOpenDriveDiscarded(t *testing.T) {
	ib := mediumIB()
	ib.OpenType = domain.OpenDrive
	d := newTestDetector(t, ib, stubPOC{poc: 4495, ready: true})

	d.OnBar(breakBar(70))
	if s := d.OnBar(hammerBar(71)); s != nil {
		t.Fatalf("open drive session produced a setup: %+v", s)
	}
}

func TestDetectorEntryCutoff(t *testing.T) {
	d := newTestDetector(t, mediumIB(), stubPOC{poc: 4495, ready: true})

	// Trigger at 14:35 session time, past the 14:30 cutoff.
	d.OnBar(breakBar(305))
	if s := d.OnBar(hammerBar(306)); s != nil {
		t.Fatalf("late trigger produced a setup: %+v", s)
	}
}

func TestDetectorCutoffWhileAwaitingConfirmation(t *testing.T) {
	d := newTestDetector(t, mediumIB(), stubPOC{poc: 4495, ready: true})

	// Trigger just inside the window, confirmation only after the cutoff.
	d.OnBar(breakBar(299))
	if s := d.OnBar(hammerBar(305)); s != nil {
		t.Fatalf("post-cutoff confirmation produced a setup: %+v", s)
	}
	// The candidate is gone; a fresh confirmation bar cannot revive it.
	if s := d.OnBar(hammerBar(306)); s != nil {
		t.Fatalf("discarded candidate revived: %+v", s)
	}
}

// driftBar holds below the IB low without printing any confirmation pattern:
// no meaningful wick, no engulfing body, flat volume, far from the POC.
func driftBar(min int) domain.Bar {
	return minuteBar(min, 4479, 4479.5, 4477.5, 4478, 450)
}

func TestDetectorConfirmationWindowExpires(t *testing.T) {
	d := newTestDetector(t, mediumIB(), stubPOC{poc: 4495, ready: true})

	d.OnBar(breakBar(70))
	// Seven confirmation-free bars exhaust the six-bar window.
	for min := 71; min <= 77; min++ {
		if s := d.OnBar(driftBar(min)); s != nil {
			t.Fatalf("drift bar at minute %d scored: %+v", min, s)
		}
	}
	// The candidate expired; a late rejection candle cannot score it. The
	// hammer's own break opens a fresh candidate instead, which returns nil
	// on its trigger bar.
	if s := d.OnBar(hammerBar(78)); s != nil {
		t.Fatalf("expired candidate scored on a late rejection candle: %+v", s)
	}
	if s := d.OnBar(hammerBar(79)); s == nil {
		t.Fatal("fresh candidate after expiry should confirm on the next rejection candle")
	}
}

func TestDetectorExtensionCapDiscards(t *testing.T) {
	d := newTestDetector(t, mediumIB(), stubPOC{poc: 4495, ready: true})

	d.OnBar(breakBar(70))
	// 4480 - 1.5*20 = 4450; trade through it before any confirmation.
	deep := minuteBar(71, 4460, 4461, 4448, 4450, 900)
	if s := d.OnBar(deep); s != nil {
		t.Fatalf("trend-day extension produced a setup: %+v", s)
	}
	// Candidate dropped: a clean hammer afterwards does not score without
	// a fresh trigger, and the hammer at 4462 is itself a new break.
	if s := d.OnBar(hammerBar(72)); s != nil {
		t.Fatalf("stale candidate scored after cap discard: %+v", s)
	}
}

func TestDetectorRiskRewardBoundary(t *testing.T) {
	// Target 4485 against a 4465 zone mid and 10-point stop: exactly 2.0.
	d := newTestDetector(t, mediumIB(), stubPOC{poc: 4485, ready: true})
	d.OnBar(breakBar(70))
	setup := d.OnBar(hammerBar(71))
	if setup == nil {
		t.Fatal("R:R of exactly 2.0 must pass")
	}
	if math.Abs(setup.RiskReward-2.0) > 1e-9 {
		t.Fatalf("risk reward = %v, want 2.0", setup.RiskReward)
	}

	// A hair under 2.0 fails.
	d = newTestDetector(t, mediumIB(), stubPOC{poc: 4484.9, ready: true})
	d.OnBar(breakBar(70))
	if s := d.OnBar(hammerBar(71)); s != nil {
		t.Fatalf("R:R below 2.0 produced a setup: %+v", s)
	}
}

func TestDetectorMinScoreDiscards(t *testing.T) {
	cfg := config.Defaults().Strategy
	cfg.MinScore = 8
	// Extension outside the optimal band and heavy volume drop the score
	// to 7: width +2, open type +2, confirmation +1, R:R +1, time +1.
	d := NewSetupDetector(cfg, "ES", mediumIB(), 400, 0.25, stubPOC{poc: 4495, ready: true}, testLogger())

	d.OnBar(breakBar(70))
	shallow := minuteBar(71, 4475.5, 4476, 4471, 4474.5, 900)
	if s := d.OnBar(shallow); s != nil {
		t.Fatalf("score 7 candidate passed a min score of 8: %+v", s)
	}
}
