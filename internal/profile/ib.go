package profile

import (
	"time"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// IBTracker accumulates the Initial Balance over the opening window of the
// session and finalizes it exactly once into an immutable IBSnapshot. The
// full bar sequence of the window is retained for open-type classification,
// which needs the eventual IB range.
type IBTracker struct {
	window          time.Duration
	narrowThreshold float64
	wideThreshold   float64
	avgIB20         float64

	high      float64
	low       float64
	volume    float64
	bars      []domain.Bar
	seen      bool
	finalized bool
	snapshot  domain.IBSnapshot
}

// NewIBTracker creates a tracker for one session. avgIB20 is the 20-day
// average IB range from the session context and must be positive.
func NewIBTracker(window time.Duration, narrowThreshold, wideThreshold, avgIB20 float64) *IBTracker {
	return &IBTracker{
		window:          window,
		narrowThreshold: narrowThreshold,
		wideThreshold:   wideThreshold,
		avgIB20:         avgIB20,
	}
}

// InWindow reports whether a bar at the given session-relative time belongs
// to the IB formation window.
func (t *IBTracker) InWindow(elapsed time.Duration) bool {
	return elapsed < t.window
}

// Ingest accumulates one bar of the IB window. Bars after finalization are
// rejected as misuse.
func (t *IBTracker) Ingest(bar domain.Bar) error {
	if t.finalized {
		return domain.ErrAlreadyFinalized
	}
	if !t.seen || bar.High > t.high {
		t.high = bar.High
	}
	if !t.seen || bar.Low < t.low {
		t.low = bar.Low
	}
	t.seen = true
	t.volume += bar.Volume
	t.bars = append(t.bars, bar)
	return nil
}

// Finalized reports whether the snapshot has been produced.
func (t *IBTracker) Finalized() bool { return t.finalized }

// Snapshot returns the finalized IB. Only valid after Finalize.
func (t *IBTracker) Snapshot() domain.IBSnapshot { return t.snapshot }

// Finalize closes the IB window and produces the immutable snapshot. It must
// be called once, at or after window close: earlier calls fail with NotReady,
// repeated calls with AlreadyFinalized.
func (t *IBTracker) Finalize(elapsed time.Duration) (domain.IBSnapshot, error) {
	if t.finalized {
		return domain.IBSnapshot{}, domain.ErrAlreadyFinalized
	}
	if elapsed < t.window || !t.seen {
		return domain.IBSnapshot{}, domain.ErrNotReady
	}

	ibRange := t.high - t.low
	snap := domain.IBSnapshot{
		High:       t.high,
		Low:        t.low,
		Range:      ibRange,
		Midpoint:   (t.high + t.low) / 2,
		Volume:     t.volume,
		WidthClass: classifyWidth(ibRange, t.avgIB20, t.narrowThreshold, t.wideThreshold),
		OpenType:   ClassifyOpenType(t.bars, ibRange),
	}
	t.snapshot = snap
	t.finalized = true
	return snap, nil
}

// PerMinuteVolume returns the average volume per bar of the IB window, used
// as the baseline for declining-volume and climax checks after the IB.
func (t *IBTracker) PerMinuteVolume() float64 {
	if len(t.bars) == 0 {
		return 0
	}
	return t.volume / float64(len(t.bars))
}

// classifyWidth is a pure function of the IB range against the rolling
// average: narrow below narrowThreshold, wide above wideThreshold.
func classifyWidth(ibRange, avgIB20, narrowThreshold, wideThreshold float64) domain.WidthClass {
	ratio := ibRange / avgIB20
	switch {
	case ratio < narrowThreshold:
		return domain.WidthNarrow
	case ratio > wideThreshold:
		return domain.WidthWide
	default:
		return domain.WidthMedium
	}
}
