package profile

import (
	"testing"
	"time"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

func pbar(min int, o, h, l, c, v float64) domain.Bar {
	elapsed := time.Duration(min) * time.Minute
	return domain.Bar{
		Timestamp: time.Date(2026, 3, 9, 9, 30, 0, 0, time.UTC).Add(elapsed),
		Elapsed:   elapsed,
		Open:      o, High: h, Low: l, Close: c, Volume: v,
	}
}

func TestPOCAnchorsAtTypicalPrice(t *testing.T) {
	p := NewPOCTracker(0.25, 0.70)
	if p.Ready() {
		t.Fatal("tracker must not be ready before the first bar")
	}

	// Typical price (4494+4488+4492)/3 = 4491.33, nearest tick 4491.25.
	p.Ingest(pbar(0, 4490, 4494, 4488, 4492, 600))
	if !p.Ready() {
		t.Fatal("tracker must be ready after a bar with volume")
	}
	if got := p.CurrentPOC(); got != 4491.25 {
		t.Fatalf("POC = %v, want 4491.25", got)
	}
}

func TestPOCStableWithoutNewIngests(t *testing.T) {
	p := NewPOCTracker(0.25, 0.70)
	p.Ingest(pbar(0, 4490, 4494, 4488, 4492, 600))

	first := p.CurrentPOC()
	for i := 0; i < 5; i++ {
		if got := p.CurrentPOC(); got != first {
			t.Fatalf("CurrentPOC drifted between ingests: %v then %v", first, got)
		}
	}
}

func TestPOCMovesOnlyToLevelsThatGainedVolume(t *testing.T) {
	p := NewPOCTracker(0.25, 0.70)
	p.Ingest(pbar(0, 4490, 4492, 4488, 4490, 500))
	before := p.CurrentPOC()

	// A heavy bar entirely above the prior range: the POC may only stay
	// put or move into the new bar's span.
	next := pbar(1, 4495, 4497, 4494, 4496, 900)
	p.Ingest(next)
	after := p.CurrentPOC()

	if after != before && (after < next.Low || after > next.High) {
		t.Fatalf("POC moved to %v, outside the bar that gained volume [%v,%v]",
			after, next.Low, next.High)
	}
	if after == before {
		t.Fatalf("a dominant new volume node should displace the POC (still %v)", before)
	}
}

func TestPOCZeroVolumeBarIgnored(t *testing.T) {
	p := NewPOCTracker(0.25, 0.70)
	p.Ingest(pbar(0, 4490, 4492, 4488, 4490, 500))
	before := p.CurrentPOC()

	p.Ingest(pbar(1, 4500, 4502, 4498, 4500, 0))
	if got := p.CurrentPOC(); got != before {
		t.Fatalf("zero-volume bar moved the POC: %v -> %v", before, got)
	}
}

func TestPOCTieBreakPrefersLastClose(t *testing.T) {
	p := NewPOCTracker(1.0, 0.70)
	// Two single-tick bars with equal volume at 4480 and 4490; the last
	// close sits at 4490, so the tie resolves there.
	p.Ingest(pbar(0, 4480, 4480, 4480, 4480, 500))
	p.Ingest(pbar(1, 4490, 4490, 4490, 4490, 500))
	if got := p.CurrentPOC(); got != 4490 {
		t.Fatalf("POC = %v, want the tied level nearer the last close (4490)", got)
	}
}

func TestValueAreaContainsPOC(t *testing.T) {
	p := NewPOCTracker(0.25, 0.70)
	for i := 0; i < 30; i++ {
		p.Ingest(pbar(i, 4490, 4494, 4488, 4492, 500))
	}
	p.Ingest(pbar(30, 4488, 4489, 4480, 4481, 200))
	p.Ingest(pbar(31, 4494, 4500, 4493, 4498, 200))

	val, vah := p.ValueArea()
	poc := p.CurrentPOC()
	if val > poc || vah < poc {
		t.Fatalf("value area [%v,%v] does not contain POC %v", val, vah, poc)
	}
	if val < 4480 || vah > 4500 {
		t.Fatalf("value area [%v,%v] outside the traded range", val, vah)
	}
	if vah-val >= 20 {
		t.Fatalf("value area [%v,%v] should be tighter than the full range", val, vah)
	}
}
