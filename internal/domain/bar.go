package domain

import "time"

// Bar is a single OHLCV bar for one symbol. Bars within a session arrive
// strictly ordered by timestamp with no duplicates; the engine rejects the
// stream otherwise.
type Bar struct {
	Timestamp time.Time
	// Elapsed is the session-relative time of the bar's open, measured from
	// the session open. All cutoffs (IB close, entry cutoff, forced flatten)
	// are defined against Elapsed so replays are deterministic regardless of
	// wall-clock or timezone.
	Elapsed time.Duration
	Open    float64
	High    float64
	Low     float64
	Close   float64
	Volume  float64
}

// Body returns the absolute size of the bar's open-to-close body.
func (b Bar) Body() float64 {
	d := b.Close - b.Open
	if d < 0 {
		return -d
	}
	return d
}

// UpperWick returns the distance from the top of the body to the high.
func (b Bar) UpperWick() float64 {
	top := b.Open
	if b.Close > top {
		top = b.Close
	}
	return b.High - top
}

// LowerWick returns the distance from the bottom of the body to the low.
func (b Bar) LowerWick() float64 {
	bottom := b.Open
	if b.Close < bottom {
		bottom = b.Close
	}
	return bottom - b.Low
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the bar closed below its open.
func (b Bar) Bearish() bool { return b.Close < b.Open }
