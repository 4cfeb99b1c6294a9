package strategy

import (
	"math"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// Window is the evidence a confirmation signal inspects: the most recent
// bars (last element is the current bar), the fade direction under
// consideration, and the session figures the predicates compare against.
type Window struct {
	Bars      []domain.Bar
	Direction domain.Direction

	// IBBarVolume is the average per-bar volume of the Initial Balance,
	// the baseline for climax and divergence checks.
	IBBarVolume float64
	// POC is the current developing point of control.
	POC      float64
	TickSize float64
}

// Current returns the newest bar of the window.
func (w Window) Current() domain.Bar {
	return w.Bars[len(w.Bars)-1]
}

// Prev returns the bar before the newest one and false when the window is
// too short.
func (w Window) Prev() (domain.Bar, bool) {
	if len(w.Bars) < 2 {
		return domain.Bar{}, false
	}
	return w.Bars[len(w.Bars)-2], true
}

// Signal is a single confirmation predicate over a bar window. Signals are
// independent; a candidate is confirmed when at least one fires.
type Signal interface {
	Name() string
	Confirm(w Window) bool
}

// SignalSet evaluates a fixed collection of signals against a window.
type SignalSet struct {
	signals []Signal
}

// DefaultSignals builds the standard confirmation set: rejection candle,
// engulfing reversal, volume climax, volume divergence at a fresh extreme,
// and price stall at the developing POC.
func DefaultSignals(wickBodyRatio, climaxMult float64, stallTicks int) *SignalSet {
	return &SignalSet{signals: []Signal{
		rejectionCandle{wickBodyRatio: wickBodyRatio},
		engulfing{},
		volumeClimax{mult: climaxMult},
		volumeDivergence{},
		pocStall{ticks: stallTicks},
	}}
}

// Confirmations returns the names of every signal that fires on the window.
func (s *SignalSet) Confirmations(w Window) []string {
	if len(w.Bars) == 0 {
		return nil
	}
	var fired []string
	for _, sig := range s.signals {
		if sig.Confirm(w) {
			fired = append(fired, sig.Name())
		}
	}
	return fired
}

// rejectionCandle fires when the current bar shows a wick at least
// wickBodyRatio times its body on the side being rejected: a long lower
// wick for Long fades, a long upper wick for Short fades. Doji bars (a body
// under one tick) confirm when the rejecting wick dominates the bar's range.
type rejectionCandle struct {
	wickBodyRatio float64
}

func (rejectionCandle) Name() string { return "rejection_candle" }

func (r rejectionCandle) Confirm(w Window) bool {
	bar := w.Current()
	wick := bar.LowerWick()
	if w.Direction == domain.Short {
		wick = bar.UpperWick()
	}
	body := bar.Body()
	if body < w.TickSize {
		// Doji: judge the wick against the whole range instead.
		rng := bar.High - bar.Low
		return rng > 0 && wick >= rng/2
	}
	return wick >= r.wickBodyRatio*body
}

// engulfing fires when the current bar's body engulfs the previous bar's
// body and closes in the fade direction.
type engulfing struct{}

func (engulfing) Name() string { return "engulfing" }

func (engulfing) Confirm(w Window) bool {
	prev, ok := w.Prev()
	if !ok {
		return false
	}
	cur := w.Current()
	if cur.Body() <= prev.Body() {
		return false
	}
	curTop, curBot := bodyBounds(cur)
	prevTop, prevBot := bodyBounds(prev)
	if curTop < prevTop || curBot > prevBot {
		return false
	}
	if w.Direction == domain.Long {
		return cur.Bullish()
	}
	return cur.Bearish()
}

// volumeClimax fires on an exhaustion pattern: the previous bar's volume
// spikes past a multiple of the IB per-bar average and the current bar
// reverses in the fade direction.
type volumeClimax struct {
	mult float64
}

func (volumeClimax) Name() string { return "volume_climax" }

func (v volumeClimax) Confirm(w Window) bool {
	prev, ok := w.Prev()
	if !ok || w.IBBarVolume <= 0 {
		return false
	}
	if prev.Volume < v.mult*w.IBBarVolume {
		return false
	}
	cur := w.Current()
	if w.Direction == domain.Long {
		return cur.Bullish()
	}
	return cur.Bearish()
}

// volumeDivergence fires when the current bar pushes to a fresh extreme in
// the extension direction on less volume than the bar that set the prior
// extreme. A stand-in for bid/ask delta divergence on plain OHLCV data.
type volumeDivergence struct{}

func (volumeDivergence) Name() string { return "volume_divergence" }

func (volumeDivergence) Confirm(w Window) bool {
	prev, ok := w.Prev()
	if !ok {
		return false
	}
	cur := w.Current()
	if w.Direction == domain.Long {
		return cur.Low < prev.Low && cur.Volume < prev.Volume
	}
	return cur.High > prev.High && cur.Volume < prev.Volume
}

// pocStall fires when two consecutive closes sit within a few ticks of the
// developing POC, showing price being absorbed back into balance.
type pocStall struct {
	ticks int
}

func (pocStall) Name() string { return "poc_stall" }

func (p pocStall) Confirm(w Window) bool {
	prev, ok := w.Prev()
	if !ok || w.POC == 0 {
		return false
	}
	band := float64(p.ticks) * w.TickSize
	cur := w.Current()
	return math.Abs(cur.Close-w.POC) <= band && math.Abs(prev.Close-w.POC) <= band
}

func bodyBounds(b domain.Bar) (top, bottom float64) {
	if b.Close >= b.Open {
		return b.Close, b.Open
	}
	return b.Open, b.Close
}
