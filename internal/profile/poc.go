// Package profile maintains the intra-session market structure the decision
// engine reads: the developing volume-at-price profile (POC, value area) and
// the Initial Balance with its open-type classification.
package profile

import (
	"math"
	"sort"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// POCTracker accumulates a volume-by-price profile for one session and keeps
// the developing Point of Control current after every ingest. The profile is
// append-only: volume is added to the levels a bar traversed and never rolled
// back, so the POC moves only between levels that gained volume.
//
// Volume distribution across a bar's levels is deterministic and weighted
// toward the bar's typical price (H+L+C)/3: each tick level in [low, high]
// receives weight 1/(1 + distance/tick), normalized over the bar.
type POCTracker struct {
	tickSize     float64
	valueAreaPct float64

	volumeByTick map[int64]float64
	totalVolume  float64

	pocTick   int64
	pocVolume float64
	lastClose float64
	bars      int
}

// NewPOCTracker creates a tracker with the given tick size (price bucketing
// granularity) and value-area fraction (typically 0.70).
func NewPOCTracker(tickSize, valueAreaPct float64) *POCTracker {
	return &POCTracker{
		tickSize:     tickSize,
		valueAreaPct: valueAreaPct,
		volumeByTick: make(map[int64]float64),
	}
}

// Ingest distributes the bar's volume across the tick levels it traversed and
// updates the running POC.
func (t *POCTracker) Ingest(bar domain.Bar) {
	t.bars++
	t.lastClose = bar.Close
	if bar.Volume <= 0 || bar.High < bar.Low {
		return
	}

	lowTick := t.tick(bar.Low)
	highTick := t.tick(bar.High)
	typicalTick := t.tick((bar.High + bar.Low + bar.Close) / 3)

	// Weights decay with tick distance from the typical price.
	var totalWeight float64
	for tk := lowTick; tk <= highTick; tk++ {
		totalWeight += 1 / (1 + math.Abs(float64(tk-typicalTick)))
	}
	if totalWeight == 0 {
		return
	}

	for tk := lowTick; tk <= highTick; tk++ {
		w := 1 / (1 + math.Abs(float64(tk-typicalTick)))
		t.volumeByTick[tk] += bar.Volume * w / totalWeight
	}
	t.totalVolume += bar.Volume

	t.recomputePOC(lowTick, highTick)
}

// recomputePOC updates the running maximum considering only the levels that
// just gained volume; the previous POC can only be displaced by one of them.
func (t *POCTracker) recomputePOC(lowTick, highTick int64) {
	// Refresh the stored POC volume first: the POC level itself may have
	// gained volume in this bar.
	if v, ok := t.volumeByTick[t.pocTick]; ok {
		t.pocVolume = v
	}
	for tk := lowTick; tk <= highTick; tk++ {
		v := t.volumeByTick[tk]
		switch {
		case v > t.pocVolume:
			t.pocTick, t.pocVolume = tk, v
		case v == t.pocVolume && tk != t.pocTick && t.pocVolume > 0:
			// Tie-break: prefer the level nearer the last close, then the
			// lower price.
			if t.closerToLastClose(tk, t.pocTick) {
				t.pocTick = tk
			}
		}
	}
}

func (t *POCTracker) closerToLastClose(candidate, incumbent int64) bool {
	lastTick := t.tick(t.lastClose)
	dc := absTick(candidate - lastTick)
	di := absTick(incumbent - lastTick)
	if dc != di {
		return dc < di
	}
	return candidate < incumbent
}

// Ready reports whether a POC is available (at least one bar with volume).
func (t *POCTracker) Ready() bool { return t.totalVolume > 0 }

// CurrentPOC returns the developing Point of Control. Stable between ingests:
// repeated calls with no new bars always return the same price.
func (t *POCTracker) CurrentPOC() float64 {
	return t.price(t.pocTick)
}

// TotalVolume returns the session volume accumulated so far.
func (t *POCTracker) TotalVolume() float64 { return t.totalVolume }

// ValueArea returns the developing value area (VAL, VAH): the price band
// around the POC covering the configured fraction of session volume,
// expanded one level at a time toward the heavier neighbor.
func (t *POCTracker) ValueArea() (val, vah float64) {
	if t.totalVolume == 0 {
		return 0, 0
	}
	ticks := make([]int64, 0, len(t.volumeByTick))
	for tk := range t.volumeByTick {
		ticks = append(ticks, tk)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	pocIdx := sort.Search(len(ticks), func(i int) bool { return ticks[i] >= t.pocTick })
	if pocIdx == len(ticks) || ticks[pocIdx] != t.pocTick {
		return t.price(ticks[0]), t.price(ticks[len(ticks)-1])
	}

	target := t.totalVolume * t.valueAreaPct
	acc := t.volumeByTick[t.pocTick]
	lo, hi := pocIdx, pocIdx
	for acc < target {
		canDown, canUp := lo > 0, hi < len(ticks)-1
		if !canDown && !canUp {
			break
		}
		var volDown, volUp float64
		if canDown {
			volDown = t.volumeByTick[ticks[lo-1]]
		}
		if canUp {
			volUp = t.volumeByTick[ticks[hi+1]]
		}
		if canUp && (volUp >= volDown || !canDown) {
			hi++
			acc += volUp
		} else {
			lo--
			acc += volDown
		}
	}
	return t.price(ticks[lo]), t.price(ticks[hi])
}

func (t *POCTracker) tick(price float64) int64 {
	return int64(math.Round(price / t.tickSize))
}

func (t *POCTracker) price(tick int64) float64 {
	return float64(tick) * t.tickSize
}

func absTick(d int64) int64 {
	if d < 0 {
		return -d
	}
	return d
}
