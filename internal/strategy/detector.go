package strategy

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/ibfadebot/internal/config"
	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// confirmWindowBars bounds the candidate's confirmation window both ways: it
// is how many recent bars the confirmation signals see and how many bars a
// triggered candidate may wait for its first confirmation before it is
// discarded.
const confirmWindowBars = 6

// POCSource exposes the developing profile figures the detector consults.
// *profile.POCTracker satisfies it.
type POCSource interface {
	Ready() bool
	CurrentPOC() float64
}

// SetupDetector watches post-IB price action for extension triggers and
// walks each candidate through trigger, confirmation, and scoring. It holds
// at most one live candidate at a time; a new trigger can only form after
// the previous candidate was scored or discarded.
type SetupDetector struct {
	cfg      config.StrategyConfig
	ib       domain.IBSnapshot
	ibBarVol float64
	tickSize float64
	symbol   string
	poc      POCSource
	signals  *SignalSet
	logger   *slog.Logger

	candidate    *domain.Setup
	sinceTrigger int
	recent       []domain.Bar
}

// NewSetupDetector builds a detector for one session. The IB snapshot must
// already be finalized.
func NewSetupDetector(cfg config.StrategyConfig, symbol string, ib domain.IBSnapshot, ibBarVolume, tickSize float64, poc POCSource, logger *slog.Logger) *SetupDetector {
	return &SetupDetector{
		cfg:      cfg,
		ib:       ib,
		ibBarVol: ibBarVolume,
		tickSize: tickSize,
		symbol:   symbol,
		poc:      poc,
		signals:  DefaultSignals(cfg.WickBodyRatio, cfg.VolumeClimaxMult, cfg.POCStallTicks),
		logger:   logger.With(slog.String("component", "setup_detector"), slog.String("symbol", symbol)),
	}
}

// OnBar advances the candidate state machine by one bar and returns a setup
// in the Scored state when one completes, or nil. Discards are logged as
// ordinary decisions, never returned as errors.
func (d *SetupDetector) OnBar(bar domain.Bar) *domain.Setup {
	d.recent = append(d.recent, bar)
	if len(d.recent) > confirmWindowBars {
		d.recent = d.recent[len(d.recent)-confirmWindowBars:]
	}

	if d.candidate == nil {
		d.tryTrigger(bar)
		return nil
	}
	return d.advance(bar)
}

// tryTrigger opens a candidate when price crosses an IB extreme. Structural
// filters (narrow IB, open drive) and the entry window are checked at the
// moment of the break.
func (d *SetupDetector) tryTrigger(bar domain.Bar) {
	var dir domain.Direction
	var trigger float64
	switch {
	case bar.Low < d.ib.Low:
		dir, trigger = domain.Long, d.ib.Low
	case bar.High > d.ib.High:
		dir, trigger = domain.Short, d.ib.High
	default:
		return
	}

	if d.ib.WidthClass == domain.WidthNarrow {
		d.logDiscard(dir, domain.DiscardNarrowIB, bar.Elapsed)
		return
	}
	if d.ib.OpenType == domain.OpenDrive {
		d.logDiscard(dir, domain.DiscardOpenDrive, bar.Elapsed)
		return
	}
	if !d.inEntryWindow(bar.Elapsed) {
		d.logDiscard(dir, domain.DiscardOutsideWindow, bar.Elapsed)
		return
	}

	zoneLow, zoneHigh := d.entryZone(dir, trigger)
	d.sinceTrigger = 0
	d.candidate = &domain.Setup{
		ID:            uuid.NewString(),
		Symbol:        d.symbol,
		Direction:     dir,
		State:         domain.SetupTriggered,
		TriggerLevel:  trigger,
		EntryZoneLow:  zoneLow,
		EntryZoneHigh: zoneHigh,
		TriggeredAt:   bar.Elapsed,
	}
	d.logger.Info("extension trigger",
		slog.String("setup_id", d.candidate.ID),
		slog.String("direction", string(dir)),
		slog.Float64("trigger_level", trigger),
		slog.Duration("elapsed", bar.Elapsed),
	)
	// The trigger bar itself may already confirm.
	d.candidate.State = domain.SetupAwaitingConf
}

// advance moves a Triggered/AwaitingConfirmation candidate forward on a new
// bar, discarding on the extension cap, the entry-window expiry, or an
// exhausted confirmation window, and scoring on the first confirmation.
func (d *SetupDetector) advance(bar domain.Bar) *domain.Setup {
	c := d.candidate
	d.sinceTrigger++

	ext := d.ib.Extension(d.farExtreme(bar, c.Direction), c.Direction)
	if ext > d.cfg.ExtensionCap {
		d.discard(c, domain.DiscardExtensionCap, bar.Elapsed)
		return nil
	}
	if !d.inEntryWindow(bar.Elapsed) {
		d.discard(c, domain.DiscardOutsideWindow, bar.Elapsed)
		return nil
	}
	if d.sinceTrigger > confirmWindowBars {
		d.discard(c, domain.DiscardNoConfirm, bar.Elapsed)
		return nil
	}
	if !d.poc.Ready() {
		return nil
	}

	w := Window{
		Bars:        d.recent,
		Direction:   c.Direction,
		IBBarVolume: d.ibBarVol,
		POC:         d.poc.CurrentPOC(),
		TickSize:    d.tickSize,
	}
	fired := d.signals.Confirmations(w)
	if len(fired) == 0 {
		return nil
	}

	c.Confirmations = fired
	c.ExtensionMultiple = d.ib.Extension(bar.Close, c.Direction)
	c.TargetLevel = d.poc.CurrentPOC()
	c.StopLevel = d.stopFrom(c.EntryZoneMid(), c.Direction)
	c.RiskReward = d.riskReward(c)
	c.Score = d.score(c, bar)
	c.ScoredAt = bar.Elapsed
	c.State = domain.SetupScored

	if c.Score < d.cfg.MinScore {
		d.discard(c, domain.DiscardLowScore, bar.Elapsed)
		return nil
	}
	if c.RiskReward < d.cfg.MinRiskReward {
		d.discard(c, domain.DiscardLowRR, bar.Elapsed)
		return nil
	}

	c.SizeFraction = d.sizeFraction(c.Score)
	d.candidate = nil
	d.logger.Info("setup scored",
		slog.String("setup_id", c.ID),
		slog.String("direction", string(c.Direction)),
		slog.Int("score", c.Score),
		slog.Float64("risk_reward", c.RiskReward),
		slog.Float64("size_fraction", c.SizeFraction),
		slog.Any("confirmations", fired),
	)
	return c
}

// score applies the 0..10 rubric for a confirmed candidate.
func (d *SetupDetector) score(c *domain.Setup, bar domain.Bar) int {
	score := 0
	if d.ib.WidthClass == domain.WidthMedium || d.ib.WidthClass == domain.WidthWide {
		score += 2
	}
	if d.ib.OpenType != domain.OpenDrive {
		score += 2
	}
	if c.ExtensionMultiple >= d.cfg.EntryZoneLow && c.ExtensionMultiple <= d.cfg.EntryZoneHigh {
		score += 2
	}
	// Confirmation is a precondition of scoring, so this point always
	// lands; it keeps the rubric total at 10.
	if len(c.Confirmations) > 0 {
		score++
	}
	if d.volumeDeclining() {
		score++
	}
	if c.RiskReward >= 2.5 {
		score++
	}
	if bar.Elapsed <= time.Duration(d.cfg.OptimalWindowEndMin)*time.Minute {
		score++
	}
	return score
}

// volumeDeclining reports whether recent per-bar volume runs below the IB
// average, the fading-participation condition of the rubric.
func (d *SetupDetector) volumeDeclining() bool {
	if d.ibBarVol <= 0 || len(d.recent) == 0 {
		return false
	}
	n := 3
	if len(d.recent) < n {
		n = len(d.recent)
	}
	var sum float64
	for _, b := range d.recent[len(d.recent)-n:] {
		sum += b.Volume
	}
	return sum/float64(n) < d.ibBarVol
}

// riskReward measures target distance from the entry-zone midpoint against
// the configured stop distance.
func (d *SetupDetector) riskReward(c *domain.Setup) float64 {
	risk := d.cfg.StopMultiple * d.ib.Range
	if risk <= 0 {
		return 0
	}
	return math.Abs(c.TargetLevel-c.EntryZoneMid()) / risk
}

// entryZone converts the configured extension band into price bounds on the
// fade side of the trigger level.
func (d *SetupDetector) entryZone(dir domain.Direction, trigger float64) (low, high float64) {
	near := d.cfg.EntryZoneLow * d.ib.Range
	far := d.cfg.EntryZoneHigh * d.ib.Range
	if dir == domain.Long {
		return trigger - far, trigger - near
	}
	return trigger + near, trigger + far
}

func (d *SetupDetector) stopFrom(entry float64, dir domain.Direction) float64 {
	dist := d.cfg.StopMultiple * d.ib.Range
	if dir == domain.Long {
		return entry - dist
	}
	return entry + dist
}

func (d *SetupDetector) sizeFraction(score int) float64 {
	switch {
	case score >= 8:
		return 1.0
	case score >= 6:
		return 0.75
	default:
		return 0.5
	}
}

// farExtreme returns the bar price farthest beyond the IB extreme in the
// extension direction.
func (d *SetupDetector) farExtreme(bar domain.Bar, dir domain.Direction) float64 {
	if dir == domain.Long {
		return bar.Low
	}
	return bar.High
}

func (d *SetupDetector) inEntryWindow(elapsed time.Duration) bool {
	return elapsed <= time.Duration(d.cfg.EntryCutoffMinutes)*time.Minute
}

func (d *SetupDetector) discard(c *domain.Setup, reason domain.DiscardReason, elapsed time.Duration) {
	c.State = domain.SetupDiscarded
	c.Discard = reason
	d.candidate = nil
	d.logDiscard(c.Direction, reason, elapsed)
}

func (d *SetupDetector) logDiscard(dir domain.Direction, reason domain.DiscardReason, elapsed time.Duration) {
	d.logger.Info("candidate discarded",
		slog.String("direction", string(dir)),
		slog.String("reason", string(reason)),
		slog.Duration("elapsed", elapsed),
	)
}
