package strategy

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/ibfadebot/internal/config"
	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// TradeManager owns the lifecycle of at most one position per session at a
// time: entry fill from an authorized setup, stop walking, scaling at the IB
// midpoint, POC target re-anchoring, the time-stop, invalidations, and the
// forced end-of-session flatten. Every decision surfaces as an Intent for
// the external execution collaborator; the manager never routes orders.
type TradeManager struct {
	cfg      config.StrategyConfig
	ib       domain.IBSnapshot
	sctx     domain.SessionContext
	ibBarVol float64
	tickSize float64
	symbol   string
	logger   *slog.Logger

	pending *domain.Setup
	pos     *domain.Position

	// Entry-time figures frozen for the time-stop comparison.
	initialTargetDist float64
	reassessed        bool
	trailing          bool
	favorableExtreme  float64
	regimeChange      bool
}

// NewTradeManager builds a manager for one session around a finalized IB.
func NewTradeManager(cfg config.StrategyConfig, symbol string, ib domain.IBSnapshot, sctx domain.SessionContext, ibBarVolume, tickSize float64, logger *slog.Logger) *TradeManager {
	return &TradeManager{
		cfg:      cfg,
		ib:       ib,
		sctx:     sctx,
		ibBarVol: ibBarVolume,
		tickSize: tickSize,
		symbol:   symbol,
		logger:   logger.With(slog.String("component", "trade_manager"), slog.String("symbol", symbol)),
	}
}

// Accept hands an authorized setup to the manager. The position opens on the
// first bar that closes inside the entry zone, starting with the confirmation
// candle itself via FillPending.
func (m *TradeManager) Accept(setup *domain.Setup) {
	setup.State = domain.SetupAuthorized
	m.pending = setup
}

// FillPending attempts the entry fill against the given bar. The engine calls
// it on the confirmation candle right after Accept, so a candle that already
// closed inside the entry zone fills without waiting for the next bar.
func (m *TradeManager) FillPending(bar domain.Bar, currentPOC float64) []domain.Intent {
	if m.pos != nil || m.pending == nil {
		return nil
	}
	return m.tryFill(bar, currentPOC)
}

// Flat reports whether the manager has neither a pending setup nor an open
// position, i.e. the detector may look for new candidates.
func (m *TradeManager) Flat() bool {
	return m.pending == nil && m.pos == nil
}

// SetRegimeChange flags an externally detected volatility regime change.
// Any open position is closed on the next bar.
func (m *TradeManager) SetRegimeChange() { m.regimeChange = true }

// Position returns a copy of the open position, if any.
func (m *TradeManager) Position() (domain.Position, bool) {
	if m.pos == nil {
		return domain.Position{}, false
	}
	return *m.pos, true
}

// OnBar advances the position state machine by one bar. It returns the
// intents emitted for this bar and, when the position fully exits, the
// closed position for risk and persistence bookkeeping.
func (m *TradeManager) OnBar(bar domain.Bar, currentPOC float64) ([]domain.Intent, *domain.Position) {
	var intents []domain.Intent

	if m.pos == nil && m.pending != nil {
		intents = append(intents, m.tryFill(bar, currentPOC)...)
	}
	if m.pos == nil {
		return intents, nil
	}

	p := m.pos

	// Target tracks the developing POC while the position is on.
	if currentPOC != 0 {
		p.TargetLevel = currentPOC
	}

	// Forced session flatten overrides everything.
	if bar.Elapsed >= m.minutes(m.cfg.FlattenMinutes) {
		intents = append(intents, m.fullExit(bar, bar.Close, domain.CloseSessionEnd))
		return intents, m.takeClosed()
	}

	// Invalidations outrank the plain stop so the close reason records the
	// structural cause; the fill still honors a breached stop level.
	if reason, ok := m.invalidated(bar); ok {
		price := bar.Close
		if m.stopHit(bar) {
			price = p.StopLevel
		}
		intents = append(intents, m.fullExit(bar, price, reason))
		return intents, m.takeClosed()
	}

	if m.stopHit(bar) {
		intents = append(intents, m.fullExit(bar, p.StopLevel, domain.CloseStopHit))
		return intents, m.takeClosed()
	}

	if m.targetHit(bar) {
		intents = append(intents, m.fullExit(bar, p.TargetLevel, domain.CloseTargetHit))
		return intents, m.takeClosed()
	}

	m.trackExtreme(bar)
	intents = append(intents, m.walkStops(bar)...)
	intents = append(intents, m.maybeScale(bar)...)

	if it, ok := m.timeStop(bar); ok {
		intents = append(intents, it)
	}

	return intents, nil
}

// ExternalCancel force-closes the open position for a reason outside the
// engine, such as connectivity loss. Realized R uses the last known mark
// when one is available and zero otherwise, so the daily ledger never goes
// inconsistent.
func (m *TradeManager) ExternalCancel(lastMark float64, elapsed time.Duration) *domain.Position {
	m.pending = nil
	if m.pos == nil {
		return nil
	}
	p := m.pos
	exit := p.EntryPrice
	if lastMark != 0 {
		exit = lastMark
	}
	m.realize(exit, p.RemainingFraction)
	p.RemainingFraction = 0
	p.State = domain.PositionClosed
	p.ExitPrice = exit
	p.ClosedAt = elapsed
	p.CloseReason = domain.CloseExternal
	m.logger.Warn("position externally cancelled",
		slog.String("position_id", p.ID),
		slog.Float64("exit_price", exit),
		slog.Float64("realized_r", p.RealizedR),
	)
	return m.takeClosed()
}

// tryFill opens the position when a bar closes inside the pending setup's
// entry zone. The pending setup dies on the extension cap or the entry
// cutoff, same as an unconfirmed candidate.
func (m *TradeManager) tryFill(bar domain.Bar, currentPOC float64) []domain.Intent {
	s := m.pending

	far := bar.Low
	if s.Direction == domain.Short {
		far = bar.High
	}
	if m.ib.Extension(far, s.Direction) > m.cfg.ExtensionCap {
		m.dropPending(domain.DiscardExtensionCap, bar.Elapsed)
		return nil
	}
	if bar.Elapsed > m.minutes(m.cfg.EntryCutoffMinutes) {
		m.dropPending(domain.DiscardOutsideWindow, bar.Elapsed)
		return nil
	}
	if !s.InEntryZone(bar.Close) {
		return nil
	}

	entry := bar.Close
	stop := entry - m.cfg.StopMultiple*m.ib.Range
	if s.Direction == domain.Short {
		stop = entry + m.cfg.StopMultiple*m.ib.Range
	}
	target := s.TargetLevel
	if currentPOC != 0 {
		target = currentPOC
	}

	m.pos = &domain.Position{
		ID:                uuid.NewString(),
		SetupID:           s.ID,
		Symbol:            m.symbol,
		Direction:         s.Direction,
		State:             domain.PositionOpen,
		EntryPrice:        entry,
		SizeFraction:      s.SizeFraction * m.classSizeMult(),
		RemainingFraction: 1.0,
		StopLevel:         stop,
		InitialStop:       stop,
		TargetLevel:       target,
		OpenedAt:          bar.Elapsed,
	}
	m.pending = nil
	m.initialTargetDist = math.Abs(target - entry)
	m.favorableExtreme = entry
	m.reassessed = false
	m.trailing = false

	m.logger.Info("position opened",
		slog.String("position_id", m.pos.ID),
		slog.String("direction", string(m.pos.Direction)),
		slog.Float64("entry", entry),
		slog.Float64("stop", stop),
		slog.Float64("target", target),
		slog.Float64("size_fraction", m.pos.SizeFraction),
	)
	return []domain.Intent{m.intent(domain.IntentEnter, bar, entry, m.pos.SizeFraction, "entry zone fill")}
}

// invalidated checks the immediate full-close conditions: extension past the
// cap, a continuation volume surge against the position, a convicted break
// of the prior day's level, or a regime change.
func (m *TradeManager) invalidated(bar domain.Bar) (domain.CloseReason, bool) {
	p := m.pos

	far := bar.Low
	if p.Direction == domain.Short {
		far = bar.High
	}
	if m.ib.Extension(far, p.Direction) > m.cfg.ExtensionCap {
		return domain.CloseExtensionCap, true
	}

	if m.ibBarVol > 0 && bar.Volume >= m.cfg.VolumeClimaxMult*m.ibBarVol {
		against := (p.Direction == domain.Long && bar.Bearish()) ||
			(p.Direction == domain.Short && bar.Bullish())
		if against {
			return domain.CloseVolumeSurge, true
		}
	}

	conviction := m.cfg.PriorDayConviction * m.ib.Range
	if p.Direction == domain.Long && bar.Close < m.sctx.PriorDayLow-conviction {
		return domain.ClosePriorDayBreak, true
	}
	if p.Direction == domain.Short && bar.Close > m.sctx.PriorDayHigh+conviction {
		return domain.ClosePriorDayBreak, true
	}

	if m.regimeChange {
		return domain.CloseRegimeChange, true
	}
	return "", false
}

// walkStops moves the stop to breakeven at 1R, trails it after scaling, and
// tightens into the session close.
func (m *TradeManager) walkStops(bar domain.Bar) []domain.Intent {
	p := m.pos
	var intents []domain.Intent

	if !p.AtBreakeven && p.UnrealizedR(m.favorableExtreme) >= 1.0 {
		p.StopLevel = p.EntryPrice
		p.AtBreakeven = true
		intents = append(intents, m.stopIntent(bar, "breakeven at 1R"))
	}

	if m.trailing {
		dist := m.cfg.StopMultiple * m.ib.Range
		if bar.Elapsed >= m.minutes(m.cfg.TightenStopsMinutes) {
			dist /= 2
		}
		candidate := m.favorableExtreme - dist
		if p.Direction == domain.Short {
			candidate = m.favorableExtreme + dist
		}
		if m.improves(candidate, p.StopLevel, p.Direction) {
			p.StopLevel = candidate
			intents = append(intents, m.stopIntent(bar, "trail"))
		}
	} else if bar.Elapsed >= m.minutes(m.cfg.TightenStopsMinutes) && !p.AtBreakeven {
		// Late session: no fresh risk into the close.
		p.StopLevel = p.EntryPrice
		p.AtBreakeven = true
		intents = append(intents, m.stopIntent(bar, "session close tighten"))
	}
	return intents
}

// maybeScale closes half the remaining size when price reaches the IB
// midpoint and switches the remainder to a trailing stop.
func (m *TradeManager) maybeScale(bar domain.Bar) []domain.Intent {
	p := m.pos
	if p.State != domain.PositionOpen {
		return nil
	}
	touched := (p.Direction == domain.Long && bar.High >= m.ib.Midpoint) ||
		(p.Direction == domain.Short && bar.Low <= m.ib.Midpoint)
	if !touched {
		return nil
	}

	fraction := p.RemainingFraction / 2
	m.realize(m.ib.Midpoint, fraction)
	p.RemainingFraction -= fraction
	p.State = domain.PositionPartiallyScaled
	m.trailing = true

	m.logger.Info("scaled out at IB midpoint",
		slog.String("position_id", p.ID),
		slog.Float64("price", m.ib.Midpoint),
		slog.Float64("remaining_fraction", p.RemainingFraction),
	)
	it := m.intent(domain.IntentScaleOut, bar, m.ib.Midpoint, fraction, "ib midpoint scale")
	return []domain.Intent{it}
}

// timeStop emits a single Reassess when the position has been on for the
// configured span without covering enough ground toward the target.
func (m *TradeManager) timeStop(bar domain.Bar) (domain.Intent, bool) {
	p := m.pos
	if m.reassessed || m.initialTargetDist <= 0 {
		return domain.Intent{}, false
	}
	if bar.Elapsed-p.OpenedAt < m.minutes(m.cfg.TimeStopMinutes) {
		return domain.Intent{}, false
	}
	progress := bar.Close - p.EntryPrice
	if p.Direction == domain.Short {
		progress = p.EntryPrice - bar.Close
	}
	if progress >= m.cfg.TimeStopProgress*m.initialTargetDist {
		return domain.Intent{}, false
	}
	m.reassessed = true
	m.logger.Info("time stop reached",
		slog.String("position_id", p.ID),
		slog.Float64("progress", progress),
		slog.Float64("required", m.cfg.TimeStopProgress*m.initialTargetDist),
	)
	return m.intent(domain.IntentReassess, bar, bar.Close, p.RemainingFraction, "time stop"), true
}

func (m *TradeManager) stopHit(bar domain.Bar) bool {
	if m.pos.Direction == domain.Long {
		return bar.Low <= m.pos.StopLevel
	}
	return bar.High >= m.pos.StopLevel
}

func (m *TradeManager) targetHit(bar domain.Bar) bool {
	if m.pos.TargetLevel == 0 {
		return false
	}
	if m.pos.Direction == domain.Long {
		return bar.High >= m.pos.TargetLevel
	}
	return bar.Low <= m.pos.TargetLevel
}

// trackExtreme records the most favorable price seen since entry.
func (m *TradeManager) trackExtreme(bar domain.Bar) {
	if m.pos.Direction == domain.Long {
		if bar.High > m.favorableExtreme {
			m.favorableExtreme = bar.High
		}
		return
	}
	if bar.Low < m.favorableExtreme {
		m.favorableExtreme = bar.Low
	}
}

// fullExit closes the whole remaining position at the given price.
func (m *TradeManager) fullExit(bar domain.Bar, price float64, reason domain.CloseReason) domain.Intent {
	p := m.pos
	m.realize(price, p.RemainingFraction)
	fraction := p.RemainingFraction
	p.RemainingFraction = 0
	p.State = domain.PositionClosed
	p.ExitPrice = price
	p.ClosedAt = bar.Elapsed
	p.CloseReason = reason

	m.logger.Info("position closed",
		slog.String("position_id", p.ID),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", price),
		slog.Float64("realized_r", p.RealizedR),
	)
	return m.intent(domain.IntentExit, bar, price, fraction, string(reason))
}

// realize books the R for a fraction of the position exiting at price.
func (m *TradeManager) realize(price float64, fraction float64) {
	p := m.pos
	risk := p.EntryPrice - p.InitialStop
	if p.Direction == domain.Short {
		risk = p.InitialStop - p.EntryPrice
	}
	if risk <= 0 {
		return
	}
	r := (price - p.EntryPrice) / risk
	if p.Direction == domain.Short {
		r = (p.EntryPrice - price) / risk
	}
	p.RealizedR += fraction * r
}

func (m *TradeManager) takeClosed() *domain.Position {
	p := m.pos
	m.pos = nil
	return p
}

func (m *TradeManager) dropPending(reason domain.DiscardReason, elapsed time.Duration) {
	m.pending.State = domain.SetupDiscarded
	m.pending.Discard = reason
	m.logger.Info("authorized setup expired unfilled",
		slog.String("setup_id", m.pending.ID),
		slog.String("reason", string(reason)),
		slog.Duration("elapsed", elapsed),
	)
	m.pending = nil
}

func (m *TradeManager) classSizeMult() float64 {
	switch m.ib.WidthClass {
	case domain.WidthNarrow:
		return m.cfg.NarrowSizeMult
	case domain.WidthWide:
		return m.cfg.WideSizeMult
	default:
		return m.cfg.MediumSizeMult
	}
}

// improves reports whether the candidate stop is tighter than the current
// one by at least a tick, in the protective direction.
func (m *TradeManager) improves(candidate, current float64, dir domain.Direction) bool {
	if dir == domain.Long {
		return candidate >= current+m.tickSize
	}
	return candidate <= current-m.tickSize
}

func (m *TradeManager) stopIntent(bar domain.Bar, reason string) domain.Intent {
	it := m.intent(domain.IntentMoveStop, bar, bar.Close, m.pos.RemainingFraction, reason)
	it.StopLevel = m.pos.StopLevel
	return it
}

func (m *TradeManager) intent(t domain.IntentType, bar domain.Bar, price, fraction float64, reason string) domain.Intent {
	p := m.pos
	return domain.Intent{
		ID:           uuid.NewString(),
		Type:         t,
		PositionID:   p.ID,
		Symbol:       m.symbol,
		Direction:    p.Direction,
		Price:        price,
		StopLevel:    p.StopLevel,
		TargetLevel:  p.TargetLevel,
		SizeFraction: fraction,
		Reason:       reason,
		Elapsed:      bar.Elapsed,
		CreatedAt:    time.Now().UTC(),
	}
}

func (m *TradeManager) minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
