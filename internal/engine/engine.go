package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ibfadebot/internal/config"
	"github.com/alanyoungcy/ibfadebot/internal/domain"
	"github.com/alanyoungcy/ibfadebot/internal/profile"
	"github.com/alanyoungcy/ibfadebot/internal/risk"
	"github.com/alanyoungcy/ibfadebot/internal/strategy"
)

// Result is the outcome of processing one bar: the intents emitted, the
// position that closed on this bar if any, and the IB snapshot on the bar
// that finalized the opening window.
type Result struct {
	Intents  []domain.Intent
	Closed   *domain.Position
	Snapshot *domain.IBSnapshot
}

// Engine drives one symbol's session: it routes each bar through the IB and
// profile trackers, hands post-IB bars to the setup detector and trade
// manager, and gates every new position through the risk governor. Bars are
// processed strictly sequentially; the engine has no internal concurrency.
type Engine struct {
	cfg      *config.Config
	sctx     domain.SessionContext
	governor *risk.Governor
	logger   *slog.Logger

	symbol string
	date   string

	ib       *profile.IBTracker
	poc      *profile.POCTracker
	detector *strategy.SetupDetector
	manager  *strategy.TradeManager

	seen      bool
	lastStamp time.Time
	lastBar   domain.Bar
	finished  bool

	bars    []domain.Bar
	intents []domain.Intent

	trades   int
	wins     int
	losses   int
	realized float64
}

// New builds an engine for one symbol and session. The session context must
// be supplied up front; an engine cannot begin IB tracking without it.
func New(cfg *config.Config, symbol, date string, sctx domain.SessionContext, governor *risk.Governor, logger *slog.Logger) (*Engine, error) {
	if !sctx.Valid() {
		return nil, fmt.Errorf("engine: %s: %w", symbol, domain.ErrMissingSessionContext)
	}
	window := time.Duration(cfg.Session.IBWindowMinutes) * time.Minute
	return &Engine{
		cfg:      cfg,
		sctx:     sctx,
		governor: governor,
		logger:   logger.With(slog.String("component", "engine"), slog.String("symbol", symbol)),
		symbol:   symbol,
		date:     date,
		ib:       profile.NewIBTracker(window, cfg.Strategy.NarrowThreshold, cfg.Strategy.WideThreshold, sctx.AvgIB20),
		poc:      profile.NewPOCTracker(cfg.Session.TickSize, cfg.Session.ValueAreaPct),
	}, nil
}

// OnBar processes one bar. Bars must arrive strictly ordered by timestamp
// and session-relative time; an out-of-order or duplicate bar is fatal for
// the session.
func (e *Engine) OnBar(ctx context.Context, bar domain.Bar) (Result, error) {
	if e.finished {
		return Result{}, fmt.Errorf("engine: %s: %w", e.symbol, domain.ErrSessionClosed)
	}
	if e.seen && (!bar.Timestamp.After(e.lastStamp) || bar.Elapsed <= e.lastBar.Elapsed) {
		return Result{}, fmt.Errorf("engine: %s: bar at %s after %s: %w",
			e.symbol, bar.Timestamp.Format(time.RFC3339), e.lastStamp.Format(time.RFC3339), domain.ErrOutOfOrderBar)
	}
	e.seen = true
	e.lastStamp = bar.Timestamp
	e.lastBar = bar
	e.bars = append(e.bars, bar)

	e.poc.Ingest(bar)

	var res Result
	if !e.ib.Finalized() {
		if e.ib.InWindow(bar.Elapsed) {
			if err := e.ib.Ingest(bar); err != nil {
				return Result{}, fmt.Errorf("engine: %s: %w", e.symbol, err)
			}
			return Result{}, nil
		}
		snap, err := e.ib.Finalize(bar.Elapsed)
		if err != nil {
			return Result{}, fmt.Errorf("engine: %s: finalize IB: %w", e.symbol, err)
		}
		e.onIBFinal(snap)
		res.Snapshot = &snap
	}

	intents, closed := e.manager.OnBar(bar, e.poc.CurrentPOC())
	if closed != nil {
		closed.SessionDate = e.date
		e.recordClose(ctx, closed)
		res.Closed = closed
	}

	if e.manager.Flat() {
		if setup := e.detector.OnBar(bar); setup != nil && e.authorize(ctx, setup) {
			// The confirmation candle may already close inside the entry
			// zone; the fill happens on this bar, not the next.
			intents = append(intents, e.manager.FillPending(bar, e.poc.CurrentPOC())...)
		}
	}

	for i := range intents {
		intents[i].SessionDate = e.date
	}
	res.Intents = intents
	e.intents = append(e.intents, intents...)
	return res, nil
}

// UpdateVIX applies an intraday VIX print. A jump beyond the configured
// fraction over the session-open reading flags a regime change; the manager
// closes any open position on the next bar.
func (e *Engine) UpdateVIX(vix float64) {
	if e.manager == nil || e.sctx.VIX <= 0 {
		return
	}
	if (vix-e.sctx.VIX)/e.sctx.VIX > e.cfg.Strategy.VIXJumpPct {
		e.logger.Warn("volatility regime change",
			slog.Float64("session_vix", e.sctx.VIX),
			slog.Float64("current_vix", vix),
		)
		e.manager.SetRegimeChange()
	}
}

// Cancel force-closes any open position for an external reason such as feed
// loss. The last bar's close serves as the exit mark when one exists.
func (e *Engine) Cancel(ctx context.Context) *domain.Position {
	if e.manager == nil {
		return nil
	}
	var mark float64
	if e.seen {
		mark = e.lastBar.Close
	}
	closed := e.manager.ExternalCancel(mark, e.lastBar.Elapsed)
	if closed != nil {
		closed.SessionDate = e.date
		e.recordClose(ctx, closed)
	}
	return closed
}

// Finish closes the session and returns its summary. Any still-open
// position must have been flattened by the session-end bar or Cancel.
func (e *Engine) Finish() (domain.SessionSummary, error) {
	if e.finished {
		return domain.SessionSummary{}, fmt.Errorf("engine: %s: %w", e.symbol, domain.ErrSessionClosed)
	}
	e.finished = true

	summary := domain.SessionSummary{
		Symbol:      e.symbol,
		Date:        e.date,
		TradesTaken: e.trades,
		Wins:        e.wins,
		Losses:      e.losses,
		RealizedR:   e.realized,
	}
	if e.ib.Finalized() {
		summary.IB = e.ib.Snapshot()
	}
	if e.poc.Ready() {
		summary.FinalPOC = e.poc.CurrentPOC()
		summary.FinalVAL, summary.FinalVAH = e.poc.ValueArea()
	}
	e.logger.Info("session finished",
		slog.Int("trades", summary.TradesTaken),
		slog.Float64("realized_r", summary.RealizedR),
	)
	return summary, nil
}

// Bars returns the session's full bar record, for archiving.
func (e *Engine) Bars() []domain.Bar { return e.bars }

// Intents returns every intent emitted this session, in order.
func (e *Engine) Intents() []domain.Intent { return e.intents }

// Position returns a copy of the open position, if any.
func (e *Engine) Position() (domain.Position, bool) {
	if e.manager == nil {
		return domain.Position{}, false
	}
	return e.manager.Position()
}

func (e *Engine) onIBFinal(snap domain.IBSnapshot) {
	e.logger.Info("initial balance finalized",
		slog.Float64("high", snap.High),
		slog.Float64("low", snap.Low),
		slog.Float64("range", snap.Range),
		slog.String("width_class", string(snap.WidthClass)),
		slog.String("open_type", string(snap.OpenType)),
	)
	ibBarVol := e.ib.PerMinuteVolume()
	tick := e.cfg.Session.TickSize
	e.detector = strategy.NewSetupDetector(e.cfg.Strategy, e.symbol, snap, ibBarVol, tick, e.poc, e.logger)
	e.manager = strategy.NewTradeManager(e.cfg.Strategy, e.symbol, snap, e.sctx, ibBarVol, tick, e.logger)
}

func (e *Engine) authorize(ctx context.Context, setup *domain.Setup) bool {
	ok, reason := e.governor.Authorize(ctx)
	if !ok {
		setup.State = domain.SetupDiscarded
		setup.Discard = domain.DiscardRiskDenied
		e.logger.Info("setup denied by risk governor",
			slog.String("setup_id", setup.ID),
			slog.String("reason", reason),
		)
		return false
	}
	e.manager.Accept(setup)
	return true
}

func (e *Engine) recordClose(ctx context.Context, pos *domain.Position) {
	e.governor.RecordClose(ctx, pos.RealizedR)
	e.trades++
	e.realized += pos.RealizedR
	if pos.RealizedR < 0 {
		e.losses++
	} else {
		e.wins++
	}
}
