package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ibfadebot/internal/config"
	"github.com/alanyoungcy/ibfadebot/internal/domain"
	"github.com/alanyoungcy/ibfadebot/internal/engine"
	"github.com/alanyoungcy/ibfadebot/internal/executor"
	"github.com/alanyoungcy/ibfadebot/internal/feed"
	"github.com/alanyoungcy/ibfadebot/internal/risk"
)

// sessionLockTTL bounds how long a live session lock can outlive its holder.
const sessionLockTTL = 8 * time.Hour

// sessionRunner drives one engine per configured symbol, shares a single
// risk governor between them, and fans emitted intents out through the
// dispatcher. Engines are created on the first bar of each symbol so the
// session date always comes from the data, not the host clock.
type sessionRunner struct {
	cfg        *config.Config
	deps       *Dependencies
	dispatcher *executor.Dispatcher
	logger     *slog.Logger

	mu       sync.Mutex
	governor *risk.Governor
	engines  map[string]*engine.Engine
	contexts map[string]domain.SessionContext
	traded   map[string]bool
	done     map[string]bool
}

func newSessionRunner(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) *sessionRunner {
	r := &sessionRunner{
		cfg:        cfg,
		deps:       deps,
		dispatcher: executor.NewDispatcher(deps.SignalBus, deps.IntentStore, deps.Notifier, logger),
		logger:     logger.With(slog.String("component", "runner")),
		engines:    make(map[string]*engine.Engine),
		contexts:   make(map[string]domain.SessionContext),
		traded:     make(map[string]bool),
		done:       make(map[string]bool),
	}
	for _, s := range cfg.Session.Symbols {
		r.traded[s] = true
	}
	r.loadContexts(ctx)
	return r
}

// loadContexts seeds each symbol's session context from configuration, then
// recomputes the average IB range from stored session history when enough of
// it exists. Stored history wins over the configured seed.
func (r *sessionRunner) loadContexts(ctx context.Context) {
	for _, cc := range r.cfg.Contexts {
		r.contexts[cc.Symbol] = domain.SessionContext{
			Symbol:       cc.Symbol,
			PriorDayHigh: cc.PriorDayHigh,
			PriorDayLow:  cc.PriorDayLow,
			PriorDayPOC:  cc.PriorDayPOC,
			PriorDayVAH:  cc.PriorDayVAH,
			PriorDayVAL:  cc.PriorDayVAL,
			AvgIB20:      cc.AvgIB20,
			VIX:          cc.VIX,
		}
	}

	if r.deps.SessionStore == nil {
		return
	}
	for symbol, sctx := range r.contexts {
		recent, err := r.deps.SessionStore.ListRecent(ctx, symbol, 20)
		if err != nil {
			r.logger.WarnContext(ctx, "session history unavailable, using configured context",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		var sum float64
		var n int
		for _, s := range recent {
			if s.IB.Range > 0 {
				sum += s.IB.Range
				n++
			}
		}
		if n > 0 {
			sctx.AvgIB20 = sum / float64(n)
			r.contexts[symbol] = sctx
			r.logger.InfoContext(ctx, "average IB range from session history",
				slog.String("symbol", symbol),
				slog.Int("sessions", n),
				slog.Float64("avg_ib", sctx.AvgIB20),
			)
		}
	}
}

// engineFor returns the symbol's engine, creating it (and the shared
// governor) on first use. The session date is taken from the bar timestamp.
func (r *sessionRunner) engineFor(symbol string, stamp time.Time) (*engine.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if eng, ok := r.engines[symbol]; ok {
		return eng, nil
	}

	date := stamp.Format("2006-01-02")
	if r.governor == nil {
		r.governor = risk.NewGovernor(r.cfg.Risk, date, r.deps.RiskStates, r.logger)
	}

	sctx := r.contexts[symbol]
	eng, err := engine.New(r.cfg, symbol, date, sctx, r.governor, r.logger)
	if err != nil {
		return nil, fmt.Errorf("app: engine for %s: %w", symbol, err)
	}
	r.engines[symbol] = eng
	return eng, nil
}

// onBar feeds one bar to the symbol's engine and dispatches whatever the
// engine decided. Bars for symbols outside the configured set are ignored.
// An out-of-order stream is fatal for that symbol's session only.
func (r *sessionRunner) onBar(ctx context.Context, symbol string, bar domain.Bar) error {
	if !r.traded[symbol] {
		return nil
	}
	r.mu.Lock()
	finished := r.done[symbol]
	r.mu.Unlock()
	if finished {
		return nil
	}

	eng, err := r.engineFor(symbol, bar.Timestamp)
	if err != nil {
		return err
	}

	res, err := eng.OnBar(ctx, bar)
	if errors.Is(err, domain.ErrOutOfOrderBar) {
		r.logger.ErrorContext(ctx, "bar stream corrupt, abandoning session",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		r.closeOut(ctx, symbol, eng)
		return nil
	}
	if err != nil {
		return err
	}

	if len(res.Intents) > 0 {
		r.dispatcher.Dispatch(ctx, res.Intents)
	}
	if res.Closed != nil {
		r.persistClosed(ctx, res.Closed)
	}
	return nil
}

// onVIX applies an intraday VIX print to every running engine.
func (r *sessionRunner) onVIX(ctx context.Context, value float64) {
	r.mu.Lock()
	engines := make([]*engine.Engine, 0, len(r.engines))
	for _, eng := range r.engines {
		engines = append(engines, eng)
	}
	r.mu.Unlock()

	for _, eng := range engines {
		eng.UpdateVIX(value)
	}
}

func (r *sessionRunner) persistClosed(ctx context.Context, pos *domain.Position) {
	if r.deps.PositionStore == nil {
		return
	}
	if err := r.deps.PositionStore.Create(ctx, *pos); err != nil {
		r.logger.ErrorContext(ctx, "persist closed position",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

// closeOut cancels any open position, finishes the engine, and writes its
// summary and archive. The engine is removed from the running set.
func (r *sessionRunner) closeOut(ctx context.Context, symbol string, eng *engine.Engine) {
	if closed := eng.Cancel(ctx); closed != nil {
		r.persistClosed(ctx, closed)
	}

	summary, err := eng.Finish()
	if err != nil {
		r.logger.ErrorContext(ctx, "finish session",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		r.dropEngine(symbol)
		return
	}

	if r.deps.SessionStore != nil {
		if err := r.deps.SessionStore.Upsert(ctx, summary); err != nil {
			r.logger.ErrorContext(ctx, "persist session summary",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.deps.Archiver != nil {
		prefix, err := r.deps.Archiver.ArchiveSession(ctx, summary, eng.Bars(), eng.Intents())
		if err != nil {
			r.logger.ErrorContext(ctx, "archive session",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		} else {
			r.logger.InfoContext(ctx, "session archived", slog.String("prefix", prefix))
		}
	}
	if r.deps.Notifier != nil {
		_ = r.deps.Notifier.Notify(ctx, "session",
			fmt.Sprintf("Session finished: %s %s", summary.Symbol, summary.Date),
			fmt.Sprintf("trades=%d wins=%d losses=%d realized=%.2fR",
				summary.TradesTaken, summary.Wins, summary.Losses, summary.RealizedR),
		)
	}

	r.dropEngine(symbol)
}

func (r *sessionRunner) dropEngine(symbol string) {
	r.mu.Lock()
	delete(r.engines, symbol)
	r.done[symbol] = true
	r.mu.Unlock()
}

// finishAll closes out every still-running engine, in symbol order.
func (r *sessionRunner) finishAll(ctx context.Context) {
	r.mu.Lock()
	remaining := make(map[string]*engine.Engine, len(r.engines))
	for s, eng := range r.engines {
		remaining[s] = eng
	}
	r.mu.Unlock()

	for _, symbol := range r.cfg.Session.Symbols {
		if eng, ok := remaining[symbol]; ok {
			r.closeOut(ctx, symbol, eng)
		}
	}
}

// ReplayMode streams a recorded session through the engines at full speed
// and writes summaries and archives when the file is exhausted.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("path", a.cfg.Feed.ReplayPath),
	)

	runner := newSessionRunner(ctx, a.cfg, deps, a.logger)
	replay := feed.NewReplayFeed(a.cfg.Feed.ReplayPath, runner.onBar, a.logger)

	err := replay.Run(ctx)
	runner.finishAll(ctx)
	if err != nil {
		return fmt.Errorf("app: replay: %w", err)
	}
	return nil
}

// LiveMode connects to the market-data websocket and runs until the feed
// ends or the context is cancelled. A per-symbol distributed lock guarantees
// a single live engine per symbol; open positions are force-closed on the
// way out so nothing is left working unattended.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode",
		slog.String("ws_url", a.cfg.Feed.WSURL),
	)

	sessionDate := time.Now().Format("2006-01-02")
	for _, symbol := range a.cfg.Session.Symbols {
		unlock, err := deps.LockManager.Acquire(ctx, "session:"+symbol+":"+sessionDate, sessionLockTTL)
		if err != nil {
			return fmt.Errorf("app: session lock %s: %w", symbol, err)
		}
		defer unlock()
	}

	runner := newSessionRunner(ctx, a.cfg, deps, a.logger)
	wsFeed := feed.NewWSFeed(
		a.cfg.Feed.WSURL,
		a.cfg.Session.Symbols,
		time.Now(),
		runner.onBar,
		runner.onVIX,
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer wsFeed.Close()
		return wsFeed.Run(gctx)
	})

	err := g.Wait()

	// Whatever ended the feed, close out with a background-derived context
	// so persistence and notifications still go out.
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	runner.finishAll(closeCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: live feed: %w", err)
	}
	return nil
}
