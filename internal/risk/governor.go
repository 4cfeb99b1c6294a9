package risk

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/ibfadebot/internal/config"
	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// Governor gates new entries against the day's risk ledger: the cumulative
// loss cap, the profit cap, and the consecutive-loss circuit breaker. One
// Governor serves all symbol engines of a process; when a RiskStateStore is
// attached, the ledger is shared across processes as well.
type Governor struct {
	cfg    config.RiskConfig
	logger *slog.Logger
	store  domain.RiskStateStore

	mu    sync.Mutex
	state domain.DailyRiskState
}

// NewGovernor builds a governor with a fresh ledger for the given date.
// store may be nil; the governor then keeps a process-local ledger.
func NewGovernor(cfg config.RiskConfig, date string, store domain.RiskStateStore, logger *slog.Logger) *Governor {
	return &Governor{
		cfg:    cfg,
		store:  store,
		logger: logger.With(slog.String("component", "risk_governor")),
		state:  domain.DailyRiskState{Date: date},
	}
}

// Authorize reports whether a new position may open. A denial is a normal
// decision outcome, reported with the rule that tripped.
func (g *Governor) Authorize(ctx context.Context) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.store != nil {
		if st, err := g.store.Load(ctx, g.state.Date); err != nil {
			// On a shared-ledger read failure, fall back to the local
			// view rather than silently authorizing against stale zeros.
			g.logger.Error("shared risk state load failed", slog.Any("error", err))
		} else {
			g.state = st
		}
	}

	switch {
	case g.state.CumulativeR <= g.cfg.DailyLossCapR:
		return false, "daily loss cap reached"
	case g.state.CumulativeR >= g.cfg.DailyProfitCapR:
		return false, "daily profit cap reached"
	case g.state.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses:
		return false, "consecutive loss limit reached"
	}
	return true, ""
}

// RecordClose books one closed position's realized R into the ledger.
func (g *Governor) RecordClose(ctx context.Context, realizedR float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.store != nil {
		st, err := g.store.Record(ctx, g.state.Date, realizedR)
		if err == nil {
			g.state = st
			g.logLedger()
			return
		}
		g.logger.Error("shared risk state record failed, applying locally", slog.Any("error", err))
	}
	g.state.Record(realizedR)
	g.logLedger()
}

// ResetFor clears the ledger at the start of a new trading day.
func (g *Governor) ResetFor(ctx context.Context, date string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = domain.DailyRiskState{Date: date}
	if g.store != nil {
		if err := g.store.Reset(ctx, date); err != nil {
			return err
		}
	}
	g.logger.Info("daily risk state reset", slog.String("date", date))
	return nil
}

// State returns a copy of the current ledger.
func (g *Governor) State() domain.DailyRiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Governor) logLedger() {
	g.logger.Info("risk ledger updated",
		slog.Float64("cumulative_r", g.state.CumulativeR),
		slog.Int("consecutive_losses", g.state.ConsecutiveLosses),
		slog.Int("trades_today", g.state.TradesToday),
	)
}
