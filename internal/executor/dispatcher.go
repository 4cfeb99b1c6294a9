// Package executor dispatches decision-engine intents to external consumers:
// the Redis signal bus for live fan-out, the durable intent stream, the
// Postgres intent log, and operator notifications. It never talks to a
// broker; order routing is an external collaborator on the far side of the
// bus.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// Notifier is the subset of the notification layer the dispatcher uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Dispatcher fans each intent out to the signal bus, the intent store, and
// the notifier. Stores and notifier are optional; bus publish failures are
// returned as IntentResults so the engine stays running.
type Dispatcher struct {
	bus      domain.SignalBus
	store    domain.IntentStore
	notifier Notifier
	dedup    *Dedup
	channel  string
	stream   string
	logger   *slog.Logger
}

// NewDispatcher wires a dispatcher. bus is required; store and notifier may
// be nil in replay mode.
func NewDispatcher(bus domain.SignalBus, store domain.IntentStore, notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		store:    store,
		notifier: notifier,
		dedup:    NewDedup(2 * time.Minute),
		channel:  "ibfade:intents",
		stream:   "ibfade:intents:stream",
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch delivers one batch of intents in order and reports per-intent
// outcomes. A failed delivery never aborts the rest of the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, intents []domain.Intent) []domain.IntentResult {
	results := make([]domain.IntentResult, 0, len(intents))
	for _, it := range intents {
		results = append(results, d.dispatchOne(ctx, it))
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, it domain.Intent) domain.IntentResult {
	res := domain.IntentResult{IntentID: it.ID}

	if d.dedup.IsDuplicate(it.ID) {
		d.logger.Warn("duplicate intent dropped", slog.String("intent_id", it.ID))
		res.Error = "duplicate intent"
		return res
	}

	payload, err := json.Marshal(it)
	if err != nil {
		res.Error = fmt.Sprintf("marshal: %v", err)
		return res
	}

	if err := d.bus.Publish(ctx, d.channel, payload); err != nil {
		d.logger.Error("intent publish failed",
			slog.String("intent_id", it.ID),
			slog.Any("error", err),
		)
		res.Error = fmt.Sprintf("publish: %v", err)
		return res
	}
	if err := d.bus.StreamAppend(ctx, d.stream, payload); err != nil {
		// The pub/sub copy went out; log the durable-stream miss but do
		// not fail the intent.
		d.logger.Error("intent stream append failed",
			slog.String("intent_id", it.ID),
			slog.Any("error", err),
		)
	}

	if d.store != nil {
		if err := d.store.Insert(ctx, it); err != nil {
			d.logger.Error("intent persist failed",
				slog.String("intent_id", it.ID),
				slog.Any("error", err),
			)
		}
	}

	if d.notifier != nil {
		title := fmt.Sprintf("%s %s %s", it.Symbol, it.Type, it.Direction)
		msg := fmt.Sprintf("price=%.2f stop=%.2f target=%.2f size=%.2f reason=%s",
			it.Price, it.StopLevel, it.TargetLevel, it.SizeFraction, it.Reason)
		if err := d.notifier.Notify(ctx, string(it.Type), title, msg); err != nil {
			d.logger.Warn("intent notification failed", slog.Any("error", err))
		}
	}

	d.logger.Info("intent dispatched",
		slog.String("intent_id", it.ID),
		slog.String("type", string(it.Type)),
		slog.String("symbol", it.Symbol),
		slog.Float64("price", it.Price),
	)
	res.Accepted = true
	return res
}
