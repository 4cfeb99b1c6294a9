package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// VIXHandler consumes intraday VIX prints from the live feed.
type VIXHandler func(ctx context.Context, value float64)

// wsFrame is the wire format of the live market-data stream: one-minute bar
// frames and occasional VIX prints.
type wsFrame struct {
	Type      string    `json:"type"` // "bar" or "vix"
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Value     float64   `json:"value"` // vix frames only
}

// WSFeed streams live bars for the subscribed symbols over a WebSocket and
// reconnects with exponential backoff on disconnect. Session-relative
// elapsed time is measured from sessionOpen, so every engine sees the same
// clock the replay feed would produce.
type WSFeed struct {
	wsURL       string
	symbols     []string
	sessionOpen time.Time
	onBar       BarHandler
	onVIX       VIXHandler
	logger      *slog.Logger
	closeOnce   sync.Once
	done        chan struct{}
}

// NewWSFeed creates a live feed for the given symbols.
func NewWSFeed(wsURL string, symbols []string, sessionOpen time.Time, onBar BarHandler, onVIX VIXHandler, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		wsURL:       wsURL,
		symbols:     symbols,
		sessionOpen: sessionOpen,
		onBar:       onBar,
		onVIX:       onVIX,
		logger:      logger.With(slog.String("component", "ws_feed")),
		done:        make(chan struct{}),
	}
}

// Run connects and consumes frames until ctx is cancelled or Close is
// called, reconnecting with backoff in between.
func (f *WSFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the feed.
func (f *WSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	sub := struct {
		Action  string   `json:"action"`
		Symbols []string `json:"symbols"`
	}{Action: "subscribe", Symbols: f.symbols}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("feed subscribed", slog.Int("symbols", len(f.symbols)))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.pingLoop(ctx, conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		if err := f.handleFrame(ctx, msg); err != nil {
			return err
		}
	}
}

func (f *WSFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *WSFeed) handleFrame(ctx context.Context, msg []byte) error {
	var frame wsFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		// A malformed frame is logged and skipped; the stream itself is
		// still healthy.
		f.logger.Warn("malformed frame skipped", slog.Any("error", err))
		return nil
	}

	switch frame.Type {
	case "bar":
		bar := domain.Bar{
			Timestamp: frame.Timestamp,
			Elapsed:   frame.Timestamp.Sub(f.sessionOpen),
			Open:      frame.Open,
			High:      frame.High,
			Low:       frame.Low,
			Close:     frame.Close,
			Volume:    frame.Volume,
		}
		return f.onBar(ctx, frame.Symbol, bar)
	case "vix":
		if f.onVIX != nil {
			f.onVIX(ctx, frame.Value)
		}
	default:
		f.logger.Debug("unknown frame type", slog.String("type", frame.Type))
	}
	return nil
}
