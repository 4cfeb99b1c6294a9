package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeSender struct {
	name string
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

type fakeLimiter struct {
	allow bool
	err   error
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return f.allow, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, []string{"entry", "exit"}, testLogger())

	if err := n.Notify(context.Background(), "scale", "Scaled", "half off"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatalf("filtered event reached sender: %v", s.sent)
	}

	if err := n.Notify(context.Background(), "entry", "Entered", "long"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0] != "Entered" {
		t.Fatalf("sent = %v, want [Entered]", s.sent)
	}
}

func TestNotifyEmptyEventSetAllowsAll(t *testing.T) {
	s := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	if err := n.Notify(context.Background(), "anything", "T", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent = %v, want one delivery", s.sent)
	}
}

func TestDispatchCollectsSenderErrors(t *testing.T) {
	bad := &fakeSender{name: "telegram", err: errors.New("api down")}
	good := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "T", "m")
	if err == nil {
		t.Fatal("expected combined error from failed sender")
	}
	if len(good.sent) != 1 {
		t.Fatalf("healthy sender skipped after failure: %v", good.sent)
	}
}

func TestRateLimitDropsOverLimitSends(t *testing.T) {
	s := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, nil, testLogger()).
		WithRateLimit(&fakeLimiter{allow: false}, 5, time.Minute)

	if err := n.NotifyAll(context.Background(), "T", "m"); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatalf("rate-limited send reached sender: %v", s.sent)
	}
}

func TestRateLimiterFailureFailsOpen(t *testing.T) {
	s := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, nil, testLogger()).
		WithRateLimit(&fakeLimiter{err: errors.New("redis down")}, 5, time.Minute)

	if err := n.NotifyAll(context.Background(), "T", "m"); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent = %v, want delivery despite limiter failure", s.sent)
	}
}
