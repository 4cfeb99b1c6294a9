package executor

import (
	"sync"
	"time"
)

// sweepEvery is how many IsDuplicate calls pass between sweeps of expired
// entries. Sweeping opportunistically bounds the map without a background
// goroutine.
const sweepEvery = 256

// Dedup drops intents that have already been dispatched within a
// time-to-live window, guarding against replays after a reconnect. It is
// safe for concurrent use.
type Dedup struct {
	seen  map[string]time.Time // intentID -> last seen time
	ttl   time.Duration
	calls int
	mu    sync.Mutex
}

// NewDedup creates a Dedup that treats an intent ID as a duplicate if it was
// seen within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate reports whether the intent ID was seen within the TTL window.
// Unseen or expired IDs are recorded and reported as fresh. Every sweepEvery
// calls the expired entries are evicted, so a long-lived live process does
// not accumulate IDs forever.
func (d *Dedup) IsDuplicate(intentID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	d.calls++
	if d.calls%sweepEvery == 0 {
		d.sweep(now)
	}

	if lastSeen, ok := d.seen[intentID]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[intentID] = now
	return false
}

// Cleanup removes expired entries immediately.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweep(time.Now())
}

func (d *Dedup) sweep(now time.Time) {
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
