package cache

import (
	"sync"
	"time"

	"market-sync/internal/domain"
)

// DefaultTransientDelay is how long an entry stays marked as just changed.
const DefaultTransientDelay = 5 * time.Second

type pendingRevert struct {
	timer *time.Timer
	token uint64
}

// transientTimers keeps at most one pending reversion per item id. Scheduling
// again replaces the earlier task, and a replaced task never fires its callback.
type transientTimers struct {
	delay time.Duration

	mu      sync.Mutex
	seq     uint64
	pending map[domain.ItemID]pendingRevert
	stopped bool
}

func newTransientTimers(delay time.Duration) *transientTimers {
	if delay <= 0 {
		delay = DefaultTransientDelay
	}
	return &transientTimers{
		delay:   delay,
		pending: make(map[domain.ItemID]pendingRevert),
	}
}

// schedule runs fn after the delay unless id is rescheduled or stopped first.
func (t *transientTimers) schedule(id domain.ItemID, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	if prev, ok := t.pending[id]; ok {
		prev.timer.Stop()
	}

	t.seq++
	token := t.seq
	timer := time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		cur, ok := t.pending[id]
		if !ok || cur.token != token {
			t.mu.Unlock()
			return
		}
		delete(t.pending, id)
		t.mu.Unlock()

		fn()
	})
	t.pending[id] = pendingRevert{timer: timer, token: token}
}

// len returns the number of pending reversions.
func (t *transientTimers) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// stop cancels every pending reversion and rejects new ones.
func (t *transientTimers) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, p := range t.pending {
		p.timer.Stop()
		delete(t.pending, id)
	}
}
