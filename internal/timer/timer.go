package timer

import (
	"sync"
	"time"
)

// Tick is the cooperative refresh interval of the call timer.
const Tick = time.Second

// CallTimer measures elapsed call time. Ticks only drive display refreshes;
// Elapsed is always computed from the start timestamp so a suspended ticker
// cannot cause drift.
type CallTimer struct {
	clock  Clock
	onTick func(elapsed time.Duration)

	mu      sync.Mutex
	running bool
	started time.Time
	next    Stopper
	gen     uint64
}

// NewCallTimer returns a stopped timer. onTick may be nil.
func NewCallTimer(clock Clock, onTick func(elapsed time.Duration)) *CallTimer {
	if clock == nil {
		clock = RealClock{}
	}
	return &CallTimer{clock: clock, onTick: onTick}
}

// Start begins measuring from now. Starting a running timer restarts it.
func (t *CallTimer) Start() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.running = true
	t.started = t.clock.Now()
	t.gen++
	t.scheduleLocked(t.gen)
	return t.started
}

// Stop clears the pending tick. It is safe to call on a stopped timer.
func (t *CallTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Elapsed returns the time since Start, or zero when stopped.
func (t *CallTimer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return t.clock.Now().Sub(t.started)
}

func (t *CallTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *CallTimer) stopLocked() {
	if t.next != nil {
		t.next.Stop()
		t.next = nil
	}
	t.running = false
	t.started = time.Time{}
}

func (t *CallTimer) scheduleLocked(gen uint64) {
	t.next = t.clock.AfterFunc(Tick, func() { t.fire(gen) })
}

func (t *CallTimer) fire(gen uint64) {
	t.mu.Lock()
	if !t.running || gen != t.gen {
		t.mu.Unlock()
		return
	}
	elapsed := t.clock.Now().Sub(t.started)
	t.scheduleLocked(gen)
	cb := t.onTick
	t.mu.Unlock()

	if cb != nil {
		cb(elapsed)
	}
}
