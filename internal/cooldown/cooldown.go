// Package cooldown implements the countdown that gates "resend code" actions.
// file: internal/cooldown/cooldown.go
//
// The timer keeps an absolute deadline instead of decrementing a counter, so the
// remaining time stays correct across suspended goroutines and can be restored
// from a persisted deadline.
package cooldown

import (
	"math"
	"sync"
	"time"
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Ticker produces tick events and a stop function. Tests substitute a manual channel.
type Ticker func(interval time.Duration) (<-chan time.Time, func())

// TickFunc receives the remaining whole seconds on every tick, ending with 0.
type TickFunc func(remaining int)

func realTicker(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(t *Timer) { t.now = c }
}

// WithTicker overrides the tick source used for OnTick notifications.
func WithTicker(tk Ticker, interval time.Duration) Option {
	return func(t *Timer) {
		t.newTicker = tk
		if interval > 0 {
			t.interval = interval
		}
	}
}

// Timer is a single countdown. The zero value is not usable; call New.
type Timer struct {
	mu        sync.Mutex
	now       Clock
	newTicker Ticker
	interval  time.Duration
	deadline  time.Time
	running   bool
	onTick    TickFunc
	stopTick  chan struct{}
}

// New creates a stopped timer.
func New(opts ...Option) *Timer {
	t := &Timer{
		now:       time.Now,
		newTicker: realTicker,
		interval:  time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnTick registers fn to be called once per tick while the timer runs.
// Only one observer is kept; passing nil removes it.
func (t *Timer) OnTick(fn TickFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = fn
	if t.running && fn != nil && t.stopTick == nil {
		t.startTickerLocked()
	}
}

// Start resets the countdown to d and starts it. A non-positive d stops the timer.
func (t *Timer) Start(d time.Duration) {
	if d <= 0 {
		t.Stop()
		return
	}
	t.Restore(t.now().Add(d))
}

// Restore re-arms the timer from an absolute deadline, for example one that was
// persisted before a restart. A deadline in the past leaves the timer stopped.
func (t *Timer) Restore(deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTickerLocked()
	if !deadline.After(t.now()) {
		t.running = false
		t.deadline = time.Time{}
		return
	}
	t.deadline = deadline
	t.running = true
	if t.onTick != nil {
		t.startTickerLocked()
	}
}

// Stop halts the countdown and zeroes it. Stopping a stopped timer is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTickerLocked()
	t.running = false
	t.deadline = time.Time{}
}

// Remaining returns whole seconds left, rounded up, never negative.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

// Running reports whether the countdown has time left.
func (t *Timer) Running() bool {
	return t.Remaining() > 0
}

// Ready reports whether a resend is permitted, i.e. Remaining() == 0.
func (t *Timer) Ready() bool {
	return t.Remaining() == 0
}

// Deadline returns the absolute expiry, or the zero time when stopped.
func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remainingLocked() == 0 {
		return time.Time{}
	}
	return t.deadline
}

func (t *Timer) remainingLocked() int {
	if !t.running {
		return 0
	}
	left := t.deadline.Sub(t.now())
	if left <= 0 {
		t.running = false
		t.deadline = time.Time{}
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

func (t *Timer) startTickerLocked() {
	ticks, stop := t.newTicker(t.interval)
	done := make(chan struct{})
	t.stopTick = done
	go t.tickLoop(ticks, stop, done)
}

func (t *Timer) stopTickerLocked() {
	if t.stopTick != nil {
		close(t.stopTick)
		t.stopTick = nil
	}
}

func (t *Timer) tickLoop(ticks <-chan time.Time, stop func(), done chan struct{}) {
	defer stop()
	for {
		select {
		case <-done:
			return
		case <-ticks:
			t.mu.Lock()
			if t.stopTick != done {
				t.mu.Unlock()
				return
			}
			remaining := t.remainingLocked()
			fn := t.onTick
			if remaining == 0 {
				t.stopTick = nil
			}
			t.mu.Unlock()

			if fn != nil {
				fn(remaining)
			}
			if remaining == 0 {
				return
			}
		}
	}
}
