// file: internal/authclient/throttle.go
package authclient

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrThrottled is returned when a request would have to wait longer than the
// throttle allows.
var ErrThrottled = errors.New("client-side request throttle exceeded")

// RateLimiter is a token bucket limiting how fast requests leave the client.
// It only delays or rejects; it never replays a request.
type RateLimiter struct {
	rate       float64
	burstLimit int
	maxWait    time.Duration
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing rate requests per second with bursts of burstLimit.
func NewRateLimiter(rate float64, burstLimit int) *RateLimiter {
	if burstLimit < 1 {
		burstLimit = 1
	}
	return &RateLimiter{
		rate:       rate,
		burstLimit: burstLimit,
		maxWait:    5 * time.Second,
		tokens:     float64(burstLimit),
		lastUpdate: time.Now(),
		now:        time.Now,
	}
}

// Wait blocks until a token is available, ctx is done, or the wait would exceed maxWait.
func (l *RateLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	l.lastUpdate = now
	if l.tokens > float64(l.burstLimit) {
		l.tokens = float64(l.burstLimit)
	}
	if l.tokens >= 1 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}
	if l.rate <= 0 {
		l.mu.Unlock()
		return ErrThrottled
	}
	wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
	if wait > l.maxWait {
		l.mu.Unlock()
		return errors.Wrapf(ErrThrottled, "would wait %s", wait)
	}
	// Reserve the token now so concurrent callers queue behind this one.
	l.tokens--
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
