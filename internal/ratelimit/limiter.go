// Package ratelimit implements the per-session send budget: 12 events per
// 5 seconds, enforced as a token bucket.
//
// It is built on golang.org/x/time/rate's token bucket, with burst equal to
// the budget and a refill rate of budget/window. For any burst sent
// back-to-back, at most `budget` events are admitted, and the budget
// recovers continuously rather than all at once at a window boundary. It is
// not a strict sliding window: tokens refilled during a 5-second span are
// admitted too, so one span can admit up to about twice `budget` events.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Window is the time over which the default limiter refills Budget tokens.
const Window = 5 * time.Second

// Budget is the bucket's burst size: the maximum number of events admitted
// back-to-back, and the number of tokens refilled per Window.
const Budget = 12

// Limiter is a per-session rate limiter. It is not safe for concurrent use
// by multiple goroutines — a session's rate limiter is only ever touched by
// that session's own reader task.
type Limiter struct {
	bucket *rate.Limiter
}

// New returns a limiter configured for the default budget/window.
func New() *Limiter {
	return NewWithBudget(Budget, Window)
}

// NewWithBudget returns a limiter admitting at most budget events per
// window, refilling continuously.
func NewWithBudget(budget int, window time.Duration) *Limiter {
	perSecond := rate.Limit(float64(budget) / window.Seconds())
	return &Limiter{bucket: rate.NewLimiter(perSecond, budget)}
}

// Allow reports whether a new event may be admitted right now, and
// consumes a token if so. A rejected event is dropped and the sender is
// told via an error envelope — the rejection itself is never broadcast.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}
