package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultSecondFactorAttempts = 5
	defaultSecondFactorWindow   = 15 * time.Minute
	attemptSweepThreshold       = 4096
)

// attemptBudget caps failed second-factor codes per email. Each email gets a
// token bucket of burst failures that refills over window, so the cap holds
// no matter how many client addresses the guesses arrive from.
type attemptBudget struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func newAttemptBudget(attempts int, window time.Duration) *attemptBudget {
	return &attemptBudget{
		limit:   rate.Every(window / time.Duration(attempts)),
		burst:   attempts,
		buckets: make(map[string]*rate.Limiter),
	}
}

// exhausted reports whether email has no failures left at now. It spends
// nothing.
func (b *attemptBudget) exhausted(email string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.buckets[email]
	return ok && lim.TokensAt(now) < 1
}

// fail spends one attempt for email.
func (b *attemptBudget) fail(email string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.buckets[email]
	if !ok {
		if len(b.buckets) >= attemptSweepThreshold {
			b.sweep(now)
		}
		lim = rate.NewLimiter(b.limit, b.burst)
		b.buckets[email] = lim
	}
	lim.AllowN(now, 1)
}

// reset forgets email after a successful verification.
func (b *attemptBudget) reset(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buckets, email)
}

// sweep drops buckets that have refilled completely. Caller holds mu.
func (b *attemptBudget) sweep(now time.Time) {
	for email, lim := range b.buckets {
		if lim.TokensAt(now) >= float64(b.burst) {
			delete(b.buckets, email)
		}
	}
}
