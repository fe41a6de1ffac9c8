package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"utem.cl/canvas-gate/internal/audit"
	"utem.cl/canvas-gate/internal/obs"
)

// attemptRecord tracks failed logins for one identity. It is created on the
// first attempt (failed or successful), reset on success and self-clears once
// the lockout window passes.
type attemptRecord struct {
	failedCount int
	lastAttempt time.Time
	lockedUntil time.Time
}

// Limiter is the per-identity failed-attempt counter with a lockout window.
// State is per-process and in-memory only; the gate targets a single-instance
// deployment.
type Limiter struct {
	mu          sync.Mutex
	records     map[string]*attemptRecord
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock overrides the time source (useful for tests).
func WithLimiterClock(fn func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLimiter builds a limiter that locks an identity out for the given window
// after maxAttempts consecutive failures.
func NewLimiter(maxAttempts int, lockout time.Duration, opts ...LimiterOption) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockout <= 0 {
		lockout = 5 * time.Minute
	}
	l := &Limiter{
		records:     map[string]*attemptRecord{},
		maxAttempts: maxAttempts,
		lockout:     lockout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reports whether identity may attempt a login right now. A missing
// record is created in zero state and allowed; an expired lockout resets the
// record and allows.
func (l *Limiter) Check(identity string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[identity]
	if !ok {
		l.records[identity] = &attemptRecord{lastAttempt: now}
		return true, "OK"
	}
	if !rec.lockedUntil.IsZero() {
		if now.Before(rec.lockedUntil) {
			remaining := int(rec.lockedUntil.Sub(now).Seconds())
			return false, fmt.Sprintf("Cuenta bloqueada. Intente nuevamente en %d segundos.", remaining)
		}
		// Lockout window passed: self-clear.
		*rec = attemptRecord{lastAttempt: now}
	}
	return true, "OK"
}

// RetryAfter returns how long the lockout for identity has left, or zero when
// it is not locked.
func (l *Limiter) RetryAfter(identity string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[identity]
	if !ok || rec.lockedUntil.IsZero() {
		return 0
	}
	remaining := rec.lockedUntil.Sub(l.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Record registers the outcome of a login attempt. Reaching the failure
// threshold starts the lockout window; a success resets the record.
func (l *Limiter) Record(ctx context.Context, identity string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[identity]
	if !ok {
		rec = &attemptRecord{}
		l.records[identity] = rec
	}
	if success {
		*rec = attemptRecord{lastAttempt: now}
		return
	}
	rec.failedCount++
	rec.lastAttempt = now
	if rec.failedCount >= l.maxAttempts {
		rec.lockedUntil = now.Add(l.lockout)
		obs.ObserveLockout()
		audit.Warn(ctx, "login.lockout", identity,
			fmt.Sprintf("cuenta bloqueada tras %d intentos fallidos", rec.failedCount))
	}
}

// FailedCount returns the current consecutive-failure count for identity.
func (l *Limiter) FailedCount(identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[identity]; ok {
		return rec.failedCount
	}
	return 0
}
