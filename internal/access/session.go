package access

import (
	"context"
	"sync"
	"time"

	"utem.cl/canvas-gate/internal/audit"
	"utem.cl/canvas-gate/internal/directory"
	"utem.cl/canvas-gate/internal/obs"
)

// Session is the record of the currently authenticated identity. The profile
// is a point-in-time snapshot: directory changes after login do not alter an
// active session until re-authentication.
type Session struct {
	Identity      string
	Profile       directory.Profile
	LoginTime     time.Time
	LastActivity  time.Time
	Authenticated bool
}

// SessionManager owns the single session of this execution context and
// enforces the idle timeout.
type SessionManager struct {
	mu      sync.Mutex
	current *Session
	timeout time.Duration
	now     func() time.Time
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionClock overrides the time source (useful for tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewSessionManager builds a manager with the given idle timeout.
func NewSessionManager(timeout time.Duration, opts ...SessionOption) *SessionManager {
	if timeout <= 0 {
		timeout = time.Hour
	}
	m := &SessionManager{timeout: timeout, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Establish replaces any existing session with a fresh one for profile.
func (m *SessionManager) Establish(profile directory.Profile) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s := Session{
		Identity:      profile.Email,
		Profile:       profile,
		LoginTime:     now,
		LastActivity:  now,
		Authenticated: true,
	}
	m.current = &s
	return s
}

// Current returns a copy of the active session, if any.
func (m *SessionManager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || !m.current.Authenticated {
		return Session{}, false
	}
	return *m.current, true
}

// CheckTimeout reports whether the session is still valid. An idle session is
// terminated (equivalent to logout); a live one has its last-activity time
// refreshed.
func (m *SessionManager) CheckTimeout(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || !m.current.Authenticated {
		return false
	}
	now := m.now()
	if now.Sub(m.current.LastActivity) > m.timeout {
		identity := m.current.Identity
		m.current = nil
		obs.ObserveSessionExpired()
		audit.Info(ctx, "session.expired", identity, "sesión expirada por inactividad")
		return false
	}
	m.current.LastActivity = now
	return true
}

// Logout unconditionally clears the session.
func (m *SessionManager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		audit.Info(ctx, "session.logout", m.current.Identity, "cierre de sesión")
	}
	m.current = nil
}
