package access

import (
	"context"
	"fmt"
	"strings"

	"utem.cl/canvas-gate/internal/audit"
	"utem.cl/canvas-gate/internal/directory"
	"utem.cl/canvas-gate/internal/obs"
	"utem.cl/canvas-gate/internal/policy"
)

// User-facing rejection messages. The gate fronts an institutional dashboard,
// so they stay in Spanish.
const (
	msgDomainRejected = "Dominio de email no autorizado. Use su cuenta @utem.cl"
	msgNotRegistered  = "Usuario no registrado en el sistema. Contacte al administrador."
	msgInactive       = "Usuario inactivo. Contacte al administrador."
	msgInternal       = "Error en el proceso de autenticación"
)

// Result is the outcome of a login attempt: a (success, message) pair for the
// user plus the machine-readable reason for the HTTP layer.
type Result struct {
	OK      bool
	Message string
	Reason  error
}

// Authenticator orchestrates the login gates: rate limit, domain, directory
// lookup, active flag, session establishment. Every rejection is returned as
// a Result; nothing escapes this boundary as a raw fault.
type Authenticator struct {
	policy   *policy.Table
	dir      *directory.Directory
	limiter  *Limiter
	sessions *SessionManager
}

// NewAuthenticator wires the login pipeline.
func NewAuthenticator(table *policy.Table, dir *directory.Directory, limiter *Limiter, sessions *SessionManager) *Authenticator {
	return &Authenticator{policy: table, dir: dir, limiter: limiter, sessions: sessions}
}

// Sessions exposes the session manager owned by this authenticator.
func (a *Authenticator) Sessions() *SessionManager {
	return a.sessions
}

// Limiter exposes the attempt limiter owned by this authenticator.
func (a *Authenticator) Limiter() *Limiter {
	return a.limiter
}

// Login runs the authentication state machine for an externally asserted
// identity. The assertion is an email already vouched for by the OAuth
// provider; no credential is verified here.
func (a *Authenticator) Login(ctx context.Context, identity string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			audit.Error(ctx, "login.fault", identity, fmt.Sprintf("unexpected fault: %v", r))
			obs.ObserveLogin("rejected")
			res = Result{OK: false, Message: msgInternal, Reason: ErrInternal}
		}
	}()

	identity = strings.TrimSpace(strings.ToLower(identity))

	if allowed, msg := a.limiter.Check(identity); !allowed {
		obs.ObserveLogin("rate_limited")
		audit.Warn(ctx, "login.rate_limited", identity, "intento durante bloqueo")
		return Result{OK: false, Message: msg, Reason: &RateLimitError{RetryAfter: a.limiter.RetryAfter(identity)}}
	}

	if !a.policy.IsAllowedDomain(identity) {
		a.limiter.Record(ctx, identity, false)
		obs.ObserveLogin("rejected")
		audit.Warn(ctx, "login.domain_rejected", identity, "dominio no autorizado")
		return Result{OK: false, Message: msgDomainRejected, Reason: ErrDomainRejected}
	}

	profile, ok := a.dir.Get(identity)
	if !ok {
		a.limiter.Record(ctx, identity, false)
		obs.ObserveLogin("rejected")
		audit.Warn(ctx, "login.not_registered", identity, "usuario no registrado")
		return Result{OK: false, Message: msgNotRegistered, Reason: ErrNotRegistered}
	}

	if !profile.Active {
		a.limiter.Record(ctx, identity, false)
		obs.ObserveLogin("rejected")
		audit.Warn(ctx, "login.inactive", identity, "usuario inactivo")
		return Result{OK: false, Message: msgInactive, Reason: ErrInactiveAccount}
	}

	a.sessions.Establish(profile)
	a.limiter.Record(ctx, identity, true)
	obs.ObserveLogin("success")
	audit.Info(ctx, "login.success", identity, "inicio de sesión")

	name := profile.DisplayName
	if name == "" {
		name = identity
	}
	return Result{OK: true, Message: "Bienvenido " + name}
}
