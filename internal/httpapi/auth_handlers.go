package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"utem.cl/canvas-gate/internal/access"
	"utem.cl/canvas-gate/internal/audit"
)

type callbackRequest struct {
	Code string `json:"code"`
}

type devLoginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
	Identity string `json:"identity,omitempty"`
}

// handleCallback completes the OAuth flow: exchange the authorization code
// for an identity assertion, then run the login state machine.
func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ident, err := a.provider.Exchange(r.Context(), req.Code)
	if err != nil {
		audit.Error(r.Context(), "oauth.exchange_failed", "", err.Error())
		writeError(w, r, http.StatusUnauthorized, "Error en el proceso de autenticación")
		return
	}
	a.finishLogin(w, r, ident.Email)
}

// handleDevLogin accepts a bare email, for development deployments only.
func (a *API) handleDevLogin(w http.ResponseWriter, r *http.Request) {
	if !a.devLogin {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	var req devLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.finishLogin(w, r, req.Email)
}

func (a *API) finishLogin(w http.ResponseWriter, r *http.Request, identity string) {
	res := a.auth.Login(r.Context(), identity)
	if res.OK {
		writeJSON(w, http.StatusOK, loginResponse{OK: true, Message: res.Message, Identity: identity})
		return
	}
	code := http.StatusUnauthorized
	var rle *access.RateLimitError
	switch {
	case errors.As(res.Reason, &rle):
		code = http.StatusTooManyRequests
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())))
	case errors.Is(res.Reason, access.ErrInternal):
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, loginResponse{OK: false, Message: res.Message})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.auth.Sessions().Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	role, _ := a.policy.Role(s.Profile.Role)
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":     s.Identity,
		"display_name": s.Profile.DisplayName,
		"role": map[string]any{
			"role_name":       role.Name,
			"display_name":    role.DisplayName,
			"privilege_level": role.PrivilegeLevel,
			"full_access":     role.FullAccess,
		},
		"organizational_unit": s.Profile.Unit,
		"faculty":             s.Profile.Faculty,
		"permissions":         a.authz.Permissions(),
		"login_time":          s.LoginTime.UTC().Format(time.RFC3339),
		"last_activity":       s.LastActivity.UTC().Format(time.RFC3339),
		"session_age_seconds": int(time.Since(s.LoginTime).Seconds()),
	})
}
