// Package httpapi is the HTTP surface of the gate. Handlers call explicit
// guard functions (requireSession, requirePermission) at their top and branch
// on the result; nothing intercepts control flow implicitly.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"utem.cl/canvas-gate/internal/access"
	"utem.cl/canvas-gate/internal/audit"
	"utem.cl/canvas-gate/internal/directory"
	"utem.cl/canvas-gate/internal/oauth"
	"utem.cl/canvas-gate/internal/obs"
	"utem.cl/canvas-gate/internal/policy"
)

const serviceName = "canvas-gate"

// Options wires the API to the core components.
type Options struct {
	Auth      *access.Authenticator
	Authz     *access.Authorizer
	Directory *directory.Directory
	Policy    *policy.Table
	Provider  oauth.Provider
	DataFile  string
	DevLogin  bool
	Version   string
}

// API is the HTTP layer.
type API struct {
	router   *mux.Router
	auth     *access.Authenticator
	authz    *access.Authorizer
	dir      *directory.Directory
	policy   *policy.Table
	provider oauth.Provider
	dataFile string
	devLogin bool
	version  string
}

// New builds the router.
func New(opts Options) *API {
	a := &API{
		router:   mux.NewRouter(),
		auth:     opts.Auth,
		authz:    opts.Authz,
		dir:      opts.Directory,
		policy:   opts.Policy,
		provider: opts.Provider,
		dataFile: opts.DataFile,
		devLogin: opts.DevLogin,
		version:  opts.Version,
	}

	r := a.router
	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.handleReadyz).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.handleInfo).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/auth/callback", a.handleCallback).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/login", a.handleDevLogin).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/logout", a.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/session", a.handleSession).Methods(http.MethodGet)

	r.HandleFunc("/v1/panels", a.handlePanels).Methods(http.MethodGet)
	r.HandleFunc("/v1/data", a.handleData).Methods(http.MethodGet)
	r.HandleFunc("/v1/roles", a.handleRoles).Methods(http.MethodGet)

	r.HandleFunc("/v1/users", a.handleUsersList).Methods(http.MethodGet)
	r.HandleFunc("/v1/users", a.handleUserCreate).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{email}", a.handleUserGet).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{email}", a.handleUserUpdate).Methods(http.MethodPut)
	r.HandleFunc("/v1/users/{email}", a.handleUserDelete).Methods(http.MethodDelete)

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = RateLimit(h, 20, 10)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.dir == nil || a.policy == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// requireSession is the guard called at the top of every protected handler.
// It enforces the idle timeout and returns the active session.
func (a *API) requireSession(w http.ResponseWriter, r *http.Request) (access.Session, bool) {
	if !a.auth.Sessions().CheckTimeout(r.Context()) {
		writeError(w, r, http.StatusUnauthorized, "Debe iniciar sesión para acceder")
		return access.Session{}, false
	}
	s, ok := a.auth.Sessions().Current()
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Debe iniciar sesión para acceder")
		return access.Session{}, false
	}
	return s, true
}

// requirePermission guards a handler behind a session plus a permission.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, perm string) (access.Session, bool) {
	s, ok := a.requireSession(w, r)
	if !ok {
		return access.Session{}, false
	}
	if !a.authz.HasPermission(perm) {
		writeError(w, r, http.StatusForbidden, "No tiene permisos para esta acción")
		return access.Session{}, false
	}
	return s, true
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidDomain):
		writeError(w, r, http.StatusBadRequest, "Dominio de email no válido")
	case errors.Is(err, directory.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "Usuario ya existe")
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Usuario no existe")
	case errors.Is(err, directory.ErrProtected):
		writeError(w, r, http.StatusForbidden, "No se puede eliminar al administrador principal")
	case errors.Is(err, directory.ErrStore):
		obs.ObserveStoreError()
		audit.Error(r.Context(), "store.failure", "", err.Error())
		writeError(w, r, http.StatusInternalServerError, "Error de almacenamiento")
	default:
		writeError(w, r, http.StatusInternalServerError, "Operación fallida")
	}
}

func trimEmailVar(r *http.Request) string {
	return strings.TrimSpace(mux.Vars(r)["email"])
}
