package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"utem.cl/canvas-gate/internal/access"
	"utem.cl/canvas-gate/internal/audit"
	"utem.cl/canvas-gate/internal/obs"
)

// defaultScopeKey is the dataset field the scope filter matches against the
// session's organizational unit.
const defaultScopeKey = "organizational_unit"

// panel is a dashboard panel gated by one permission.
type panel struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Permission string `json:"permission"`
}

var dashboardPanels = []panel{
	{ID: "resumen", Title: "Resumen Académico", Permission: "lectura"},
	{ID: "cursos", Title: "Cursos", Permission: "lectura"},
	{ID: "reportes", Title: "Reportes", Permission: "reportes"},
	{ID: "exportar", Title: "Exportación de Datos", Permission: "exportacion"},
	{ID: "usuarios", Title: "Gestión de Usuarios", Permission: "gestion"},
	{ID: "sistema", Title: "Administración del Sistema", Permission: "admin"},
}

// handlePanels lists the dashboard panels the session may open.
func (a *API) handlePanels(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireSession(w, r); !ok {
		return
	}
	visible := make([]panel, 0, len(dashboardPanels))
	for _, p := range dashboardPanels {
		if a.authz.HasPermission(p.Permission) {
			visible = append(visible, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"panels": visible})
}

// handleData serves the dashboard dataset restricted to the session's
// organizational scope.
func (a *API) handleData(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePermission(w, r, "lectura"); !ok {
		return
	}
	rows, err := a.loadDataset()
	if err != nil {
		obs.ObserveStoreError()
		audit.Error(r.Context(), "store.failure", "", err.Error())
		writeError(w, r, http.StatusInternalServerError, "Error de almacenamiento")
		return
	}
	scopeKey := strings.TrimSpace(r.URL.Query().Get("scope_key"))
	if scopeKey == "" {
		scopeKey = defaultScopeKey
	}
	filtered := a.authz.ScopeFilter(rows, scopeKey)
	if filtered == nil {
		filtered = []access.Row{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":  filtered,
		"total": len(filtered),
	})
}

func (a *API) loadDataset() ([]access.Row, error) {
	if a.dataFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(a.dataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rows []access.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// handleRoles exposes the policy table's role definitions, read-only.
func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireSession(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": a.policy.Roles()})
}
