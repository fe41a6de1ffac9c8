package httpapi

import (
	"net/http"
	"testing"

	"utem.cl/canvas-gate/internal/directory"
	"utem.cl/canvas-gate/internal/oauth"
)

func TestUsersRequireGestionPermission(t *testing.T) {
	f := newAPIFixture(t, oauth.Static{}, true)
	if _, err := f.dir.Create("profe@utem.cl", directory.Profile{
		Role: "profesor", Unit: "informatica", Active: true,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.login(t, "profe@utem.cl")

	rec := f.do(t, http.MethodGet, "/v1/users", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("profesor listing users: %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "No tiene permisos para esta acción" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestUserCRUDLifecycle(t *testing.T) {
	f := newAPIFixture(t, oauth.Static{}, true)
	f.login(t, "admin@utem.cl")

	rec := f.do(t, http.MethodPost, "/v1/users", map[string]any{
		"email":               "Ana.Rojas@utem.cl",
		"display_name":        "Ana Rojas",
		"role":                "profesor",
		"organizational_unit": "quimica",
		"faculty":             "ciencias",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	if created["email"] != "ana.rojas@utem.cl" || created["active"] != true {
		t.Fatalf("unexpected created user: %s", rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/users/ana.rojas@utem.cl" {
		t.Fatalf("unexpected Location: %q", loc)
	}

	rec = f.do(t, http.MethodGet, "/v1/users/ana.rojas@utem.cl", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}

	rec = f.do(t, http.MethodPut, "/v1/users/ana.rojas@utem.cl", map[string]any{
		"organizational_unit": "informatica",
		"active":              false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody(t, rec)
	if updated["organizational_unit"] != "informatica" || updated["active"] != false {
		t.Fatalf("update not applied: %s", rec.Body.String())
	}
	if updated["display_name"] != "Ana Rojas" {
		t.Fatalf("untouched field changed: %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodDelete, "/v1/users/ana.rojas@utem.cl", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodGet, "/v1/users/ana.rojas@utem.cl", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestUserCreateValidation(t *testing.T) {
	f := newAPIFixture(t, oauth.Static{}, true)
	f.login(t, "admin@utem.cl")

	rec := f.do(t, http.MethodPost, "/v1/users", map[string]any{
		"email": "ana@utem.cl",
		"role":  "fantasma",
	})
	if rec.Code != http.StatusBadRequest || decodeBody(t, rec)["error"] != "Rol desconocido" {
		t.Fatalf("unknown role: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/v1/users", map[string]any{
		"email": "ana@gmail.com",
		"role":  "profesor",
	})
	if rec.Code != http.StatusBadRequest || decodeBody(t, rec)["error"] != "Dominio de email no válido" {
		t.Fatalf("foreign domain: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/v1/users", map[string]any{
		"email": "admin@utem.cl",
		"role":  "profesor",
	})
	if rec.Code != http.StatusConflict || decodeBody(t, rec)["error"] != "Usuario ya existe" {
		t.Fatalf("duplicate: %d %s", rec.Code, rec.Body.String())
	}
}

func TestBootstrapAdminCannotBeDeleted(t *testing.T) {
	f := newAPIFixture(t, oauth.Static{}, true)
	f.login(t, "admin@utem.cl")

	rec := f.do(t, http.MethodDelete, "/v1/users/admin@utem.cl", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("delete bootstrap admin: %d %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["error"] != "No se puede eliminar al administrador principal" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if rec := f.do(t, http.MethodGet, "/v1/users/admin@utem.cl", nil); rec.Code != http.StatusOK {
		t.Fatalf("bootstrap admin must survive: %d", rec.Code)
	}
}

func TestHierarchyLimitsManagement(t *testing.T) {
	f := newAPIFixture(t, oauth.Static{}, true)
	if _, err := f.dir.Create("decana@utem.cl", directory.Profile{
		DisplayName: "Decana", Role: "decano", Unit: "all", Active: true,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.login(t, "decana@utem.cl")

	// A decano (80) cannot create peers or superiors.
	for _, role := range []string{"admin", "decano"} {
		rec := f.do(t, http.MethodPost, "/v1/users", map[string]any{
			"email": "nuevo@utem.cl",
			"role":  role,
		})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("create %s as decano: %d %s", role, rec.Code, rec.Body.String())
		}
	}

	// Strictly lower privilege is fine.
	rec := f.do(t, http.MethodPost, "/v1/users", map[string]any{
		"email":               "nuevo@utem.cl",
		"display_name":        "Nuevo Director",
		"role":                "director",
		"organizational_unit": "informatica",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create director as decano: %d %s", rec.Code, rec.Body.String())
	}

	// Promoting a managed user to an unmanageable role is rejected.
	rec = f.do(t, http.MethodPut, "/v1/users/nuevo@utem.cl", map[string]any{"role": "admin"})
	if rec.Code != http.StatusForbidden || decodeBody(t, rec)["error"] != "No puede asignar ese rol" {
		t.Fatalf("promote to admin as decano: %d %s", rec.Code, rec.Body.String())
	}

	// The bootstrap admin itself is out of a decano's reach.
	rec = f.do(t, http.MethodPut, "/v1/users/admin@utem.cl", map[string]any{"active": false})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("update admin as decano: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUserUpdateMissing(t *testing.T) {
	f := newAPIFixture(t, oauth.Static{}, true)
	f.login(t, "admin@utem.cl")
	rec := f.do(t, http.MethodPut, "/v1/users/nadie@utem.cl", map[string]any{"active": false})
	if rec.Code != http.StatusNotFound || decodeBody(t, rec)["error"] != "Usuario no existe" {
		t.Fatalf("update missing user: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUserCreateRejectsUnknownFields(t *testing.T) {
	f := newAPIFixture(t, oauth.Static{}, true)
	f.login(t, "admin@utem.cl")
	rec := f.do(t, http.MethodPost, "/v1/users", map[string]any{
		"email":    "ana@utem.cl",
		"role":     "profesor",
		"password": "nope",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d %s", rec.Code, rec.Body.String())
	}
}
