package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"utem.cl/canvas-gate/internal/access"
	"utem.cl/canvas-gate/internal/audit"
	"utem.cl/canvas-gate/internal/directory"
)

// Directory management requires the "gestion" permission plus standing in the
// role hierarchy: a caller may only touch users whose role sits strictly
// below their own privilege level.
const permManageUsers = "gestion"

type createUserRequest struct {
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Role        string   `json:"role"`
	Unit        string   `json:"organizational_unit"`
	Faculty     string   `json:"faculty"`
	Overrides   []string `json:"permission_overrides"`
	Active      *bool    `json:"active"`
}

type updateUserRequest struct {
	DisplayName *string   `json:"display_name"`
	Role        *string   `json:"role"`
	Unit        *string   `json:"organizational_unit"`
	Faculty     *string   `json:"faculty"`
	Overrides   *[]string `json:"permission_overrides"`
	Active      *bool     `json:"active"`
}

type userResponse struct {
	Email string `json:"email"`
	directory.Profile
}

func toUserResponse(p directory.Profile) userResponse {
	return userResponse{Email: p.Email, Profile: p}
}

func (a *API) handleUsersList(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePermission(w, r, permManageUsers); !ok {
		return
	}
	profiles := a.dir.List()
	out := make([]userResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toUserResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requirePermission(w, r, permManageUsers)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Role = strings.TrimSpace(req.Role)
	if _, known := a.policy.Role(req.Role); !known {
		writeError(w, r, http.StatusBadRequest, "Rol desconocido")
		return
	}
	if !a.canManage(caller, req.Role) {
		writeError(w, r, http.StatusForbidden, "No puede gestionar usuarios de ese rol")
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	p, err := a.dir.Create(req.Email, directory.Profile{
		DisplayName: req.DisplayName,
		Role:        req.Role,
		Unit:        strings.TrimSpace(req.Unit),
		Faculty:     strings.TrimSpace(req.Faculty),
		Overrides:   req.Overrides,
		Active:      active,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.Info(r.Context(), "user.create", p.Email, "usuario agregado por "+caller.Identity)
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", p.Email))
	writeJSON(w, http.StatusCreated, toUserResponse(p))
}

func (a *API) handleUserGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePermission(w, r, permManageUsers); !ok {
		return
	}
	p, found := a.dir.Get(trimEmailVar(r))
	if !found {
		writeError(w, r, http.StatusNotFound, "Usuario no existe")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(p))
}

func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requirePermission(w, r, permManageUsers)
	if !ok {
		return
	}
	email := trimEmailVar(r)
	target, found := a.dir.Get(email)
	if !found {
		writeError(w, r, http.StatusNotFound, "Usuario no existe")
		return
	}
	if !a.canManage(caller, target.Role) {
		writeError(w, r, http.StatusForbidden, "No puede gestionar usuarios de ese rol")
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role != nil {
		newRole := strings.TrimSpace(*req.Role)
		if _, known := a.policy.Role(newRole); !known {
			writeError(w, r, http.StatusBadRequest, "Rol desconocido")
			return
		}
		if !a.canManage(caller, newRole) {
			writeError(w, r, http.StatusForbidden, "No puede asignar ese rol")
			return
		}
	}
	p, err := a.dir.UpdateProfile(email, directory.Update{
		DisplayName: req.DisplayName,
		Role:        req.Role,
		Unit:        req.Unit,
		Faculty:     req.Faculty,
		Overrides:   req.Overrides,
		Active:      req.Active,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.Info(r.Context(), "user.update", p.Email, "usuario actualizado por "+caller.Identity)
	writeJSON(w, http.StatusOK, toUserResponse(p))
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requirePermission(w, r, permManageUsers)
	if !ok {
		return
	}
	email := trimEmailVar(r)
	if strings.EqualFold(email, directory.BootstrapAdmin) {
		handleDirectoryError(w, r, directory.ErrProtected)
		return
	}
	if target, found := a.dir.Get(email); found && !a.canManage(caller, target.Role) {
		writeError(w, r, http.StatusForbidden, "No puede gestionar usuarios de ese rol")
		return
	}
	if err := a.dir.Delete(email); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	audit.Info(r.Context(), "user.delete", email, "usuario eliminado por "+caller.Identity)
	w.WriteHeader(http.StatusNoContent)
}

// canManage applies the privilege-level hierarchy, which is independent of
// the flat permission sets.
func (a *API) canManage(caller access.Session, targetRole string) bool {
	return a.policy.CanManage(caller.Profile.Role, targetRole)
}
