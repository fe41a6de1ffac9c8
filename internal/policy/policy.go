// Package policy holds the static authorization policy: the role table, the
// allow-listed email domains and the session/lockout knobs. The policy is a
// single JSON document loaded once at startup and mutated only through the
// administrative update path.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Role describes a named privilege bucket.
type Role struct {
	Name            string   `json:"role_name"`
	DisplayName     string   `json:"display_name"`
	PrivilegeLevel  int      `json:"privilege_level"`
	BasePermissions []string `json:"base_permissions"`
	FullAccess      bool     `json:"full_access"`
}

// HasBasePermission reports whether perm is in the role's base set.
func (r Role) HasBasePermission(perm string) bool {
	for _, p := range r.BasePermissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Document is the on-disk shape of the policy store. Field names are
// canonical; the document round-trips losslessly through UTF-8 JSON.
type Document struct {
	Roles                  map[string]Role `json:"roles"`
	AllowedDomains         []string        `json:"allowed_domains"`
	SessionTimeoutSeconds  int             `json:"session_timeout_seconds"`
	MaxAttempts            int             `json:"max_attempts"`
	LockoutDurationSeconds int             `json:"lockout_duration_seconds"`
}

// Table is the loaded policy, safe for concurrent reads.
type Table struct {
	mu   sync.RWMutex
	doc  Document
	path string
}

// Default returns the reference deployment policy: five roles with a single
// linear hierarchy and the institutional domains.
func Default() Document {
	return Document{
		Roles: map[string]Role{
			"admin": {
				Name:            "admin",
				DisplayName:     "Administrador",
				PrivilegeLevel:  100,
				BasePermissions: []string{"lectura", "escritura", "exportacion", "reportes", "gestion", "admin"},
				FullAccess:      true,
			},
			"decano": {
				Name:            "decano",
				DisplayName:     "Decano",
				PrivilegeLevel:  80,
				BasePermissions: []string{"lectura", "exportacion", "reportes", "gestion"},
			},
			"director": {
				Name:            "director",
				DisplayName:     "Director de Departamento",
				PrivilegeLevel:  70,
				BasePermissions: []string{"lectura", "exportacion", "reportes"},
			},
			"profesor": {
				Name:            "profesor",
				DisplayName:     "Profesor",
				PrivilegeLevel:  30,
				BasePermissions: []string{"lectura"},
			},
			"invitado": {
				Name:            "invitado",
				DisplayName:     "Invitado",
				PrivilegeLevel:  10,
				BasePermissions: []string{"lectura"},
			},
		},
		AllowedDomains:         []string{"@utem.cl", "@profesores.utem.cl", "@alumnos.utem.cl"},
		SessionTimeoutSeconds:  3600,
		MaxAttempts:            5,
		LockoutDurationSeconds: 300,
	}
}

// Load reads the policy document from path. A missing or corrupt document is
// replaced by the default policy and written back; startup is never fatal.
func Load(path string) (*Table, error) {
	t := &Table{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		t.doc = Default()
		if writeErr := t.persist(); writeErr != nil {
			return t, fmt.Errorf("policy: seed default document: %w", writeErr)
		}
		return t, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil || len(doc.Roles) == 0 {
		t.doc = Default()
		return t, fmt.Errorf("policy: document unreadable, using defaults: %w", err)
	}
	normalize(&doc)
	t.doc = doc
	return t, nil
}

func normalize(doc *Document) {
	for name, role := range doc.Roles {
		if strings.TrimSpace(role.Name) == "" {
			role.Name = name
			doc.Roles[name] = role
		}
	}
	if doc.SessionTimeoutSeconds <= 0 {
		doc.SessionTimeoutSeconds = 3600
	}
	if doc.MaxAttempts <= 0 {
		doc.MaxAttempts = 5
	}
	if doc.LockoutDurationSeconds <= 0 {
		doc.LockoutDurationSeconds = 300
	}
}

// Role looks up a role definition by name.
func (t *Table) Role(name string) (Role, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	role, ok := t.doc.Roles[name]
	return role, ok
}

// Roles returns all role definitions ordered by descending privilege level.
func (t *Table) Roles() []Role {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Role, 0, len(t.doc.Roles))
	for _, r := range t.doc.Roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PrivilegeLevel != out[j].PrivilegeLevel {
			return out[i].PrivilegeLevel > out[j].PrivilegeLevel
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// IsAllowedDomain reports whether identity ends with one of the configured
// domain suffixes. Exact suffix match, case preserved as configured.
func (t *Table) IsAllowedDomain(identity string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, suffix := range t.doc.AllowedDomains {
		if suffix != "" && strings.HasSuffix(identity, suffix) {
			return true
		}
	}
	return false
}

// CanManage reports whether a holder of managerRole may manage a holder of
// targetRole. The hierarchy is the privilege-level ordering, independent of
// the flat permission sets.
func (t *Table) CanManage(managerRole, targetRole string) bool {
	manager, ok := t.Role(managerRole)
	if !ok {
		return false
	}
	target, ok := t.Role(targetRole)
	if !ok {
		return false
	}
	return manager.PrivilegeLevel > target.PrivilegeLevel
}

// SessionTimeout returns the configured idle timeout.
func (t *Table) SessionTimeout() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Duration(t.doc.SessionTimeoutSeconds) * time.Second
}

// MaxAttempts returns the failed-attempt threshold before lockout.
func (t *Table) MaxAttempts() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.doc.MaxAttempts
}

// LockoutDuration returns how long a locked identity stays locked.
func (t *Table) LockoutDuration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Duration(t.doc.LockoutDurationSeconds) * time.Second
}

// SetRole is the administrative update path: it replaces or adds a role
// definition and persists the document.
func (t *Table) SetRole(role Role) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return errors.New("policy: role name is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doc.Roles == nil {
		t.doc.Roles = map[string]Role{}
	}
	t.doc.Roles[role.Name] = role
	return t.persistLocked()
}

// Snapshot returns a copy of the current document.
func (t *Table) Snapshot() Document {
	t.mu.RLock()
	defer t.mu.RUnlock()
	doc := t.doc
	doc.Roles = make(map[string]Role, len(t.doc.Roles))
	for k, v := range t.doc.Roles {
		doc.Roles[k] = v
	}
	doc.AllowedDomains = append([]string(nil), t.doc.AllowedDomains...)
	return doc
}

func (t *Table) persist() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persistLocked()
}

func (t *Table) persistLocked() error {
	if t.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("write policy: %w", err)
	}
	return nil
}
