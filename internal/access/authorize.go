package access

import (
	"sort"
	"strings"

	"utem.cl/canvas-gate/internal/directory"
	"utem.cl/canvas-gate/internal/policy"
)

// Row is one record of a dashboard dataset.
type Row = map[string]any

// Authorizer answers allow/deny questions for the active session against the
// policy table.
type Authorizer struct {
	policy   *policy.Table
	sessions *SessionManager
}

// NewAuthorizer builds an authorizer over the given policy and session state.
func NewAuthorizer(table *policy.Table, sessions *SessionManager) *Authorizer {
	return &Authorizer{policy: table, sessions: sessions}
}

// HasPermission reports whether the active session holds the permission.
// A full-access role implies every permission; otherwise the union of the
// role's base permissions and the profile overrides is consulted.
func (z *Authorizer) HasPermission(perm string) bool {
	s, ok := z.sessions.Current()
	if !ok {
		return false
	}
	role, roleKnown := z.policy.Role(s.Profile.Role)
	if roleKnown && role.FullAccess {
		return true
	}
	if roleKnown && role.HasBasePermission(perm) {
		return true
	}
	for _, p := range s.Profile.Overrides {
		if p == perm {
			return true
		}
	}
	return false
}

// Permissions returns the resolved permission set of the active session,
// sorted, for display purposes. Full-access roles report their base set.
func (z *Authorizer) Permissions() []string {
	s, ok := z.sessions.Current()
	if !ok {
		return nil
	}
	set := map[string]struct{}{}
	if role, known := z.policy.Role(s.Profile.Role); known {
		for _, p := range role.BasePermissions {
			set[p] = struct{}{}
		}
	}
	for _, p := range s.Profile.Overrides {
		set[p] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ScopeFilter restricts a dataset to the rows visible to the active session.
// Full-access roles and the "all" organizational unit see everything; other
// sessions see only rows whose scopeKey field matches their unit,
// case-insensitively. Row order is preserved.
func (z *Authorizer) ScopeFilter(rows []Row, scopeKey string) []Row {
	s, ok := z.sessions.Current()
	if !ok {
		return nil
	}
	if role, known := z.policy.Role(s.Profile.Role); known && role.FullAccess {
		return rows
	}
	unit := s.Profile.Unit
	if strings.EqualFold(unit, directory.ScopeAll) {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		v, _ := row[scopeKey].(string)
		if strings.EqualFold(v, unit) {
			out = append(out, row)
		}
	}
	return out
}
