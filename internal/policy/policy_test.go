package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTable(t *testing.T) {
	doc := Default()
	if len(doc.Roles) != 5 {
		t.Fatalf("expected 5 roles, got %d", len(doc.Roles))
	}
	admin, ok := doc.Roles["admin"]
	if !ok || !admin.FullAccess {
		t.Fatalf("expected full-access admin role")
	}
	if doc.SessionTimeoutSeconds != 3600 || doc.MaxAttempts != 5 || doc.LockoutDurationSeconds != 300 {
		t.Fatalf("unexpected defaults: %+v", doc)
	}
}

func TestLoadSeedsMissingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := table.Role("decano"); !ok {
		t.Fatalf("expected seeded roles")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected document written: %v", err)
	}

	// Reload and verify the round-trip is lossless.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	want, _ := json.Marshal(table.Snapshot())
	got, _ := json.Marshal(reloaded.Snapshot())
	if string(want) != string(got) {
		t.Fatalf("round-trip mismatch:\n%s\n%s", want, got)
	}
}

func TestLoadCorruptDocumentFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	table, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for corrupt document")
	}
	if _, ok := table.Role("admin"); !ok {
		t.Fatalf("expected default roles despite corrupt document")
	}
}

func TestIsAllowedDomain(t *testing.T) {
	table := &Table{doc: Default()}
	cases := []struct {
		identity string
		want     bool
	}{
		{"victor.escobar@utem.cl", true},
		{"ana@profesores.utem.cl", true},
		{"someone@alumnos.utem.cl", true},
		{"intruso@gmail.com", false},
		{"admin@utem.cl.evil.com", false},
		{"", false},
	}
	for _, c := range cases {
		if got := table.IsAllowedDomain(c.identity); got != c.want {
			t.Fatalf("IsAllowedDomain(%q) = %v, want %v", c.identity, got, c.want)
		}
	}
}

func TestCanManageHierarchy(t *testing.T) {
	table := &Table{doc: Default()}
	cases := []struct {
		manager, target string
		want            bool
	}{
		{"admin", "decano", true},
		{"admin", "profesor", true},
		{"decano", "admin", false},
		{"decano", "director", true},
		{"director", "director", false},
		{"profesor", "invitado", true},
		{"desconocido", "profesor", false},
		{"admin", "desconocido", false},
	}
	for _, c := range cases {
		if got := table.CanManage(c.manager, c.target); got != c.want {
			t.Fatalf("CanManage(%s, %s) = %v, want %v", c.manager, c.target, got, c.want)
		}
	}
}

func TestSetRolePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	custom := Role{
		Name:            "coordinador",
		DisplayName:     "Coordinador Docente",
		PrivilegeLevel:  50,
		BasePermissions: []string{"lectura", "reportes"},
	}
	if err := table.SetRole(custom); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reloaded.Role("coordinador")
	if !ok || got.PrivilegeLevel != 50 || !got.HasBasePermission("reportes") {
		t.Fatalf("unexpected persisted role: %+v", got)
	}
}

func TestKnobGetters(t *testing.T) {
	table := &Table{doc: Document{
		Roles:                  Default().Roles,
		SessionTimeoutSeconds:  120,
		MaxAttempts:            3,
		LockoutDurationSeconds: 60,
	}}
	if table.SessionTimeout() != 2*time.Minute {
		t.Fatalf("unexpected session timeout: %v", table.SessionTimeout())
	}
	if table.MaxAttempts() != 3 {
		t.Fatalf("unexpected max attempts: %d", table.MaxAttempts())
	}
	if table.LockoutDuration() != time.Minute {
		t.Fatalf("unexpected lockout duration: %v", table.LockoutDuration())
	}
}

func TestRolesOrderedByPrivilege(t *testing.T) {
	table := &Table{doc: Default()}
	roles := table.Roles()
	for i := 1; i < len(roles); i++ {
		if roles[i-1].PrivilegeLevel < roles[i].PrivilegeLevel {
			t.Fatalf("roles not ordered by descending privilege: %v then %v", roles[i-1], roles[i])
		}
	}
	if roles[0].Name != "admin" {
		t.Fatalf("expected admin first, got %s", roles[0].Name)
	}
}
