// Package directory is the user store: a map from identity (email) to
// profile, persisted as a single JSON document and mutated only through the
// CRUD operations here.
package directory

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

var (
	ErrNotFound      = errors.New("directory: user not found")
	ErrAlreadyExists = errors.New("directory: user already exists")
	ErrProtected     = errors.New("directory: protected identity")
	ErrInvalidDomain = errors.New("directory: domain not allowed")
	ErrStore         = errors.New("directory: store failure")
)

// BootstrapAdmin is the distinguished administrator identity that can never be
// deleted.
const BootstrapAdmin = "admin@utem.cl"

// ScopeAll is the organizational-unit sentinel meaning "every unit".
const ScopeAll = "all"

// Profile holds the stored attributes of a user. The identity is the map key
// in the persisted document, so it is not serialized with the profile body.
type Profile struct {
	Email       string    `json:"-"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Unit        string    `json:"organizational_unit"`
	Faculty     string    `json:"faculty,omitempty"`
	Overrides   []string  `json:"permission_overrides,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// Update carries the partial fields of a directory update. Nil means "leave
// unchanged".
type Update struct {
	DisplayName *string
	Role        *string
	Unit        *string
	Faculty     *string
	Overrides   *[]string
	Active      *bool
}

// Directory is the in-memory table backed by a JSON document on disk.
type Directory struct {
	mu          sync.Mutex
	users       map[string]Profile
	path        string
	allowDomain func(string) bool
	now         func() time.Time
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(d *Directory) {
		if fn != nil {
			d.now = fn
		}
	}
}

// Open loads the directory document from path. An unreadable or corrupt
// document degrades to an empty table; a missing file is seeded with the
// bootstrap administrator. Startup is never fatal.
func Open(path string, allowDomain func(string) bool, opts ...Option) (*Directory, error) {
	d := &Directory{
		users:       map[string]Profile{},
		path:        path,
		allowDomain: allowDomain,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return d, fmt.Errorf("%w: read users document: %v", ErrStore, err)
		}
		d.seedBootstrapAdmin()
		if saveErr := d.save(); saveErr != nil {
			return d, saveErr
		}
		return d, nil
	}
	var doc map[string]Profile
	if err := json.Unmarshal(data, &doc); err != nil {
		return d, fmt.Errorf("%w: decode users document: %v", ErrStore, err)
	}
	for email, p := range doc {
		p.Email = email
		d.users[email] = p
	}
	return d, nil
}

func (d *Directory) seedBootstrapAdmin() {
	now := d.now().UTC()
	d.users[BootstrapAdmin] = Profile{
		Email:       BootstrapAdmin,
		DisplayName: "Administrador Sistema",
		Role:        "admin",
		Unit:        ScopeAll,
		Faculty:     ScopeAll,
		Active:      true,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
}

// Get returns the profile for identity, if registered.
func (d *Directory) Get(identity string) (Profile, bool) {
	identity = normalizeIdentity(identity)
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.users[identity]
	return p, ok
}

// Create registers a new profile and persists the document.
func (d *Directory) Create(identity string, p Profile) (Profile, error) {
	identity = normalizeIdentity(identity)
	if identity == "" || !strings.Contains(identity, "@") {
		return Profile{}, fmt.Errorf("%w: valid email is required", ErrInvalidDomain)
	}
	if d.allowDomain != nil && !d.allowDomain(identity) {
		return Profile{}, ErrInvalidDomain
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[identity]; ok {
		return Profile{}, ErrAlreadyExists
	}
	now := d.now().UTC()
	p.Email = identity
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.CreatedAt = now
	p.ModifiedAt = now
	d.users[identity] = p
	if err := d.save(); err != nil {
		delete(d.users, identity)
		return Profile{}, err
	}
	return p, nil
}

// UpdateProfile applies the non-nil fields of upd and persists the document.
func (d *Directory) UpdateProfile(identity string, upd Update) (Profile, error) {
	identity = normalizeIdentity(identity)
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.users[identity]
	if !ok {
		return Profile{}, ErrNotFound
	}
	prev := p
	if upd.DisplayName != nil {
		p.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.Role != nil {
		p.Role = strings.TrimSpace(*upd.Role)
	}
	if upd.Unit != nil {
		p.Unit = strings.TrimSpace(*upd.Unit)
	}
	if upd.Faculty != nil {
		p.Faculty = strings.TrimSpace(*upd.Faculty)
	}
	if upd.Overrides != nil {
		p.Overrides = append([]string(nil), (*upd.Overrides)...)
	}
	if upd.Active != nil {
		p.Active = *upd.Active
	}
	p.ModifiedAt = d.now().UTC()
	d.users[identity] = p
	if err := d.save(); err != nil {
		d.users[identity] = prev
		return Profile{}, err
	}
	return p, nil
}

// Delete removes a profile. The bootstrap administrator is protected.
func (d *Directory) Delete(identity string) error {
	identity = normalizeIdentity(identity)
	if identity == BootstrapAdmin {
		return ErrProtected
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.users[identity]
	if !ok {
		return ErrNotFound
	}
	delete(d.users, identity)
	if err := d.save(); err != nil {
		d.users[identity] = p
		return err
	}
	return nil
}

// List returns every profile ordered by identity.
func (d *Directory) List() []Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Profile, 0, len(d.users))
	for _, p := range d.users {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (d *Directory) save() error {
	if d.path == "" {
		return nil
	}
	doc := make(map[string]Profile, len(d.users))
	for email, p := range d.users {
		doc[email] = p
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode users document: %v", ErrStore, err)
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write users document: %v", ErrStore, err)
	}
	return nil
}

func normalizeIdentity(identity string) string {
	return strings.TrimSpace(strings.ToLower(identity))
}
