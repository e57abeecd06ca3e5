package profile

import (
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/jobtrack/internal/application"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SetProfileKey(owner, key, value string) error
	GetAllProfileKeys(owner string) (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	profile  Profile
	cachedAt time.Time
}

// Manager provides cached, structured access to per-owner profiles stored in SQLite.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// GetProfile reads the owner's profile keys from storage (or cache).
// Returns a zero-value Profile when nothing has been stored.
func (m *Manager) GetProfile(owner string) (Profile, error) {
	// Fast path: read lock for cache hit.
	m.mu.RLock()
	if e, ok := m.cache[owner]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		m.mu.RUnlock()
		return e.profile, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if e, ok := m.cache[owner]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		return e.profile, nil
	}

	keys, err := m.store.GetAllProfileKeys(owner)
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}

	p := buildProfile(keys)
	m.cache[owner] = cacheEntry{profile: p, cachedAt: m.clock.Now()}
	return p, nil
}

// Apply validates and persists u, then returns the refreshed profile. The
// first write also stamps createdAt.
func (m *Manager) Apply(owner string, u Update) (Profile, error) {
	if errs := validate(u); len(errs) > 0 {
		return Profile{}, errs
	}

	current, err := m.GetProfile(owner)
	if err != nil {
		return Profile{}, err
	}

	set := func(key string, v *string) error {
		if v == nil {
			return nil
		}
		return m.SetField(owner, key, strings.TrimSpace(*v))
	}
	if err := set(KeyDisplayName, u.DisplayName); err != nil {
		return Profile{}, err
	}
	if err := set(KeyEmail, u.Email); err != nil {
		return Profile{}, err
	}
	if err := set(KeyPhotoURL, u.PhotoURL); err != nil {
		return Profile{}, err
	}
	if current.CreatedAt.IsZero() {
		if err := m.SetField(owner, KeyCreatedAt, m.clock.Now().UTC().Format(time.RFC3339)); err != nil {
			return Profile{}, err
		}
	}

	return m.GetProfile(owner)
}

// SetField persists a profile key and invalidates the owner's cache entry.
func (m *Manager) SetField(owner, key, value string) error {
	if key != KeyCreatedAt && !slices.Contains(EditableKeys, key) {
		return fmt.Errorf("unknown profile key %q (valid: %s)", key, strings.Join(EditableKeys, ", "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetProfileKey(owner, key, value); err != nil {
		return fmt.Errorf("setting profile key %q: %w", key, err)
	}

	delete(m.cache, owner)
	return nil
}

// Summary renders the profile as a one-line greeting for CLI output.
func Summary(p Profile) string {
	switch {
	case p.DisplayName != "" && p.Email != "":
		return fmt.Sprintf("%s <%s>", p.DisplayName, p.Email)
	case p.DisplayName != "":
		return p.DisplayName
	case p.Email != "":
		return p.Email
	default:
		return "profile not yet configured"
	}
}

func validate(u Update) application.FieldErrors {
	var errs application.FieldErrors
	if u.Email != nil {
		if e := strings.TrimSpace(*u.Email); e != "" {
			if addr, err := mail.ParseAddress(e); err != nil || addr.Address != e {
				errs = append(errs, application.FieldError{Field: KeyEmail, Message: "Invalid email address"})
			}
		}
	}
	if u.PhotoURL != nil {
		if s := strings.TrimSpace(*u.PhotoURL); s != "" && !application.ValidURL(s) {
			errs = append(errs, application.FieldError{Field: KeyPhotoURL, Message: "Invalid photo URL"})
		}
	}
	return errs
}

// buildProfile assembles a Profile from flat key-value pairs.
func buildProfile(keys map[string]string) Profile {
	p := Profile{
		DisplayName: keys[KeyDisplayName],
		Email:       keys[KeyEmail],
		PhotoURL:    keys[KeyPhotoURL],
	}
	if v, ok := keys[KeyCreatedAt]; ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			slog.Warn("malformed profile key, skipping", "key", KeyCreatedAt, "error", err)
		} else {
			p.CreatedAt = t
		}
	}
	return p
}
