package auth

import (
	"log/slog"
	"sync"
	"time"
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	// DefaultReloadTTL bounds how long an issued or revoked token takes to
	// reach a running server.
	DefaultReloadTTL = 5 * time.Second
	minMissReload    = time.Second
)

// ReloadingTokenSet re-reads the serialized token table from load once it is
// older than ttl, and on a lookup miss at most once per second. A failed
// reload keeps the previous table.
type ReloadingTokenSet struct {
	load  func() (string, error)
	clock Clock
	ttl   time.Duration

	mu       sync.Mutex
	current  *TokenSet
	loadedAt time.Time
}

func NewReloadingTokenSet(load func() (string, error), ttl time.Duration) (*ReloadingTokenSet, error) {
	return NewReloadingTokenSetWithClock(load, ttl, realClock{})
}

func NewReloadingTokenSetWithClock(load func() (string, error), ttl time.Duration, clock Clock) (*ReloadingTokenSet, error) {
	r := &ReloadingTokenSet{load: load, clock: clock, ttl: ttl}
	raw, err := load()
	if err != nil {
		return nil, err
	}
	ts, err := ParseTokenSet(raw)
	if err != nil {
		return nil, err
	}
	r.current = ts
	r.loadedAt = clock.Now()
	return r, nil
}

// Current returns the table as of the last successful load.
func (r *ReloadingTokenSet) Current() *TokenSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *ReloadingTokenSet) Lookup(token string) (string, bool) {
	if r.refreshIf(r.ttl) {
		return r.Current().Lookup(token)
	}
	if p, ok := r.Current().Lookup(token); ok {
		return p, true
	}
	r.refreshIf(minMissReload)
	return r.Current().Lookup(token)
}

// refreshIf reloads when the table is at least age old and reports whether
// it tried.
func (r *ReloadingTokenSet) refreshIf(age time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if now.Sub(r.loadedAt) < age {
		return false
	}
	r.loadedAt = now

	raw, err := r.load()
	if err != nil {
		slog.Warn("reloading API tokens failed, keeping previous set", "error", err)
		return true
	}
	ts, err := ParseTokenSet(raw)
	if err != nil {
		slog.Warn("reloaded API tokens are invalid, keeping previous set", "error", err)
		return true
	}
	r.current = ts
	return true
}
