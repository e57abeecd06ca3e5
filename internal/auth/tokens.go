package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TokenSet maps API bearer tokens to principals.
type TokenSet struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewTokenSet() *TokenSet {
	return &TokenSet{tokens: make(map[string]string)}
}

// ParseTokenSet decodes the JSON object form (token -> principal). An empty
// string yields an empty set.
func ParseTokenSet(raw string) (*TokenSet, error) {
	ts := NewTokenSet()
	if strings.TrimSpace(raw) == "" {
		return ts, nil
	}
	if err := json.Unmarshal([]byte(raw), &ts.tokens); err != nil {
		return nil, fmt.Errorf("parsing token set: %w", err)
	}
	if ts.tokens == nil {
		// "null" decodes to a nil map.
		ts.tokens = make(map[string]string)
	}
	for tok, p := range ts.tokens {
		if tok == "" || p == "" {
			return nil, fmt.Errorf("parsing token set: empty token or principal")
		}
	}
	return ts, nil
}

// Lookup returns the principal owning token. Every entry is compared in
// constant time.
func (ts *TokenSet) Lookup(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var principal string
	for tok, p := range ts.tokens {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(token)) == 1 {
			principal = p
		}
	}
	return principal, principal != ""
}

// Issue creates a new random token for principal.
func (ts *TokenSet) Issue(principal string) (string, error) {
	if principal == "" {
		return "", fmt.Errorf("principal is required")
	}
	token := "jt_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tokens[token] = principal
	return token, nil
}

// Revoke removes every token of principal and reports how many were removed.
func (ts *TokenSet) Revoke(principal string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for tok, p := range ts.tokens {
		if p == principal {
			delete(ts.tokens, tok)
			n++
		}
	}
	return n
}

// Principals returns the distinct principals with at least one token, sorted.
func (ts *TokenSet) Principals() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, p := range ts.tokens {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (ts *TokenSet) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tokens)
}

// String encodes the set in the form accepted by ParseTokenSet.
func (ts *TokenSet) String() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	b, _ := json.Marshal(ts.tokens)
	return string(b)
}
