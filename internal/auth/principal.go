// Package auth identifies who is acting. Core packages never read the
// principal from ambient state; callers pass it explicitly after resolving it
// here.
package auth

import "context"

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, ctxKey{}, principal)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(ctxKey{}).(string)
	return p, ok && p != ""
}
