package api

import (
	"context"
	"time"

	"github.com/linesmerrill/case-portal-api/authority"
)

// QueryTimeout is the default timeout for database queries
const QueryTimeout = 10 * time.Second

type principalKey struct{}

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p authority.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by the auth middleware
func PrincipalFrom(ctx context.Context) (authority.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(authority.Principal)
	return p, ok
}
