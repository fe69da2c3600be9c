// AngelaMos | 2026
// principal.go

package principal

import (
	"context"
	"slices"
	"time"
)

// Principal is the identity established from a verified access token. It
// lives only as long as the request or connection it is bound to.
type Principal struct {
	Subject     string
	Username    string
	Email       string
	Roles       []string
	Authorities []string
	TokenID     string
	Issuer      string
	Source      string
	ExpiresAt   time.Time
}

func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

func (p *Principal) HasAuthority(authority string) bool {
	return p != nil && slices.Contains(p.Authorities, authority)
}

type contextKey struct{}

func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the bound principal, or nil and false for an
// unauthenticated context.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}
