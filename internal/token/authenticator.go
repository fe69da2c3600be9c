// AngelaMos | 2026
// authenticator.go

package token

import (
	"context"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/principal"
)

// Authenticator turns a bearer string into a principal: signature first,
// then claims.
type Authenticator struct {
	verifier  *Verifier
	validator *Validator
}

func NewAuthenticator(verifier *Verifier, validator *Validator) *Authenticator {
	return &Authenticator{verifier: verifier, validator: validator}
}

func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*principal.Principal, error) {
	tok, err := a.verifier.Decode(ctx, raw)
	if err != nil {
		return nil, err
	}
	return a.validator.Validate(tok)
}
