// AngelaMos | 2026
// validator.go

package token

import (
	"fmt"
	"slices"
	"time"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/clock"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/principal"
)

type ValidatorConfig struct {
	TrustedIssuers []string
	Audience       []string
	ClockSkew      time.Duration
}

// Validator applies the same claim checks to every verified token
// regardless of the trust source that accepted it.
type Validator struct {
	cfg   ValidatorConfig
	clock clock.Clock
}

func NewValidator(cfg ValidatorConfig, clk clock.Clock) *Validator {
	return &Validator{cfg: cfg, clock: clk}
}

func (v *Validator) Validate(tok *VerifiedToken) (*principal.Principal, error) {
	c := tok.Claims
	if c == nil {
		return nil, fmt.Errorf("missing claims: %w", core.ErrTokenMalformed)
	}

	if c.Type != TypeAccess {
		return nil, fmt.Errorf("token type %q: %w", c.Type, core.ErrTokenMalformed)
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("missing subject: %w", core.ErrTokenMalformed)
	}

	if !slices.Contains(v.cfg.TrustedIssuers, c.Issuer) {
		return nil, fmt.Errorf("issuer %q: %w", c.Issuer, core.ErrIssuerMismatch)
	}

	if !slices.ContainsFunc(c.Audience, func(aud string) bool {
		return slices.Contains(v.cfg.Audience, aud)
	}) {
		return nil, core.ErrAudienceMismatch
	}

	if c.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("missing exp: %w", core.ErrTokenMalformed)
	}

	now := v.clock.Now()
	if !now.Before(c.ExpiresAt.Add(v.cfg.ClockSkew)) {
		return nil, fmt.Errorf("expired at %s: %w", c.ExpiresAt.Format(time.RFC3339), core.ErrTokenExpired)
	}

	if !c.NotBefore.IsZero() && now.Add(v.cfg.ClockSkew).Before(c.NotBefore.Time) {
		return nil, core.ErrTokenNotYetValid
	}

	return &principal.Principal{
		Subject:     c.Subject,
		Username:    c.Username,
		Email:       c.Email,
		Roles:       c.Roles,
		Authorities: c.Authorities,
		TokenID:     c.ID,
		Issuer:      c.Issuer,
		Source:      tok.Source,
		ExpiresAt:   c.ExpiresAt.Time,
	}, nil
}
