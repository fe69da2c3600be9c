// AngelaMos | 2026
// signer.go

package token

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/keys"
)

type SigningKeyProvider interface {
	CurrentSigningKey() (keys.SigningKey, error)
}

// UserClaims is the identity embedded into an access token.
type UserClaims struct {
	ID       string
	Username string
	Email    string
	Roles    []string
}

type AccessToken struct {
	Token     string
	ID        string
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type SignerConfig struct {
	Issuer   string
	Audience string
	TTL      time.Duration
}

type Signer struct {
	keys SigningKeyProvider
	cfg  SignerConfig
}

func NewSigner(kp SigningKeyProvider, cfg SignerConfig) *Signer {
	return &Signer{keys: kp, cfg: cfg}
}

// Issue signs an access token for user with the current key. The jti is a
// random UUIDv4; roles and authorities are emitted as separate claims.
func (s *Signer) Issue(user UserClaims, now time.Time) (*AccessToken, error) {
	key, err := s.keys.CurrentSigningKey()
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	jti, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate token id: %w", err)
	}

	now = now.Truncate(time.Second)
	expiresAt := now.Add(s.cfg.TTL)

	roles := slices.Clone(user.Roles)
	if roles == nil {
		roles = []string{}
	}
	authorities := slices.Clone(roles)

	tok, err := jwt.NewBuilder().
		JwtID(jti.String()).
		Issuer(s.cfg.Issuer).
		Audience([]string{s.cfg.Audience}).
		Subject(user.ID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(expiresAt).
		Claim("username", user.Username).
		Claim("email", user.Email).
		Claim("roles", roles).
		Claim("authorities", authorities).
		Claim("type", TypeAccess).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build token: %w", err)
	}

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.TypeKey, "JWT"); err != nil {
		return nil, fmt.Errorf("set typ header: %w", err)
	}
	if err := hdrs.Set(jws.KeyIDKey, key.ID); err != nil {
		return nil, fmt.Errorf("set kid header: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256(), key.Private, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &AccessToken{
		Token:     string(signed),
		ID:        jti.String(),
		KeyID:     key.ID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}
