// AngelaMos | 2026
// trust.go

package token

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/keys"
)

// Envelope is a structurally valid compact JWS whose signature has not
// been checked yet.
type Envelope struct {
	Compact   []byte
	KeyID     string
	Algorithm string
}

// Source is one trust root. Verify returns the signed payload, or an
// error wrapping core.ErrTokenSignatureInvalid.
type Source interface {
	Name() string
	Verify(ctx context.Context, env Envelope) ([]byte, error)
}

// KeySource verifies ES256 signatures made with a single key.
type KeySource struct {
	keyID string
	key   jwk.Key
}

func NewKeySource(keyID string, pub jwk.Key) KeySource {
	return KeySource{keyID: keyID, key: pub}
}

func (s KeySource) Name() string {
	return "key:" + s.keyID
}

func (s KeySource) Verify(_ context.Context, env Envelope) ([]byte, error) {
	if env.KeyID != "" && env.KeyID != s.keyID {
		return nil, fmt.Errorf("key id %q: %w", env.KeyID, core.ErrTokenSignatureInvalid)
	}

	payload, err := jws.Verify(env.Compact, jws.WithKey(jwa.ES256(), s.key))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTokenSignatureInvalid, err)
	}

	return payload, nil
}

// HMACSource accepts HS256 tokens from a legacy issuer that shares a
// secret with this service. It only vouches for tokens naming its own
// issuer.
type HMACSource struct {
	issuer string
	secret []byte
	parser *gojwt.Parser
}

func NewHMACSource(issuer string, secret []byte) *HMACSource {
	return &HMACSource{
		issuer: issuer,
		secret: secret,
		parser: gojwt.NewParser(
			gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
			gojwt.WithoutClaimsValidation(),
		),
	}
}

func (s *HMACSource) Name() string {
	return "hmac:" + s.issuer
}

func (s *HMACSource) Verify(_ context.Context, env Envelope) ([]byte, error) {
	if env.Algorithm != gojwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("algorithm %q: %w", env.Algorithm, core.ErrTokenSignatureInvalid)
	}

	tok, err := s.parser.Parse(string(env.Compact), func(*gojwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTokenSignatureInvalid, err)
	}

	iss, err := tok.Claims.GetIssuer()
	if err != nil || iss != s.issuer {
		return nil, fmt.Errorf("issuer %q not served: %w", iss, core.ErrTokenSignatureInvalid)
	}

	parts := bytes.Split(env.Compact, []byte("."))
	payload, err := base64.RawURLEncoding.DecodeString(string(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %w", core.ErrTokenMalformed, err)
	}

	return payload, nil
}

type VerificationKeyProvider interface {
	VerificationKeys() []keys.SigningKey
}

// SourceProvider yields the trust sources to try, in order, for one
// decode.
type SourceProvider interface {
	TrustSources() []Source
}

// KeyRingSources reads the key manager on every call so a rotation is
// visible to the next decode. Extra sources are tried after the keys.
type KeyRingSources struct {
	Keys  VerificationKeyProvider
	Extra []Source
}

func (k KeyRingSources) TrustSources() []Source {
	vks := k.Keys.VerificationKeys()
	out := make([]Source, 0, len(vks)+len(k.Extra))
	for _, vk := range vks {
		out = append(out, NewKeySource(vk.ID, vk.Public))
	}
	return append(out, k.Extra...)
}
