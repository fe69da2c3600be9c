// AngelaMos | 2026
// verifier.go

package token

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jws"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
)

// VerifiedToken is a token whose signature one trust source accepted.
// Its claims are not validated yet.
type VerifiedToken struct {
	Raw    string
	KeyID  string
	Source string
	Claims *Claims
}

type Verifier struct {
	sources SourceProvider
}

func NewVerifier(sources SourceProvider) *Verifier {
	return &Verifier{sources: sources}
}

// Decode tries each trust source in order and returns the first success.
// When every source rejects the token the last rejection is returned.
func (v *Verifier) Decode(ctx context.Context, raw string) (*VerifiedToken, error) {
	return Decode(ctx, raw, v.sources.TrustSources())
}

func Decode(ctx context.Context, raw string, sources []Source) (*VerifiedToken, error) {
	if len(sources) == 0 {
		return nil, core.ErrNoTrustSourceConfigured
	}

	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, src := range sources {
		payload, err := src.Verify(ctx, env)
		if err != nil {
			lastErr = fmt.Errorf("trust source %s: %w", src.Name(), err)
			continue
		}

		claims, err := parseClaims(payload)
		if err != nil {
			return nil, fmt.Errorf("decode claims: %w: %w", core.ErrTokenMalformed, err)
		}

		return &VerifiedToken{
			Raw:    raw,
			KeyID:  env.KeyID,
			Source: src.Name(),
			Claims: claims,
		}, nil
	}

	return nil, lastErr
}

func parseEnvelope(raw string) (Envelope, error) {
	raw = strings.TrimSpace(raw)
	compact := []byte(raw)

	if raw == "" || bytes.Count(compact, []byte(".")) != 2 {
		return Envelope{}, fmt.Errorf("not a compact jws: %w", core.ErrTokenMalformed)
	}

	msg, err := jws.Parse(compact)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", core.ErrTokenMalformed, err)
	}

	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return Envelope{}, fmt.Errorf("expected one signature: %w", core.ErrTokenMalformed)
	}

	hdrs := sigs[0].ProtectedHeaders()
	alg, ok := hdrs.Algorithm()
	if !ok {
		return Envelope{}, fmt.Errorf("missing alg header: %w", core.ErrTokenMalformed)
	}
	kid, _ := hdrs.KeyID()

	return Envelope{
		Compact:   compact,
		KeyID:     kid,
		Algorithm: alg.String(),
	}, nil
}
