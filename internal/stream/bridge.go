// AngelaMos | 2026
// bridge.go

package stream

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/principal"
)

type TokenAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (*principal.Principal, error)
}

type Handshake struct {
	Headers    Headers
	Attributes *Attributes
}

// Bridge authenticates a persistent connection once, at handshake. The
// handshake never fails: a connection without a usable credential simply
// carries no principal, and each operation decides whether it needs one.
type Bridge struct {
	authn  TokenAuthenticator
	logger *slog.Logger
}

func NewBridge(authn TokenAuthenticator, logger *slog.Logger) *Bridge {
	return &Bridge{authn: authn, logger: logger}
}

// OnConnect returns ctx with the principal bound when the authorization
// header carries a valid bearer token, and ctx unchanged otherwise.
func (b *Bridge) OnConnect(ctx context.Context, hs Handshake) context.Context {
	header := hs.Headers.Get("authorization")
	if header == "" {
		b.logger.DebugContext(ctx, "connection without credentials")
		return ctx
	}

	scheme, raw, ok := strings.Cut(header, " ")
	raw = strings.TrimSpace(raw)
	if !ok || !strings.EqualFold(scheme, "bearer") || raw == "" {
		b.logger.DebugContext(ctx, "connection with malformed authorization header")
		return ctx
	}

	p, err := b.authn.Authenticate(ctx, raw)
	if err != nil {
		b.logger.WarnContext(ctx, "connection credential rejected", "error", err)
		return ctx
	}

	if hs.Attributes != nil {
		hs.Attributes.Set(PrincipalAttribute, p)
	}

	b.logger.DebugContext(ctx, "connection authenticated",
		"user_id", p.Subject,
		"source", p.Source,
	)

	return principal.NewContext(ctx, p)
}
