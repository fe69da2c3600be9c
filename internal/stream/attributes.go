// AngelaMos | 2026
// attributes.go

package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/principal"
)

const PrincipalAttribute = "principal"

// Attributes is the per-connection bag. It outlives every message on the
// connection and is safe for concurrent use.
type Attributes struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]any)}
}

func (a *Attributes) Get(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.values[key]
	return v, ok
}

func (a *Attributes) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[key] = value
}

func (a *Attributes) Principal() (*principal.Principal, bool) {
	v, ok := a.Get(PrincipalAttribute)
	if !ok {
		return nil, false
	}
	p, ok := v.(*principal.Principal)
	return p, ok && p != nil
}

type attributesKey struct{}

func withAttributes(ctx context.Context, attrs *Attributes) context.Context {
	return context.WithValue(ctx, attributesKey{}, attrs)
}

func AttributesFromContext(ctx context.Context) (*Attributes, bool) {
	a, ok := ctx.Value(attributesKey{}).(*Attributes)
	return a, ok && a != nil
}

// Headers are handshake headers keyed by lower-case name, the shape of
// gRPC metadata.
type Headers map[string][]string

func (h Headers) Get(name string) string {
	if vs := h[strings.ToLower(name)]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}
