// AngelaMos | 2026
// manager.go

package keys

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/clock"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusRetiring Status = "retiring"
	StatusRetired  Status = "retired"
)

type SigningKey struct {
	ID        string
	Private   jwk.Key
	Public    jwk.Key
	CreatedAt time.Time
	Status    Status
	RetiresAt time.Time
}

// keyring is immutable once published. Writers build a new one and swap
// the pointer.
type keyring struct {
	active   *SigningKey
	retiring []SigningKey
}

// Manager owns the signing keys. Reads take a snapshot without locking;
// Install, InstallRetiring, Rotate and Prune serialize on mu.
type Manager struct {
	mu     sync.Mutex
	ring   atomic.Pointer[keyring]
	clock  clock.Clock
	grace  time.Duration
	logger *slog.Logger
}

func NewManager(clk clock.Clock, grace time.Duration, logger *slog.Logger) *Manager {
	m := &Manager{
		clock:  clk,
		grace:  grace,
		logger: logger,
	}
	m.ring.Store(&keyring{})
	return m
}

func (m *Manager) CurrentSigningKey() (SigningKey, error) {
	ring := m.ring.Load()
	if ring.active == nil {
		return SigningKey{}, core.ErrNoActiveKey
	}
	return *ring.active, nil
}

func (m *Manager) CurrentKeyID() (string, error) {
	key, err := m.CurrentSigningKey()
	if err != nil {
		return "", err
	}
	return key.ID, nil
}

// VerificationKeys returns the active key followed by retiring keys,
// newest first. Retiring keys whose grace window has elapsed are omitted
// even if Prune has not run yet.
func (m *Manager) VerificationKeys() []SigningKey {
	ring := m.ring.Load()
	if ring.active == nil {
		return nil
	}

	now := m.clock.Now()
	out := make([]SigningKey, 0, 1+len(ring.retiring))
	out = append(out, *ring.active)
	for _, k := range ring.retiring {
		if now.Before(k.RetiresAt) {
			out = append(out, k)
		}
	}
	return out
}

// Keys lists every key still held, with retiring keys past their grace
// window reported as retired.
func (m *Manager) Keys() []SigningKey {
	ring := m.ring.Load()
	now := m.clock.Now()

	var out []SigningKey
	if ring.active != nil {
		out = append(out, *ring.active)
	}
	for _, k := range ring.retiring {
		if !now.Before(k.RetiresAt) {
			k.Status = StatusRetired
		}
		out = append(out, k)
	}
	return out
}

// Install promotes priv to the active signing key. Any previously active
// key starts its grace window.
func (m *Manager) Install(priv jwk.Key) (SigningKey, error) {
	key, err := newSigningKey(priv, m.clock.Now())
	if err != nil {
		return SigningKey{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.promote(key)
	return key, nil
}

// InstallRetiring loads a previous key that only verifies, until retiresAt.
// Keys already past retiresAt are skipped.
func (m *Manager) InstallRetiring(priv jwk.Key, retiresAt time.Time) (SigningKey, error) {
	now := m.clock.Now()
	key, err := newSigningKey(priv, now)
	if err != nil {
		return SigningKey{}, err
	}
	key.Status = StatusRetiring
	key.RetiresAt = retiresAt

	if !now.Before(retiresAt) {
		return key, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.ring.Load()
	if cur.active != nil && cur.active.ID == key.ID {
		return SigningKey{}, fmt.Errorf("install retiring key %s: already active", key.ID)
	}

	next := &keyring{active: cur.active}
	next.retiring = append(next.retiring, key)
	for _, k := range cur.retiring {
		if k.ID != key.ID {
			next.retiring = append(next.retiring, k)
		}
	}
	sortRetiring(next.retiring)
	m.ring.Store(next)

	return key, nil
}

// Rotate generates a fresh P-256 key and makes it active.
func (m *Manager) Rotate(ctx context.Context) (SigningKey, error) {
	priv, err := generateKey()
	if err != nil {
		return SigningKey{}, fmt.Errorf("rotate signing key: %w", err)
	}

	key, err := newSigningKey(priv, m.clock.Now())
	if err != nil {
		return SigningKey{}, fmt.Errorf("rotate signing key: %w", err)
	}

	m.mu.Lock()
	previous := m.ring.Load().active
	m.promote(key)
	m.mu.Unlock()

	attrs := []any{"key_id", key.ID}
	if previous != nil {
		attrs = append(attrs, "retiring_key_id", previous.ID, "grace", m.grace)
	}
	m.logger.InfoContext(ctx, "signing key rotated", attrs...)

	return key, nil
}

// Prune drops retiring keys whose grace window has elapsed and returns
// how many were removed.
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.ring.Load()
	now := m.clock.Now()

	kept := make([]SigningKey, 0, len(cur.retiring))
	for _, k := range cur.retiring {
		if now.Before(k.RetiresAt) {
			kept = append(kept, k)
		}
	}

	removed := len(cur.retiring) - len(kept)
	if removed > 0 {
		m.ring.Store(&keyring{active: cur.active, retiring: kept})
	}
	return removed
}

// promote must be called with mu held.
func (m *Manager) promote(key SigningKey) {
	cur := m.ring.Load()
	now := m.clock.Now()

	next := &keyring{active: &key}
	if cur.active != nil && cur.active.ID != key.ID {
		demoted := *cur.active
		demoted.Status = StatusRetiring
		demoted.RetiresAt = now.Add(m.grace)
		next.retiring = append(next.retiring, demoted)
	}
	for _, k := range cur.retiring {
		if k.ID != key.ID && now.Before(k.RetiresAt) {
			next.retiring = append(next.retiring, k)
		}
	}
	sortRetiring(next.retiring)

	m.ring.Store(next)
}

func sortRetiring(ks []SigningKey) {
	slices.SortStableFunc(ks, func(a, b SigningKey) int {
		return b.RetiresAt.Compare(a.RetiresAt)
	})
}
