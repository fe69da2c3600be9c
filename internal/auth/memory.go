// AngelaMos | 2026
// memory.go

package auth

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
)

// MemoryRepository keeps refresh-token records in an id-keyed arena.
// Atomically holds the lock for the whole closure and restores the
// pre-transaction arena when the closure fails.
type MemoryRepository struct {
	mu    sync.Mutex
	arena *arena
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{arena: newArena()}
}

type arena struct {
	records map[string]RefreshToken
	byHash  map[string]string
}

func newArena() *arena {
	return &arena{
		records: make(map[string]RefreshToken),
		byHash:  make(map[string]string),
	}
}

func (a *arena) clone() *arena {
	return &arena{
		records: maps.Clone(a.records),
		byHash:  maps.Clone(a.byHash),
	}
}

func (m *MemoryRepository) Atomically(
	ctx context.Context,
	fn func(tx Repository) error,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	snapshot := m.arena.clone()
	if err := fn(&memoryTx{arena: m.arena}); err != nil {
		m.arena = snapshot
		return err
	}

	return nil
}

func (m *MemoryRepository) locked() (*memoryTx, func()) {
	m.mu.Lock()
	return &memoryTx{arena: m.arena}, m.mu.Unlock
}

func (m *MemoryRepository) Create(ctx context.Context, token *RefreshToken) error {
	tx, unlock := m.locked()
	defer unlock()
	return tx.Create(ctx, token)
}

func (m *MemoryRepository) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	tx, unlock := m.locked()
	defer unlock()
	return tx.FindByHash(ctx, tokenHash)
}

func (m *MemoryRepository) FindByHashForUpdate(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	return m.FindByHash(ctx, tokenHash)
}

func (m *MemoryRepository) FindByID(ctx context.Context, id string) (*RefreshToken, error) {
	tx, unlock := m.locked()
	defer unlock()
	return tx.FindByID(ctx, id)
}

func (m *MemoryRepository) Consume(ctx context.Context, id, replacedByID string, at time.Time) (bool, error) {
	tx, unlock := m.locked()
	defer unlock()
	return tx.Consume(ctx, id, replacedByID, at)
}

func (m *MemoryRepository) RevokeByID(ctx context.Context, id string, at time.Time) (bool, error) {
	tx, unlock := m.locked()
	defer unlock()
	return tx.RevokeByID(ctx, id, at)
}

func (m *MemoryRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	tx, unlock := m.locked()
	defer unlock()
	return tx.RevokeAllForUser(ctx, userID, at)
}

func (m *MemoryRepository) RevokeIssuedSince(
	ctx context.Context,
	userID string,
	since, at time.Time,
) (int64, error) {
	tx, unlock := m.locked()
	defer unlock()
	return tx.RevokeIssuedSince(ctx, userID, since, at)
}

func (m *MemoryRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]RefreshToken, error) {
	tx, unlock := m.locked()
	defer unlock()
	return tx.ListActiveForUser(ctx, userID, now)
}

func (m *MemoryRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, unlock := m.locked()
	defer unlock()
	return tx.DeleteExpiredBefore(ctx, cutoff)
}

func (m *MemoryRepository) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, unlock := m.locked()
	defer unlock()
	return tx.DeleteRevokedBefore(ctx, cutoff)
}

// memoryTx operates on the arena without locking; the owning
// MemoryRepository holds the mutex.
type memoryTx struct {
	arena *arena
}

func (t *memoryTx) Atomically(_ context.Context, fn func(tx Repository) error) error {
	return fn(t)
}

func (t *memoryTx) Create(ctx context.Context, token *RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	if _, ok := t.arena.records[token.ID]; ok {
		return fmt.Errorf("create refresh token: %w", core.ErrDuplicateKey)
	}
	if _, ok := t.arena.byHash[token.TokenHash]; ok {
		return fmt.Errorf("create refresh token: %w", core.ErrDuplicateKey)
	}

	t.arena.records[token.ID] = cloneToken(*token)
	t.arena.byHash[token.TokenHash] = token.ID
	return nil
}

func (t *memoryTx) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	id, ok := t.arena.byHash[tokenHash]
	if !ok {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	return t.FindByID(ctx, id)
}

func (t *memoryTx) FindByHashForUpdate(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	return t.FindByHash(ctx, tokenHash)
}

func (t *memoryTx) FindByID(ctx context.Context, id string) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	rec, ok := t.arena.records[id]
	if !ok {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	out := cloneToken(rec)
	return &out, nil
}

func (t *memoryTx) Consume(ctx context.Context, id, replacedByID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	rec, ok := t.arena.records[id]
	if !ok || rec.RevokedAt != nil {
		return false, nil
	}
	rec.RevokedAt = &at
	rec.ReplacedByID = &replacedByID
	t.arena.records[id] = rec
	return true, nil
}

func (t *memoryTx) RevokeByID(ctx context.Context, id string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	rec, ok := t.arena.records[id]
	if !ok || rec.RevokedAt != nil {
		return false, nil
	}
	rec.RevokedAt = &at
	t.arena.records[id] = rec
	return true, nil
}

func (t *memoryTx) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	return t.revokeWhere(ctx, func(rec RefreshToken) bool {
		return rec.UserID == userID
	}, at)
}

func (t *memoryTx) RevokeIssuedSince(
	ctx context.Context,
	userID string,
	since, at time.Time,
) (int64, error) {
	return t.revokeWhere(ctx, func(rec RefreshToken) bool {
		return rec.UserID == userID && !rec.IssuedAt.Before(since)
	}, at)
}

func (t *memoryTx) revokeWhere(ctx context.Context, match func(RefreshToken) bool, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	var n int64
	for id, rec := range t.arena.records {
		if rec.RevokedAt == nil && match(rec) {
			rec.RevokedAt = &at
			t.arena.records[id] = rec
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	var out []RefreshToken
	for _, rec := range t.arena.records {
		if rec.UserID == userID && rec.RevokedAt == nil && now.Before(rec.ExpiresAt) {
			out = append(out, cloneToken(rec))
		}
	}
	slices.SortFunc(out, func(a, b RefreshToken) int {
		return b.IssuedAt.Compare(a.IssuedAt)
	})
	return out, nil
}

func (t *memoryTx) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.deleteWhere(ctx, func(rec RefreshToken) bool {
		return rec.ExpiresAt.Before(cutoff)
	})
}

func (t *memoryTx) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.deleteWhere(ctx, func(rec RefreshToken) bool {
		return rec.RevokedAt != nil && rec.RevokedAt.Before(cutoff)
	})
}

func (t *memoryTx) deleteWhere(ctx context.Context, match func(RefreshToken) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("delete refresh tokens: %w", err)
	}
	var n int64
	for id, rec := range t.arena.records {
		if match(rec) {
			delete(t.arena.records, id)
			delete(t.arena.byHash, rec.TokenHash)
			n++
		}
	}
	return n, nil
}

func cloneToken(t RefreshToken) RefreshToken {
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		t.RevokedAt = &at
	}
	if t.ReplacedByID != nil {
		id := *t.ReplacedByID
		t.ReplacedByID = &id
	}
	return t
}
