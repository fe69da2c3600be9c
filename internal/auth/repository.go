// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
)

// Repository is the persistence boundary for refresh-token records. All
// timestamps are supplied by the caller.
type Repository interface {
	// Atomically runs fn against a transactional view. Mutations made by
	// fn commit only if it returns nil.
	Atomically(ctx context.Context, fn func(tx Repository) error) error

	Create(ctx context.Context, token *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// FindByHashForUpdate locks the row until the enclosing transaction
	// ends. Outside Atomically it behaves like FindByHash.
	FindByHashForUpdate(ctx context.Context, tokenHash string) (*RefreshToken, error)
	FindByID(ctx context.Context, id string) (*RefreshToken, error)

	// Consume marks an unrevoked record as rotated into replacedByID. It
	// reports false when the record was already revoked.
	Consume(ctx context.Context, id, replacedByID string, at time.Time) (bool, error)
	RevokeByID(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	RevokeIssuedSince(ctx context.Context, userID string, since, at time.Time) (int64, error)

	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]RefreshToken, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const refreshTokenColumns = `
	id, user_id, token_hash, issued_at, expires_at,
	revoked_at, replaced_by_id, user_agent, ip_address`

type repository struct {
	db *sqlx.DB
	q  core.DBTX
	tx bool
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db, q: db}
}

func (r *repository) Atomically(
	ctx context.Context,
	fn func(tx Repository) error,
) error {
	if r.tx {
		return fn(r)
	}

	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&repository{db: r.db, q: tx, tx: true})
	})
}

func (r *repository) Create(ctx context.Context, token *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, issued_at, expires_at,
			user_agent, ip_address
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)`

	_, err := r.q.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.IssuedAt,
		token.ExpiresAt,
		token.UserAgent,
		token.IPAddress,
	)
	if err != nil {
		if core.IsDuplicateKey(err) {
			return fmt.Errorf("create refresh token: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create refresh token: %w", err)
	}

	return nil
}

func (r *repository) FindByHash(
	ctx context.Context,
	tokenHash string,
) (*RefreshToken, error) {
	query := `SELECT` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1`

	return r.getOne(ctx, "find refresh token", query, tokenHash)
}

func (r *repository) FindByHashForUpdate(
	ctx context.Context,
	tokenHash string,
) (*RefreshToken, error) {
	query := `SELECT` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE`

	return r.getOne(ctx, "lock refresh token", query, tokenHash)
}

func (r *repository) FindByID(
	ctx context.Context,
	id string,
) (*RefreshToken, error) {
	query := `SELECT` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE id = $1`

	return r.getOne(ctx, "find refresh token", query, id)
}

func (r *repository) getOne(
	ctx context.Context,
	op, query string,
	arg any,
) (*RefreshToken, error) {
	var token RefreshToken
	err := r.q.GetContext(ctx, &token, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

func (r *repository) Consume(
	ctx context.Context,
	id, replacedByID string,
	at time.Time,
) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2, replaced_by_id = $3
		WHERE id = $1 AND revoked_at IS NULL`

	rows, err := r.execRows(ctx, query, id, at, replacedByID)
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}

	return rows == 1, nil
}

func (r *repository) RevokeByID(
	ctx context.Context,
	id string,
	at time.Time,
) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL`

	rows, err := r.execRows(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}

	return rows == 1, nil
}

func (r *repository) RevokeAllForUser(
	ctx context.Context,
	userID string,
	at time.Time,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL`

	rows, err := r.execRows(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke all user tokens: %w", err)
	}

	return rows, nil
}

func (r *repository) RevokeIssuedSince(
	ctx context.Context,
	userID string,
	since, at time.Time,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $3
		WHERE user_id = $1
			AND issued_at >= $2
			AND revoked_at IS NULL`

	rows, err := r.execRows(ctx, query, userID, since, at)
	if err != nil {
		return 0, fmt.Errorf("revoke token chain: %w", err)
	}

	return rows, nil
}

func (r *repository) ListActiveForUser(
	ctx context.Context,
	userID string,
	now time.Time,
) ([]RefreshToken, error) {
	query := `SELECT` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1
			AND revoked_at IS NULL
			AND expires_at > $2
		ORDER BY issued_at DESC`

	var tokens []RefreshToken
	if err := r.q.SelectContext(ctx, &tokens, query, userID, now); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	return tokens, nil
}

func (r *repository) DeleteExpiredBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1`

	rows, err := r.execRows(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return rows, nil
}

func (r *repository) DeleteRevokedBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE revoked_at IS NOT NULL AND revoked_at < $1`

	rows, err := r.execRows(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete revoked tokens: %w", err)
	}

	return rows, nil
}

func (r *repository) execRows(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
