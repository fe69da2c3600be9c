// AngelaMos | 2026
// store.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
)

type StoreConfig struct {
	RefreshTTL       time.Duration
	ExpiredRetention time.Duration
	RevokedRetention time.Duration
	Timeout          time.Duration
}

// Store enforces single-use refresh tokens on top of a Repository.
type Store struct {
	repo      Repository
	cfg       StoreConfig
	incidents IncidentReporter
	logger    *slog.Logger
}

func NewStore(repo Repository, cfg StoreConfig, incidents IncidentReporter, logger *slog.Logger) *Store {
	return &Store{
		repo:      repo,
		cfg:       cfg,
		incidents: incidents,
		logger:    logger,
	}
}

// IssuedToken carries the raw refresh value. It is never retrievable
// again once returned.
type IssuedToken struct {
	Raw    string
	Record RefreshToken
}

type Rotation struct {
	IssuedToken
	PredecessorID string
}

// ReuseError reports that a consumed or revoked token was presented and
// the user's chain was poisoned.
type ReuseError struct {
	UserID  string
	TokenID string
	Revoked int64
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("refresh token %s reused: revoked %d sessions", e.TokenID, e.Revoked)
}

func (e *ReuseError) Unwrap() error {
	return core.ErrRefreshTokenReuseDetected
}

type rotateOutcome int

const (
	outcomeRotated rotateOutcome = iota
	outcomeNotFound
	outcomeExpired
	outcomeReuse
)

func (s *Store) Issue(
	ctx context.Context,
	userID string,
	meta ClientMeta,
	now time.Time,
) (*IssuedToken, error) {
	ctx, cancel := core.WithStoreTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	issued, err := s.newToken(userID, meta, now)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &issued.Record); err != nil {
		return nil, core.StoreError("issue refresh token", err)
	}

	return issued, nil
}

// Rotate exchanges raw for a successor in one transaction. Presenting a
// record that is already revoked revokes every unrevoked record of the
// same user issued at or after it; that revocation commits before
// ErrRefreshTokenReuseDetected is returned.
func (s *Store) Rotate(
	ctx context.Context,
	raw string,
	meta ClientMeta,
	now time.Time,
) (*Rotation, error) {
	ctx, cancel := core.WithStoreTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	successor, err := s.newToken("", meta, now)
	if err != nil {
		return nil, err
	}

	var (
		outcome  rotateOutcome
		current  *RefreshToken
		poisoned int64
	)

	err = s.repo.Atomically(ctx, func(tx Repository) error {
		rec, err := tx.FindByHashForUpdate(ctx, core.HashToken(raw))
		if errors.Is(err, core.ErrNotFound) {
			outcome = outcomeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		current = rec

		if rec.IsExpiredAt(now) {
			outcome = outcomeExpired
			return nil
		}

		if rec.IsRevoked() {
			outcome = outcomeReuse
			poisoned, err = tx.RevokeIssuedSince(ctx, rec.UserID, rec.IssuedAt, now)
			return err
		}

		successor.Record.UserID = rec.UserID
		if err := tx.Create(ctx, &successor.Record); err != nil {
			return err
		}

		consumed, err := tx.Consume(ctx, rec.ID, successor.Record.ID, now)
		if err != nil {
			return err
		}
		if !consumed {
			// Another rotation won the row. The successor above is swept
			// up by the chain revocation.
			outcome = outcomeReuse
			poisoned, err = tx.RevokeIssuedSince(ctx, rec.UserID, rec.IssuedAt, now)
			return err
		}

		outcome = outcomeRotated
		return nil
	})
	if err != nil {
		return nil, core.StoreError("rotate refresh token", err)
	}

	switch outcome {
	case outcomeNotFound:
		return nil, fmt.Errorf("rotate refresh token: %w", core.ErrInvalidRefreshToken)
	case outcomeExpired:
		return nil, fmt.Errorf("rotate refresh token: %w", core.ErrExpiredRefreshToken)
	case outcomeReuse:
		s.incidents.Report(ctx, SecurityIncident{
			Kind:       IncidentRefreshTokenReuse,
			UserID:     current.UserID,
			TokenID:    current.ID,
			Revoked:    poisoned,
			UserAgent:  meta.UserAgent,
			IPAddress:  meta.IPAddress,
			DetectedAt: now,
		})
		return nil, &ReuseError{UserID: current.UserID, TokenID: current.ID, Revoked: poisoned}
	}

	return &Rotation{IssuedToken: *successor, PredecessorID: current.ID}, nil
}

// Revoke ends the session behind raw. Unknown or already revoked tokens
// are not an error.
func (s *Store) Revoke(ctx context.Context, raw string, now time.Time) error {
	ctx, cancel := core.WithStoreTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	rec, err := s.repo.FindByHash(ctx, core.HashToken(raw))
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return core.StoreError("revoke refresh token", err)
	}

	if _, err := s.repo.RevokeByID(ctx, rec.ID, now); err != nil {
		return core.StoreError("revoke refresh token", err)
	}

	return nil
}

func (s *Store) Session(ctx context.Context, id string) (*RefreshToken, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("find session: %w", core.ErrNotFound)
	}

	ctx, cancel := core.WithStoreTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	rec, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, core.StoreError("find session", err)
	}
	return rec, nil
}

func (s *Store) RevokeSession(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := core.WithStoreTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if _, err := s.repo.RevokeByID(ctx, id, now); err != nil {
		return core.StoreError("revoke session", err)
	}
	return nil
}

func (s *Store) RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error) {
	ctx, cancel := core.WithStoreTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	n, err := s.repo.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return 0, core.StoreError("revoke all sessions", err)
	}
	return n, nil
}

func (s *Store) ActiveSessions(ctx context.Context, userID string, now time.Time) ([]RefreshToken, error) {
	ctx, cancel := core.WithStoreTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	recs, err := s.repo.ListActiveForUser(ctx, userID, now)
	if err != nil {
		return nil, core.StoreError("list sessions", err)
	}
	return recs, nil
}

type SweepResult struct {
	Expired int64 `json:"expired"`
	Revoked int64 `json:"revoked"`
}

// Sweep deletes records that expired more than ExpiredRetention ago and
// revoked records older than the shorter RevokedRetention.
func (s *Store) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	ctx, cancel := core.WithStoreTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var res SweepResult
	var err error

	res.Expired, err = s.repo.DeleteExpiredBefore(ctx, now.Add(-s.cfg.ExpiredRetention))
	if err != nil {
		return res, core.StoreError("sweep expired tokens", err)
	}

	res.Revoked, err = s.repo.DeleteRevokedBefore(ctx, now.Add(-s.cfg.RevokedRetention))
	if err != nil {
		return res, core.StoreError("sweep revoked tokens", err)
	}

	return res, nil
}

func (s *Store) newToken(userID string, meta ClientMeta, now time.Time) (*IssuedToken, error) {
	raw, err := core.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	return &IssuedToken{
		Raw: raw,
		Record: RefreshToken{
			ID:        uuid.NewString(),
			UserID:    userID,
			TokenHash: core.HashToken(raw),
			IssuedAt:  now,
			ExpiresAt: now.Add(s.cfg.RefreshTTL),
			UserAgent: meta.UserAgent,
			IPAddress: meta.IPAddress,
		},
	}, nil
}
