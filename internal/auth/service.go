// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/clock"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/token"
)

// User is what the session layer needs from the user directory.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
}

// UserDirectory resolves users. Lookups of unknown users return an error
// wrapping core.ErrNotFound.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
}

type TokenIssuer interface {
	Issue(user token.UserClaims, now time.Time) (*token.AccessToken, error)
}

type Credentials struct {
	Username string
	Password string
}

type TokenPair struct {
	UserID                string
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

type Session struct {
	ID        string
	UserAgent string
	IPAddress string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Service struct {
	store  *Store
	signer TokenIssuer
	users  UserDirectory
	clock  clock.Clock
	logger *slog.Logger
}

func NewService(
	store *Store,
	signer TokenIssuer,
	users UserDirectory,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:  store,
		signer: signer,
		users:  users,
		clock:  clk,
		logger: logger,
	}
}

// Login checks credentials and opens a new session. Unknown users and
// wrong passwords both return core.ErrInvalidCredentials after the same
// amount of hashing work.
func (s *Service) Login(
	ctx context.Context,
	creds Credentials,
	meta ClientMeta,
) (pair *TokenPair, err error) {
	ctx, span := core.StartSpan(ctx, "auth.Login")
	defer func() { core.EndSpan(span, err) }()

	user, err := s.users.FindByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // result is always false; the hash work is the point
			_, _ = core.VerifyPasswordTimingSafe(creds.Password, nil)
			return nil, fmt.Errorf("login: %w", core.ErrInvalidCredentials)
		}
		return nil, core.StoreError("login: find user", err)
	}

	valid, err := core.VerifyPasswordTimingSafe(creds.Password, &user.PasswordHash)
	if err != nil {
		s.logger.WarnContext(ctx, "stored password hash unreadable",
			"user_id", user.ID,
			"error", err,
		)
		return nil, fmt.Errorf("login: %w", core.ErrInvalidCredentials)
	}
	if !valid {
		return nil, fmt.Errorf("login: %w", core.ErrInvalidCredentials)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))

	now := s.clock.Now()
	access, err := s.signer.Issue(userClaims(user), now)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	refresh, err := s.store.Issue(ctx, user.ID, meta, now)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	return newPair(user.ID, access, &refresh.Record, refresh.Raw), nil
}

// Refresh rotates raw and signs a fresh access token for the chain's
// owner, re-read from the directory so claim changes take effect.
func (s *Service) Refresh(
	ctx context.Context,
	raw string,
	meta ClientMeta,
) (pair *TokenPair, err error) {
	ctx, span := core.StartSpan(ctx, "auth.Refresh")
	defer func() { core.EndSpan(span, err) }()

	now := s.clock.Now()

	rot, err := s.store.Rotate(ctx, raw, meta, now)
	if err != nil {
		var reuse *ReuseError
		if errors.As(err, &reuse) {
			core.AddSpanEvent(ctx, "refresh_token.reuse_detected",
				attribute.String("user.id", reuse.UserID),
				attribute.String("token.id", reuse.TokenID),
				attribute.Int64("sessions.revoked", reuse.Revoked),
			)
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", rot.Record.UserID))

	user, err := s.users.FindByID(ctx, rot.Record.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			if revokeErr := s.store.RevokeSession(ctx, rot.Record.ID, now); revokeErr != nil {
				s.logger.WarnContext(ctx, "revoke orphaned session",
					"session_id", rot.Record.ID,
					"error", revokeErr,
				)
			}
			return nil, fmt.Errorf("refresh: user gone: %w", core.ErrInvalidRefreshToken)
		}
		return nil, core.StoreError("refresh: find user", err)
	}

	access, err := s.signer.Issue(userClaims(user), now)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	return newPair(user.ID, access, &rot.Record, rot.Raw), nil
}

func (s *Service) Logout(ctx context.Context, raw string) (err error) {
	ctx, span := core.StartSpan(ctx, "auth.Logout")
	defer func() { core.EndSpan(span, err) }()

	if err := s.store.Revoke(ctx, raw, s.clock.Now()); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// LogoutAll revokes every session of userID and returns how many were
// still open.
func (s *Service) LogoutAll(ctx context.Context, userID string) (n int64, err error) {
	ctx, span := core.StartSpan(ctx, "auth.LogoutAll", attribute.String("user.id", userID))
	defer func() { core.EndSpan(span, err) }()

	n, err = s.store.RevokeAll(ctx, userID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("logout all: %w", err)
	}

	s.logger.InfoContext(ctx, "sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

func (s *Service) ActiveSessions(ctx context.Context, userID string) (sessions []Session, err error) {
	ctx, span := core.StartSpan(ctx, "auth.ActiveSessions", attribute.String("user.id", userID))
	defer func() { core.EndSpan(span, err) }()

	recs, err := s.store.ActiveSessions(ctx, userID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("active sessions: %w", err)
	}

	sessions = make([]Session, 0, len(recs))
	for _, r := range recs {
		sessions = append(sessions, Session{
			ID:        r.ID,
			UserAgent: r.UserAgent,
			IPAddress: r.IPAddress,
			IssuedAt:  r.IssuedAt,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return sessions, nil
}

func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) (err error) {
	ctx, span := core.StartSpan(ctx, "auth.RevokeSession", attribute.String("user.id", userID))
	defer func() { core.EndSpan(span, err) }()

	rec, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if rec.UserID != userID {
		return fmt.Errorf("revoke session: %w", core.ErrForbidden)
	}

	if err := s.store.RevokeSession(ctx, sessionID, s.clock.Now()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func userClaims(u *User) token.UserClaims {
	return token.UserClaims{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Roles:    u.Roles,
	}
}

func newPair(userID string, access *token.AccessToken, rec *RefreshToken, raw string) *TokenPair {
	return &TokenPair{
		UserID:                userID,
		AccessToken:           access.Token,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: rec.ExpiresAt,
	}
}
