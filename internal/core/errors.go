// AngelaMos | 2026
// errors.go

package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Key management and trust configuration. Both are fatal at startup.
var (
	ErrNoActiveKey             = errors.New("no active signing key")
	ErrNoTrustSourceConfigured = errors.New("no trust source configured")
)

// Access-token failures. Callers treat all of them as unauthenticated.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenNotYetValid      = errors.New("token not yet valid")
	ErrAudienceMismatch      = errors.New("token audience mismatch")
	ErrIssuerMismatch        = errors.New("token issuer not trusted")
)

// Refresh-session failures.
var (
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrInvalidRefreshToken       = errors.New("invalid refresh token")
	ErrExpiredRefreshToken       = errors.New("refresh token expired")
	ErrRefreshTokenReuseDetected = errors.New("refresh token reuse detected")
)

// ErrStoreUnavailable is transient; the operation may be retried,
// except a refresh whose outcome is unknown.
var ErrStoreUnavailable = errors.New("store unavailable")

type AppError struct {
	Err        error  `json:"-"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message string, status int, code string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: status,
		Code:       code,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func UnauthorizedError(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(ErrUnauthorized, message, http.StatusUnauthorized, "UNAUTHORIZED")
}

func ForbiddenError(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return NewAppError(ErrForbidden, message, http.StatusForbidden, "FORBIDDEN")
}

func NotFoundError(resource string) *AppError {
	return NewAppError(
		ErrNotFound,
		resource+" not found",
		http.StatusNotFound,
		"NOT_FOUND",
	)
}

func ConflictError(resource string) *AppError {
	return NewAppError(
		ErrDuplicateKey,
		resource+" already exists",
		http.StatusConflict,
		"CONFLICT",
	)
}

func RateLimitedError(retryAfter int) *AppError {
	return NewAppError(
		nil,
		fmt.Sprintf("rate limit exceeded, retry after %d seconds", retryAfter),
		http.StatusTooManyRequests,
		"RATE_LIMITED",
	)
}

// CredentialsError is the single response for every login and refresh
// failure so the caller cannot tell which check rejected them.
func CredentialsError(err error) *AppError {
	return NewAppError(err, "invalid credentials", http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

func TokenInvalidError(err error) *AppError {
	return NewAppError(err, "invalid or expired token", http.StatusUnauthorized, "TOKEN_INVALID")
}

func StoreUnavailableError(err error) *AppError {
	return NewAppError(
		err,
		"service temporarily unavailable",
		http.StatusServiceUnavailable,
		"STORE_UNAVAILABLE",
	)
}

// IsCredentialError reports whether err is any of the login/refresh
// rejections that map to CredentialsError.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrExpiredRefreshToken) ||
		errors.Is(err, ErrRefreshTokenReuseDetected)
}

// IsTokenError reports whether err is an access-token rejection.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrTokenSignatureInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenNotYetValid) ||
		errors.Is(err, ErrAudienceMismatch) ||
		errors.Is(err, ErrIssuerMismatch)
}

// StoreError wraps a driver failure as ErrStoreUnavailable so callers never
// mistake an outage for a security failure. The cause stays in the chain.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// IsDuplicateKey reports a Postgres unique_violation (23505).
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
