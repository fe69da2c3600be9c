// AngelaMos | 2026
// handler_test.go

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/principal"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func passthrough(next http.Handler) http.Handler { return next }

// headerPrincipal binds the subject named in X-Test-Subject.
func headerPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := r.Header.Get("X-Test-Subject")
		if sub == "" {
			core.Unauthorized(w, "")
			return
		}
		ctx := principal.NewContext(r.Context(), &principal.Principal{Subject: sub})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTestRouter(f *serviceFixture) http.Handler {
	r := chi.NewRouter()
	NewHandler(f.service, f.clock).RegisterRoutes(r, headerPrincipal, passthrough)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, subject string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set("X-Test-Subject", subject)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHandler_LoginAndRefresh(t *testing.T) {
	f := newServiceFixture(t)
	alice := testAlice(t)
	f.users.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
	f.users.On("FindByID", mock.Anything, alice.ID).Return(alice, nil)
	router := newTestRouter(f)

	rec, env := do(t, router, http.MethodPost, "/auth/login", LoginRequest{Username: "alice", Password: alicePassword}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tokens TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, 900, tokens.ExpiresIn)
	assert.NotEmpty(t, tokens.AccessToken)

	rec, env = do(t, router, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
}

func TestHandler_CredentialFailuresShareOneResponse(t *testing.T) {
	f := newServiceFixture(t)
	alice := testAlice(t)
	f.users.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
	f.users.On("FindByUsername", mock.Anything, "nobody").Return(nil, fmt.Errorf("x: %w", core.ErrNotFound))
	f.users.On("FindByID", mock.Anything, alice.ID).Return(alice, nil)
	router := newTestRouter(f)

	_, env := do(t, router, http.MethodPost, "/auth/login", LoginRequest{Username: "alice", Password: alicePassword}, "")
	var tokens TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	_, _ = do(t, router, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: tokens.RefreshToken}, "")

	cases := []struct {
		name string
		path string
		body any
	}{
		{"wrong password", "/auth/login", LoginRequest{Username: "alice", Password: "wrong"}},
		{"unknown user", "/auth/login", LoginRequest{Username: "nobody", Password: "wrong"}},
		{"unknown refresh token", "/auth/refresh", RefreshRequest{RefreshToken: "bogus"}},
		{"reused refresh token", "/auth/refresh", RefreshRequest{RefreshToken: tokens.RefreshToken}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := do(t, router, http.MethodPost, tc.path, tc.body, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
			assert.Equal(t, "invalid credentials", env.Error.Message)
		})
	}
}

func TestHandler_Validation(t *testing.T) {
	f := newServiceFixture(t)
	router := newTestRouter(f)

	rec, env := do(t, router, http.MethodPost, "/auth/login", map[string]string{"username": "alice"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

type unavailableRepo struct {
	Repository
}

func (unavailableRepo) Atomically(context.Context, func(Repository) error) error {
	return errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func TestHandler_StoreUnavailable(t *testing.T) {
	f := newServiceFixture(t)
	f.service.store = NewStore(unavailableRepo{Repository: f.repo}, testStoreConfig, f.reporter, discardLogger())
	router := newTestRouter(f)

	rec, env := do(t, router, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: "whatever"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "STORE_UNAVAILABLE", env.Error.Code)
}

func TestHandler_SessionsRequirePrincipal(t *testing.T) {
	f := newServiceFixture(t)
	router := newTestRouter(f)
	ctx := context.Background()

	rec, _ := do(t, router, http.MethodGet, "/auth/sessions", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	mine, err := f.store.Issue(ctx, userID, meta, f.clock.Now())
	require.NoError(t, err)

	rec, env := do(t, router, http.MethodGet, "/auth/sessions", nil, userID)
	require.Equal(t, http.StatusOK, rec.Code)
	var list SessionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, mine.Record.ID, list.Sessions[0].ID)
	assert.NotContains(t, string(env.Data), mine.Record.TokenHash)

	rec, _ = do(t, router, http.MethodDelete, "/auth/sessions/"+mine.Record.ID, nil, "intruder")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, router, http.MethodDelete, "/auth/sessions/"+mine.Record.ID, nil, userID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = do(t, router, http.MethodPost, "/auth/logout-all", nil, userID)
	require.Equal(t, http.StatusOK, rec.Code)
	var revoked RevokedResponse
	require.NoError(t, json.Unmarshal(env.Data, &revoked))
	assert.Zero(t, revoked.Revoked)
}

func TestHandler_LogoutWithoutAccessToken(t *testing.T) {
	f := newServiceFixture(t)
	router := newTestRouter(f)

	issued, err := f.store.Issue(context.Background(), userID, meta, f.clock.Now())
	require.NoError(t, err)

	rec, _ := do(t, router, http.MethodPost, "/auth/logout", RefreshRequest{RefreshToken: issued.Raw}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = f.store.Rotate(context.Background(), issued.Raw, meta, f.clock.Now())
	assert.ErrorIs(t, err, core.ErrRefreshTokenReuseDetected)
}
