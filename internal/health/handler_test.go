// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) error { return nil }

func get(t *testing.T, h *Handler, path string) (int, ReadinessResponse) {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadiness(t *testing.T) {
	h := NewHandler().
		Register("redis", CheckerFunc(healthy)).
		Register("signing_key", CheckerFunc(healthy))

	code, body := get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Checks, 2)
	assert.Equal(t, "redis", body.Checks[0].Name)
	assert.Equal(t, "signing_key", body.Checks[1].Name)
}

func TestReadinessDegraded(t *testing.T) {
	h := NewHandler().
		Register("database", CheckerFunc(func(context.Context) error { return errors.New("down") })).
		Register("redis", nil)

	code, body := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body.Status)
	assert.False(t, body.Checks[0].Healthy)
	assert.Equal(t, "ping failed", body.Checks[0].Message)
	assert.Equal(t, "redis checker not configured", body.Checks[1].Message)
}

func TestShutdownFailsBothProbes(t *testing.T) {
	h := NewHandler()
	code, _ := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)

	h.SetShutdown(true)
	code, body := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "shutting_down", body.Status)

	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
