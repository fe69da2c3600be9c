// AngelaMos | 2026
// handler_test.go

package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/auth"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/clock"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/keys"
)

type sweeperStub struct {
	res auth.SweepResult
	err error
}

func (s sweeperStub) SweepOnce(context.Context) (auth.SweepResult, error) {
	return s.res, s.err
}

func allow(next http.Handler) http.Handler { return next }

type fixture struct {
	clock   *clock.FakeClock
	keys    *keys.Manager
	router  http.Handler
}

func newFixture(t *testing.T, sweeper SessionSweeper) *fixture {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	km := keys.NewManager(clk, 30*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := km.Rotate(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(HandlerConfig{
		Keys:    km,
		Sweeper: sweeper,
	}).RegisterRoutes(r, allow, allow)

	return &fixture{clock: clk, keys: km, router: r}
}

func (f *fixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env.Data
}

func TestHandler_RotateAndListKeys(t *testing.T) {
	f := newFixture(t, sweeperStub{})
	before, err := f.keys.CurrentKeyID()
	require.NoError(t, err)

	rec, data := f.do(t, http.MethodPost, "/admin/keys/rotate")
	require.Equal(t, http.StatusCreated, rec.Code)
	var rotated KeyResponse
	require.NoError(t, json.Unmarshal(data, &rotated))
	assert.Equal(t, "active", rotated.Status)
	assert.NotEqual(t, before, rotated.ID)

	rec, data = f.do(t, http.MethodGet, "/admin/keys")
	require.Equal(t, http.StatusOK, rec.Code)
	var list KeysResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Keys, 2)
	assert.Equal(t, rotated.ID, list.Keys[0].ID)
	assert.Equal(t, before, list.Keys[1].ID)
	assert.Equal(t, "retiring", list.Keys[1].Status)
	require.NotNil(t, list.Keys[1].RetiresAt)
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), *list.Keys[1].RetiresAt)
}

func TestHandler_Sweep(t *testing.T) {
	f := newFixture(t, sweeperStub{res: auth.SweepResult{Expired: 4, Revoked: 1}})

	rec, data := f.do(t, http.MethodPost, "/admin/sessions/sweep")
	require.Equal(t, http.StatusOK, rec.Code)
	var res auth.SweepResult
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, auth.SweepResult{Expired: 4, Revoked: 1}, res)
}

func TestHandler_SweepStoreOutage(t *testing.T) {
	f := newFixture(t, sweeperStub{err: core.StoreError("sweep", fmt.Errorf("timeout"))})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/sessions/sweep", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_StatsReportActiveKey(t *testing.T) {
	f := newFixture(t, sweeperStub{})
	kid, err := f.keys.CurrentKeyID()
	require.NoError(t, err)

	rec, data := f.do(t, http.MethodGet, "/admin/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats SystemStatsResponse
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, kid, stats.ActiveKeyID)
	assert.Nil(t, stats.Database)
	assert.NotEmpty(t, stats.Runtime.GoVersion)
}
