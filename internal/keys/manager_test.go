// AngelaMos | 2026
// manager_test.go

package keys

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/clock"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, grace time.Duration) (*Manager, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(clk, grace, logger), clk
}

func TestManager_NoActiveKey(t *testing.T) {
	m, _ := newTestManager(t, time.Minute)

	_, err := m.CurrentSigningKey()
	assert.ErrorIs(t, err, core.ErrNoActiveKey)

	_, err = m.CurrentKeyID()
	assert.ErrorIs(t, err, core.ErrNoActiveKey)

	assert.Empty(t, m.VerificationKeys())
}

func TestManager_RotateDemotesPrevious(t *testing.T) {
	m, clk := newTestManager(t, 10*time.Minute)
	ctx := context.Background()

	first, err := m.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, first.Status)

	clk.Advance(time.Minute)

	second, err := m.Rotate(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	kid, err := m.CurrentKeyID()
	require.NoError(t, err)
	assert.Equal(t, second.ID, kid)

	vks := m.VerificationKeys()
	require.Len(t, vks, 2)
	assert.Equal(t, second.ID, vks[0].ID)
	assert.Equal(t, first.ID, vks[1].ID)
	assert.Equal(t, StatusRetiring, vks[1].Status)
	assert.Equal(t, clk.Now().Add(10*time.Minute), vks[1].RetiresAt)
}

func TestManager_GraceWindowElapsesAtCallTime(t *testing.T) {
	m, clk := newTestManager(t, 5*time.Minute)
	ctx := context.Background()

	old, err := m.Rotate(ctx)
	require.NoError(t, err)
	_, err = m.Rotate(ctx)
	require.NoError(t, err)

	clk.Advance(5*time.Minute - time.Second)
	require.Len(t, m.VerificationKeys(), 2)

	clk.Advance(time.Second)
	vks := m.VerificationKeys()
	require.Len(t, vks, 1)
	assert.NotEqual(t, old.ID, vks[0].ID)

	listed := m.Keys()
	require.Len(t, listed, 2)
	assert.Equal(t, StatusRetired, listed[1].Status)

	assert.Equal(t, 1, m.Prune())
	assert.Len(t, m.Keys(), 1)
	assert.Equal(t, 0, m.Prune())
}

func TestManager_RetiringOrderNewestFirst(t *testing.T) {
	m, clk := newTestManager(t, time.Hour)
	ctx := context.Background()

	a, err := m.Rotate(ctx)
	require.NoError(t, err)
	clk.Advance(time.Minute)
	b, err := m.Rotate(ctx)
	require.NoError(t, err)
	clk.Advance(time.Minute)
	c, err := m.Rotate(ctx)
	require.NoError(t, err)

	vks := m.VerificationKeys()
	require.Len(t, vks, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{vks[0].ID, vks[1].ID, vks[2].ID})
}

func TestManager_InstallFromPEM(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	kid, err := GenerateKeyPair(privPath, pubPath)
	require.NoError(t, err)
	require.NotEmpty(t, kid)

	priv, err := LoadPEM(privPath)
	require.NoError(t, err)

	m, _ := newTestManager(t, time.Minute)
	installed, err := m.Install(priv)
	require.NoError(t, err)

	again, err := LoadPEM(privPath)
	require.NoError(t, err)
	m2, _ := newTestManager(t, time.Minute)
	reinstalled, err := m2.Install(again)
	require.NoError(t, err)

	assert.Equal(t, installed.ID, reinstalled.ID, "kid is stable across loads")
}

func TestManager_InstallRetiring(t *testing.T) {
	m, clk := newTestManager(t, time.Minute)

	active, err := generateKey()
	require.NoError(t, err)
	previous, err := generateKey()
	require.NoError(t, err)
	stale, err := generateKey()
	require.NoError(t, err)

	_, err = m.Install(active)
	require.NoError(t, err)

	prev, err := m.InstallRetiring(previous, clk.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = m.InstallRetiring(stale, clk.Now().Add(-time.Second))
	require.NoError(t, err)

	vks := m.VerificationKeys()
	require.Len(t, vks, 2)
	assert.Equal(t, prev.ID, vks[1].ID)
}

func TestManager_JWKSHandler(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	_, err := m.Rotate(ctx)
	require.NoError(t, err)
	_, err = m.Rotate(ctx)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.JWKSHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Keys, 2)
	for _, k := range body.Keys {
		assert.Equal(t, "EC", k["kty"])
		assert.NotContains(t, k, "d", "private material must not be published")
	}
}

func TestManager_ConcurrentReadsDuringRotation(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	_, err := m.Rotate(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				key, err := m.CurrentSigningKey()
				if assert.NoError(t, err) {
					assert.Equal(t, StatusActive, key.Status)
				}
				assert.NotEmpty(t, m.VerificationKeys())
			}
		}()
	}

	for range 5 {
		_, err := m.Rotate(ctx)
		require.NoError(t, err)
	}
	wg.Wait()
}
