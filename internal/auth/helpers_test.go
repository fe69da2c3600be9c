// AngelaMos | 2026
// helpers_test.go

package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/clock"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/keys"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/token"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testStoreConfig = StoreConfig{
	RefreshTTL:       24 * time.Hour,
	ExpiredRetention: 30 * 24 * time.Hour,
	RevokedRetention: 7 * 24 * time.Hour,
	Timeout:          time.Second,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingReporter struct {
	mu        sync.Mutex
	incidents []SecurityIncident
}

func (r *recordingReporter) Report(_ context.Context, incident SecurityIncident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, incident)
}

func (r *recordingReporter) all() []SecurityIncident {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SecurityIncident(nil), r.incidents...)
}

type storeFixture struct {
	clock    *clock.FakeClock
	repo     *MemoryRepository
	store    *Store
	reporter *recordingReporter
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	repo := NewMemoryRepository()
	reporter := &recordingReporter{}
	return &storeFixture{
		clock:    clock.Fake(epoch),
		repo:     repo,
		store:    NewStore(repo, testStoreConfig, reporter, discardLogger()),
		reporter: reporter,
	}
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*User)
	return u, args.Error(1)
}

func (m *mockDirectory) FindByUsername(ctx context.Context, username string) (*User, error) {
	args := m.Called(ctx, username)
	u, _ := args.Get(0).(*User)
	return u, args.Error(1)
}

const alicePassword = "correct horse battery staple"

var (
	aliceHashOnce sync.Once
	aliceHash     string
)

func testAlice(t *testing.T) *User {
	t.Helper()
	aliceHashOnce.Do(func() {
		h, err := core.HashPassword(alicePassword)
		require.NoError(t, err)
		aliceHash = h
	})
	return &User{
		ID:           "5c3e3a1e-8f1d-4d59-9ad4-5d0c0b7f9a01",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: aliceHash,
		Roles:        []string{"user"},
	}
}

type serviceFixture struct {
	*storeFixture
	keys     *keys.Manager
	verifier *token.Verifier
	users    *mockDirectory
	service  *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	sf := newStoreFixture(t)

	km := keys.NewManager(sf.clock, time.Hour, discardLogger())
	_, err := km.Rotate(context.Background())
	require.NoError(t, err)

	signer := token.NewSigner(km, token.SignerConfig{
		Issuer:   "task-manager",
		Audience: "task-manager-api",
		TTL:      15 * time.Minute,
	})
	users := &mockDirectory{}

	return &serviceFixture{
		storeFixture: sf,
		keys:         km,
		verifier:     token.NewVerifier(token.KeyRingSources{Keys: km}),
		users:        users,
		service:      NewService(sf.store, signer, users, sf.clock, discardLogger()),
	}
}
