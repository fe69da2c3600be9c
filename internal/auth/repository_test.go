// AngelaMos | 2026
// repository_test.go

package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
)

var tokenColumns = []string{
	"id", "user_id", "token_hash", "issued_at", "expires_at",
	"revoked_at", "replaced_by_id", "user_agent", "ip_address",
}

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(sqlx.NewDb(db, "pgx")), mock
}

func TestRepository_FindByHashNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens") + `\s+WHERE token_hash = \$1`).
		WithArgs("deadbeef").
		WillReturnRows(sqlmock.NewRows(tokenColumns))

	_, err := repo.FindByHash(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ConsumeIsConditional(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := epoch

	mock.ExpectExec(`UPDATE refresh_tokens\s+SET revoked_at = \$2, replaced_by_id = \$3\s+WHERE id = \$1 AND revoked_at IS NULL`).
		WithArgs("pred", at, "succ").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE refresh_tokens`).
		WithArgs("pred", at, "other").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Consume(context.Background(), "pred", "succ", at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Consume(context.Background(), "pred", "other", at)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SweepQueriesUseCallerCutoff(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := epoch.Add(-time.Hour)

	mock.ExpectExec(`DELETE FROM refresh_tokens\s+WHERE expires_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM refresh_tokens\s+WHERE revoked_at IS NOT NULL AND revoked_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteExpiredBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	n, err = repo.DeleteRevokedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RotateOverPostgres(t *testing.T) {
	repo, mock := newMockRepo(t)
	store := NewStore(repo, testStoreConfig, &recordingReporter{}, discardLogger())

	now := epoch.Add(time.Hour)
	raw := "presented-refresh-token"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM refresh_tokens\s+WHERE token_hash = \$1\s+FOR UPDATE`).
		WithArgs(core.HashToken(raw)).
		WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(
			"pred", userID, core.HashToken(raw), epoch, epoch.Add(24*time.Hour),
			nil, nil, "agent", "10.0.0.1",
		))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(sqlmock.AnyArg(), userID, sqlmock.AnyArg(), now, now.Add(testStoreConfig.RefreshTTL), meta.UserAgent, meta.IPAddress).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE refresh_tokens\s+SET revoked_at = \$2, replaced_by_id = \$3`).
		WithArgs("pred", now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rot, err := store.Rotate(context.Background(), raw, meta, now)
	require.NoError(t, err)
	assert.Equal(t, "pred", rot.PredecessorID)
	assert.Equal(t, userID, rot.Record.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReuseOverPostgresCommitsPoison(t *testing.T) {
	repo, mock := newMockRepo(t)
	reporter := &recordingReporter{}
	store := NewStore(repo, testStoreConfig, reporter, discardLogger())

	now := epoch.Add(time.Hour)
	revokedAt := epoch.Add(time.Minute)
	successor := "succ"
	raw := "replayed-refresh-token"

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(core.HashToken(raw)).
		WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(
			"pred", userID, core.HashToken(raw), epoch, epoch.Add(24*time.Hour),
			revokedAt, successor, "agent", "10.0.0.1",
		))
	mock.ExpectExec(`UPDATE refresh_tokens\s+SET revoked_at = \$3\s+WHERE user_id = \$1\s+AND issued_at >= \$2`).
		WithArgs(userID, epoch, now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	_, err := store.Rotate(context.Background(), raw, meta, now)
	require.ErrorIs(t, err, core.ErrRefreshTokenReuseDetected)
	assert.NoError(t, mock.ExpectationsWereMet())

	incidents := reporter.all()
	require.Len(t, incidents, 1)
	assert.EqualValues(t, 2, incidents[0].Revoked)
}

func TestStore_DriverFailureIsStoreUnavailable(t *testing.T) {
	repo, mock := newMockRepo(t)
	store := NewStore(repo, testStoreConfig, &recordingReporter{}, discardLogger())

	mock.ExpectBegin().WillReturnError(errors.New("dial tcp: connection refused"))

	_, err := store.Rotate(context.Background(), "raw", meta, epoch)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.False(t, core.IsCredentialError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RollbackOnInsertFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	store := NewStore(repo, testStoreConfig, &recordingReporter{}, discardLogger())
	raw := "raw"

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(core.HashToken(raw)).
		WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(
			"pred", userID, core.HashToken(raw), epoch, epoch.Add(24*time.Hour),
			nil, nil, "", "",
		))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.Rotate(context.Background(), raw, meta, epoch.Add(time.Minute))
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
