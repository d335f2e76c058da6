package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_PutUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	entry := Entry{
		Fingerprint: "fp",
		Value:       []byte("payload"),
		CreatedAt:   time.Unix(100, 0).UTC(),
		ExpiresAt:   time.Unix(200, 0).UTC(),
	}
	mock.ExpectExec("INSERT INTO cache_entries").
		WithArgs(entry.Fingerprint, entry.Value, entry.CreatedAt, entry.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Put(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRoundTrips(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	created := time.Unix(100, 0).UTC()
	expires := time.Unix(200, 0).UTC()
	mock.ExpectQuery("SELECT value, created_at, expires_at FROM cache_entries").
		WithArgs("fp").
		WillReturnRows(pgxmock.NewRows([]string{"value", "created_at", "expires_at"}).
			AddRow([]byte("payload"), created, expires))

	entry, ok, err := store.Get(context.Background(), "fp")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "fp", entry.Fingerprint)
	require.Equal(t, []byte("payload"), entry.Value)
	require.Equal(t, expires, entry.ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value, created_at, expires_at FROM cache_entries").
		WithArgs("absent").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value, created_at, expires_at FROM cache_entries").
		WithArgs("fp").
		WillReturnError(errors.New("connection reset"))

	_, _, err = store.Get(context.Background(), "fp")
	require.Error(t, err)
}

func TestNewPostgresStoreWithPool_RequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresStoreWithPool(nil)
	require.Error(t, err)
}
