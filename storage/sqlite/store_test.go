package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopkit/cartsync"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cartsync_test.db")
	store, err := New(DefaultConfig(dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_WALEnabledByDefault(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wal_test.db")
	config := DefaultConfig(dbPath)
	require.True(t, config.EnableWAL)
	assert.Contains(t, config.DataSourceName, "_journal_mode=WAL")

	store, err := New(config)
	require.NoError(t, err)
	defer store.Close()

	var journalMode string
	err = store.db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode)
	require.NoError(t, err)
	assert.Equal(t, "wal", journalMode)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "cartsync/cart/replica")
	assert.ErrorIs(t, err, cartsync.ErrNotFound)

	require.NoError(t, store.Set(ctx, "cartsync/cart/replica", []byte(`{"items":[]}`)))
	got, err := store.Get(ctx, "cartsync/cart/replica")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"items":[]}`), got)

	// Upsert overwrites in place.
	require.NoError(t, store.Set(ctx, "cartsync/cart/replica", []byte(`{"items":[1]}`)))
	got, err = store.Get(ctx, "cartsync/cart/replica")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"items":[1]}`), got)

	require.NoError(t, store.Delete(ctx, "cartsync/cart/replica"))
	require.NoError(t, store.Delete(ctx, "cartsync/cart/replica"), "missing keys are not an error")
	_, err = store.Get(ctx, "cartsync/cart/replica")
	assert.ErrorIs(t, err, cartsync.ErrNotFound)
}

func TestSQLiteStore_KeysAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cartsync/cart/replica", []byte("cart")))
	require.NoError(t, store.Set(ctx, "cartsync/saved/replica", []byte("saved")))
	require.NoError(t, store.Delete(ctx, "cartsync/cart/replica"))

	got, err := store.Get(ctx, "cartsync/saved/replica")
	require.NoError(t, err)
	assert.Equal(t, []byte("saved"), got)
}

func TestSQLiteStore_ClosedStoreRejectsOperations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "double close is safe")

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Set(ctx, "k", []byte("v")), ErrStoreClosed)
	assert.ErrorIs(t, store.Delete(ctx, "k"), ErrStoreClosed)
}

func TestSQLiteStore_ConfigValidation(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&Config{})
	require.Error(t, err, "empty data source rejected")
}
