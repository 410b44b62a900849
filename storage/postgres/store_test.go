package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopkit/cartsync"
)

// newTestStore connects to the database named by POSTGRES_TEST_CONNECTION.
// Tests that need a live server are skipped when it is unset.
func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	connStr := os.Getenv("POSTGRES_TEST_CONNECTION")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_CONNECTION not set")
	}

	config := DefaultConfig(connStr)
	config.TableName = fmt.Sprintf("records_test_%d", time.Now().UnixNano())
	store, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", config.TableName))
		_ = store.Close()
	})
	return store
}

func TestPostgresStore_RoundTrip(t *testing.T) {
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

func TestPostgresStore_KeysAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cartsync/cart/replica", []byte("cart")))
	require.NoError(t, store.Set(ctx, "cartsync/saved/replica", []byte("saved")))
	require.NoError(t, store.Delete(ctx, "cartsync/cart/replica"))

	got, err := store.Get(ctx, "cartsync/saved/replica")
	require.NoError(t, err)
	assert.Equal(t, []byte("saved"), got)
}

func TestPostgresStore_ClosedStoreRejectsOperations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "double close is safe")

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Set(ctx, "k", []byte("v")), ErrStoreClosed)
	assert.ErrorIs(t, store.Delete(ctx, "k"), ErrStoreClosed)
}

func TestPostgresStore_ConfigValidation(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&Config{})
	require.Error(t, err, "empty connection string rejected")
}

func TestPostgresStore_Defaults(t *testing.T) {
	config := DefaultConfig("postgres://localhost/cartsync")
	assert.Equal(t, "records", config.TableName)
	assert.Equal(t, 25, config.MaxOpenConns)
	assert.Equal(t, 5, config.MaxIdleConns)
	assert.Equal(t, time.Hour, config.ConnMaxLifetime)
	assert.Equal(t, 5*time.Minute, config.ConnMaxIdleTime)
}
