package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopkit/cartsync"
	"github.com/shopkit/cartsync/storage/memory"
)

func TestStore_RoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, cartsync.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v1")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, s.Set(ctx, "k", []byte("v2")))
	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"), "deleting a missing key is not an error")
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, cartsync.ErrNotFound)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("abc")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'x'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestStore_QuotaRejectsOversizedWrites(t *testing.T) {
	s := memory.NewWithQuota(10)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("12345")))

	err := s.Set(ctx, "b", []byte("1234567890"))
	require.Error(t, err)
	assert.ErrorIs(t, err, cartsync.ErrQuotaExceeded)

	// Overwriting a key counts the replacement, not both versions.
	require.NoError(t, s.Set(ctx, "a", []byte("1234567890")))
}

func TestStore_ClosedStoreRejectsOperations(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.Set(ctx, "k", []byte("v")))
	assert.Error(t, s.Delete(ctx, "k"))
}
