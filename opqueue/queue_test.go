package opqueue_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopkit/cartsync"
	syncErrors "github.com/shopkit/cartsync/errors"
	"github.com/shopkit/cartsync/opqueue"
	"github.com/shopkit/cartsync/storage/memory"
)

// brokenKV fails every write, standing in for a dead persistence backend.
type brokenKV struct {
	cartsync.KVStore
}

func (b *brokenKV) Set(ctx context.Context, key string, value []byte) error {
	return fmt.Errorf("disk on fire")
}

func (b *brokenKV) Delete(ctx context.Context, key string) error {
	return fmt.Errorf("disk on fire")
}

func TestQueue_ListReturnsFIFOOrder(t *testing.T) {
	q := opqueue.New(memory.New(), opqueue.Options{List: cartsync.ListCart})
	ctx := context.Background()

	for i, productID := range []string{"p1", "p2", "p3"} {
		op, err := q.Enqueue(ctx, cartsync.OperationAdd, cartsync.OperationPayload{ProductID: productID, Quantity: i + 1})
		require.NoError(t, err)
		assert.Equal(t, 0, op.RetryCount)
		assert.Equal(t, cartsync.DefaultMaxRetries, op.MaxRetries)
	}

	ops, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "p1", ops[0].Payload.ProductID)
	assert.Equal(t, "p2", ops[1].Payload.ProductID)
	assert.Equal(t, "p3", ops[2].Payload.ProductID)
}

func TestQueue_MarkRetriedIncrementsMonotonically(t *testing.T) {
	q := opqueue.New(memory.New(), opqueue.Options{MaxRetries: 3})
	ctx := context.Background()

	op, err := q.Enqueue(ctx, cartsync.OperationRemove, cartsync.OperationPayload{ProductID: "p1"})
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		require.NoError(t, q.MarkRetried(ctx, op.ID))
		ops, err := q.List(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, want, ops[0].RetryCount)
	}

	ops, _ := q.List(ctx)
	assert.True(t, ops[0].Exhausted())

	err = q.MarkRetried(ctx, "no-such-id")
	require.Error(t, err)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindInternal))
}

func TestQueue_RemoveUnknownIDIsNoOp(t *testing.T) {
	q := opqueue.New(memory.New(), opqueue.Options{})
	ctx := context.Background()

	op, err := q.Enqueue(ctx, cartsync.OperationAdd, cartsync.OperationPayload{ProductID: "p1"})
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, "no-such-id"))
	ops, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 1)

	require.NoError(t, q.Remove(ctx, op.ID))
	ops, err = q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestQueue_SurvivesRestartThroughPersistence(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()

	q := opqueue.New(kv, opqueue.Options{List: cartsync.ListSaved})
	_, err := q.Enqueue(ctx, cartsync.OperationAdd, cartsync.OperationPayload{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, cartsync.OperationRemove, cartsync.OperationPayload{ProductID: "p2"})
	require.NoError(t, err)

	// A new queue over the same backend sees the same operations.
	restarted := opqueue.New(kv, opqueue.Options{List: cartsync.ListSaved})
	ops, err := restarted.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, cartsync.OperationAdd, ops[0].Kind)
	assert.Equal(t, cartsync.OperationRemove, ops[1].Kind)
}

func TestQueue_PersistenceFailureDoesNotFailScheduling(t *testing.T) {
	q := opqueue.New(&brokenKV{KVStore: memory.New()}, opqueue.Options{})
	ctx := context.Background()

	op, err := q.Enqueue(ctx, cartsync.OperationAdd, cartsync.OperationPayload{ProductID: "p1"})
	require.NoError(t, err, "a dead backend must not lose the in-memory intent")

	ops, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, op.ID, ops[0].ID)
}

func TestQueue_ClearDropsEverything(t *testing.T) {
	kv := memory.New()
	q := opqueue.New(kv, opqueue.Options{List: cartsync.ListCart})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, cartsync.OperationAdd, cartsync.OperationPayload{ProductID: "p1"})
	require.NoError(t, err)

	require.NoError(t, q.Clear(ctx))

	ops, err := q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)

	_, err = kv.Get(ctx, "cartsync/cart/pending-ops")
	assert.ErrorIs(t, err, cartsync.ErrNotFound)
}
