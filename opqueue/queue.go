// Package opqueue implements the durable FIFO log of mutations awaiting
// delivery to the server.
package opqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/cartsync"
	syncErrors "github.com/shopkit/cartsync/errors"
	"github.com/shopkit/cartsync/logging"
)

// Options configures a Queue.
type Options struct {
	List       cartsync.ListKind
	MaxRetries int
	Logger     *logging.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Queue is a cartsync.OperationQueue. The in-memory copy is authoritative
// for the session: persistence failures are logged and the queued intent is
// still delivered on the next drain rather than silently lost.
type Queue struct {
	kv         cartsync.KVStore
	key        string
	maxRetries int
	now        func() time.Time
	logger     *logging.Logger

	mu     sync.Mutex
	ops    []cartsync.QueuedOperation
	loaded bool
}

var _ cartsync.OperationQueue = (*Queue)(nil)

// New creates an operation queue persisting under a per-list key in kv.
func New(kv cartsync.KVStore, opts Options) *Queue {
	list := opts.List
	if list == "" {
		list = cartsync.ListCart
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = cartsync.DefaultMaxRetries
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Queue{
		kv:         kv,
		key:        fmt.Sprintf("cartsync/%s/pending-ops", list),
		maxRetries: maxRetries,
		now:        now,
		logger:     logger.WithComponent("opqueue").WithList(string(list)),
	}
}

// load hydrates the in-memory copy from storage once per queue lifetime.
func (q *Queue) load(ctx context.Context) {
	if q.loaded {
		return
	}
	q.loaded = true

	data, err := q.kv.Get(ctx, q.key)
	if err != nil {
		if !errors.Is(err, cartsync.ErrNotFound) {
			q.logger.Warn("failed to load pending operations, starting empty", "error", err)
		}
		return
	}

	if err := json.Unmarshal(data, &q.ops); err != nil {
		q.logger.Warn("dropping corrupt pending-operations record", "error", err)
		q.ops = nil
		if delErr := q.kv.Delete(ctx, q.key); delErr != nil {
			q.logger.Warn("failed to delete corrupt record", "error", delErr)
		}
	}
}

// persist writes the in-memory copy back to storage. Failures are logged,
// never surfaced: the queue must not fail mutation scheduling.
func (q *Queue) persist(ctx context.Context) {
	if len(q.ops) == 0 {
		if err := q.kv.Delete(ctx, q.key); err != nil {
			q.logger.Warn("failed to delete empty queue record", "error", err)
		}
		return
	}

	data, err := json.Marshal(q.ops)
	if err == nil {
		err = q.kv.Set(ctx, q.key, data)
	}
	if err != nil {
		q.logger.Warn("queue persistence failed, keeping in-memory intent",
			"operations", len(q.ops),
			"error", err)
	}
}

// Enqueue appends an operation with a zero retry count.
func (q *Queue) Enqueue(ctx context.Context, kind cartsync.OperationKind, payload cartsync.OperationPayload) (*cartsync.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.load(ctx)

	op := cartsync.QueuedOperation{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: q.now(),
		RetryCount: 0,
		MaxRetries: q.maxRetries,
	}
	q.ops = append(q.ops, op)
	q.persist(ctx)

	q.logger.Debug("operation enqueued",
		"operation_id", op.ID,
		"kind", string(kind),
		"product_id", payload.ProductID,
		"queue_depth", len(q.ops))
	return &op, nil
}

// List returns the queued operations oldest first.
func (q *Queue) List(ctx context.Context) ([]cartsync.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.load(ctx)

	out := make([]cartsync.QueuedOperation, len(q.ops))
	copy(out, q.ops)
	return out, nil
}

// MarkRetried increments the operation's retry count.
func (q *Queue) MarkRetried(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.load(ctx)

	for i := range q.ops {
		if q.ops[i].ID == id {
			q.ops[i].RetryCount++
			q.persist(ctx)
			return nil
		}
	}
	return syncErrors.E(syncErrors.OpDequeue, syncErrors.Component("opqueue"),
		syncErrors.KindInternal, fmt.Errorf("operation %s not found", id))
}

// Remove deletes the operation by id. Removing an unknown id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.load(ctx)

	for i := range q.ops {
		if q.ops[i].ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			q.persist(ctx)
			return nil
		}
	}
	return nil
}

// Clear drops the whole queue.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.loaded = true
	q.ops = nil
	if err := q.kv.Delete(ctx, q.key); err != nil {
		q.logger.Warn("failed to delete queue record", "error", err)
	}
	return nil
}
