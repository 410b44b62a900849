package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	syncErrors "github.com/shopkit/cartsync/errors"
	"github.com/shopkit/cartsync/logging"
)

// CoordinatorState is a step of the sync state machine. The machine is
// re-entered on every guest-to-authenticated transition and on every
// reconnect while authenticated.
type CoordinatorState int32

const (
	StateGuest CoordinatorState = iota
	StateAuthenticating
	StateMerging
	StateDraining
	StateSynced
)

func (s CoordinatorState) String() string {
	switch s {
	case StateGuest:
		return "guest"
	case StateAuthenticating:
		return "authenticating"
	case StateMerging:
		return "merging"
	case StateDraining:
		return "draining"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// SyncResult provides information about a completed merge+drain run
type SyncResult struct {
	// List identifies which instance the run reconciled
	List ListKind

	// MergedItems is the number of replica items absorbed by the server
	MergedItems int

	// OpsApplied is the number of queued operations delivered during drain
	OpsApplied int

	// OpsDropped is the number of queued operations permanently dropped
	// after exhausting their retry budget
	OpsDropped int

	// Remote is the server state after the merge, when one happened
	Remote *RemoteState

	// Errors contains any errors that occurred during the run
	Errors []error

	// StartTime is when the run began
	StartTime time.Time

	// Duration is how long the run took
	Duration time.Duration
}

// CoordinatorConfig carries the collaborators of a Coordinator.
type CoordinatorConfig struct {
	List      ListKind
	Replica   ReplicaStore
	Queue     OperationQueue
	Gateway   RemoteGateway
	Policy    ConflictPolicy
	Publisher *Publisher
	Metrics   MetricsCollector
	Logger    *logging.Logger
}

// Coordinator reconciles the local replica with the server copy. A run merges
// the replica via the gateway's bulk sync endpoint, clears the replica and
// retires the queued operations it embodied only after the server
// acknowledged absorption, then drains the remaining queue strictly FIFO with
// bounded per-operation retries.
//
// Only one run is active at a time: re-entrant triggers (a rapid
// online/offline flap) are no-ops while a run is in progress. Live user
// mutations are never blocked by a run; they append to the end of the queue
// through the dispatcher.
type Coordinator struct {
	list      ListKind
	replica   ReplicaStore
	queue     OperationQueue
	gateway   RemoteGateway
	policy    ConflictPolicy
	publisher *Publisher
	metrics   MetricsCollector
	logger    *logging.Logger

	mu             sync.Mutex
	state          CoordinatorState
	syncInProgress atomic.Bool
}

// NewCoordinator creates a coordinator for one list instance.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	policy := cfg.Policy
	if policy == "" {
		policy = SumQuantities
	}
	return &Coordinator{
		list:      cfg.List,
		replica:   cfg.Replica,
		queue:     cfg.Queue,
		gateway:   cfg.Gateway,
		policy:    policy,
		publisher: cfg.Publisher,
		metrics:   metrics,
		logger:    logger.WithComponent("coordinator").WithList(string(cfg.List)),
		state:     StateGuest,
	}
}

// State returns the current state of the sync machine.
func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ResetToGuest returns the machine to its initial state after a sign-out.
func (c *Coordinator) ResetToGuest() {
	c.setState(StateGuest)
}

// DiscardLocal clears the replica and the pending queue and returns the
// machine to the guest state. The client uses it on a direct account switch,
// where the previous user's unsynced local state must not merge into the new
// account.
func (c *Coordinator) DiscardLocal(ctx context.Context) error {
	var errs []error
	if err := c.replica.Clear(ctx); err != nil {
		errs = append(errs, syncErrors.WrapOpComponent(err, syncErrors.OpClear, "coordinator"))
	}
	if err := c.queue.Clear(ctx); err != nil {
		errs = append(errs, syncErrors.WrapOpComponent(err, syncErrors.OpClear, "coordinator"))
	}
	c.setState(StateGuest)
	return errors.Join(errs...)
}

func (c *Coordinator) setState(next CoordinatorState) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	if prev != next {
		c.logger.Debug("state transition",
			"from", prev.String(),
			"to", next.String())
	}
}

// Sync runs one merge+drain pass for the given user. A run already in
// progress makes the call a no-op returning (nil, nil). On a merge failure
// the replica is left untouched and the machine stays in the merging state so
// the caller can decide whether to retry or defer.
func (c *Coordinator) Sync(ctx context.Context, userID string) (*SyncResult, error) {
	if userID == "" {
		return nil, syncErrors.NewValidationError(syncErrors.OpSyncReplica,
			fmt.Errorf("user id is empty"))
	}

	if !c.syncInProgress.CompareAndSwap(false, true) {
		c.logger.Debug("sync trigger ignored, run already in progress")
		return nil, nil
	}
	defer c.syncInProgress.Store(false)

	start := time.Now()
	c.logger.Info("starting sync run", "user_id", userID, "policy", string(c.policy))
	c.setState(StateAuthenticating)

	result := &SyncResult{List: c.list, StartTime: start}
	defer func() {
		result.Duration = time.Since(result.StartTime)
		c.metrics.RecordSyncDuration("sync", result.Duration)
		if c.publisher != nil {
			c.publisher.Publish(Event{Type: EventSyncCompleted, List: c.list, Payload: result})
		}
		if len(result.Errors) == 0 {
			c.logger.Info("sync run completed",
				"duration", result.Duration,
				"merged_items", result.MergedItems,
				"ops_applied", result.OpsApplied,
				"ops_dropped", result.OpsDropped)
		} else {
			c.logger.Error("sync run completed with errors",
				"duration", result.Duration,
				"state", c.State().String(),
				"error_count", len(result.Errors))
		}
	}()

	if err := c.merge(ctx, userID, result); err != nil {
		result.Errors = append(result.Errors, err)
		return result, err
	}

	if err := c.drain(ctx, userID, result); err != nil {
		result.Errors = append(result.Errors, err)
		return result, err
	}

	c.setState(StateSynced)
	return result, nil
}

// merge pushes the whole replica through the gateway's bulk sync endpoint.
// The replica is cleared only after the server acknowledged absorption of
// every item that was present at merge start.
func (c *Coordinator) merge(ctx context.Context, userID string, result *SyncResult) error {
	c.setState(StateMerging)
	start := time.Now()

	replica, err := c.replica.Get(ctx)
	if err != nil {
		c.metrics.RecordSyncErrors("merge", string(syncErrors.KindOf(err)))
		return syncErrors.WrapOpComponent(err, syncErrors.OpMerge, "coordinator")
	}

	if replica.IsEmpty() {
		c.logger.Debug("replica empty, skipping merge")
		return nil
	}

	// Operations whose effect the replica carries are settled by a merge
	// that absorbs the replica: adds, and updates or removes of products
	// the replica still holds. A remove (or update) of a product the
	// replica never had targets a server-side item the merge cannot
	// express; it must stay queued for the drain. Snapshot the settled ids
	// now; ops appended during the merge stay queued either way.
	queued, err := c.queue.List(ctx)
	if err != nil {
		c.metrics.RecordSyncErrors("merge", string(syncErrors.KindOf(err)))
		return syncErrors.WrapOpComponent(err, syncErrors.OpMerge, "coordinator")
	}
	present := make(map[string]bool, len(replica.Items))
	for _, item := range replica.Items {
		present[item.ProductID] = true
	}
	var settled []QueuedOperation
	for _, op := range queued {
		if op.Kind == OperationAdd || present[op.Payload.ProductID] {
			settled = append(settled, op)
		}
	}

	c.logger.Debug("merging replica",
		"items", len(replica.Items),
		"settled_ops", len(settled),
		"session_id", replica.SessionID)

	remote, err := c.gateway.SyncReplica(ctx, userID, replica, c.policy)
	if err != nil {
		c.metrics.RecordSyncErrors("merge", string(syncErrors.KindOf(err)))
		c.logger.LogError(ctx, err, "merge failed, replica preserved",
			"items", len(replica.Items))
		return syncErrors.WrapOpComponent(err, syncErrors.OpMerge, "coordinator")
	}

	result.MergedItems = len(replica.Items)
	result.Remote = remote
	c.metrics.RecordMergedItems(result.MergedItems)
	c.metrics.RecordSyncDuration("merge", time.Since(start))

	if err := c.replica.Clear(ctx); err != nil {
		// The server absorbed the items; a failed clear only risks a
		// re-merge on the next run. Record it and keep going.
		c.logger.LogError(ctx, err, "replica clear failed after acknowledged merge")
		result.Errors = append(result.Errors, syncErrors.WrapOpComponent(err, syncErrors.OpClear, "coordinator"))
	}

	for _, op := range settled {
		if err := c.queue.Remove(ctx, op.ID); err != nil {
			c.logger.LogError(ctx, err, "failed to retire merged operation",
				"operation_id", op.ID)
		}
	}

	return nil
}

// drain replays queued operations in strict enqueue order. A transient
// failure increments the operation's retry count and stops the run so later
// operations never overtake an earlier one; once the retry budget is
// exhausted the operation is dropped with a logged permanent failure.
func (c *Coordinator) drain(ctx context.Context, userID string, result *SyncResult) error {
	c.setState(StateDraining)
	start := time.Now()
	defer func() {
		c.metrics.RecordSyncDuration("drain", time.Since(start))
		c.metrics.RecordDrainedOps(result.OpsApplied, result.OpsDropped)
	}()

	ops, err := c.queue.List(ctx)
	if err != nil {
		c.metrics.RecordSyncErrors("drain", string(syncErrors.KindOf(err)))
		return syncErrors.WrapOpComponent(err, syncErrors.OpDrain, "coordinator")
	}

	if len(ops) == 0 {
		c.logger.Debug("queue empty, nothing to drain")
		return nil
	}

	c.logger.Debug("draining queue", "operations", len(ops))

	for _, op := range ops {
		if op.Exhausted() {
			// Should have been removed when it exhausted; clean up.
			c.dropOperation(ctx, op, result)
			continue
		}

		applyErr := c.applyOperation(ctx, userID, op)
		if applyErr == nil {
			if err := c.queue.Remove(ctx, op.ID); err != nil {
				c.logger.LogError(ctx, err, "failed to remove applied operation",
					"operation_id", op.ID)
			}
			result.OpsApplied++
			continue
		}

		if syncErrors.IsKind(applyErr, syncErrors.KindInvalid) {
			// Malformed operation; retrying cannot fix it.
			c.logger.Error("dropping malformed queued operation",
				"operation_id", op.ID,
				"kind", string(op.Kind),
				"error", applyErr)
			if err := c.queue.Remove(ctx, op.ID); err != nil {
				c.logger.LogError(ctx, err, "failed to remove malformed operation",
					"operation_id", op.ID)
			} else {
				result.OpsDropped++
			}
			continue
		}

		if syncErrors.IsAuth(applyErr) {
			// Retrying without re-authentication would burn the budget of
			// every remaining operation for nothing.
			c.metrics.RecordSyncErrors("drain", string(syncErrors.KindOf(applyErr)))
			c.logger.Warn("drain halted, re-authentication required",
				"operation_id", op.ID,
				"error", applyErr)
			return syncErrors.WrapOpComponent(applyErr, syncErrors.OpDrain, "coordinator")
		}

		if err := c.queue.MarkRetried(ctx, op.ID); err != nil {
			c.logger.LogError(ctx, err, "failed to mark operation retried",
				"operation_id", op.ID)
		}
		op.RetryCount++

		if op.Exhausted() {
			c.dropOperation(ctx, op, result)
			continue
		}

		// Stopping here preserves FIFO: later operations must not be
		// applied before this one succeeds or exhausts its budget.
		c.metrics.RecordSyncErrors("drain", string(syncErrors.KindOf(applyErr)))
		c.logger.Warn("drain stopped on transient failure",
			"operation_id", op.ID,
			"retry_count", op.RetryCount,
			"max_retries", op.MaxRetries,
			"error", applyErr)
		return syncErrors.WrapOpComponent(applyErr, syncErrors.OpDrain, "coordinator")
	}

	return nil
}

// dropOperation removes an operation that exhausted its retry budget,
// leaving a log record of the permanent failure.
func (c *Coordinator) dropOperation(ctx context.Context, op QueuedOperation, result *SyncResult) {
	if err := c.queue.Remove(ctx, op.ID); err != nil {
		c.logger.LogError(ctx, err, "failed to remove exhausted operation",
			"operation_id", op.ID)
		return
	}
	result.OpsDropped++
	c.logger.Error("operation dropped after exhausting retries",
		"operation_id", op.ID,
		"kind", string(op.Kind),
		"product_id", op.Payload.ProductID,
		"retry_count", op.RetryCount,
		"max_retries", op.MaxRetries)
	if c.publisher != nil {
		c.publisher.Publish(Event{Type: EventOperationDropped, List: c.list, Payload: op})
	}
}

func (c *Coordinator) applyOperation(ctx context.Context, userID string, op QueuedOperation) error {
	switch op.Kind {
	case OperationAdd:
		_, err := c.gateway.AddItem(ctx, userID, op.Payload.ProductID, op.Payload.Quantity, op.Payload.UnitPrice)
		return err
	case OperationRemove:
		_, err := c.gateway.RemoveItem(ctx, userID, op.Payload.ProductID)
		return err
	case OperationUpdateQuantity:
		_, err := c.gateway.UpdateQuantity(ctx, userID, op.Payload.ProductID, op.Payload.Quantity)
		return err
	default:
		return syncErrors.NewValidationError(syncErrors.OpDrain,
			fmt.Errorf("unknown operation kind %q", op.Kind))
	}
}
