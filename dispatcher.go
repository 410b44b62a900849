package cartsync

import (
	"context"
	"fmt"

	syncErrors "github.com/shopkit/cartsync/errors"
	"github.com/shopkit/cartsync/logging"
)

// StateSource reports which authority served a read.
type StateSource string

const (
	SourceRemote  StateSource = "remote"
	SourceReplica StateSource = "replica"
)

// MutationResult describes how a mutation was absorbed. The caller always gets
// an updated view: remote when the server accepted the call, local otherwise.
type MutationResult struct {
	Mode   Mode
	Remote *RemoteState
	Local  *Replica

	// Queued is true when a compensating operation was appended for later
	// delivery to the server.
	Queued bool
}

// StateView is the consistent read the dispatcher guarantees under any
// combination of auth and connectivity.
type StateView struct {
	Mode   Mode
	Source StateSource
	Remote *RemoteState
	Local  *Replica
}

// DispatcherConfig carries the collaborators of a Dispatcher.
type DispatcherConfig struct {
	List      ListKind
	Replica   ReplicaStore
	Queue     OperationQueue
	Gateway   RemoteGateway
	Status    StatusProvider
	Publisher *Publisher
	Metrics   MetricsCollector
	Logger    *logging.Logger
}

// Dispatcher is the mode-dispatch facade. Every call classifies the session
// as (guest|authenticated) x (online|offline) fresh and executes the
// appropriate path:
//
//	guest                -> mutate the local replica only
//	authenticated+offline-> mutate the replica, enqueue the same mutation
//	authenticated+online -> attempt the remote call; on failure mutate the
//	                        replica and enqueue as a compensating fallback
//
// A guest or offline user never sees an error for an ordinary mutation.
type Dispatcher struct {
	list      ListKind
	replica   ReplicaStore
	queue     OperationQueue
	gateway   RemoteGateway
	status    StatusProvider
	publisher *Publisher
	metrics   MetricsCollector
	logger    *logging.Logger
}

// NewDispatcher creates a dispatcher for one list instance.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Dispatcher{
		list:      cfg.List,
		replica:   cfg.Replica,
		queue:     cfg.Queue,
		gateway:   cfg.Gateway,
		status:    cfg.Status,
		publisher: cfg.Publisher,
		metrics:   metrics,
		logger:    logger.WithComponent("dispatcher").WithList(string(cfg.List)),
	}
}

// List returns the list instance this dispatcher serves.
func (d *Dispatcher) List() ListKind { return d.list }

// AddItem adds quantity of the product at the given unit price. Duplicate
// adds merge by summing quantity on whichever authority absorbs the write.
func (d *Dispatcher) AddItem(ctx context.Context, productID string, quantity int, price float64, snapshot Snapshot) (*MutationResult, error) {
	if err := validateProductID(syncErrors.OpAddItem, productID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, syncErrors.NewValidationError(syncErrors.OpAddItem,
			fmt.Errorf("quantity must be positive, got %d", quantity))
	}
	if price < 0 {
		return nil, syncErrors.NewValidationError(syncErrors.OpAddItem,
			fmt.Errorf("price must not be negative, got %v", price))
	}

	return d.dispatch(ctx, syncErrors.OpAddItem,
		OperationAdd,
		OperationPayload{ProductID: productID, Quantity: quantity, UnitPrice: price},
		func(userID string) (*RemoteState, error) {
			return d.gateway.AddItem(ctx, userID, productID, quantity, price)
		},
		func() (*Replica, error) {
			return d.replica.AddItem(ctx, productID, quantity, price, snapshot)
		},
	)
}

// RemoveItem removes the product. Removing an absent product is a no-op.
func (d *Dispatcher) RemoveItem(ctx context.Context, productID string) (*MutationResult, error) {
	if err := validateProductID(syncErrors.OpRemoveItem, productID); err != nil {
		return nil, err
	}

	return d.dispatch(ctx, syncErrors.OpRemoveItem,
		OperationRemove,
		OperationPayload{ProductID: productID},
		func(userID string) (*RemoteState, error) {
			return d.gateway.RemoveItem(ctx, userID, productID)
		},
		func() (*Replica, error) {
			return d.replica.RemoveItem(ctx, productID)
		},
	)
}

// UpdateQuantity sets the product's quantity. Zero or less removes the item.
func (d *Dispatcher) UpdateQuantity(ctx context.Context, productID string, quantity int) (*MutationResult, error) {
	if err := validateProductID(syncErrors.OpUpdateQuantity, productID); err != nil {
		return nil, err
	}

	return d.dispatch(ctx, syncErrors.OpUpdateQuantity,
		OperationUpdateQuantity,
		OperationPayload{ProductID: productID, Quantity: quantity},
		func(userID string) (*RemoteState, error) {
			return d.gateway.UpdateQuantity(ctx, userID, productID, quantity)
		},
		func() (*Replica, error) {
			return d.replica.UpdateQuantity(ctx, productID, quantity)
		},
	)
}

// GetState reads the list. The online+authenticated path reads the gateway
// (enriched first, basic second) and degrades to the replica if both tiers
// fail, so the caller always gets a consistent view.
func (d *Dispatcher) GetState(ctx context.Context) (*StateView, error) {
	session := d.status.Session()
	mode := ClassifyMode(session, d.status.Online())

	if mode == ModeOnline {
		remote, err := d.gateway.FetchState(ctx, session.UserID)
		if err == nil {
			return &StateView{Mode: mode, Source: SourceRemote, Remote: remote}, nil
		}
		d.logger.Warn("remote read failed, degrading to replica",
			"user_id", session.UserID, "error", err)
		d.metrics.RecordLocalFallback(string(syncErrors.OpFetchState))
	}

	local, err := d.replica.Get(ctx)
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, syncErrors.OpFetchState, "dispatcher")
	}
	return &StateView{Mode: mode, Source: SourceReplica, Local: local}, nil
}

// dispatch runs the mode table for one mutation. The local mutation is always
// applied before the compensating operation is enqueued, so the queue never
// holds an effect the user has not already seen.
func (d *Dispatcher) dispatch(ctx context.Context, op syncErrors.Operation, kind OperationKind, payload OperationPayload, remote func(string) (*RemoteState, error), local func() (*Replica, error)) (*MutationResult, error) {
	session := d.status.Session()
	mode := ClassifyMode(session, d.status.Online())

	d.logger.Debug("dispatching mutation",
		"operation", string(op),
		"mode", mode.String(),
		"product_id", payload.ProductID)

	if mode == ModeOnline {
		state, err := remote(session.UserID)
		if err == nil {
			d.publishUpdated(state, nil)
			return &MutationResult{Mode: mode, Remote: state}, nil
		}
		d.logger.Warn("remote mutation failed, falling back to replica",
			"operation", string(op),
			"user_id", session.UserID,
			"error", err)
		d.metrics.RecordLocalFallback(string(op))
	}

	replica, err := local()
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, op, "dispatcher")
	}

	queued := false
	if mode != ModeGuest {
		if _, qErr := d.queue.Enqueue(ctx, kind, payload); qErr != nil {
			// The queue keeps the intent in memory even when persistence
			// fails; nothing further to do beyond the trace.
			d.logger.LogError(ctx, qErr, "enqueue failed",
				"operation", string(op))
		}
		queued = true
	}

	d.publishUpdated(nil, replica)
	return &MutationResult{Mode: mode, Local: replica, Queued: queued}, nil
}

func (d *Dispatcher) publishUpdated(remote *RemoteState, local *Replica) {
	if d.publisher == nil {
		return
	}
	payload := interface{}(remote)
	if remote == nil {
		payload = local
	}
	d.publisher.Publish(Event{Type: EventStateUpdated, List: d.list, Payload: payload})
}

func validateProductID(op syncErrors.Operation, productID string) error {
	if productID == "" {
		return syncErrors.NewValidationError(op, fmt.Errorf("product id is empty"))
	}
	return nil
}
