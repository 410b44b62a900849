package cartsync

import (
	"context"
	"errors"
)

// Sentinel errors shared by the durable storage backends.
var (
	// ErrNotFound is returned by KVStore.Get when no record exists for a key.
	ErrNotFound = errors.New("cartsync: record not found")

	// ErrQuotaExceeded is returned by KVStore.Set when a write would exceed
	// the backend's storage quota. The replica store recovers from it by
	// evicting the oldest items and retrying once.
	ErrQuotaExceeded = errors.New("cartsync: storage quota exceeded")
)

// KVStore is the generic durable key-value store the replica and the
// operation queue persist into. Implementations can use any backend
// (SQLite, in-memory, a browser bridge) as long as records round-trip intact.
type KVStore interface {
	// Get retrieves the record stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set persists value under key, overwriting any previous record.
	// Returns an error wrapping ErrQuotaExceeded when out of space.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the record under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// ReplicaStore is the durable local replica of one list instance.
type ReplicaStore interface {
	// CreateEmpty returns a fresh unsaved replica with a new session id and
	// an expiry of now plus the configured TTL.
	CreateEmpty() *Replica

	// Get returns the current replica, or nil if none exists. An expired
	// replica is cleared from storage as a side effect of the read.
	Get(ctx context.Context) (*Replica, error)

	// Save persists the replica. On a quota failure it evicts the oldest
	// items, keeping the newest K, and retries once before surfacing the error.
	Save(ctx context.Context, replica *Replica) error

	// AddItem merges the product into the replica, summing quantities for an
	// existing product id. Snapshot fields overwrite only when non-empty.
	AddItem(ctx context.Context, productID string, quantity int, price float64, snapshot Snapshot) (*Replica, error)

	// RemoveItem filters the product out. Absent products are a no-op.
	RemoveItem(ctx context.Context, productID string) (*Replica, error)

	// UpdateQuantity sets the product's quantity; a value of zero or less is
	// equivalent to RemoveItem.
	UpdateQuantity(ctx context.Context, productID string, quantity int) (*Replica, error)

	// Clear drops the persisted replica entirely.
	Clear(ctx context.Context) error
}

// OperationQueue is the durable, ordered log of mutations that could not
// reach the server. Persistence failures of the queue never fail mutation
// scheduling; the in-memory intent stays authoritative for the session.
type OperationQueue interface {
	// Enqueue appends an operation with a zero retry count.
	Enqueue(ctx context.Context, kind OperationKind, payload OperationPayload) (*QueuedOperation, error)

	// List returns the queued operations oldest first.
	List(ctx context.Context) ([]QueuedOperation, error)

	// MarkRetried increments the operation's retry count.
	MarkRetried(ctx context.Context, id string) error

	// Remove deletes the operation by id, after success or exhaustion.
	Remove(ctx context.Context, id string) error

	// Clear drops the whole queue. Used only after a confirmed full sync.
	Clear(ctx context.Context) error
}

// RemoteGateway abstracts the backend cart/saved-items API. A 401 response
// surfaces as an unauthorized error kind that must not be retried blindly;
// all other non-2xx responses are transient and eligible for the queue path.
type RemoteGateway interface {
	AddItem(ctx context.Context, userID, productID string, quantity int, price float64) (*RemoteState, error)

	RemoveItem(ctx context.Context, userID, productID string) (*RemoteState, error)

	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*RemoteState, error)

	// FetchState prefers the enriched read that resolves current product
	// price and availability, degrading to the basic read on enrichment
	// failure. It errors only when both tiers fail.
	FetchState(ctx context.Context, userID string) (*RemoteState, error)

	// SyncReplica bulk-applies an entire local replica against the server
	// using the named conflict policy in one request.
	SyncReplica(ctx context.Context, userID string, replica *Replica, policy ConflictPolicy) (*RemoteState, error)
}

// CredentialProvider supplies the bearer credential attached to every remote
// call. Token issuance and refresh are owned by the external auth collaborator.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StatusProvider supplies the current session and connectivity signals.
// Both are evaluated fresh on every dispatch.
type StatusProvider interface {
	Session() Session
	Online() bool
}
