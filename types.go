// Package cartsync implements the client-side state reconciliation core of an
// e-commerce storefront. It keeps a shopping cart and a parallel saved-for-later
// list consistent across two storage authorities: a durable local replica usable
// without a network connection, and a server-owned authoritative copy reachable
// only when the user is authenticated and online.
//
// A mutation enters through the Dispatcher, which classifies the call as
// (guest|authenticated) x (online|offline) and executes the appropriate path,
// falling back to the local replica plus a queued operation when a remote path
// fails. The Coordinator merges the replica into the server copy on sign-in or
// reconnect and then drains the pending-operation queue in FIFO order.
package cartsync

import (
	"time"
)

// ListKind identifies one of the two parallel list instances.
type ListKind string

const (
	// ListCart is the shopping cart instance (7 day replica TTL).
	ListCart ListKind = "cart"

	// ListSaved is the saved-for-later instance (30 day replica TTL).
	ListSaved ListKind = "saved"
)

// Default lifecycle parameters per list instance.
const (
	DefaultCartTTL  = 7 * 24 * time.Hour
	DefaultSavedTTL = 30 * 24 * time.Hour

	// DefaultCartEvictKeep and DefaultSavedEvictKeep bound how many of the
	// newest items survive a quota-triggered eviction.
	DefaultCartEvictKeep  = 10
	DefaultSavedEvictKeep = 20

	// DefaultMaxRetries bounds how many times a queued operation is retried
	// against the backend before it is dropped with a logged failure.
	DefaultMaxRetries = 3
)

// Snapshot carries the denormalized product fields attached to a replica item
// at the time it was added. Empty fields never overwrite existing values.
type Snapshot struct {
	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
	Category string `json:"category,omitempty"`
}

// Item is one line of the local cart or saved list.
type Item struct {
	LocalID      string    `json:"id"`
	ProductID    string    `json:"productId"`
	Quantity     int       `json:"quantity"`
	UnitPrice    float64   `json:"price"`
	AddedAt      time.Time `json:"addedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ProductName  string    `json:"productName,omitempty"`
	ProductImage string    `json:"productImage,omitempty"`
	Category     string    `json:"category,omitempty"`
}

// Replica is the durable local copy of a cart or saved list. It is owned
// exclusively by the local device/session; SessionID attributes conflicting
// writes during a merge.
type Replica struct {
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	SessionID string    `json:"sessionId"`
}

// IsEmpty reports whether the replica carries no items.
func (r *Replica) IsEmpty() bool {
	return r == nil || len(r.Items) == 0
}

// Find returns a pointer to the item with the given product id, or nil.
// A replica never contains two items with the same product id.
func (r *Replica) Find(productID string) *Item {
	if r == nil {
		return nil
	}
	for i := range r.Items {
		if r.Items[i].ProductID == productID {
			return &r.Items[i]
		}
	}
	return nil
}

// Expired reports whether the replica's lifetime has passed at the given time.
func (r *Replica) Expired(now time.Time) bool {
	return r != nil && now.After(r.ExpiresAt)
}

// OperationKind names a queued mutation.
type OperationKind string

const (
	OperationAdd            OperationKind = "add"
	OperationRemove         OperationKind = "remove"
	OperationUpdateQuantity OperationKind = "updateQuantity"
)

// OperationPayload carries the arguments of a queued mutation.
type OperationPayload struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity,omitempty"`
	UnitPrice float64 `json:"price,omitempty"`
}

// QueuedOperation is a mutation recorded for later delivery to the server
// because it could not be applied immediately. Operations are consumed
// strictly FIFO; RetryCount is monotonically non-decreasing and the operation
// is removed exactly once RetryCount reaches MaxRetries.
type QueuedOperation struct {
	ID         string           `json:"id"`
	Kind       OperationKind    `json:"operation"`
	Payload    OperationPayload `json:"data"`
	EnqueuedAt time.Time        `json:"timestamp"`
	RetryCount int              `json:"retryCount"`
	MaxRetries int              `json:"maxRetries"`
}

// Exhausted reports whether the operation has used up its retry budget.
func (op *QueuedOperation) Exhausted() bool {
	return op.RetryCount >= op.MaxRetries
}

// RemoteItem is one line of the server's authoritative copy. Enriched reads
// join live product metadata (availability, discount) onto the item.
type RemoteItem struct {
	ProductID    string    `json:"productId"`
	Quantity     int       `json:"quantity"`
	UnitPrice    float64   `json:"price"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
	ProductName  string    `json:"productName,omitempty"`
	ProductImage string    `json:"productImage,omitempty"`
	Available    *bool     `json:"available,omitempty"`
	Discount     float64   `json:"discount,omitempty"`
}

// RemoteState is the server-owned cart or saved list addressed by user identity.
type RemoteState struct {
	UserID    string       `json:"userId"`
	Items     []RemoteItem `json:"items"`
	UpdatedAt time.Time    `json:"updatedAt"`

	// Enriched reports whether the state came from the enriched read tier.
	Enriched bool `json:"-"`
}

// Find returns a pointer to the remote item with the given product id, or nil.
func (s *RemoteState) Find(productID string) *RemoteItem {
	if s == nil {
		return nil
	}
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			return &s.Items[i]
		}
	}
	return nil
}

// Session is the auth context supplied by the external auth collaborator.
// The engine treats it as read-only input that drives mode classification.
type Session struct {
	Authenticated bool
	UserID        string
}

// Mode is the (authenticated x online) classification that determines which
// path a mutation takes. It is computed fresh on every call.
type Mode int

const (
	// ModeGuest mutates the local replica only.
	ModeGuest Mode = iota

	// ModeOffline (authenticated, offline) mutates the local replica and
	// enqueues the same mutation for later delivery.
	ModeOffline

	// ModeOnline (authenticated, online) attempts the remote call first and
	// falls back to ModeOffline behavior on failure.
	ModeOnline
)

func (m Mode) String() string {
	switch m {
	case ModeGuest:
		return "guest"
	case ModeOffline:
		return "offline"
	case ModeOnline:
		return "online"
	default:
		return "unknown"
	}
}

// ClassifyMode derives the dispatch mode from the session and connectivity.
func ClassifyMode(session Session, online bool) Mode {
	switch {
	case !session.Authenticated:
		return ModeGuest
	case !online:
		return ModeOffline
	default:
		return ModeOnline
	}
}

// ConflictPolicy names the rule used to reconcile differing local and server
// items for the same product during a merge.
type ConflictPolicy string

const (
	// SumQuantities adds per-product quantities from local and remote. Default.
	SumQuantities ConflictPolicy = "SUM_QUANTITIES"

	// KeepLatest keeps the item with the more recent update time.
	KeepLatest ConflictPolicy = "KEEP_LATEST"

	// KeepServer discards local items that also exist remotely.
	KeepServer ConflictPolicy = "KEEP_SERVER"

	// KeepLocal overrides remote items with the local copy.
	KeepLocal ConflictPolicy = "KEEP_LOCAL"

	// AskUser defers the merge; the caller must resolve out of band before
	// retrying.
	AskUser ConflictPolicy = "ASK_USER"
)

// Valid reports whether p names a known conflict policy.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case SumQuantities, KeepLatest, KeepServer, KeepLocal, AskUser:
		return true
	}
	return false
}
