// Package replica implements the durable local replica of a cart or
// saved-for-later list over a generic key-value backend.
package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/cartsync"
	syncErrors "github.com/shopkit/cartsync/errors"
	"github.com/shopkit/cartsync/logging"
)

// Options configures a Store. Zero values fall back to the defaults of the
// list kind (7 day TTL / keep 10 for the cart, 30 days / keep 20 for the
// saved list).
type Options struct {
	List      cartsync.ListKind
	TTL       time.Duration
	EvictKeep int
	Logger    *logging.Logger

	// Now overrides the clock, for expiry tests.
	Now func() time.Time
}

// Store is a cartsync.ReplicaStore. A single logical writer per process is
// assumed; the mutex only serializes in-process callers.
type Store struct {
	kv        cartsync.KVStore
	key       string
	list      cartsync.ListKind
	ttl       time.Duration
	evictKeep int
	now       func() time.Time
	logger    *logging.Logger

	mu sync.Mutex
}

var _ cartsync.ReplicaStore = (*Store)(nil)

// New creates a replica store persisting under a per-list key in kv.
func New(kv cartsync.KVStore, opts Options) *Store {
	list := opts.List
	if list == "" {
		list = cartsync.ListCart
	}

	ttl := opts.TTL
	evictKeep := opts.EvictKeep
	if ttl <= 0 {
		if list == cartsync.ListSaved {
			ttl = cartsync.DefaultSavedTTL
		} else {
			ttl = cartsync.DefaultCartTTL
		}
	}
	if evictKeep <= 0 {
		if list == cartsync.ListSaved {
			evictKeep = cartsync.DefaultSavedEvictKeep
		} else {
			evictKeep = cartsync.DefaultCartEvictKeep
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		kv:        kv,
		key:       fmt.Sprintf("cartsync/%s/replica", list),
		list:      list,
		ttl:       ttl,
		evictKeep: evictKeep,
		now:       now,
		logger:    logger.WithComponent("replica").WithList(string(list)),
	}
}

// CreateEmpty returns a fresh unsaved replica with a new session id.
func (s *Store) CreateEmpty() *cartsync.Replica {
	now := s.now()
	return &cartsync.Replica{
		Items:     []cartsync.Item{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		SessionID: uuid.NewString(),
	}
}

// Get returns the current replica, or nil when none exists. Expiry is lazy:
// an expired replica is removed from storage as a side effect of the read.
func (s *Store) Get(ctx context.Context) (*cartsync.Replica, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (*cartsync.Replica, error) {
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, cartsync.ErrNotFound) {
			return nil, nil
		}
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	var replica cartsync.Replica
	if err := json.Unmarshal(data, &replica); err != nil {
		// A corrupt record cannot be recovered; drop it so the session
		// keeps working with a fresh replica.
		s.logger.Warn("dropping corrupt replica record", "error", err)
		if delErr := s.kv.Delete(ctx, s.key); delErr != nil {
			s.logger.Warn("failed to delete corrupt replica record", "error", delErr)
		}
		return nil, nil
	}

	if replica.Expired(s.now()) {
		s.logger.Debug("replica expired, clearing",
			"expires_at", replica.ExpiresAt,
			"session_id", replica.SessionID)
		if delErr := s.kv.Delete(ctx, s.key); delErr != nil {
			s.logger.Warn("failed to delete expired replica", "error", delErr)
		}
		return nil, nil
	}

	return &replica, nil
}

// Save persists the replica. On a quota failure it evicts the oldest items,
// keeping the newest EvictKeep sorted by added time, and retries once before
// surfacing the error.
func (s *Store) Save(ctx context.Context, replica *cartsync.Replica) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, replica)
}

func (s *Store) save(ctx context.Context, replica *cartsync.Replica) error {
	err := s.set(ctx, replica)
	if err == nil {
		return nil
	}
	if !errors.Is(err, cartsync.ErrQuotaExceeded) {
		return syncErrors.NewStorageError(syncErrors.OpSave, err)
	}

	evicted := s.evictOldest(replica)
	s.logger.Warn("storage quota exceeded, evicted oldest items",
		"evicted", evicted,
		"kept", len(replica.Items))

	if err := s.set(ctx, replica); err != nil {
		return syncErrors.E(syncErrors.OpSave, syncErrors.Component("replica"),
			syncErrors.KindStorage, err, "eviction retry failed")
	}
	return nil
}

func (s *Store) set(ctx context.Context, replica *cartsync.Replica) error {
	data, err := json.Marshal(replica)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key, data)
}

// evictOldest trims the replica to the newest EvictKeep items by added time,
// preserving the relative order of survivors. Returns how many were dropped.
func (s *Store) evictOldest(replica *cartsync.Replica) int {
	if len(replica.Items) <= s.evictKeep {
		return 0
	}

	byAge := make([]cartsync.Item, len(replica.Items))
	copy(byAge, replica.Items)
	sort.SliceStable(byAge, func(i, j int) bool {
		return byAge[i].AddedAt.After(byAge[j].AddedAt)
	})

	keep := make(map[string]bool, s.evictKeep)
	for _, it := range byAge[:s.evictKeep] {
		keep[it.LocalID] = true
	}

	survivors := replica.Items[:0]
	for _, it := range replica.Items {
		if keep[it.LocalID] {
			survivors = append(survivors, it)
		}
	}
	evicted := len(replica.Items) - len(survivors)
	replica.Items = survivors
	return evicted
}

// AddItem merges the product into the replica, creating the replica lazily
// on first mutation. An existing product id has its quantity summed; snapshot
// fields overwrite only when non-empty.
func (s *Store) AddItem(ctx context.Context, productID string, quantity int, price float64, snapshot cartsync.Snapshot) (*cartsync.Replica, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replica, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if replica == nil {
		replica = s.CreateEmpty()
	}

	now := s.now()
	if existing := replica.Find(productID); existing != nil {
		existing.Quantity += quantity
		existing.UnitPrice = price
		existing.UpdatedAt = now
		if snapshot.Name != "" {
			existing.ProductName = snapshot.Name
		}
		if snapshot.Image != "" {
			existing.ProductImage = snapshot.Image
		}
		if snapshot.Category != "" {
			existing.Category = snapshot.Category
		}
	} else {
		replica.Items = append(replica.Items, cartsync.Item{
			LocalID:      uuid.NewString(),
			ProductID:    productID,
			Quantity:     quantity,
			UnitPrice:    price,
			AddedAt:      now,
			UpdatedAt:    now,
			ProductName:  snapshot.Name,
			ProductImage: snapshot.Image,
			Category:     snapshot.Category,
		})
	}
	replica.UpdatedAt = now

	if err := s.save(ctx, replica); err != nil {
		return nil, err
	}
	return replica, nil
}

// RemoveItem filters the product out. Removing from an absent replica or an
// absent product is a no-op, not an error.
func (s *Store) RemoveItem(ctx context.Context, productID string) (*cartsync.Replica, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeItem(ctx, productID)
}

func (s *Store) removeItem(ctx context.Context, productID string) (*cartsync.Replica, error) {
	replica, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if replica == nil || replica.Find(productID) == nil {
		return replica, nil
	}

	items := replica.Items[:0]
	for _, it := range replica.Items {
		if it.ProductID != productID {
			items = append(items, it)
		}
	}
	replica.Items = items
	replica.UpdatedAt = s.now()

	if err := s.save(ctx, replica); err != nil {
		return nil, err
	}
	return replica, nil
}

// UpdateQuantity sets the product's quantity; zero or less removes the item.
// Updating an absent product is a no-op.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) (*cartsync.Replica, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		return s.removeItem(ctx, productID)
	}

	replica, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	item := replica.Find(productID)
	if item == nil {
		return replica, nil
	}

	now := s.now()
	item.Quantity = quantity
	item.UpdatedAt = now
	replica.UpdatedAt = now

	if err := s.save(ctx, replica); err != nil {
		return nil, err
	}
	return replica, nil
}

// Clear drops the persisted replica entirely.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.key); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpClear, err)
	}
	return nil
}
