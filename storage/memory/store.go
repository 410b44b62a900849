// Package memory provides an in-memory cartsync.KVStore, used in tests and
// short-lived embeddings. An optional byte quota makes the replica store's
// eviction path reproducible.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopkit/cartsync"
)

// Store is an in-memory KVStore.
type Store struct {
	mu       sync.RWMutex
	data     map[string][]byte
	maxBytes int
	closed   bool
}

var _ cartsync.KVStore = (*Store)(nil)

// New creates an unbounded in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// NewWithQuota creates a store that rejects writes once the total stored
// bytes would exceed maxBytes.
func NewWithQuota(maxBytes int) *Store {
	return &Store{data: make(map[string][]byte), maxBytes: maxBytes}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}
	value, ok := s.data[key]
	if !ok {
		return nil, cartsync.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("memory store is closed")
	}

	if s.maxBytes > 0 {
		total := len(value)
		for k, v := range s.data {
			if k == key {
				continue
			}
			total += len(v)
		}
		if total > s.maxBytes {
			return fmt.Errorf("writing %d bytes to %q: %w", len(value), key, cartsync.ErrQuotaExceeded)
		}
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	delete(s.data, key)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
