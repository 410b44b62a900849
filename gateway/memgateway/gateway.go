// Package memgateway is an in-process RemoteGateway backed by a map. It
// mirrors the backend's merge semantics so the engine can be exercised
// without a server, and powers the demo command.
package memgateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopkit/cartsync"
	syncErrors "github.com/shopkit/cartsync/errors"
)

// Gateway holds one server-side state per user id. The zero value is not
// usable; construct with New.
type Gateway struct {
	mu     sync.Mutex
	states map[string]*cartsync.RemoteState

	// FailWith, when set, is returned by every call. Tests use it to
	// simulate outages and credential rejection.
	FailWith error

	// Calls records the operations applied, in order, as "op:productId"
	// strings. Tests assert drain ordering against it.
	Calls []string

	now func() time.Time
}

var _ cartsync.RemoteGateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		states: make(map[string]*cartsync.RemoteState),
		now:    time.Now,
	}
}

// Seed replaces the server copy for a user. Items are copied.
func (g *Gateway) Seed(userID string, items []cartsync.RemoteItem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[userID] = &cartsync.RemoteState{
		UserID:    userID,
		Items:     append([]cartsync.RemoteItem(nil), items...),
		UpdatedAt: g.now(),
	}
}

// State returns a copy of the server copy for inspection.
func (g *Gateway) State(userID string) *cartsync.RemoteState {
	g.mu.Lock()
	defer g.mu.Unlock()
	state := g.states[userID]
	if state == nil {
		return nil
	}
	return g.snapshot(state)
}

func (g *Gateway) AddItem(ctx context.Context, userID, productID string, quantity int, price float64) (*cartsync.RemoteState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate("add", productID); err != nil {
		return nil, err
	}

	state := g.stateFor(userID)
	if existing := state.Find(productID); existing != nil {
		existing.Quantity += quantity
		existing.UnitPrice = price
	} else {
		state.Items = append(state.Items, cartsync.RemoteItem{
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: price,
			UpdatedAt: g.now(),
		})
	}
	state.UpdatedAt = g.now()
	return g.snapshot(state), nil
}

func (g *Gateway) RemoveItem(ctx context.Context, userID, productID string) (*cartsync.RemoteState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate("remove", productID); err != nil {
		return nil, err
	}

	state := g.stateFor(userID)
	kept := state.Items[:0]
	for _, item := range state.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	state.Items = kept
	state.UpdatedAt = g.now()
	return g.snapshot(state), nil
}

func (g *Gateway) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*cartsync.RemoteState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate("updateQuantity", productID); err != nil {
		return nil, err
	}

	state := g.stateFor(userID)
	if existing := state.Find(productID); existing != nil {
		if quantity <= 0 {
			kept := state.Items[:0]
			for _, item := range state.Items {
				if item.ProductID != productID {
					kept = append(kept, item)
				}
			}
			state.Items = kept
		} else {
			existing.Quantity = quantity
		}
	}
	state.UpdatedAt = g.now()
	return g.snapshot(state), nil
}

func (g *Gateway) FetchState(ctx context.Context, userID string) (*cartsync.RemoteState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate("fetch", ""); err != nil {
		return nil, err
	}
	return g.snapshot(g.stateFor(userID)), nil
}

func (g *Gateway) SyncReplica(ctx context.Context, userID string, replica *cartsync.Replica, policy cartsync.ConflictPolicy) (*cartsync.RemoteState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate("sync", ""); err != nil {
		return nil, err
	}

	state := g.stateFor(userID)
	var local []cartsync.Item
	if replica != nil {
		local = replica.Items
	}
	merged, err := cartsync.MergeItems(local, state.Items, policy)
	if err != nil {
		return nil, err
	}
	state.Items = merged
	state.UpdatedAt = g.now()
	return g.snapshot(state), nil
}

func (g *Gateway) gate(op, productID string) error {
	if g.FailWith != nil {
		return g.FailWith
	}
	if productID != "" {
		g.Calls = append(g.Calls, op+":"+productID)
	} else {
		g.Calls = append(g.Calls, op)
	}
	return nil
}

func (g *Gateway) stateFor(userID string) *cartsync.RemoteState {
	state, ok := g.states[userID]
	if !ok {
		state = &cartsync.RemoteState{UserID: userID, UpdatedAt: g.now()}
		g.states[userID] = state
	}
	return state
}

func (g *Gateway) snapshot(state *cartsync.RemoteState) *cartsync.RemoteState {
	copied := *state
	copied.Items = append([]cartsync.RemoteItem(nil), state.Items...)
	return &copied
}

// StaticCredentials satisfies cartsync.CredentialProvider with a fixed token.
type StaticCredentials string

func (s StaticCredentials) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", syncErrors.NewAuthError(syncErrors.OpFetchState, syncErrors.KindTokenExpired,
			fmt.Errorf("no credential configured"))
	}
	return string(s), nil
}
