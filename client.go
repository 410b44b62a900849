package cartsync

import (
	"context"
	"errors"
	"sync"

	"github.com/shopkit/cartsync/logging"
)

// Client bundles the two list instances (cart and saved-for-later) behind a
// shared session and connectivity state. It is an explicit per-session
// context object: auth and connectivity are inputs pushed in through
// SetSession and SetOnline, never ambient globals.
//
// A single logical writer per process is assumed; concurrent tabs or
// processes mutating the same persisted replica are not reconciled.
type Client struct {
	mu      sync.RWMutex
	session Session
	online  bool

	cart  *listInstance
	saved *listInstance

	publisher *Publisher
	logger    *logging.Logger
}

type listInstance struct {
	dispatcher  *Dispatcher
	coordinator *Coordinator
}

// Cart returns the dispatcher for the shopping cart instance.
func (c *Client) Cart() *Dispatcher { return c.cart.dispatcher }

// Saved returns the dispatcher for the saved-for-later instance.
func (c *Client) Saved() *Dispatcher { return c.saved.dispatcher }

// Coordinator returns the sync coordinator for the given list instance.
func (c *Client) Coordinator(list ListKind) *Coordinator {
	if list == ListSaved {
		return c.saved.coordinator
	}
	return c.cart.coordinator
}

// Session returns the current session. Part of StatusProvider.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Online returns the current connectivity signal. Part of StatusProvider.
func (c *Client) Online() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// Subscribe registers a handler for engine events.
func (c *Client) Subscribe(handler func(Event)) {
	c.publisher.Subscribe(handler)
}

// SetSession feeds an auth transition into the engine. A guest-to-
// authenticated transition while online triggers a merge+drain run on both
// instances; the run's outcome is returned to this caller (the login flow)
// so it can decide whether to retry or defer. Signing out resets both sync
// machines to the guest state. A direct switch between two authenticated
// accounts discards any unsynced local state left by the previous user, with
// a warning log, rather than merging it into the new account.
func (c *Client) SetSession(ctx context.Context, session Session) ([]*SyncResult, error) {
	c.mu.Lock()
	prev := c.session
	c.session = session
	online := c.online
	c.mu.Unlock()

	c.logger.Info("session changed",
		"authenticated", session.Authenticated,
		"user_id", session.UserID)
	c.publisher.Publish(Event{Type: EventAuthStateChanged, Payload: session})

	if !session.Authenticated {
		c.cart.coordinator.ResetToGuest()
		c.saved.coordinator.ResetToGuest()
		return nil, nil
	}

	if prev.Authenticated {
		if prev.UserID == session.UserID {
			return nil, nil
		}
		// A direct account switch: the previous user's unsynced local
		// state must not merge into the new account. Discard it with a
		// trace and start the new session clean.
		c.logger.Warn("account switched without sign-out, discarding unsynced local state",
			"previous_user_id", prev.UserID,
			"user_id", session.UserID)
		var errs []error
		if err := c.cart.coordinator.DiscardLocal(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := c.saved.coordinator.DiscardLocal(ctx); err != nil {
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	}

	if !online {
		// Merge is deferred to the reconnect trigger.
		c.logger.Debug("sign-in while offline, sync deferred")
		return nil, nil
	}

	return c.syncAll(ctx, session.UserID)
}

// SetOnline feeds a connectivity transition into the engine. A reconnect
// while authenticated triggers a merge+drain run on both instances.
func (c *Client) SetOnline(ctx context.Context, online bool) ([]*SyncResult, error) {
	c.mu.Lock()
	prev := c.online
	c.online = online
	session := c.session
	c.mu.Unlock()

	if prev == online {
		return nil, nil
	}

	c.logger.Info("connectivity changed", "online", online)
	c.publisher.Publish(Event{Type: EventConnectivityChanged, Payload: online})

	if !online || !session.Authenticated {
		return nil, nil
	}

	return c.syncAll(ctx, session.UserID)
}

// TriggerSync runs a merge+drain pass on both instances immediately, for
// callers that need an explicit retry after a surfaced sync failure.
func (c *Client) TriggerSync(ctx context.Context) ([]*SyncResult, error) {
	session := c.Session()
	if !session.Authenticated {
		return nil, nil
	}
	return c.syncAll(ctx, session.UserID)
}

func (c *Client) syncAll(ctx context.Context, userID string) ([]*SyncResult, error) {
	var (
		results []*SyncResult
		errs    []error
	)
	for _, inst := range []*listInstance{c.cart, c.saved} {
		result, err := inst.coordinator.Sync(ctx, userID)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}
