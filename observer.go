package cartsync

import (
	"sync"
	"time"

	"github.com/shopkit/cartsync/logging"
)

// EventType names a state transition the engine publishes to subscribers.
type EventType string

const (
	// EventAuthStateChanged fires when the session transitions between guest
	// and authenticated.
	EventAuthStateChanged EventType = "auth-state-changed"

	// EventConnectivityChanged fires when the connectivity signal flips.
	EventConnectivityChanged EventType = "connectivity-changed"

	// EventStateUpdated fires after every accepted mutation on a list.
	EventStateUpdated EventType = "state-updated"

	// EventSyncCompleted fires after a merge+drain run finishes, with the
	// run's SyncResult as payload.
	EventSyncCompleted EventType = "sync-completed"

	// EventOperationDropped fires when a queued operation exhausts its retry
	// budget and is permanently removed.
	EventOperationDropped EventType = "operation-dropped"
)

// Event is the notification published on every state transition. It replaces
// any UI-runtime event mechanism so the core stays embeddable.
type Event struct {
	Type    EventType
	List    ListKind
	At      time.Time
	Payload interface{}
}

// Publisher fans events out to subscribers. Handlers run on their own
// goroutine with panic recovery so a broken subscriber cannot stall dispatch.
type Publisher struct {
	mu          sync.RWMutex
	subscribers []func(Event)
	logger      *logging.Logger
}

// NewPublisher creates a publisher logging through the given logger.
// A nil logger falls back to the package default.
func NewPublisher(logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{logger: logger.WithComponent("publisher")}
}

// Subscribe registers a handler for every published event.
func (p *Publisher) Subscribe(handler func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, handler)
	p.logger.Debug("subscriber added", "total_subscribers", len(p.subscribers))
}

// Publish delivers the event to all subscribers asynchronously.
func (p *Publisher) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	p.mu.RLock()
	subscribers := make([]func(Event), len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.RUnlock()

	for _, handler := range subscribers {
		go func(h func(Event)) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("subscriber panic recovered",
						"panic", r,
						"event_type", string(ev.Type),
						"list", string(ev.List))
				}
			}()
			h(ev)
		}(handler)
	}
}
