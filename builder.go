package cartsync

import (
	"fmt"

	"github.com/shopkit/cartsync/logging"
)

// InstanceParts carries the three collaborators of one list instance.
// Replica and queue are constructed over a KVStore by their own packages;
// the gateway targets the instance's routes on the backend.
type InstanceParts struct {
	Replica ReplicaStore
	Queue   OperationQueue
	Gateway RemoteGateway
}

// ClientBuilder provides a fluent interface for constructing Client instances.
type ClientBuilder struct {
	cart    InstanceParts
	saved   InstanceParts
	policy  ConflictPolicy
	logger  *logging.Logger
	metrics MetricsCollector
	session Session
	online  bool
}

// NewClientBuilder creates a new builder with default options.
func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{
		policy: SumQuantities,
		online: true,
	}
}

// WithCart sets the collaborators of the shopping cart instance.
func (b *ClientBuilder) WithCart(parts InstanceParts) *ClientBuilder {
	b.cart = parts
	return b
}

// WithSaved sets the collaborators of the saved-for-later instance.
func (b *ClientBuilder) WithSaved(parts InstanceParts) *ClientBuilder {
	b.saved = parts
	return b
}

// WithConflictPolicy sets the merge conflict policy for both instances.
func (b *ClientBuilder) WithConflictPolicy(policy ConflictPolicy) *ClientBuilder {
	b.policy = policy
	return b
}

// WithLogger sets the logger shared by all components.
func (b *ClientBuilder) WithLogger(logger *logging.Logger) *ClientBuilder {
	b.logger = logger
	return b
}

// WithMetrics sets the metrics collector shared by all components.
func (b *ClientBuilder) WithMetrics(metrics MetricsCollector) *ClientBuilder {
	b.metrics = metrics
	return b
}

// WithInitialSession seeds the session state, for embeddings that restore a
// persisted login before constructing the engine.
func (b *ClientBuilder) WithInitialSession(session Session) *ClientBuilder {
	b.session = session
	return b
}

// WithInitialOnline seeds the connectivity signal. Defaults to online.
func (b *ClientBuilder) WithInitialOnline(online bool) *ClientBuilder {
	b.online = online
	return b
}

// Build creates a new Client with the configured collaborators.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := validateParts("cart", b.cart); err != nil {
		return nil, err
	}
	if err := validateParts("saved", b.saved); err != nil {
		return nil, err
	}
	if !b.policy.Valid() {
		return nil, fmt.Errorf("unknown conflict policy %q", b.policy)
	}

	logger := b.logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}

	client := &Client{
		session:   b.session,
		online:    b.online,
		publisher: NewPublisher(logger),
		logger:    logger.WithComponent("client"),
	}

	client.cart = buildInstance(ListCart, b.cart, b.policy, client, metrics, logger)
	client.saved = buildInstance(ListSaved, b.saved, b.policy, client, metrics, logger)

	return client, nil
}

func buildInstance(list ListKind, parts InstanceParts, policy ConflictPolicy, client *Client, metrics MetricsCollector, logger *logging.Logger) *listInstance {
	return &listInstance{
		dispatcher: NewDispatcher(DispatcherConfig{
			List:      list,
			Replica:   parts.Replica,
			Queue:     parts.Queue,
			Gateway:   parts.Gateway,
			Status:    client,
			Publisher: client.publisher,
			Metrics:   metrics,
			Logger:    logger,
		}),
		coordinator: NewCoordinator(CoordinatorConfig{
			List:      list,
			Replica:   parts.Replica,
			Queue:     parts.Queue,
			Gateway:   parts.Gateway,
			Policy:    policy,
			Publisher: client.publisher,
			Metrics:   metrics,
			Logger:    logger,
		}),
	}
}

func validateParts(name string, parts InstanceParts) error {
	if parts.Replica == nil {
		return fmt.Errorf("%s replica store is required", name)
	}
	if parts.Queue == nil {
		return fmt.Errorf("%s operation queue is required", name)
	}
	if parts.Gateway == nil {
		return fmt.Errorf("%s gateway is required", name)
	}
	return nil
}
