package cartsync

import (
	"github.com/shopkit/cartsync/logging"
)

// ClientOption is a functional option for configuring a Client via NewClient.
type ClientOption func(*ClientBuilder)

// NewClient constructs a Client using functional options on top of the
// builder. The builder remains available for advanced use.
func NewClient(opts ...ClientOption) (*Client, error) {
	b := NewClientBuilder()
	for _, opt := range opts {
		opt(b)
	}
	return b.Build()
}

// WithCartInstance wires the shopping cart instance.
func WithCartInstance(replica ReplicaStore, queue OperationQueue, gateway RemoteGateway) ClientOption {
	return func(b *ClientBuilder) {
		b.WithCart(InstanceParts{Replica: replica, Queue: queue, Gateway: gateway})
	}
}

// WithSavedInstance wires the saved-for-later instance.
func WithSavedInstance(replica ReplicaStore, queue OperationQueue, gateway RemoteGateway) ClientOption {
	return func(b *ClientBuilder) {
		b.WithSaved(InstanceParts{Replica: replica, Queue: queue, Gateway: gateway})
	}
}

// WithConflictPolicy sets the merge conflict policy for both instances.
func WithConflictPolicy(policy ConflictPolicy) ClientOption {
	return func(b *ClientBuilder) { b.WithConflictPolicy(policy) }
}

// WithLogger sets the logger shared by all components.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(b *ClientBuilder) { b.WithLogger(logger) }
}

// WithMetrics sets the metrics collector shared by all components.
func WithMetrics(metrics MetricsCollector) ClientOption {
	return func(b *ClientBuilder) { b.WithMetrics(metrics) }
}

// WithInitialSession seeds the session state.
func WithInitialSession(session Session) ClientOption {
	return func(b *ClientBuilder) { b.WithInitialSession(session) }
}

// WithInitialOnline seeds the connectivity signal.
func WithInitialOnline(online bool) ClientOption {
	return func(b *ClientBuilder) { b.WithInitialOnline(online) }
}
