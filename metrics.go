package cartsync

import "time"

// MetricsCollector provides hooks for collecting engine metrics
type MetricsCollector interface {
	// RecordSyncDuration records how long a merge or drain phase took
	RecordSyncDuration(operation string, duration time.Duration)

	// RecordMergedItems records the number of items absorbed by a merge
	RecordMergedItems(count int)

	// RecordDrainedOps records queued operations applied and permanently dropped
	RecordDrainedOps(applied, dropped int)

	// RecordSyncErrors records sync operation errors by type
	RecordSyncErrors(operation string, errorType string)

	// RecordLocalFallback records a remote mutation recovered via the local
	// replica plus the operation queue
	RecordLocalFallback(operation string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordSyncDuration(operation string, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordMergedItems(count int)                                 {}
func (n *NoOpMetricsCollector) RecordDrainedOps(applied, dropped int)                       {}
func (n *NoOpMetricsCollector) RecordSyncErrors(operation string, errorType string)         {}
func (n *NoOpMetricsCollector) RecordLocalFallback(operation string)                        {}
