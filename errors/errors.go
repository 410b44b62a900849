// Package errors provides custom error types for the cartsync engine
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the recovery policy that applies to it.
type Kind string

const (
	// KindNetwork marks transient transport failures. Eligible for the
	// local-fallback and queued-retry paths.
	KindNetwork Kind = "NETWORK"

	// KindStorage marks local persistence failures (quota, corrupt record).
	// Recovered locally via eviction or surfaced non-fatally.
	KindStorage Kind = "STORAGE"

	// KindUnauthorized marks a 401 from the backend. Must not be retried
	// without re-authentication.
	KindUnauthorized Kind = "UNAUTHORIZED"

	// KindForbidden marks a 403 from the backend.
	KindForbidden Kind = "FORBIDDEN"

	// KindTokenExpired marks an expired bearer credential.
	KindTokenExpired Kind = "TOKEN_EXPIRED"

	// KindInvalid marks a malformed mutation. Rejected immediately, never queued.
	KindInvalid Kind = "INVALID"

	// KindConflict marks a merge deferred under the ask-user policy.
	KindConflict Kind = "CONFLICT"

	// KindInternal is the catch-all for programming errors.
	KindInternal Kind = "INTERNAL"
)

// Operation represents the engine operation during which an error occurred
type Operation string

const (
	OpAddItem        Operation = "add_item"
	OpRemoveItem     Operation = "remove_item"
	OpUpdateQuantity Operation = "update_quantity"
	OpFetchState     Operation = "fetch_state"
	OpSyncReplica    Operation = "sync_replica"
	OpMerge          Operation = "merge"
	OpDrain          Operation = "drain"
	OpSave           Operation = "save"
	OpLoad           Operation = "load"
	OpEnqueue        Operation = "enqueue"
	OpDequeue        Operation = "dequeue"
	OpClear          Operation = "clear"
	OpClose          Operation = "close"
)

// Component identifies the engine component that produced an error.
type Component string

// SyncError represents an error that occurred in the replication/sync engine
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "replica", "gateway")
	Component Component

	// Kind classifies the error for recovery policy
	Kind Kind

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Kind != "" {
		msg += fmt.Sprintf(" [%s]", e.Kind)
	}

	if e.Err == nil {
		return msg
	}
	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// retryableByKind maps each kind to its default retry eligibility.
var retryableByKind = map[Kind]bool{
	KindNetwork:      true,
	KindStorage:      true,
	KindUnauthorized: false,
	KindForbidden:    false,
	KindTokenExpired: false,
	KindInvalid:      false,
	KindConflict:     false,
	KindInternal:     false,
}

// E builds a SyncError from a variadic list of typed arguments.
// Accepted argument types: Operation, Component, Kind, error, and string
// (collected under the "note" metadata key). The Retryable flag is derived
// from the Kind unless a wrapped SyncError carries its own classification.
func E(args ...interface{}) *SyncError {
	e := &SyncError{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Operation:
			e.Op = a
		case Component:
			e.Component = a
		case Kind:
			e.Kind = a
			e.Retryable = retryableByKind[a]
		case *SyncError:
			e.Err = a
			if e.Kind == "" {
				e.Kind = a.Kind
				e.Retryable = a.Retryable
			}
		case error:
			e.Err = a
		case string:
			if e.Metadata == nil {
				e.Metadata = make(map[string]interface{})
			}
			e.Metadata["note"] = a
		}
	}
	return e
}

// Op converts a plain string into an Operation for use with E.
func Op(s string) Operation { return Operation(s) }

// NewStorageError creates a new local-storage SyncError
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindStorage,
		Op:        op,
		Component: "storage",
		Err:       cause,
		Retryable: true,
	}
}

// NewNetworkError creates a new transient network SyncError
func NewNetworkError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindNetwork,
		Op:        op,
		Component: "gateway",
		Err:       cause,
		Retryable: true,
	}
}

// NewAuthError creates an authentication/authorization SyncError of the
// given kind. Auth errors are never retried without re-authentication.
func NewAuthError(op Operation, kind Kind, cause error) *SyncError {
	return &SyncError{
		Kind:      kind,
		Op:        op,
		Component: "gateway",
		Err:       cause,
		Retryable: false,
	}
}

// NewValidationError creates a new validation SyncError
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindInvalid,
		Op:        op,
		Err:       cause,
		Retryable: false,
	}
}

// NewConflictError creates a merge-deferred SyncError for the ask-user policy
func NewConflictError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindConflict,
		Op:        op,
		Component: "coordinator",
		Err:       cause,
		Retryable: false,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// IsKind reports whether err is a SyncError of the given kind.
func IsKind(err error, kind Kind) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) && syncErr.Kind != "" {
		return syncErr.Kind
	}
	return KindInternal
}

// IsAuth reports whether err requires re-authentication before retrying.
func IsAuth(err error) bool {
	switch KindOf(err) {
	case KindUnauthorized, KindForbidden, KindTokenExpired:
		return true
	}
	return false
}
