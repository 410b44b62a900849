package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		component Component
		kind      Kind
		err       error
		want      string
	}{
		{
			name:      "with component and kind",
			op:        OpSave,
			component: "replica",
			kind:      KindStorage,
			err:       fmt.Errorf("quota exceeded"),
			want:      "save operation failed in replica component [STORAGE]: quota exceeded",
		},
		{
			name:      "with component no kind",
			op:        OpSave,
			component: "replica",
			err:       fmt.Errorf("quota exceeded"),
			want:      "save operation failed in replica component: quota exceeded",
		},
		{
			name: "without component with kind",
			op:   OpAddItem,
			kind: KindNetwork,
			err:  fmt.Errorf("connection refused"),
			want: "add_item operation failed [NETWORK]: connection refused",
		},
		{
			name: "without component or kind",
			op:   OpAddItem,
			err:  fmt.Errorf("connection refused"),
			want: "add_item operation failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &SyncError{
				Op:        tt.op,
				Component: tt.component,
				Kind:      tt.kind,
				Err:       tt.err,
			}

			if got := e.Error(); got != tt.want {
				t.Errorf("SyncError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewNetworkError(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	syncErr := NewNetworkError(OpFetchState, cause)

	if syncErr.Kind != KindNetwork {
		t.Errorf("NewNetworkError() Kind = %v, want %v", syncErr.Kind, KindNetwork)
	}
	if syncErr.Component != "gateway" {
		t.Errorf("NewNetworkError() Component = %v, want %v", syncErr.Component, "gateway")
	}
	if syncErr.Err != cause {
		t.Errorf("NewNetworkError() Err = %v, want %v", syncErr.Err, cause)
	}
	if !syncErr.Retryable {
		t.Error("NewNetworkError() created non-retryable error")
	}
}

func TestNewAuthError(t *testing.T) {
	cause := fmt.Errorf("401 unauthorized")
	syncErr := NewAuthError(OpSyncReplica, KindUnauthorized, cause)

	if syncErr.Retryable {
		t.Error("NewAuthError() created retryable error")
	}
	if !IsAuth(syncErr) {
		t.Error("IsAuth() = false for unauthorized error")
	}
	if IsRetryable(syncErr) {
		t.Error("IsRetryable() = true for auth error")
	}
}

func TestNewValidationError(t *testing.T) {
	syncErr := NewValidationError(OpAddItem, fmt.Errorf("product id is empty"))

	if syncErr.Kind != KindInvalid {
		t.Errorf("NewValidationError() Kind = %v, want %v", syncErr.Kind, KindInvalid)
	}
	if syncErr.Retryable {
		t.Error("NewValidationError() created retryable error")
	}
}

func TestE_Builder(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := E(OpSave, Component("replica"), KindStorage, cause, "evicted 3 items")

	if err.Op != OpSave {
		t.Errorf("E() Op = %v, want %v", err.Op, OpSave)
	}
	if err.Component != "replica" {
		t.Errorf("E() Component = %v, want %v", err.Component, "replica")
	}
	if err.Kind != KindStorage {
		t.Errorf("E() Kind = %v, want %v", err.Kind, KindStorage)
	}
	if !err.Retryable {
		t.Error("E() storage error should be retryable by default")
	}
	if err.Metadata["note"] != "evicted 3 items" {
		t.Errorf("E() Metadata note = %v", err.Metadata["note"])
	}
	if !errors.Is(err, cause) {
		t.Error("E() lost the error chain")
	}
}

func TestE_InheritsKindFromWrapped(t *testing.T) {
	inner := NewAuthError(OpSyncReplica, KindTokenExpired, fmt.Errorf("jwt expired"))
	outer := E(OpMerge, Component("coordinator"), inner)

	if outer.Kind != KindTokenExpired {
		t.Errorf("E() Kind = %v, want inherited %v", outer.Kind, KindTokenExpired)
	}
	if outer.Retryable {
		t.Error("E() should inherit non-retryable from wrapped auth error")
	}
	if !IsAuth(outer) {
		t.Error("IsAuth() should see through the wrapping")
	}
}

func TestIsKind_ThroughWrapping(t *testing.T) {
	inner := NewStorageError(OpSave, fmt.Errorf("quota"))
	wrapped := fmt.Errorf("saving cart replica: %w", inner)

	if !IsKind(wrapped, KindStorage) {
		t.Error("IsKind() did not unwrap to find storage kind")
	}
	if KindOf(wrapped) != KindStorage {
		t.Errorf("KindOf() = %v, want %v", KindOf(wrapped), KindStorage)
	}
}

func TestKindOf_ForeignError(t *testing.T) {
	if KindOf(fmt.Errorf("plain")) != KindInternal {
		t.Error("KindOf() foreign error should be internal")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("IsRetryable() foreign error should be false")
	}
}

func TestWrapOpComponent(t *testing.T) {
	if WrapOpComponent(nil, OpLoad, "replica") != nil {
		t.Error("WrapOpComponent(nil) should be nil")
	}

	err := WrapOpComponentKind(fmt.Errorf("boom"), OpLoad, "replica", KindStorage)
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatal("WrapOpComponentKind() did not produce a SyncError")
	}
	if syncErr.Kind != KindStorage || syncErr.Component != "replica" {
		t.Errorf("WrapOpComponentKind() = %+v", syncErr)
	}
}
