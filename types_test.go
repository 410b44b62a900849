package cartsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMode(t *testing.T) {
	cases := []struct {
		name    string
		session Session
		online  bool
		want    Mode
	}{
		{"guest offline", Session{}, false, ModeGuest},
		{"guest online", Session{}, true, ModeGuest},
		{"authenticated offline", Session{Authenticated: true, UserID: "u1"}, false, ModeOffline},
		{"authenticated online", Session{Authenticated: true, UserID: "u1"}, true, ModeOnline},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyMode(tc.session, tc.online))
		})
	}
}

func TestReplica_NilSafety(t *testing.T) {
	var r *Replica
	assert.True(t, r.IsEmpty())
	assert.Nil(t, r.Find("p1"))
	assert.False(t, r.Expired(time.Now()))
}

func TestReplica_Expired(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := &Replica{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, r.Expired(now))
	assert.True(t, r.Expired(now.Add(2*time.Minute)))
}

func TestQueuedOperation_Exhausted(t *testing.T) {
	op := QueuedOperation{MaxRetries: 3}

	for i := 0; i < 3; i++ {
		assert.False(t, op.Exhausted(), "retry %d must not exhaust", i)
		op.RetryCount++
	}
	assert.True(t, op.Exhausted())
}

func TestQueuedOperation_WireFormat(t *testing.T) {
	op := QueuedOperation{
		ID:         "op-1",
		Kind:       OperationUpdateQuantity,
		Payload:    OperationPayload{ProductID: "p1", Quantity: 4},
		EnqueuedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		MaxRetries: 3,
	}

	data, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "op-1",
		"operation": "updateQuantity",
		"data": {"productId": "p1", "quantity": 4},
		"timestamp": "2026-08-01T12:00:00Z",
		"retryCount": 0,
		"maxRetries": 3
	}`, string(data))
}
