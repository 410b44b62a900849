package httpgateway

import (
	"time"

	"github.com/shopkit/cartsync"
)

// Wire request bodies. Responses decode directly into cartsync.RemoteState.

type addItemRequest struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type syncRequest struct {
	Items            []cartsync.Item `json:"items"`
	ConflictStrategy string          `json:"conflictStrategy"`
	LastUpdated      time.Time       `json:"lastUpdated"`
	DeviceID         string          `json:"deviceId"`
	SessionID        string          `json:"sessionId"`
}
