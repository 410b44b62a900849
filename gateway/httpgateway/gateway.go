// Package httpgateway implements the cartsync.RemoteGateway over the
// backend's cart/saved-items REST API.
package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/cartsync"
	syncErrors "github.com/shopkit/cartsync/errors"
	"github.com/shopkit/cartsync/logging"
)

// Options configures optional Gateway behavior.
type Options struct {
	// HTTPClient overrides the default client. Timeouts are the request
	// layer's responsibility and surface as ordinary network errors.
	HTTPClient *http.Client

	// Timeout applies to the default client only. Default 10s.
	Timeout time.Duration

	// DeviceID identifies this install in sync requests. A fresh id is
	// generated when empty.
	DeviceID string

	Logger *logging.Logger
}

// Gateway issues cart/saved-item mutations and queries against the backend.
// Every call carries a bearer credential from the injected provider. A 401
// is classified as unauthorized and is not eligible for blind retry; all
// other non-2xx responses are transient network errors.
type Gateway struct {
	client   *http.Client
	baseURL  string
	resource string
	creds    cartsync.CredentialProvider
	deviceID string
	logger   *logging.Logger
}

var _ cartsync.RemoteGateway = (*Gateway)(nil)

// New creates a gateway for one list instance. baseURL is the API root, e.g.
// "https://api.example.com"; the cart instance uses the /carts routes and the
// saved instance the /saved routes.
func New(baseURL string, list cartsync.ListKind, creds cartsync.CredentialProvider, opts *Options) *Gateway {
	if opts == nil {
		opts = &Options{}
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	resource := "carts"
	if list == cartsync.ListSaved {
		resource = "saved"
	}

	return &Gateway{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		resource: resource,
		creds:    creds,
		deviceID: deviceID,
		logger:   logger.WithComponent("httpgateway").WithList(string(list)),
	}
}

// AddItem adds quantity of the product to the server copy.
func (g *Gateway) AddItem(ctx context.Context, userID, productID string, quantity int, price float64) (*cartsync.RemoteState, error) {
	return g.do(ctx, syncErrors.OpAddItem, http.MethodPost,
		g.url(userID, "items"),
		addItemRequest{ProductID: productID, Quantity: quantity, Price: price})
}

// RemoveItem removes the product from the server copy.
func (g *Gateway) RemoveItem(ctx context.Context, userID, productID string) (*cartsync.RemoteState, error) {
	return g.do(ctx, syncErrors.OpRemoveItem, http.MethodDelete,
		g.url(userID, "items", productID), nil)
}

// UpdateQuantity sets the product's quantity on the server copy.
func (g *Gateway) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*cartsync.RemoteState, error) {
	return g.do(ctx, syncErrors.OpUpdateQuantity, http.MethodPut,
		g.url(userID, "items", productID),
		updateQuantityRequest{Quantity: quantity})
}

// FetchState reads the server copy, preferring the enriched variant that
// joins live product price and availability. Enrichment failure degrades to
// the basic read; only both tiers failing surfaces an error.
func (g *Gateway) FetchState(ctx context.Context, userID string) (*cartsync.RemoteState, error) {
	state, err := g.do(ctx, syncErrors.OpFetchState, http.MethodGet, g.url(userID, "enriched"), nil)
	if err == nil {
		state.Enriched = true
		return state, nil
	}
	if syncErrors.IsAuth(err) {
		// The basic tier will be rejected for the same credential.
		return nil, err
	}

	g.logger.Warn("enriched read failed, falling back to basic read",
		"user_id", userID,
		"error", err)

	state, err = g.do(ctx, syncErrors.OpFetchState, http.MethodGet, g.url(userID), nil)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// SyncReplica bulk-applies the local replica against the server copy using
// the named conflict policy in one request.
func (g *Gateway) SyncReplica(ctx context.Context, userID string, replica *cartsync.Replica, policy cartsync.ConflictPolicy) (*cartsync.RemoteState, error) {
	if replica == nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpSyncReplica,
			fmt.Errorf("replica is nil"))
	}

	return g.do(ctx, syncErrors.OpSyncReplica, http.MethodPost,
		g.url(userID, "sync"),
		syncRequest{
			Items:            replica.Items,
			ConflictStrategy: string(policy),
			LastUpdated:      replica.UpdatedAt,
			DeviceID:         g.deviceID,
			SessionID:        replica.SessionID,
		})
}

// url joins the base URL, the instance resource, the user id and any extra
// path segments, escaping each segment.
func (g *Gateway) url(userID string, segments ...string) string {
	var b strings.Builder
	b.WriteString(g.baseURL)
	b.WriteByte('/')
	b.WriteString(g.resource)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(userID))
	for _, seg := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}

func (g *Gateway) do(ctx context.Context, op syncErrors.Operation, method, requestURL string, body interface{}) (*cartsync.RemoteState, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, syncErrors.NewValidationError(op, fmt.Errorf("marshaling request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, syncErrors.NewValidationError(op, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := g.creds.Token(ctx)
	if err != nil {
		return nil, syncErrors.NewAuthError(op, syncErrors.KindTokenExpired,
			fmt.Errorf("obtaining credential: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, syncErrors.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(op, resp); err != nil {
		return nil, err
	}

	var state cartsync.RemoteState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, syncErrors.NewNetworkError(op, fmt.Errorf("decoding response: %w", err))
	}
	return &state, nil
}

// classifyStatus maps a non-2xx response onto the error taxonomy. The body
// is drained so the connection can be reused.
func classifyStatus(op syncErrors.Operation, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return syncErrors.NewAuthError(op, syncErrors.KindUnauthorized, cause)
	case http.StatusForbidden:
		return syncErrors.NewAuthError(op, syncErrors.KindForbidden, cause)
	default:
		return syncErrors.NewNetworkError(op, cause)
	}
}
