// Package backend is the REST client for the franchise API consumed by a
// screen session.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"waitboard/config"
	"waitboard/internal/model"
)

// StoreIDHeader scopes every request to a store.
const StoreIDHeader = "X-Store-Id"

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: received status code %d", e.Method, e.Path, e.Code)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	headers map[string]string

	mu      sync.RWMutex
	storeID string

	client  *http.Client
	log     *zap.Logger
}

// NewTransport returns the transport shared by REST and stream requests,
// honouring an optional proxy.
func NewTransport(proxy string, logger *zap.Logger) http.RoundTripper {
	if proxy == "" {
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		logger.Warn("invalid proxy url, not using a proxy", zap.String("proxy", proxy), zap.Error(err))
		return &http.Transport{}
	}
	return &http.Transport{Proxy: http.ProxyURL(proxyURL)}
}

// New creates a backend client.
func New(cfg config.BackendConfig, transport http.RoundTripper, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		storeID: cfg.StoreID,
		headers: cfg.Headers,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		log: logger.Named("backend"),
	}
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// StoreID returns the store all requests are scoped to.
func (c *Client) StoreID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storeID
}

// SetStoreID scopes later requests, stream connections included, to storeID.
func (c *Client) SetStoreID(storeID string) {
	c.mu.Lock()
	c.storeID = storeID
	c.mu.Unlock()
}

// Decorate sets the configured headers on a request.
func (c *Client) Decorate(req *http.Request) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if storeID := c.StoreID(); storeID != "" {
		req.Header.Set(StoreIDHeader, storeID)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.Decorate(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("backend rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}
	return nil
}

// StoreStatus fetches business date and open flag.
func (c *Client) StoreStatus(ctx context.Context) (model.StoreStatus, error) {
	var status model.StoreStatus
	err := c.do(ctx, http.MethodGet, "/store/status", nil, &status)
	return status, err
}

// StoreSettings fetches the store settings object.
func (c *Client) StoreSettings(ctx context.Context) (model.StoreSettings, error) {
	var settings model.StoreSettings
	err := c.do(ctx, http.MethodGet, "/store/settings", nil, &settings)
	return settings, err
}

// Classes fetches the class list in display order.
func (c *Client) Classes(ctx context.Context) ([]model.ClassSession, error) {
	var classes []model.ClassSession
	err := c.do(ctx, http.MethodGet, "/classes", nil, &classes)
	return classes, err
}

// WaitingItems fetches every active item of the current business date.
func (c *Client) WaitingItems(ctx context.Context) ([]model.WaitingItem, error) {
	var items []model.WaitingItem
	err := c.do(ctx, http.MethodGet, "/waiting", nil, &items)
	return items, err
}

// Connections fetches the live screen connection inventory.
func (c *Client) Connections(ctx context.Context) ([]model.ConnectionRecord, error) {
	var records []model.ConnectionRecord
	err := c.do(ctx, http.MethodGet, "/sse/connections", nil, &records)
	return records, err
}

func itemPath(id int64, action string) string {
	return "/waiting/" + strconv.FormatInt(id, 10) + "/" + action
}

// Move moves an item to the previous or next class.
func (c *Client) Move(ctx context.Context, id int64, dir model.Direction) (model.WaitingItem, error) {
	var item model.WaitingItem
	err := c.do(ctx, http.MethodPost, itemPath(id, "move"), map[string]model.Direction{"direction": dir}, &item)
	return item, err
}

// SetStatus changes the status of an item.
func (c *Client) SetStatus(ctx context.Context, id int64, status model.Status) (model.WaitingItem, error) {
	var item model.WaitingItem
	err := c.do(ctx, http.MethodPost, itemPath(id, "status"), map[string]model.Status{"status": status}, &item)
	return item, err
}

// Call records one call on an item.
func (c *Client) Call(ctx context.Context, id int64) (model.WaitingItem, error) {
	var item model.WaitingItem
	err := c.do(ctx, http.MethodPost, itemPath(id, "call"), nil, &item)
	return item, err
}

type reorderRequest struct {
	ClassID    int64   `json:"class_id"`
	OrderedIDs []int64 `json:"ordered_ids"`
}

// Reorder sets the order of a class.
func (c *Client) Reorder(ctx context.Context, classID int64, orderedIDs []int64) error {
	return c.do(ctx, http.MethodPost, "/waiting/reorder", reorderRequest{ClassID: classID, OrderedIDs: orderedIDs}, nil)
}

// InsertEmpty creates an empty seat next to an item.
func (c *Client) InsertEmpty(ctx context.Context, id int64, pos model.SeatPosition) (model.WaitingItem, error) {
	var item model.WaitingItem
	err := c.do(ctx, http.MethodPost, itemPath(id, "insert-empty"), map[string]model.SeatPosition{"position": pos}, &item)
	return item, err
}
