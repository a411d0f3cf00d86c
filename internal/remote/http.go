package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// Default request bounds. The degraded timeout applies once the
// connectivity monitor has marked the adapter offline, so local operations
// are never blocked behind a long network wait.
const (
	DefaultTimeout  = 5 * time.Second
	DegradedTimeout = 1 * time.Second
)

// Client is the HTTP implementation of Adapter against a document-oriented
// REST service: one resource per logical entity, server-stamped write
// times, query-by-field support.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	timeout  time.Duration
	degraded atomic.Bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the key sent in the X-API-Key header.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout overrides the per-request timeout used while healthy.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a document-store client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDegraded switches the client between the healthy and degraded request
// timeouts. The connectivity monitor flips this on state transitions.
func (c *Client) SetDegraded(degraded bool) {
	c.degraded.Store(degraded)
}

func (c *Client) requestTimeout() time.Duration {
	if c.degraded.Load() {
		return DegradedTimeout
	}
	return c.timeout
}

// CreateProduct implements Adapter.
func (c *Client) CreateProduct(ctx context.Context, doc ProductDoc) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/products", doc, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("remote create returned no id")
	}
	return resp.ID, nil
}

// FetchProducts implements Adapter.
func (c *Client) FetchProducts(ctx context.Context) ([]ProductDoc, error) {
	var raw []map[string]any
	if err := c.do(ctx, http.MethodGet, "/products", nil, &raw); err != nil {
		return nil, err
	}
	return decodeProductDocs(raw)
}

// FetchProduct implements Adapter.
func (c *Client) FetchProduct(ctx context.Context, remoteID string) (*ProductDoc, error) {
	var raw map[string]any
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(remoteID), nil, &raw)
	if err != nil {
		return nil, err
	}
	doc, err := decodeProductDoc(raw)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateProduct implements Adapter.
func (c *Client) UpdateProduct(ctx context.Context, remoteID string, fields Fields) error {
	return c.do(ctx, http.MethodPatch, "/products/"+url.PathEscape(remoteID), fields, nil)
}

// DeleteProduct implements Adapter. Deleting an absent document succeeds.
func (c *Client) DeleteProduct(ctx context.Context, remoteID string) error {
	err := c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(remoteID), nil, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// FindProductsByField implements Adapter.
func (c *Client) FindProductsByField(ctx context.Context, field, value string) ([]ProductDoc, error) {
	q := url.Values{"field": {field}, "value": {value}}
	var raw []map[string]any
	if err := c.do(ctx, http.MethodGet, "/products?"+q.Encode(), nil, &raw); err != nil {
		return nil, err
	}
	return decodeProductDocs(raw)
}

// CreateMovement implements Adapter.
func (c *Client) CreateMovement(ctx context.Context, doc MovementDoc) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/movements", doc, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Ping implements Adapter.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do performs one bounded request and classifies the outcome. Transport
// failures, timeouts and 5xx responses all collapse into ErrUnavailable so
// callers have exactly one transient-failure case to handle.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s %s returned %s", ErrUnavailable, method, path, resp.Status)
	case resp.StatusCode >= http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote rejected %s %s: %s: %s", method, path, resp.Status, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
