// Package indexer reads token manager records from the indexer API.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"token-manager-dashboard/internal/domain"
)

// DefaultTimeout bounds a single indexer request.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUnexpectedStatus is returned for non-2xx indexer responses.
	ErrUnexpectedStatus = errors.New("unexpected indexer status")

	// ErrMissingData is returned when a response has no data array.
	ErrMissingData = errors.New("indexer response has no data")
)

// Client queries the tokenManagersByState endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient creates a client for the indexer rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenManagersResponse is the response envelope. Data is nil when the
// field is absent or null.
type tokenManagersResponse struct {
	Data  *[]RawTokenData `json:"data"`
	Error string          `json:"error,omitempty"`
}

// TokenManagersByState returns every token manager the indexer tracks for
// cluster, with all keys decoded.
func (c *Client) TokenManagersByState(ctx context.Context, cluster string) ([]domain.TokenData, error) {
	endpoint := fmt.Sprintf("%s/tokenManagersByState?cluster=%s", c.baseURL, url.QueryEscape(cluster))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload tokenManagersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode indexer response: %w", err)
	}

	if payload.Data == nil {
		if payload.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingData, payload.Error)
		}
		return nil, ErrMissingData
	}

	tokens, err := DecodeTokenDatas(*payload.Data)
	if err != nil {
		return nil, fmt.Errorf("decode indexer response: %w", err)
	}
	return tokens, nil
}
