package ingest

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/championcart/backend/internal/resilience"
)

// ErrCityNotFound is returned when the remote catalog does not know the city.
var ErrCityNotFound = errors.New("ingest: city not found upstream")

// RemoteStore is a store as published by the remote catalog.
type RemoteStore struct {
	Chain   string `json:"chain"`
	StoreID string `json:"storeId"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// RemotePrice is one decimal price as published by the remote catalog.
type RemotePrice struct {
	Chain    string `json:"chain"`
	StoreID  string `json:"storeId"`
	ItemName string `json:"itemName"`
	Price    string `json:"price"`
}

// Snapshot is the remote catalog of one city.
type Snapshot struct {
	Stores []RemoteStore `json:"stores"`
	Prices []RemotePrice `json:"prices"`
}

// ClientConfig configures the remote catalog client.
type ClientConfig struct {
	BaseURL string
	Token   string
	HTTP    resilience.HTTPClient
}

// Client fetches city snapshots from the remote price catalog API.
type Client struct {
	base  string
	token string
	http  resilience.HTTPClient
}

// NewClient constructs a Client. When no http.Client is configured one with an
// OpenTelemetry instrumented transport is used.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("ingest: catalog api url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("ingest: invalid catalog api url: %w", err)
	}
	httpClient := cfg.HTTP
	if httpClient.Client == nil {
		httpClient.Client = NewInstrumentedHTTPClient(0)
	}
	return &Client{base: base, token: cfg.Token, http: httpClient}, nil
}

// NewInstrumentedHTTPClient returns an http.Client whose requests emit client spans.
func NewInstrumentedHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Fetch downloads the snapshot of city.
func (c *Client) Fetch(ctx context.Context, city string) (Snapshot, error) {
	endpoint := c.base + "/v1/cities/" + url.PathEscape(city) + "/prices"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch %s catalog: %w", city, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Snapshot{}, ErrCityNotFound
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("fetch %s catalog: unexpected status %d: %s", city, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s catalog: %w", city, err)
	}
	return snap, nil
}
