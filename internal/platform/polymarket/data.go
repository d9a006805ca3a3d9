package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// rateLimitKey is shared by every DataClient request so all pollers draw
// from the same request budget.
const rateLimitKey = "polymarket:data-api"

// Transient failures retry with exponential backoff (1s, 2s) before giving
// up. A settlement marks its records processed even when a fetch fails, so
// the adapter absorbs blips rather than surfacing them.
const (
	dataMaxAttempts    = 3
	dataRetryBaseDelay = time.Second
)

// DataClient is the REST client for the Polymarket Data API
// (https://data-api.polymarket.com). It serves the activity feed and the
// positions endpoint for arbitrary wallets; no authentication is required.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    domain.RateLimiter
	retryDelay time.Duration // shortened in tests
}

// NewDataClient creates a Data API client. limiter may be nil, in which case
// requests are not throttled.
func NewDataClient(baseURL string, limiter domain.RateLimiter) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter:    limiter,
		retryDelay: dataRetryBaseDelay,
	}
}

// Activities returns the most recent TRADE activities for a wallet, newest
// first. Non-trade activity types (splits, merges, redeems) are filtered out.
func (c *DataClient) Activities(ctx context.Context, address string, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{
		"user":  {address},
		"type":  {"TRADE"},
		"limit": {strconv.Itoa(limit)},
	}

	body, err := c.get(ctx, "/activity", q)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: fetch activities for %s: %w", address, err)
	}

	var raw []APIActivity
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode activities: %w", err)
	}

	activities := make([]domain.Activity, 0, len(raw))
	for i := range raw {
		if raw[i].Type != "" && raw[i].Type != "TRADE" {
			continue
		}
		activities = append(activities, raw[i].ToDomainActivity())
	}
	return activities, nil
}

// Positions returns the current open positions for a wallet.
func (c *DataClient) Positions(ctx context.Context, address string) ([]domain.Position, error) {
	q := url.Values{
		"user": {address},
	}

	body, err := c.get(ctx, "/positions", q)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: fetch positions for %s: %w", address, err)
	}

	var raw []APIPosition
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(raw))
	for i := range raw {
		positions = append(positions, raw[i].ToDomainPosition())
	}
	return positions, nil
}

func (c *DataClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= dataMaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
				return nil, err
			}
		}

		body, retryable, err := c.doGet(ctx, u)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || attempt == dataMaxAttempts {
			break
		}

		// Exponential backoff, honouring the context.
		delay := c.retryDelay << (attempt - 1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// doGet performs a single request. retryable reports whether the failure is
// transient (transport error, 429, or 5xx) and worth another attempt.
func (c *DataClient) doGet(ctx context.Context, u string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, transient, err
	}
	return body, false, nil
}

// Compile-time interface check.
var _ domain.PositionSource = (*DataClient)(nil)
