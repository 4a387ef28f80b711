// Package exchange is the REST client for the SX.bet order API.
//
// Every call is bounded by a fixed timeout so a hung request can never stall
// the monitor loop; exceeding it surfaces as ErrTimeout. Request rate is
// additionally capped by a token-bucket limiter shared across endpoints.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ErrTimeout marks a request that exceeded the per-call deadline.
var ErrTimeout = errors.New("exchange request timed out")

const (
	requestsPerSec = 10
	requestBurst   = 20
)

// Client talks to the SX.bet REST surface.
type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	retryDelay time.Duration
}

// NewClient creates a client with the given per-request timeout and the
// fixed delay used between active-order retries.
func NewClient(baseURL string, timeout, retryDelay time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		http:       &http.Client{},
		limiter:    rate.NewLimiter(requestsPerSec, requestBurst),
		timeout:    timeout,
		retryDelay: retryDelay,
	}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// ActiveOrders returns the maker's resting orders on a market, retrying up
// to retries times with a fixed delay between attempts.
func (c *Client) ActiveOrders(ctx context.Context, marketHash, maker string, retries int) ([]Order, error) {
	q := url.Values{}
	q.Set("marketHashes", marketHash)
	q.Set("maker", maker)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var orders []Order
		if err := c.get(ctx, "/orders?"+q.Encode(), &orders); err != nil {
			lastErr = err
			log.Warn().Err(err).Str("market", marketHash).Int("attempt", attempt+1).Msg("active orders fetch failed")
			continue
		}
		return orders, nil
	}
	return nil, fmt.Errorf("active orders after %d attempts: %w", retries+1, lastErr)
}

// Orders returns the full visible order book for a market.
func (c *Client) Orders(ctx context.Context, marketHash string) ([]Order, error) {
	q := url.Values{}
	q.Set("marketHashes", marketHash)

	var orders []Order
	if err := c.get(ctx, "/orders?"+q.Encode(), &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// PostOrder submits one signed order and returns the hash the venue
// registered it under.
func (c *Client) PostOrder(ctx context.Context, order *SignedOrder) (string, error) {
	body := map[string]interface{}{
		"orders": []*SignedOrder{order},
	}

	var data struct {
		Orders []string `json:"orders"`
	}
	if err := c.post(ctx, "/orders/new", body, &data); err != nil {
		return "", err
	}
	if len(data.Orders) == 0 {
		return "", fmt.Errorf("order accepted but no hash returned")
	}
	return data.Orders[0], nil
}

// CancelOrders submits a signed batch cancellation and returns how many
// orders the venue cancelled.
func (c *Client) CancelOrders(ctx context.Context, req *CancelRequest) (int, error) {
	var data struct {
		CancelledCount int `json:"cancelledCount"`
	}
	if err := c.post(ctx, "/orders/cancel/v2?chainVersion=SXR", req, &data); err != nil {
		return 0, err
	}
	return data.CancelledCount, nil
}

// TradeVolume sums the maker's historical settled stake on a market. Used
// only as a reconciliation check against the push-feed fill tracker.
func (c *Client) TradeVolume(ctx context.Context, marketHash, bettor string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("marketHashes", marketHash)
	q.Set("bettor", bettor)
	q.Set("maker", "true")

	var data struct {
		Trades []Trade `json:"trades"`
	}
	if err := c.get(ctx, "/trades?"+q.Encode(), &data); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, t := range data.Trades {
		stake, err := decimal.NewFromString(t.Stake)
		if err != nil {
			log.Warn().Str("stake", t.Stake).Msg("unparseable trade stake, skipped")
			continue
		}
		total = total.Add(stake)
	}
	return total, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	}, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

// do runs one request under the per-call deadline and unwraps the response
// envelope into out.
func (c *Client) do(ctx context.Context, build func(context.Context) (*http.Request, error), out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := build(callCtx)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s", ErrTimeout, req.URL.Path)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Status != "success" {
		return fmt.Errorf("%s %s: api status %q", req.Method, req.URL.Path, env.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
