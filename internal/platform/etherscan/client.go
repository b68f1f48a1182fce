// Package etherscan implements the secondary transaction verifier used to
// reconcile settlements whose outcome the executor could not observe.
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// rateLimitKey is the bucket all Etherscan calls share; the free API tier
// allows 5 requests per second.
const (
	rateLimitKey    = "etherscan:api"
	rateLimitMax    = 5
	rateLimitWindow = time.Second
)

// Client is an Etherscan API client implementing domain.ExternalVerifier.
type Client struct {
	baseURL    string
	apiKey     string
	limiter    domain.RateLimiter
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an Etherscan client. limiter may be nil, in which case requests
// are not throttled.
func New(baseURL, apiKey string, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		limiter: limiter,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With(slog.String("component", "etherscan")),
	}
}

// envelope is the standard Etherscan response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Confirm implements domain.ExternalVerifier. It first checks the receipt
// status endpoint; when the transaction is not indexed yet it falls back to
// the proxy endpoint to distinguish pending from never-seen.
func (c *Client) Confirm(ctx context.Context, txRef string) (domain.VerifyResult, error) {
	c.throttle(ctx)

	params := url.Values{}
	params.Set("module", "transaction")
	params.Set("action", "gettxreceiptstatus")
	params.Set("txhash", txRef)

	var result struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, params, &result); err != nil {
		return domain.VerifyResult{}, fmt.Errorf("etherscan: confirm %s: %w", txRef, err)
	}

	switch result.Status {
	case "1":
		return domain.VerifyResult{Status: domain.VerifyConfirmed, Succeeded: true}, nil
	case "0":
		// Either reverted or not yet indexed; the proxy endpoint tells them apart.
		seen, err := c.txKnown(ctx, txRef)
		if err != nil {
			return domain.VerifyResult{}, fmt.Errorf("etherscan: confirm %s: %w", txRef, err)
		}
		if !seen {
			return domain.VerifyResult{Status: domain.VerifyNotFound}, nil
		}
		return domain.VerifyResult{Status: domain.VerifyConfirmed, Succeeded: false}, nil
	default:
		return domain.VerifyResult{Status: domain.VerifyPending}, nil
	}
}

// txKnown reports whether the node behind Etherscan's proxy has seen the
// transaction at all (mined or pending).
func (c *Client) txKnown(ctx context.Context, txRef string) (bool, error) {
	c.throttle(ctx)

	params := url.Values{}
	params.Set("module", "proxy")
	params.Set("action", "eth_getTransactionByHash")
	params.Set("txhash", txRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(params), nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var proxyResp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &proxyResp); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return string(proxyResp.Result) != "null" && len(proxyResp.Result) > 0, nil
}

// throttle blocks briefly when the shared rate limit is exhausted. Limiter
// errors fail open; verification must not stall on cache hiccups.
func (c *Client) throttle(ctx context.Context) {
	if c.limiter == nil {
		return
	}
	for i := 0; i < 3; i++ {
		allowed, err := c.limiter.Allow(ctx, rateLimitKey, rateLimitMax, rateLimitWindow)
		if err != nil {
			c.logger.WarnContext(ctx, "rate limiter unavailable, proceeding",
				slog.String("error", err.Error()),
			)
			return
		}
		if allowed {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(rateLimitWindow / rateLimitMax):
		}
	}
}

// get performs a GET against the API and decodes the result payload.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(params), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	// Etherscan reports status "0" with message "No records found" for
	// unindexed hashes; the result payload still decodes.
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *Client) buildURL(params url.Values) string {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	return c.baseURL + "?" + params.Encode()
}

var _ domain.ExternalVerifier = (*Client)(nil)
