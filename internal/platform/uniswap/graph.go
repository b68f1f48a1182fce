package uniswap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// GraphClient queries the Uniswap V3 subgraph for pool state. It is used to
// seed pool prices at startup before the streaming feed delivers live ticks.
type GraphClient struct {
	graphqlURL string
	httpClient *http.Client
}

// NewGraphClient creates a subgraph client for the given endpoint.
func NewGraphClient(graphqlURL string) *GraphClient {
	return &GraphClient{
		graphqlURL: graphqlURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PoolSnapshots fetches current price and liquidity for the given pools. The
// pools argument maps lower-case pool contract addresses to the tracked pool
// definitions; prices are returned as quote-per-base for each pool's pair.
func (c *GraphClient) PoolSnapshots(ctx context.Context, pools map[string]domain.Pool) ([]domain.PriceUpdate, error) {
	if len(pools) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pools))
	for addr := range pools {
		ids = append(ids, addr)
	}

	query := `
		query PoolSnapshots($ids: [ID!]!) {
			pools(where: { id_in: $ids }) {
				id
				token0 { symbol }
				token0Price
				token1Price
				totalValueLockedUSD
			}
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("uniswap: pool snapshots: %w", err)
	}

	var result struct {
		Pools []struct {
			ID                  string `json:"id"`
			Token0              struct {
				Symbol string `json:"symbol"`
			} `json:"token0"`
			Token0Price         string `json:"token0Price"`
			Token1Price         string `json:"token1Price"`
			TotalValueLockedUSD string `json:"totalValueLockedUSD"`
		} `json:"pools"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("uniswap: decode pool snapshots: %w", err)
	}

	now := time.Now().UTC()
	updates := make([]domain.PriceUpdate, 0, len(result.Pools))
	for _, p := range result.Pools {
		pool, ok := pools[strings.ToLower(p.ID)]
		if !ok {
			continue
		}

		// token0Price is token0 denominated in token1. When our pair's base is
		// token0 that is exactly quote-per-base; otherwise invert.
		priceStr := p.Token1Price
		if strings.EqualFold(p.Token0.Symbol, pool.Pair.Base) {
			priceStr = p.Token0Price
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price <= 0 {
			continue
		}
		tvl, _ := strconv.ParseFloat(p.TotalValueLockedUSD, 64)

		updates = append(updates, domain.PriceUpdate{
			PoolID:    pool.ID,
			Venue:     pool.Venue,
			Pair:      pool.Pair,
			Price:     price,
			Liquidity: tvl,
			Timestamp: now,
		})
	}
	return updates, nil
}

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *GraphClient) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
