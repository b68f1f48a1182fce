package sushiswap

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

// GraphClient queries the SushiSwap exchange subgraph (Uniswap V2 schema) for
// pair reserves and derived prices.
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

// PairSnapshots fetches current price and reserve depth for the given pairs.
// The pairs argument maps lower-case pair contract addresses to the tracked
// pool definitions.
func (c *GraphClient) PairSnapshots(ctx context.Context, pairs map[string]domain.Pool) ([]domain.PriceUpdate, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pairs))
	for addr := range pairs {
		ids = append(ids, addr)
	}

	query := `
		query PairSnapshots($ids: [ID!]!) {
			pairs(where: { id_in: $ids }) {
				id
				token0 { symbol }
				token0Price
				token1Price
				reserveUSD
			}
		}
	`

	body := struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}{query, map[string]any{"ids": ids}}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("sushiswap: marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("sushiswap: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sushiswap: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sushiswap: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sushiswap: HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var envelope struct {
		Data struct {
			Pairs []struct {
				ID     string `json:"id"`
				Token0 struct {
					Symbol string `json:"symbol"`
				} `json:"token0"`
				Token0Price string `json:"token0Price"`
				Token1Price string `json:"token1Price"`
				ReserveUSD  string `json:"reserveUSD"`
			} `json:"pairs"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("sushiswap: decode pair snapshots: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return nil, fmt.Errorf("sushiswap: graphql error: %s", envelope.Errors[0].Message)
	}

	now := time.Now().UTC()
	updates := make([]domain.PriceUpdate, 0, len(envelope.Data.Pairs))
	for _, p := range envelope.Data.Pairs {
		pool, ok := pairs[strings.ToLower(p.ID)]
		if !ok {
			continue
		}
		priceStr := p.Token1Price
		if strings.EqualFold(p.Token0.Symbol, pool.Pair.Base) {
			priceStr = p.Token0Price
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price <= 0 {
			continue
		}
		reserve, _ := strconv.ParseFloat(p.ReserveUSD, 64)

		updates = append(updates, domain.PriceUpdate{
			PoolID:    pool.ID,
			Venue:     pool.Venue,
			Pair:      pool.Pair,
			Price:     price,
			Liquidity: reserve,
			Timestamp: now,
		})
	}
	return updates, nil
}
