package sushiswap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	graphPairA = "0x397ff1542f962076d0bfe58ea045ffa2d347aca0"
	graphPairB = "0xc3d03e4f041fd4cd388c549ee2a29a9e5075882f"
)

func graphTrackedPairs() map[string]domain.Pool {
	return map[string]domain.Pool{
		graphPairA: {ID: "sushi-weth-usdc", Venue: domain.VenueSushiswap, Pair: domain.Pair{Base: "WETH", Quote: "USDC"}, Address: graphPairA, FeeBps: 30},
		graphPairB: {ID: "sushi-weth-dai", Venue: domain.VenueSushiswap, Pair: domain.Pair{Base: "WETH", Quote: "DAI"}, Address: graphPairB, FeeBps: 30},
	}
}

func TestGraphClient_PairSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "pairs(where: { id_in: $ids })")
		ids, _ := req.Variables["ids"].([]any)
		assert.ElementsMatch(t, []any{graphPairA, graphPairB}, ids)

		// Pair A lists USDC as token0, so our WETH base takes token1Price.
		// The third pair is not tracked and must be dropped.
		fmt.Fprint(w, `{"data":{"pairs":[
			{"id":"0x397ff1542f962076d0bfe58ea045ffa2d347aca0","token0":{"symbol":"USDC"},"token0Price":"0.000399","token1Price":"2505.88","reserveUSD":"3400000.75"},
			{"id":"0xC3D03E4F041FD4CD388C549EE2A29A9E5075882F","token0":{"symbol":"WETH"},"token0Price":"2504.1","token1Price":"0.000399","reserveUSD":"1100000"},
			{"id":"0x06da0fd433c1a5d7a4faa01111c044910a184553","token0":{"symbol":"WETH"},"token0Price":"2500","token1Price":"0.0004","reserveUSD":"9000000"}
		]}}`)
	}))
	defer srv.Close()

	updates, err := NewGraphClient(srv.URL).PairSnapshots(context.Background(), graphTrackedPairs())
	require.NoError(t, err)
	require.Len(t, updates, 2)

	assert.Equal(t, "sushi-weth-usdc", updates[0].PoolID)
	assert.Equal(t, domain.VenueSushiswap, updates[0].Venue)
	assert.Equal(t, 2505.88, updates[0].Price, "base as token1 uses the inverted price")
	assert.Equal(t, 3400000.75, updates[0].Liquidity)
	assert.WithinDuration(t, time.Now().UTC(), updates[0].Timestamp, 2*time.Second)

	assert.Equal(t, "sushi-weth-dai", updates[1].PoolID)
	assert.Equal(t, 2504.1, updates[1].Price)
}

func TestGraphClient_PairSnapshotsGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"too many requests"}]}`)
	}))
	defer srv.Close()

	_, err := NewGraphClient(srv.URL).PairSnapshots(context.Background(), graphTrackedPairs())
	require.Error(t, err)
	assert.ErrorContains(t, err, "graphql error: too many requests")
}

func TestGraphClient_PairSnapshotsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewGraphClient(srv.URL).PairSnapshots(context.Background(), graphTrackedPairs())
	require.Error(t, err)
	assert.ErrorContains(t, err, "HTTP 502")
}
