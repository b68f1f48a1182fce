package sushiswap

import (
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/chain"
	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	testRouter     = "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"
	testAggregator = "0x1111111111111111111111111111111111111111"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testVenue(t *testing.T) *Venue {
	t.Helper()
	v, err := New(Config{
		Router:     testRouter,
		Aggregator: testAggregator,
		GasSwap:    160_000,
		SwapTTL:    3 * time.Minute,
	}, nil, testLogger())
	require.NoError(t, err)
	return v
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Router: "nope", Aggregator: testAggregator}, nil, testLogger())
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid router address")

	_, err = New(Config{Router: testRouter, Aggregator: "0xzz"}, nil, testLogger())
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid aggregator address")
}

func TestNew_Defaults(t *testing.T) {
	v, err := New(Config{Router: testRouter, Aggregator: testAggregator}, nil, testLogger())
	require.NoError(t, err)

	assert.Equal(t, uint64(200_000), v.cfg.GasSwap)
	assert.Equal(t, 5*time.Minute, v.cfg.SwapTTL)
	assert.Equal(t, domain.VenueSushiswap, v.Venue())
}

func TestVenue_BuildSwapStep(t *testing.T) {
	v := testVenue(t)
	amountWei := big.NewInt(750_000_000_000_000_000)
	minOut := big.NewInt(1_850_000_000)

	step, err := v.BuildSwapStep(domain.Pair{Base: "WETH", Quote: "USDC"}, amountWei, minOut)
	require.NoError(t, err)

	assert.Equal(t, domain.StepSwap, step.Kind)
	assert.Equal(t, domain.VenueSushiswap, step.Venue)
	assert.Equal(t, common.HexToAddress(testRouter).Hex(), step.Target)
	assert.Equal(t, "WETH", step.Asset)
	assert.Zero(t, step.AmountWei.Cmp(amountWei))
	assert.Zero(t, step.MinOutWei.Cmp(minOut))
	assert.Equal(t, uint64(160_000), step.GasUnits)

	method := v.abi.Methods["swapExactTokensForTokens"]
	require.GreaterOrEqual(t, len(step.CallData), 4)
	assert.Equal(t, []byte(method.ID), step.CallData[:4])

	vals, err := method.Inputs.Unpack(step.CallData[4:])
	require.NoError(t, err)
	require.Len(t, vals, 5)

	weth, ok := chain.TokenAddress("WETH")
	require.True(t, ok)
	usdc, ok := chain.TokenAddress("USDC")
	require.True(t, ok)

	assert.Zero(t, vals[0].(*big.Int).Cmp(amountWei))
	assert.Zero(t, vals[1].(*big.Int).Cmp(minOut))
	assert.Equal(t, []common.Address{weth, usdc}, vals[2], "direct two-hop path")
	assert.Equal(t, common.HexToAddress(testAggregator), vals[3], "output lands on the aggregator")
	assert.InDelta(t, float64(time.Now().Add(3*time.Minute).Unix()), float64(vals[4].(*big.Int).Int64()), 5)
}

func TestVenue_BuildSwapStepUnknownToken(t *testing.T) {
	v := testVenue(t)
	one := big.NewInt(1)

	_, err := v.BuildSwapStep(domain.Pair{Base: "LINK", Quote: "USDC"}, one, one)
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown token "LINK"`)

	_, err = v.BuildSwapStep(domain.Pair{Base: "DAI", Quote: "PEPE"}, one, one)
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown token "PEPE"`)
}
