package aave

import (
	"context"
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
	testPool       = "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
	testAggregator = "0x1111111111111111111111111111111111111111"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{
		Pool:       testPool,
		Aggregator: testAggregator,
		FeeBps:     9,
		QuoteTTL:   30 * time.Second,
	}, nil, testLogger())
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Pool: "not-an-address", Aggregator: testAggregator}, nil, testLogger())
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid pool address")

	_, err = New(Config{Pool: testPool, Aggregator: "0x1"}, nil, testLogger())
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid aggregator address")
}

func TestNew_Defaults(t *testing.T) {
	p := testProvider(t)

	assert.Equal(t, "aave", p.ID())
	assert.Equal(t, uint64(150_000), p.cfg.GasBorrow)
	assert.Equal(t, uint64(100_000), p.cfg.GasRepay)
}

func TestProvider_BuildBorrowStep(t *testing.T) {
	p := testProvider(t)
	q := domain.LoanQuote{ProviderID: "aave", Asset: "WETH", FeeBps: 9}
	amount := big.NewInt(5_000_000_000_000_000_000)

	step, err := p.BuildBorrowStep(q, amount)
	require.NoError(t, err)

	assert.Equal(t, domain.StepBorrow, step.Kind)
	assert.Equal(t, "aave", step.ProviderID)
	assert.Equal(t, common.HexToAddress(testPool).Hex(), step.Target)
	assert.Equal(t, "WETH", step.Asset)
	assert.Zero(t, step.AmountWei.Cmp(amount))
	assert.Equal(t, uint64(150_000), step.GasUnits)

	method := p.abi.Methods["flashLoanSimple"]
	require.GreaterOrEqual(t, len(step.CallData), 4)
	assert.Equal(t, []byte(method.ID), step.CallData[:4])

	vals, err := method.Inputs.Unpack(step.CallData[4:])
	require.NoError(t, err)
	require.Len(t, vals, 5)

	weth, ok := chain.TokenAddress("WETH")
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress(testAggregator), vals[0], "aggregator is the flash-loan receiver")
	assert.Equal(t, weth, vals[1])
	assert.Zero(t, vals[2].(*big.Int).Cmp(amount))
	assert.Empty(t, vals[3])
	assert.Equal(t, uint16(0), vals[4])
}

func TestProvider_BuildBorrowStepUnknownToken(t *testing.T) {
	p := testProvider(t)

	_, err := p.BuildBorrowStep(domain.LoanQuote{ProviderID: "aave", Asset: "LINK"}, big.NewInt(1))
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown token "LINK"`)
}

func TestProvider_BuildRepayStep(t *testing.T) {
	p := testProvider(t)
	q := domain.LoanQuote{ProviderID: "aave", Asset: "WETH", FeeBps: 9}
	owed := big.NewInt(5_004_500_000_000_000_000)

	step, err := p.BuildRepayStep(q, owed)
	require.NoError(t, err)

	weth, ok := chain.TokenAddress("WETH")
	require.True(t, ok)
	assert.Equal(t, domain.StepRepay, step.Kind)
	assert.Equal(t, "aave", step.ProviderID)
	assert.Equal(t, weth.Hex(), step.Target, "approve is issued on the token contract")
	assert.Zero(t, step.AmountWei.Cmp(owed))
	assert.Equal(t, uint64(100_000), step.GasUnits)

	want, err := chain.PackERC20Approve(common.HexToAddress(testPool), owed)
	require.NoError(t, err)
	assert.Equal(t, want, step.CallData, "pool pulls principal plus premium via allowance")
}

func TestProvider_QuoteRejectsUnknownAsset(t *testing.T) {
	_, err := testProvider(t).Quote(context.Background(), "LINK", 25)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}
