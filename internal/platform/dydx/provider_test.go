package dydx

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/chain"
	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	testSolo       = "0x1E0447b19BB6EcFdAe1e4AE1694b0C3659614e4e"
	testAggregator = "0x3333333333333333333333333333333333333333"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{
		SoloMargin: testSolo,
		Aggregator: testAggregator,
		QuoteTTL:   30 * time.Second,
	}, nil, testLogger())
	require.NoError(t, err)
	return p
}

// unpackOperate decodes a borrow step back into the solo account and action
// lists it was packed from.
func unpackOperate(t *testing.T, callData []byte) ([]soloAccount, []soloAction) {
	t.Helper()
	require.GreaterOrEqual(t, len(callData), 4)
	require.Equal(t, []byte(operateMethod.ID), callData[:4])

	vals, err := operateMethod.Inputs.Unpack(callData[4:])
	require.NoError(t, err)
	require.Len(t, vals, 2)

	accounts := *abi.ConvertType(vals[0], new([]soloAccount)).(*[]soloAccount)
	actions := *abi.ConvertType(vals[1], new([]soloAction)).(*[]soloAction)
	return accounts, actions
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{SoloMargin: "nope", Aggregator: testAggregator}, nil, testLogger())
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid solo margin address")

	_, err = New(Config{SoloMargin: testSolo, Aggregator: ""}, nil, testLogger())
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid aggregator address")
}

func TestNew_Defaults(t *testing.T) {
	p := testProvider(t)

	assert.Equal(t, "dydx", p.ID())
	assert.Equal(t, uint64(300_000), p.cfg.GasBorrow, "operate calls cost more than dedicated flash entry points")
	assert.Equal(t, uint64(100_000), p.cfg.GasRepay)
}

func TestProvider_BuildBorrowStep(t *testing.T) {
	p := testProvider(t)
	amount := big.NewInt(3_000_000_000_000_000_000)

	step, err := p.BuildBorrowStep(domain.LoanQuote{ProviderID: "dydx", Asset: "WETH"}, amount)
	require.NoError(t, err)

	assert.Equal(t, domain.StepBorrow, step.Kind)
	assert.Equal(t, "dydx", step.ProviderID)
	assert.Equal(t, common.HexToAddress(testSolo).Hex(), step.Target)
	assert.Equal(t, "WETH", step.Asset)
	assert.Zero(t, step.AmountWei.Cmp(amount))
	assert.Equal(t, uint64(300_000), step.GasUnits)

	accounts, actions := unpackOperate(t, step.CallData)
	agg := common.HexToAddress(testAggregator)

	require.Len(t, accounts, 1)
	assert.Equal(t, agg, accounts[0].Owner)
	assert.Zero(t, accounts[0].Number.Cmp(big.NewInt(1)))

	require.Len(t, actions, 3, "withdraw, call, deposit")
	assert.Equal(t, uint8(actionWithdraw), actions[0].ActionType)
	assert.Equal(t, uint8(actionCall), actions[1].ActionType)
	assert.Equal(t, uint8(actionDeposit), actions[2].ActionType)

	assert.False(t, actions[0].Amount.Sign, "withdraw debits the solo account")
	assert.Zero(t, actions[0].Amount.Value.Cmp(amount))

	owed := new(big.Int).Add(amount, big.NewInt(2))
	assert.True(t, actions[2].Amount.Sign, "deposit credits it back")
	assert.Zero(t, actions[2].Amount.Value.Cmp(owed), "repayment includes the flat 2 wei premium")

	for i, a := range actions {
		assert.Equal(t, agg, a.OtherAddress, "action %d routes through the aggregator", i)
	}
}

func TestProvider_BuildBorrowStepMarketIDs(t *testing.T) {
	cases := []struct {
		asset string
		want  int64
	}{
		{"WETH", 0},
		{"USDC", 2},
		{"DAI", 3},
	}
	p := testProvider(t)
	for _, tc := range cases {
		t.Run(tc.asset, func(t *testing.T) {
			step, err := p.BuildBorrowStep(domain.LoanQuote{ProviderID: "dydx", Asset: tc.asset}, big.NewInt(1_000_000))
			require.NoError(t, err)

			_, actions := unpackOperate(t, step.CallData)
			assert.Equal(t, tc.want, actions[0].PrimaryMarketId.Int64())
			assert.Equal(t, tc.want, actions[2].PrimaryMarketId.Int64(), "deposit returns to the borrowed market")
		})
	}
}

func TestProvider_BuildBorrowStepUnlistedMarket(t *testing.T) {
	p := testProvider(t)

	_, err := p.BuildBorrowStep(domain.LoanQuote{ProviderID: "dydx", Asset: "USDT"}, big.NewInt(1))
	require.Error(t, err)
	assert.ErrorContains(t, err, "no solo market for USDT")
}

func TestProvider_BuildRepayStep(t *testing.T) {
	p := testProvider(t)
	owed := big.NewInt(1_000_000_000_000_000_000)

	step, err := p.BuildRepayStep(domain.LoanQuote{ProviderID: "dydx", Asset: "WETH"}, owed)
	require.NoError(t, err)

	weth, ok := chain.TokenAddress("WETH")
	require.True(t, ok)
	owedPlusPremium := new(big.Int).Add(owed, big.NewInt(2))

	assert.Equal(t, domain.StepRepay, step.Kind)
	assert.Equal(t, weth.Hex(), step.Target)
	assert.Zero(t, step.AmountWei.Cmp(owedPlusPremium), "approval covers the flat premium")

	want, err := chain.PackERC20Approve(common.HexToAddress(testSolo), owedPlusPremium)
	require.NoError(t, err)
	assert.Equal(t, want, step.CallData)
}

func TestProvider_QuoteRejectsUnlistedMarket(t *testing.T) {
	// WBTC is a known token but Solo never listed it; USDT likewise.
	for _, asset := range []string{"WBTC", "USDT"} {
		_, err := testProvider(t).Quote(context.Background(), asset, 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
		assert.ErrorContains(t, err, "no solo market")
	}
}
