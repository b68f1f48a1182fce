package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiquidationCapture_BuysTheDump(t *testing.T) {
	s := NewLiquidationCapture(LiquidationConfig{MinBonusBps: 500, HealthCritical: 1.0}, testLogger())
	m := marketWithPrices(94, 100)

	opp := crossOpp(638)
	opp.SourcePrice = 94
	opp.DestPrice = 100

	plan, err := s.Evaluate(context.Background(), opp, m)
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, "liquidation_capture", plan.StrategyID)
	assert.InDelta(t, 470.0, plan.BorrowAmount, 1e-9, "5 WETH of discounted collateral at 94")

	// 470 USDC buys 5 WETH at the dumped 94 print, exits for 500 at the
	// healthy venue; the fresher 100 print is the ETH reference.
	assert.InDelta(t, 0.3, plan.EstimatedNetProfit, 1e-9)
	assert.InDelta(t, 4.7, plan.PositionSize, 1e-9)
	assert.InDelta(t, riskScore(0.35, 10, 50, 0.9), plan.RiskScore, 1e-9)
}

func TestLiquidationCapture_DebtCapLimitsTheCapture(t *testing.T) {
	s := NewLiquidationCapture(LiquidationConfig{MinBonusBps: 500, HealthCritical: 1.0, MaxDebtSize: 200}, testLogger())
	m := marketWithPrices(94, 100)

	opp := crossOpp(638)
	opp.SourcePrice = 94
	opp.DestPrice = 100

	plan, err := s.Evaluate(context.Background(), opp, m)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, 200.0, plan.BorrowAmount)
}

func TestLiquidationCapture_Declines(t *testing.T) {
	s := NewLiquidationCapture(LiquidationConfig{MinBonusBps: 500, HealthCritical: 1.0}, testLogger())
	ctx := context.Background()

	t.Run("spread under the liquidation bonus", func(t *testing.T) {
		opp := crossOpp(400)
		plan, err := s.Evaluate(ctx, opp, marketWithPrices(96, 100))
		require.NoError(t, err)
		assert.Nil(t, plan, "ordinary spread noise is not a liquidation")
	})

	t.Run("market too healthy", func(t *testing.T) {
		opp := crossOpp(550)
		opp.SourcePrice = 99.5
		opp.DestPrice = 100
		plan, err := s.Evaluate(ctx, opp, marketWithPrices(99.5, 100))
		require.NoError(t, err)
		assert.Nil(t, plan, "a 0.5% discount does not cover the 5% bonus")
	})

	t.Run("missing snapshot", func(t *testing.T) {
		opp := crossOpp(638)
		opp.SourcePrice = 94
		opp.DestPrice = 100
		opp.SourcePool = "nope"
		plan, err := s.Evaluate(ctx, opp, marketWithPrices(94, 100))
		require.NoError(t, err)
		assert.Nil(t, plan)
	})
}

func TestNewLiquidationCapture_Defaults(t *testing.T) {
	s := NewLiquidationCapture(LiquidationConfig{}, testLogger())
	assert.Equal(t, float64(defaultLiquidationMinBonusBps), s.cfg.MinBonusBps)
	assert.Equal(t, defaultLiquidationHealth, s.cfg.HealthCritical)
}
