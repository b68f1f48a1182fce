package domain

import (
	"math/big"
	"time"
)

// StepKind classifies a step inside an execution plan.
type StepKind string

const (
	StepBorrow StepKind = "borrow"
	StepSwap   StepKind = "swap"
	StepRepay  StepKind = "repay"
	StepSettle StepKind = "settle"
)

// Step is one leg of the atomic on-chain operation. Steps are encoded into a
// single aggregator-contract call; they never execute individually.
type Step struct {
	Kind       StepKind
	ProviderID string // lending protocol, borrow/repay steps
	Venue      Venue  // DEX, swap steps
	Target     string // contract address the step calls
	Asset      string // token contract address
	AmountWei  *big.Int
	MinOutWei  *big.Int // swap steps: slippage-bounded minimum output
	GasUnits   uint64   // gas estimate for this step
	CallData   []byte   // ABI-encoded payload fragment
}

// ExecutionPlan is the single-use product of strategy evaluation: an ordered
// borrow/swap×N/repay/settle step list plus its economics. A plan is never
// resubmitted after execution, whether it succeeded or failed.
type ExecutionPlan struct {
	ID            string
	OpportunityID string
	StrategyID    string
	Loan          LoanQuote
	Steps         []Step
	Pools         []string // pool IDs the plan touches, for concentration accounting

	// BorrowAsset and BorrowAmount are set by the strategy as its funding
	// request. The orchestrator resolves them into a provider quote and the
	// surrounding borrow/repay/settle steps.
	BorrowAsset  string
	BorrowAmount float64

	PositionSize       float64 // ETH notional reserved against risk limits
	EstimatedNetProfit float64 // ETH, after loan fee, venue fees, gas
	EstimatedGasCost   float64 // ETH
	RiskScore          float64 // 0..1, higher is riskier

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the plan is past its expiry.
func (p *ExecutionPlan) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// GasLimit sums the per-step gas estimates plus a fixed base allowance.
func (p *ExecutionPlan) GasLimit() uint64 {
	const baseGas = 21_000
	total := uint64(baseGas)
	for _, s := range p.Steps {
		total += s.GasUnits
	}
	return total
}

// WorstCaseLoss bounds the loss if execution reverts or slippage lands at the
// ceiling: the full gas spend plus the slippage allowance on the position.
func (p *ExecutionPlan) WorstCaseLoss(slippageCeilingBps float64) float64 {
	return p.EstimatedGasCost + p.PositionSize*slippageCeilingBps/10_000
}
