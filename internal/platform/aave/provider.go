// Package aave implements the flash-loan provider backed by the Aave V3 pool.
package aave

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/TemamAb/ainex-sub000/internal/chain"
	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const poolABIJSON = `[{
	"name": "flashLoanSimple",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "receiverAddress", "type": "address"},
		{"name": "asset", "type": "address"},
		{"name": "amount", "type": "uint256"},
		{"name": "params", "type": "bytes"},
		{"name": "referralCode", "type": "uint16"}
	],
	"outputs": []
}]`

// Config holds the Aave provider parameters.
type Config struct {
	Pool       string  // Aave V3 pool contract address
	Aggregator string  // flash-loan receiver contract
	FeeBps     float64 // flash premium, 9 bps on V3 mainnet
	QuoteTTL   time.Duration
	GasBorrow  uint64
	GasRepay   uint64
}

// Provider quotes flash-loan capacity from the Aave V3 pool and builds the
// borrow and repay steps of an execution plan.
type Provider struct {
	cfg        Config
	pool       common.Address
	aggregator common.Address
	abi        abi.ABI
	client     *chain.Client
	logger     *slog.Logger
}

// New creates the Aave provider.
func New(cfg Config, client *chain.Client, logger *slog.Logger) (*Provider, error) {
	if !common.IsHexAddress(cfg.Pool) {
		return nil, fmt.Errorf("aave: invalid pool address %q", cfg.Pool)
	}
	if !common.IsHexAddress(cfg.Aggregator) {
		return nil, fmt.Errorf("aave: invalid aggregator address %q", cfg.Aggregator)
	}
	parsed, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("aave: parse pool abi: %w", err)
	}
	if cfg.GasBorrow == 0 {
		cfg.GasBorrow = 150_000
	}
	if cfg.GasRepay == 0 {
		cfg.GasRepay = 100_000
	}
	return &Provider{
		cfg:        cfg,
		pool:       common.HexToAddress(cfg.Pool),
		aggregator: common.HexToAddress(cfg.Aggregator),
		abi:        parsed,
		client:     client,
		logger:     logger.With(slog.String("component", "aave")),
	}, nil
}

// ID implements domain.LoanProvider.
func (p *Provider) ID() string { return "aave" }

// Quote implements domain.LoanProvider. Capacity is the pool's current
// balance of the asset; the flash premium is fixed per protocol config.
func (p *Provider) Quote(ctx context.Context, asset string, amount float64) (domain.LoanQuote, error) {
	token, ok := chain.TokenAddress(asset)
	if !ok {
		return domain.LoanQuote{}, fmt.Errorf("aave: quote %s: %w", asset, domain.ErrProviderUnavailable)
	}

	bal, err := p.client.ERC20BalanceOf(ctx, token, p.pool)
	if err != nil {
		return domain.LoanQuote{}, fmt.Errorf("aave: quote %s: %w", asset, domain.ErrProviderUnavailable)
	}
	capacity, err := chain.FromBaseUnits(asset, bal)
	if err != nil {
		return domain.LoanQuote{}, fmt.Errorf("aave: quote %s: %w", asset, err)
	}

	q := domain.LoanQuote{
		ProviderID:  p.ID(),
		Asset:       asset,
		MaxCapacity: capacity,
		FeeBps:      p.cfg.FeeBps,
		QuotedAt:    time.Now().UTC(),
		TTL:         p.cfg.QuoteTTL,
	}
	if capacity < amount {
		return q, fmt.Errorf("aave: capacity %.4f < requested %.4f: %w", capacity, amount, domain.ErrInsufficientCapacity)
	}
	return q, nil
}

// BuildBorrowStep implements domain.LoanProvider. The calldata is the
// flashLoanSimple call the aggregator issues against the pool.
func (p *Provider) BuildBorrowStep(q domain.LoanQuote, amountWei *big.Int) (domain.Step, error) {
	token, ok := chain.TokenAddress(q.Asset)
	if !ok {
		return domain.Step{}, fmt.Errorf("aave: unknown token %q", q.Asset)
	}
	data, err := p.abi.Pack("flashLoanSimple", p.aggregator, token, amountWei, []byte{}, uint16(0))
	if err != nil {
		return domain.Step{}, fmt.Errorf("aave: pack flashLoanSimple: %w", err)
	}
	return domain.Step{
		Kind:       domain.StepBorrow,
		ProviderID: p.ID(),
		Target:     p.pool.Hex(),
		Asset:      q.Asset,
		AmountWei:  amountWei,
		GasUnits:   p.cfg.GasBorrow,
		CallData:   data,
	}, nil
}

// BuildRepayStep implements domain.LoanProvider. Aave pulls repayment via
// allowance, so the step approves principal plus premium to the pool.
func (p *Provider) BuildRepayStep(q domain.LoanQuote, owedWei *big.Int) (domain.Step, error) {
	token, ok := chain.TokenAddress(q.Asset)
	if !ok {
		return domain.Step{}, fmt.Errorf("aave: unknown token %q", q.Asset)
	}
	data, err := chain.PackERC20Approve(p.pool, owedWei)
	if err != nil {
		return domain.Step{}, fmt.Errorf("aave: pack repay approve: %w", err)
	}
	return domain.Step{
		Kind:       domain.StepRepay,
		ProviderID: p.ID(),
		Target:     token.Hex(),
		Asset:      q.Asset,
		AmountWei:  owedWei,
		GasUnits:   p.cfg.GasRepay,
		CallData:   data,
	}, nil
}

var _ domain.LoanProvider = (*Provider)(nil)
