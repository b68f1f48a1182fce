// Package balancer implements the flash-loan provider backed by the Balancer
// V2 vault, which charges no flash fee.
package balancer

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

const vaultABIJSON = `[{
	"name": "flashLoan",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "recipient", "type": "address"},
		{"name": "tokens", "type": "address[]"},
		{"name": "amounts", "type": "uint256[]"},
		{"name": "userData", "type": "bytes"}
	],
	"outputs": []
}]`

// Config holds the Balancer provider parameters.
type Config struct {
	Vault      string
	Aggregator string
	QuoteTTL   time.Duration
	GasBorrow  uint64
	GasRepay   uint64
}

// Provider quotes flash-loan capacity from the Balancer V2 vault.
type Provider struct {
	cfg        Config
	vault      common.Address
	aggregator common.Address
	abi        abi.ABI
	client     *chain.Client
	logger     *slog.Logger
}

// New creates the Balancer provider.
func New(cfg Config, client *chain.Client, logger *slog.Logger) (*Provider, error) {
	if !common.IsHexAddress(cfg.Vault) {
		return nil, fmt.Errorf("balancer: invalid vault address %q", cfg.Vault)
	}
	if !common.IsHexAddress(cfg.Aggregator) {
		return nil, fmt.Errorf("balancer: invalid aggregator address %q", cfg.Aggregator)
	}
	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		return nil, fmt.Errorf("balancer: parse vault abi: %w", err)
	}
	if cfg.GasBorrow == 0 {
		cfg.GasBorrow = 150_000
	}
	if cfg.GasRepay == 0 {
		cfg.GasRepay = 100_000
	}
	return &Provider{
		cfg:        cfg,
		vault:      common.HexToAddress(cfg.Vault),
		aggregator: common.HexToAddress(cfg.Aggregator),
		abi:        parsed,
		client:     client,
		logger:     logger.With(slog.String("component", "balancer")),
	}, nil
}

// ID implements domain.LoanProvider.
func (p *Provider) ID() string { return "balancer" }

// Quote implements domain.LoanProvider. The vault holds all pool tokens, so
// its asset balance is the borrowable capacity. Balancer charges no flash fee.
func (p *Provider) Quote(ctx context.Context, asset string, amount float64) (domain.LoanQuote, error) {
	token, ok := chain.TokenAddress(asset)
	if !ok {
		return domain.LoanQuote{}, fmt.Errorf("balancer: quote %s: %w", asset, domain.ErrProviderUnavailable)
	}

	bal, err := p.client.ERC20BalanceOf(ctx, token, p.vault)
	if err != nil {
		return domain.LoanQuote{}, fmt.Errorf("balancer: quote %s: %w", asset, domain.ErrProviderUnavailable)
	}
	capacity, err := chain.FromBaseUnits(asset, bal)
	if err != nil {
		return domain.LoanQuote{}, fmt.Errorf("balancer: quote %s: %w", asset, err)
	}

	q := domain.LoanQuote{
		ProviderID:  p.ID(),
		Asset:       asset,
		MaxCapacity: capacity,
		FeeBps:      0,
		QuotedAt:    time.Now().UTC(),
		TTL:         p.cfg.QuoteTTL,
	}
	if capacity < amount {
		return q, fmt.Errorf("balancer: capacity %.4f < requested %.4f: %w", capacity, amount, domain.ErrInsufficientCapacity)
	}
	return q, nil
}

// BuildBorrowStep implements domain.LoanProvider.
func (p *Provider) BuildBorrowStep(q domain.LoanQuote, amountWei *big.Int) (domain.Step, error) {
	token, ok := chain.TokenAddress(q.Asset)
	if !ok {
		return domain.Step{}, fmt.Errorf("balancer: unknown token %q", q.Asset)
	}
	data, err := p.abi.Pack("flashLoan",
		p.aggregator,
		[]common.Address{token},
		[]*big.Int{amountWei},
		[]byte{},
	)
	if err != nil {
		return domain.Step{}, fmt.Errorf("balancer: pack flashLoan: %w", err)
	}
	return domain.Step{
		Kind:       domain.StepBorrow,
		ProviderID: p.ID(),
		Target:     p.vault.Hex(),
		Asset:      q.Asset,
		AmountWei:  amountWei,
		GasUnits:   p.cfg.GasBorrow,
		CallData:   data,
	}, nil
}

// BuildRepayStep implements domain.LoanProvider. The vault expects tokens
// transferred back before the flash loan callback returns.
func (p *Provider) BuildRepayStep(q domain.LoanQuote, owedWei *big.Int) (domain.Step, error) {
	token, ok := chain.TokenAddress(q.Asset)
	if !ok {
		return domain.Step{}, fmt.Errorf("balancer: unknown token %q", q.Asset)
	}
	data, err := chain.PackERC20Transfer(p.vault, owedWei)
	if err != nil {
		return domain.Step{}, fmt.Errorf("balancer: pack repay transfer: %w", err)
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
