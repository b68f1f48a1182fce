// Package dydx implements the flash-loan provider backed by the dYdX
// SoloMargin contract. Solo charges a flat 2 wei premium instead of a
// proportional fee.
package dydx

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

// Solo action types used by the flash-loan pattern.
const (
	actionDeposit  = 0
	actionWithdraw = 1
	actionCall     = 8
)

// soloMarkets maps token symbols to SoloMargin market IDs.
var soloMarkets = map[string]int64{
	"WETH": 0,
	"USDC": 2,
	"DAI":  3,
}

var (
	soloAccountType = mustTupleArray([]abi.ArgumentMarshaling{
		{Name: "owner", Type: "address"},
		{Name: "number", Type: "uint256"},
	})
	soloActionType = mustTupleArray([]abi.ArgumentMarshaling{
		{Name: "actionType", Type: "uint8"},
		{Name: "accountId", Type: "uint256"},
		{Name: "amount", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "sign", Type: "bool"},
			{Name: "denomination", Type: "uint8"},
			{Name: "ref", Type: "uint8"},
			{Name: "value", Type: "uint256"},
		}},
		{Name: "primaryMarketId", Type: "uint256"},
		{Name: "secondaryMarketId", Type: "uint256"},
		{Name: "otherAddress", Type: "address"},
		{Name: "otherAccountId", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	})

	operateMethod = abi.NewMethod("operate", "operate", abi.Function, "nonpayable", false, false,
		abi.Arguments{
			{Name: "accounts", Type: soloAccountType},
			{Name: "actions", Type: soloActionType},
		}, nil)
)

func mustTupleArray(components []abi.ArgumentMarshaling) abi.Type {
	t, err := abi.NewType("tuple[]", "", components)
	if err != nil {
		panic(err)
	}
	return t
}

// Go shapes matching the tuple components above. Field names must mirror the
// component names for go-ethereum's reflection-based packing.
type soloAccount struct {
	Owner  common.Address
	Number *big.Int
}

type soloAmount struct {
	Sign         bool
	Denomination uint8
	Ref          uint8
	Value        *big.Int
}

type soloAction struct {
	ActionType        uint8
	AccountId         *big.Int
	Amount            soloAmount
	PrimaryMarketId   *big.Int
	SecondaryMarketId *big.Int
	OtherAddress      common.Address
	OtherAccountId    *big.Int
	Data              []byte
}

// Config holds the dYdX provider parameters.
type Config struct {
	SoloMargin string
	Aggregator string
	QuoteTTL   time.Duration
	GasBorrow  uint64
	GasRepay   uint64
}

// Provider quotes flash-loan capacity from the SoloMargin contract.
type Provider struct {
	cfg        Config
	solo       common.Address
	aggregator common.Address
	client     *chain.Client
	logger     *slog.Logger
}

// New creates the dYdX provider.
func New(cfg Config, client *chain.Client, logger *slog.Logger) (*Provider, error) {
	if !common.IsHexAddress(cfg.SoloMargin) {
		return nil, fmt.Errorf("dydx: invalid solo margin address %q", cfg.SoloMargin)
	}
	if !common.IsHexAddress(cfg.Aggregator) {
		return nil, fmt.Errorf("dydx: invalid aggregator address %q", cfg.Aggregator)
	}
	if cfg.GasBorrow == 0 {
		cfg.GasBorrow = 300_000
	}
	if cfg.GasRepay == 0 {
		cfg.GasRepay = 100_000
	}
	return &Provider{
		cfg:        cfg,
		solo:       common.HexToAddress(cfg.SoloMargin),
		aggregator: common.HexToAddress(cfg.Aggregator),
		client:     client,
		logger:     logger.With(slog.String("component", "dydx")),
	}, nil
}

// ID implements domain.LoanProvider.
func (p *Provider) ID() string { return "dydx" }

// Quote implements domain.LoanProvider. Only Solo-listed markets (WETH, USDC,
// DAI) can be borrowed.
func (p *Provider) Quote(ctx context.Context, asset string, amount float64) (domain.LoanQuote, error) {
	if _, ok := soloMarkets[strings.ToUpper(asset)]; !ok {
		return domain.LoanQuote{}, fmt.Errorf("dydx: no solo market for %s: %w", asset, domain.ErrProviderUnavailable)
	}
	token, ok := chain.TokenAddress(asset)
	if !ok {
		return domain.LoanQuote{}, fmt.Errorf("dydx: quote %s: %w", asset, domain.ErrProviderUnavailable)
	}

	bal, err := p.client.ERC20BalanceOf(ctx, token, p.solo)
	if err != nil {
		return domain.LoanQuote{}, fmt.Errorf("dydx: quote %s: %w", asset, domain.ErrProviderUnavailable)
	}
	capacity, err := chain.FromBaseUnits(asset, bal)
	if err != nil {
		return domain.LoanQuote{}, fmt.Errorf("dydx: quote %s: %w", asset, err)
	}

	q := domain.LoanQuote{
		ProviderID:  p.ID(),
		Asset:       asset,
		MaxCapacity: capacity,
		FeeBps:      0, // flat 2 wei premium, negligible at bps resolution
		QuotedAt:    time.Now().UTC(),
		TTL:         p.cfg.QuoteTTL,
	}
	if capacity < amount {
		return q, fmt.Errorf("dydx: capacity %.4f < requested %.4f: %w", capacity, amount, domain.ErrInsufficientCapacity)
	}
	return q, nil
}

// BuildBorrowStep implements domain.LoanProvider. Solo has no dedicated flash
// loan entry point; the canonical pattern is one operate() call holding
// withdraw, call, and deposit actions, with repayment pulled via allowance.
func (p *Provider) BuildBorrowStep(q domain.LoanQuote, amountWei *big.Int) (domain.Step, error) {
	marketID, ok := soloMarkets[strings.ToUpper(q.Asset)]
	if !ok {
		return domain.Step{}, fmt.Errorf("dydx: no solo market for %s", q.Asset)
	}

	owed := new(big.Int).Add(amountWei, big.NewInt(2))
	accounts := []soloAccount{{Owner: p.aggregator, Number: big.NewInt(1)}}
	actions := []soloAction{
		{
			ActionType:        actionWithdraw,
			AccountId:         big.NewInt(0),
			Amount:            soloAmount{Sign: false, Denomination: 0, Ref: 0, Value: amountWei},
			PrimaryMarketId:   big.NewInt(marketID),
			SecondaryMarketId: big.NewInt(0),
			OtherAddress:      p.aggregator,
			OtherAccountId:    big.NewInt(0),
			Data:              []byte{},
		},
		{
			ActionType:        actionCall,
			AccountId:         big.NewInt(0),
			Amount:            soloAmount{Value: big.NewInt(0)},
			PrimaryMarketId:   big.NewInt(0),
			SecondaryMarketId: big.NewInt(0),
			OtherAddress:      p.aggregator,
			OtherAccountId:    big.NewInt(0),
			Data:              []byte{},
		},
		{
			ActionType:        actionDeposit,
			AccountId:         big.NewInt(0),
			Amount:            soloAmount{Sign: true, Denomination: 0, Ref: 0, Value: owed},
			PrimaryMarketId:   big.NewInt(marketID),
			SecondaryMarketId: big.NewInt(0),
			OtherAddress:      p.aggregator,
			OtherAccountId:    big.NewInt(0),
			Data:              []byte{},
		},
	}

	packed, err := operateMethod.Inputs.Pack(accounts, actions)
	if err != nil {
		return domain.Step{}, fmt.Errorf("dydx: pack operate: %w", err)
	}
	data := append(operateMethod.ID, packed...)

	return domain.Step{
		Kind:       domain.StepBorrow,
		ProviderID: p.ID(),
		Target:     p.solo.Hex(),
		Asset:      q.Asset,
		AmountWei:  amountWei,
		GasUnits:   p.cfg.GasBorrow,
		CallData:   data,
	}, nil
}

// BuildRepayStep implements domain.LoanProvider. The deposit action pulls
// funds via transferFrom, so the step approves owed plus the 2 wei premium.
func (p *Provider) BuildRepayStep(q domain.LoanQuote, owedWei *big.Int) (domain.Step, error) {
	token, ok := chain.TokenAddress(q.Asset)
	if !ok {
		return domain.Step{}, fmt.Errorf("dydx: unknown token %q", q.Asset)
	}
	owed := new(big.Int).Add(owedWei, big.NewInt(2))
	data, err := chain.PackERC20Approve(p.solo, owed)
	if err != nil {
		return domain.Step{}, fmt.Errorf("dydx: pack repay approve: %w", err)
	}
	return domain.Step{
		Kind:       domain.StepRepay,
		ProviderID: p.ID(),
		Target:     token.Hex(),
		Asset:      q.Asset,
		AmountWei:  owed,
		GasUnits:   p.cfg.GasRepay,
		CallData:   data,
	}, nil
}

var _ domain.LoanProvider = (*Provider)(nil)
