// Package sushiswap implements quoting and swap-step construction against the
// SushiSwap V2 router, plus a subgraph client for pair state bootstraps.
package sushiswap

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/TemamAb/ainex-sub000/internal/chain"
	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const routerABIJSON = `[
	{"name": "getAmountsOut", "type": "function", "stateMutability": "view",
	 "inputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "path", "type": "address[]"}
	 ],
	 "outputs": [{"name": "amounts", "type": "uint256[]"}]},
	{"name": "swapExactTokensForTokens", "type": "function", "stateMutability": "nonpayable",
	 "inputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "amountOutMin", "type": "uint256"},
		{"name": "path", "type": "address[]"},
		{"name": "to", "type": "address"},
		{"name": "deadline", "type": "uint256"}
	 ],
	 "outputs": [{"name": "amounts", "type": "uint256[]"}]}
]`

// Config holds the SushiSwap venue parameters.
type Config struct {
	Router     string
	Aggregator string
	GasSwap    uint64
	SwapTTL    time.Duration
}

// Venue implements domain.SwapVenue for SushiSwap's V2-style router.
type Venue struct {
	cfg        Config
	router     common.Address
	aggregator common.Address
	abi        abi.ABI
	client     *chain.Client
	logger     *slog.Logger
}

// New creates the SushiSwap venue.
func New(cfg Config, client *chain.Client, logger *slog.Logger) (*Venue, error) {
	if !common.IsHexAddress(cfg.Router) {
		return nil, fmt.Errorf("sushiswap: invalid router address %q", cfg.Router)
	}
	if !common.IsHexAddress(cfg.Aggregator) {
		return nil, fmt.Errorf("sushiswap: invalid aggregator address %q", cfg.Aggregator)
	}
	parsed, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("sushiswap: parse router abi: %w", err)
	}
	if cfg.GasSwap == 0 {
		cfg.GasSwap = 200_000
	}
	if cfg.SwapTTL <= 0 {
		cfg.SwapTTL = 5 * time.Minute
	}
	return &Venue{
		cfg:        cfg,
		router:     common.HexToAddress(cfg.Router),
		aggregator: common.HexToAddress(cfg.Aggregator),
		abi:        parsed,
		client:     client,
		logger:     logger.With(slog.String("component", "sushiswap")),
	}, nil
}

// Venue implements domain.SwapVenue.
func (v *Venue) Venue() domain.Venue { return domain.VenueSushiswap }

// Quote implements domain.SwapVenue via the router's getAmountsOut, which
// applies the constant-product formula including the 30 bps pool fee.
func (v *Venue) Quote(ctx context.Context, pair domain.Pair, amountIn float64) (domain.SwapQuote, error) {
	path, err := v.path(pair)
	if err != nil {
		return domain.SwapQuote{}, err
	}
	amountInWei, err := chain.ToBaseUnits(pair.Base, amountIn)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("sushiswap: quote %s: %w", pair, err)
	}

	data, err := v.abi.Pack("getAmountsOut", amountInWei, path)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("sushiswap: pack getAmountsOut: %w", err)
	}
	out, err := v.client.CallContract(ctx, ethereum.CallMsg{To: &v.router, Data: data})
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("sushiswap: quote %s: %w", pair, err)
	}
	results, err := v.abi.Unpack("getAmountsOut", out)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("sushiswap: unpack getAmountsOut: %w", err)
	}
	amounts, ok := results[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return domain.SwapQuote{}, fmt.Errorf("sushiswap: unexpected getAmountsOut result")
	}
	amountOut, err := chain.FromBaseUnits(pair.Quote, amounts[len(amounts)-1])
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("sushiswap: quote %s: %w", pair, err)
	}

	return domain.SwapQuote{
		Venue:     v.Venue(),
		Pair:      pair,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		QuotedAt:  time.Now().UTC(),
	}, nil
}

// BuildSwapStep implements domain.SwapVenue.
func (v *Venue) BuildSwapStep(pair domain.Pair, amountWei, minOutWei *big.Int) (domain.Step, error) {
	path, err := v.path(pair)
	if err != nil {
		return domain.Step{}, err
	}
	deadline := big.NewInt(time.Now().Add(v.cfg.SwapTTL).Unix())
	data, err := v.abi.Pack("swapExactTokensForTokens", amountWei, minOutWei, path, v.aggregator, deadline)
	if err != nil {
		return domain.Step{}, fmt.Errorf("sushiswap: pack swap: %w", err)
	}
	return domain.Step{
		Kind:      domain.StepSwap,
		Venue:     v.Venue(),
		Target:    v.router.Hex(),
		Asset:     pair.Base,
		AmountWei: amountWei,
		MinOutWei: minOutWei,
		GasUnits:  v.cfg.GasSwap,
		CallData:  data,
	}, nil
}

func (v *Venue) path(pair domain.Pair) ([]common.Address, error) {
	tokenIn, ok := chain.TokenAddress(pair.Base)
	if !ok {
		return nil, fmt.Errorf("sushiswap: unknown token %q", pair.Base)
	}
	tokenOut, ok := chain.TokenAddress(pair.Quote)
	if !ok {
		return nil, fmt.Errorf("sushiswap: unknown token %q", pair.Quote)
	}
	return []common.Address{tokenIn, tokenOut}, nil
}

var _ domain.SwapVenue = (*Venue)(nil)
