// Package uniswap implements quoting and swap-step construction against
// Uniswap V3, plus a subgraph client for pool state bootstraps.
package uniswap

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

const quoterABIJSON = `[{
	"name": "quoteExactInputSingle",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "tokenIn", "type": "address"},
		{"name": "tokenOut", "type": "address"},
		{"name": "fee", "type": "uint24"},
		{"name": "amountIn", "type": "uint256"},
		{"name": "sqrtPriceLimitX96", "type": "uint160"}
	],
	"outputs": [{"name": "amountOut", "type": "uint256"}]
}]`

const routerABIJSON = `[{
	"name": "exactInputSingle",
	"type": "function",
	"stateMutability": "payable",
	"inputs": [{
		"name": "params", "type": "tuple", "components": [
			{"name": "tokenIn", "type": "address"},
			{"name": "tokenOut", "type": "address"},
			{"name": "fee", "type": "uint24"},
			{"name": "recipient", "type": "address"},
			{"name": "deadline", "type": "uint256"},
			{"name": "amountIn", "type": "uint256"},
			{"name": "amountOutMinimum", "type": "uint256"},
			{"name": "sqrtPriceLimitX96", "type": "uint160"}
		]
	}],
	"outputs": [{"name": "amountOut", "type": "uint256"}]
}]`

// exactInputSingleParams mirrors the router's params tuple for ABI packing.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Config holds the Uniswap venue parameters.
type Config struct {
	Router     string
	Quoter     string
	Aggregator string // swap recipient inside the flash-loan callback
	GasSwap    uint64
	SwapTTL    time.Duration // deadline window stamped into swap calldata
}

// Venue implements domain.SwapVenue for Uniswap V3. Fee tiers are derived
// from the configured pools (fee units are hundredths of a bip).
type Venue struct {
	cfg        Config
	router     common.Address
	quoter     common.Address
	aggregator common.Address
	quoterABI  abi.ABI
	routerABI  abi.ABI
	feeTiers   map[string]*big.Int // pair key -> fee units
	client     *chain.Client
	logger     *slog.Logger
}

// New creates the Uniswap venue. Pools supply the fee tier per traded pair.
func New(cfg Config, pools []domain.Pool, client *chain.Client, logger *slog.Logger) (*Venue, error) {
	if !common.IsHexAddress(cfg.Router) {
		return nil, fmt.Errorf("uniswap: invalid router address %q", cfg.Router)
	}
	if !common.IsHexAddress(cfg.Quoter) {
		return nil, fmt.Errorf("uniswap: invalid quoter address %q", cfg.Quoter)
	}
	if !common.IsHexAddress(cfg.Aggregator) {
		return nil, fmt.Errorf("uniswap: invalid aggregator address %q", cfg.Aggregator)
	}
	qABI, err := abi.JSON(strings.NewReader(quoterABIJSON))
	if err != nil {
		return nil, fmt.Errorf("uniswap: parse quoter abi: %w", err)
	}
	rABI, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("uniswap: parse router abi: %w", err)
	}
	if cfg.GasSwap == 0 {
		cfg.GasSwap = 200_000
	}
	if cfg.SwapTTL <= 0 {
		cfg.SwapTTL = 5 * time.Minute
	}

	feeTiers := make(map[string]*big.Int)
	for _, p := range pools {
		if p.Venue != domain.VenueUniswapV3 {
			continue
		}
		// FeeBps 5 -> fee units 500. Both orientations resolve to the same
		// pool so reversed-direction legs can be built.
		fee := big.NewInt(int64(p.FeeBps * 100))
		feeTiers[p.Pair.String()] = fee
		feeTiers[domain.Pair{Base: p.Pair.Quote, Quote: p.Pair.Base}.String()] = fee
	}

	return &Venue{
		cfg:        cfg,
		router:     common.HexToAddress(cfg.Router),
		quoter:     common.HexToAddress(cfg.Quoter),
		aggregator: common.HexToAddress(cfg.Aggregator),
		quoterABI:  qABI,
		routerABI:  rABI,
		feeTiers:   feeTiers,
		client:     client,
		logger:     logger.With(slog.String("component", "uniswap")),
	}, nil
}

// Venue implements domain.SwapVenue.
func (v *Venue) Venue() domain.Venue { return domain.VenueUniswapV3 }

// Quote implements domain.SwapVenue by calling the on-chain quoter. The
// returned AmountOut already includes pool fee and price impact.
func (v *Venue) Quote(ctx context.Context, pair domain.Pair, amountIn float64) (domain.SwapQuote, error) {
	tokenIn, ok := chain.TokenAddress(pair.Base)
	if !ok {
		return domain.SwapQuote{}, fmt.Errorf("uniswap: unknown token %q", pair.Base)
	}
	tokenOut, ok := chain.TokenAddress(pair.Quote)
	if !ok {
		return domain.SwapQuote{}, fmt.Errorf("uniswap: unknown token %q", pair.Quote)
	}
	fee, ok := v.feeTiers[pair.String()]
	if !ok {
		return domain.SwapQuote{}, fmt.Errorf("uniswap: no pool configured for %s", pair)
	}

	amountInWei, err := chain.ToBaseUnits(pair.Base, amountIn)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("uniswap: quote %s: %w", pair, err)
	}

	data, err := v.quoterABI.Pack("quoteExactInputSingle", tokenIn, tokenOut, fee, amountInWei, big.NewInt(0))
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("uniswap: pack quote: %w", err)
	}
	out, err := v.client.CallContract(ctx, ethereum.CallMsg{To: &v.quoter, Data: data})
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("uniswap: quote %s: %w", pair, err)
	}
	results, err := v.quoterABI.Unpack("quoteExactInputSingle", out)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("uniswap: unpack quote: %w", err)
	}
	amountOutWei, ok := results[0].(*big.Int)
	if !ok {
		return domain.SwapQuote{}, fmt.Errorf("uniswap: quoter returned %T, want *big.Int", results[0])
	}
	amountOut, err := chain.FromBaseUnits(pair.Quote, amountOutWei)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("uniswap: quote %s: %w", pair, err)
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
	tokenIn, ok := chain.TokenAddress(pair.Base)
	if !ok {
		return domain.Step{}, fmt.Errorf("uniswap: unknown token %q", pair.Base)
	}
	tokenOut, ok := chain.TokenAddress(pair.Quote)
	if !ok {
		return domain.Step{}, fmt.Errorf("uniswap: unknown token %q", pair.Quote)
	}
	fee, ok := v.feeTiers[pair.String()]
	if !ok {
		return domain.Step{}, fmt.Errorf("uniswap: no pool configured for %s", pair)
	}

	deadline := big.NewInt(time.Now().Add(v.cfg.SwapTTL).Unix())
	data, err := v.routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               fee,
		Recipient:         v.aggregator,
		Deadline:          deadline,
		AmountIn:          amountWei,
		AmountOutMinimum:  minOutWei,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return domain.Step{}, fmt.Errorf("uniswap: pack exactInputSingle: %w", err)
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

var _ domain.SwapVenue = (*Venue)(nil)
