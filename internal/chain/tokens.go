package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// tokenInfo describes an ERC-20 token the aggregator can route through.
type tokenInfo struct {
	address  common.Address
	decimals int
}

// Mainnet token registry. Symbols are upper-case.
var tokens = map[string]tokenInfo{
	"WETH": {common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), 18},
	"USDC": {common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), 6},
	"USDT": {common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), 6},
	"DAI":  {common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), 18},
	"WBTC": {common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"), 8},
}

// TokenAddress returns the mainnet contract address for a token symbol.
func TokenAddress(symbol string) (common.Address, bool) {
	t, ok := tokens[strings.ToUpper(symbol)]
	return t.address, ok
}

// TokenDecimals returns the decimal precision for a token symbol.
func TokenDecimals(symbol string) (int, bool) {
	t, ok := tokens[strings.ToUpper(symbol)]
	return t.decimals, ok
}

// ToBaseUnits converts a human-denominated token amount (e.g. 12.5 WETH) into
// the token's integer base units (wei for 18-decimal tokens).
func ToBaseUnits(symbol string, amount float64) (*big.Int, error) {
	t, ok := tokens[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("chain: unknown token %q", symbol)
	}
	scale := new(big.Float).SetInt(pow10(t.decimals))
	scaled := new(big.Float).Mul(big.NewFloat(amount), scale)
	out, _ := scaled.Int(nil)
	return out, nil
}

// FromBaseUnits converts integer base units back into a human-denominated
// amount.
func FromBaseUnits(symbol string, amount *big.Int) (float64, error) {
	t, ok := tokens[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("chain: unknown token %q", symbol)
	}
	if amount == nil {
		return 0, nil
	}
	scale := new(big.Float).SetInt(pow10(t.decimals))
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Float64()
	return out, nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
