package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"name": "balanceOf", "type": "function", "stateMutability": "view",
	 "inputs": [{"name": "account", "type": "address"}],
	 "outputs": [{"name": "", "type": "uint256"}]},
	{"name": "approve", "type": "function", "stateMutability": "nonpayable",
	 "inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
	 "outputs": [{"name": "", "type": "bool"}]},
	{"name": "transfer", "type": "function", "stateMutability": "nonpayable",
	 "inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}],
	 "outputs": [{"name": "", "type": "bool"}]}
]`

var erc20ABI = mustABI(erc20ABIJSON)

func mustABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ERC20BalanceOf returns holder's balance of the given token.
func (c *Client) ERC20BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("chain: pack balanceOf: %w", err)
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, err
	}
	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack balanceOf: %w", err)
	}
	bal, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: balanceOf returned %T, want *big.Int", results[0])
	}
	return bal, nil
}

// PackERC20Approve returns the calldata for approve(spender, amount).
func PackERC20Approve(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	return data, nil
}

// PackERC20Transfer returns the calldata for transfer(to, amount).
func PackERC20Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack transfer: %w", err)
	}
	return data, nil
}
