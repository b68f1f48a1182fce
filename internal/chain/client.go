// Package chain wraps the Ethereum JSON-RPC client with retry logic, a gas
// oracle, and transaction submission helpers for the flash-loan aggregator
// contract.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ClientConfig holds the parameters for connecting to an Ethereum node.
type ClientConfig struct {
	RPCURL        string
	ChainID       int64
	RetryAttempts int
	RetryDelay    time.Duration
}

// Client wraps ethclient.Client with bounded retries on transient RPC
// failures. All read methods retry up to RetryAttempts times; submission a
// single time, since a replayed SendTransaction with the same nonce is either
// a no-op or an error the caller must see.
type Client struct {
	ec       *ethclient.Client
	chainID  *big.Int
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// New dials the configured RPC endpoint and verifies the node's chain ID
// matches the configured one.
func New(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("chain: get chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		ec.Close()
		return nil, fmt.Errorf("chain: node reports chain id %d, config expects %d", chainID.Int64(), cfg.ChainID)
	}

	c := &Client{
		ec:       ec,
		chainID:  chainID,
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		logger:   logger.With(slog.String("component", "chain")),
	}

	c.logger.InfoContext(ctx, "connected to ethereum node",
		slog.String("chain_id", chainID.String()),
	)
	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.ec.Close()
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// retry runs fn up to c.attempts times, sleeping c.delay between attempts.
func retry[T any](ctx context.Context, c *Client, op string, fn func() (T, error)) (T, error) {
	var zero T
	var err error
	for i := 0; i < c.attempts; i++ {
		var v T
		v, err = fn()
		if err == nil {
			return v, nil
		}
		if i+1 < c.attempts {
			c.logger.WarnContext(ctx, "rpc call failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(c.delay):
			}
		}
	}
	return zero, fmt.Errorf("chain: %s after %d attempts: %w", op, c.attempts, err)
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return retry(ctx, c, "block number", func() (uint64, error) {
		return c.ec.BlockNumber(ctx)
	})
}

// HeaderByNumber returns the header of the given block, or the latest header
// when number is nil.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return retry(ctx, c, "header by number", func() (*types.Header, error) {
		return c.ec.HeaderByNumber(ctx, number)
	})
}

// SuggestGasTipCap returns the node's suggested priority fee per gas.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return retry(ctx, c, "suggest gas tip cap", func() (*big.Int, error) {
		return c.ec.SuggestGasTipCap(ctx)
	})
}

// SuggestGasPrice returns the node's suggested legacy gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return retry(ctx, c, "suggest gas price", func() (*big.Int, error) {
		return c.ec.SuggestGasPrice(ctx)
	})
}

// PendingNonceAt returns the next nonce for account, including pending
// transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return retry(ctx, c, "pending nonce", func() (uint64, error) {
		return c.ec.PendingNonceAt(ctx, account)
	})
}

// BalanceAt returns the wei balance of account at the latest block.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return retry(ctx, c, "balance", func() (*big.Int, error) {
		return c.ec.BalanceAt(ctx, account, nil)
	})
}

// CallContract executes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return retry(ctx, c, "call contract", func() ([]byte, error) {
		return c.ec.CallContract(ctx, msg, nil)
	})
}

// EstimateGas estimates the gas needed to execute msg.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return retry(ctx, c, "estimate gas", func() (uint64, error) {
		return c.ec.EstimateGas(ctx, msg)
	})
}

// SendTransaction broadcasts a signed transaction. It is NOT retried; the
// caller owns nonce handling and must decide whether a rebroadcast is safe.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.ec.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("chain: send transaction: %w", err)
	}
	return nil
}

// TransactionReceipt returns the receipt for txHash. The caller distinguishes
// "not yet mined" via ethereum.NotFound.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.ec.TransactionReceipt(ctx, txHash)
}

// TransactionByHash returns the transaction and whether it is still pending.
func (c *Client) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	type txPending struct {
		tx      *types.Transaction
		pending bool
	}
	v, err := retry(ctx, c, "transaction by hash", func() (txPending, error) {
		tx, pending, err := c.ec.TransactionByHash(ctx, txHash)
		return txPending{tx, pending}, err
	})
	return v.tx, v.pending, err
}
