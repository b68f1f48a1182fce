package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/TemamAb/ainex-sub000/internal/crypto"
	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// aggregatorABIJSON is the interface of the on-chain aggregator contract. The
// contract borrows the flash loan, replays the encoded route, repays, and
// reverts the whole transaction when the repayment cannot be covered. sweep
// moves any residual balance of a token to the operator treasury; routes end
// with it so profit never sits in the contract between runs.
const aggregatorABIJSON = `[
	{"name": "executeArbitrage", "type": "function", "stateMutability": "nonpayable",
	 "inputs": [
		{"name": "asset", "type": "address"},
		{"name": "amount", "type": "uint256"},
		{"name": "params", "type": "bytes"}
	 ],
	 "outputs": []},
	{"name": "sweep", "type": "function", "stateMutability": "nonpayable",
	 "inputs": [{"name": "token", "type": "address"}],
	 "outputs": []}
]`

var aggregatorABI = mustABI(aggregatorABIJSON)

// ErrConfirmTimeout is returned by WaitMined when no receipt appeared within
// the confirmation window. The transaction may still land later; callers must
// treat the outcome as unknown, not failed.
var ErrConfirmTimeout = errors.New("chain: confirmation timed out")

// Submitter builds, signs, and broadcasts aggregator transactions.
type Submitter struct {
	client   *Client
	signer   *crypto.Signer
	contract common.Address
	abi      abi.ABI
	logger   *slog.Logger
}

// NewSubmitter creates a Submitter targeting the given aggregator contract.
func NewSubmitter(client *Client, signer *crypto.Signer, contract string, logger *slog.Logger) (*Submitter, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("chain: invalid aggregator contract address %q", contract)
	}
	return &Submitter{
		client:   client,
		signer:   signer,
		contract: common.HexToAddress(contract),
		abi:      aggregatorABI,
		logger:   logger.With(slog.String("component", "submitter")),
	}, nil
}

// From returns the submitting account's address.
func (s *Submitter) From() common.Address {
	return s.signer.Address()
}

// BuildTx assembles a signed dynamic-fee transaction for the plan. The borrow
// step determines the loan asset and amount; the remaining steps are encoded
// into the route payload the aggregator replays.
func (s *Submitter) BuildTx(plan *domain.ExecutionPlan, nonce uint64, quote GasQuote) (*types.Transaction, error) {
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("chain: plan %s has no steps", plan.ID)
	}
	borrow := plan.Steps[0]
	if borrow.Kind != domain.StepBorrow {
		return nil, fmt.Errorf("chain: plan %s first step is %s, want %s", plan.ID, borrow.Kind, domain.StepBorrow)
	}
	if borrow.AmountWei == nil {
		return nil, fmt.Errorf("chain: plan %s borrow step has no amount", plan.ID)
	}

	asset, ok := TokenAddress(borrow.Asset)
	if !ok {
		return nil, fmt.Errorf("chain: unknown token %q", borrow.Asset)
	}

	route, err := EncodeRoute(plan.Steps)
	if err != nil {
		return nil, fmt.Errorf("chain: encode route for plan %s: %w", plan.ID, err)
	}

	data, err := s.abi.Pack("executeArbitrage", asset, borrow.AmountWei, route)
	if err != nil {
		return nil, fmt.Errorf("chain: pack executeArbitrage: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: quote.TipCap,
		GasFeeCap: quote.FeeCap,
		Gas:       plan.GasLimit(),
		To:        &s.contract,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := s.signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("chain: sign plan %s: %w", plan.ID, err)
	}
	return signed, nil
}

// Submit broadcasts a signed transaction.
func (s *Submitter) Submit(ctx context.Context, tx *types.Transaction) error {
	err := s.client.SendTransaction(ctx, tx)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "transaction submitted",
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.Uint64("nonce", tx.Nonce()),
		slog.Uint64("gas_limit", tx.Gas()),
	)
	return nil
}

// WaitMined polls for the transaction receipt every poll interval until it
// appears or timeout elapses. On timeout it returns ErrConfirmTimeout; the
// transaction's final state is then unknown to the caller.
func (s *Submitter) WaitMined(ctx context.Context, txHash common.Hash, timeout, poll time.Duration) (*types.Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			s.logger.WarnContext(ctx, "receipt poll failed",
				slog.String("tx_hash", txHash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrConfirmTimeout, txHash.Hex(), timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// routeArgs is the ABI tuple layout of the aggregator's params payload: the
// per-step call targets and their raw calldata, in execution order. The
// borrow step itself is excluded since the aggregator initiates the loan.
var routeArgs = abi.Arguments{
	{Name: "targets", Type: mustType("address[]")},
	{Name: "payloads", Type: mustType("bytes[]")},
}

// EncodeRoute packs the swap and repay steps of a plan into the aggregator's
// params bytes.
func EncodeRoute(steps []domain.Step) ([]byte, error) {
	targets := make([]common.Address, 0, len(steps))
	payloads := make([][]byte, 0, len(steps))
	for _, st := range steps {
		if st.Kind == domain.StepBorrow {
			continue
		}
		if !common.IsHexAddress(st.Target) {
			return nil, fmt.Errorf("step %s has invalid target %q", st.Kind, st.Target)
		}
		targets = append(targets, common.HexToAddress(st.Target))
		payloads = append(payloads, st.CallData)
	}
	return routeArgs.Pack(targets, payloads)
}

// PackSweep returns the calldata for the aggregator's sweep(token) call.
func PackSweep(token common.Address) ([]byte, error) {
	data, err := aggregatorABI.Pack("sweep", token)
	if err != nil {
		return nil, fmt.Errorf("chain: pack sweep: %w", err)
	}
	return data, nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
