package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TemamAb/ainex-sub000/internal/chain"
)

// NonceManager serializes nonce assignment per signing identity. Two
// in-flight submissions from one identity never race the same sequence slot:
// the identity's mutex is held across transaction build and broadcast.
type NonceManager struct {
	client *chain.Client

	mu       sync.Mutex
	accounts map[common.Address]*accountNonce
}

type accountNonce struct {
	mu          sync.Mutex
	next        uint64
	initialized bool
}

// NewNonceManager creates a NonceManager backed by the node's pending nonce.
func NewNonceManager(client *chain.Client) *NonceManager {
	return &NonceManager{
		client:   client,
		accounts: make(map[common.Address]*accountNonce),
	}
}

func (m *NonceManager) account(addr common.Address) *accountNonce {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[addr]
	if !ok {
		acct = &accountNonce{}
		m.accounts[addr] = acct
	}
	return acct
}

// WithNonce runs fn with the identity's next nonce while holding its
// sequence lock. On success the nonce advances. On a nonce-shaped error the
// sequence resyncs from the node's pending count, so the next submission
// self-heals after an ambiguous broadcast.
func (m *NonceManager) WithNonce(ctx context.Context, addr common.Address, fn func(nonce uint64) error) error {
	acct := m.account(addr)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if !acct.initialized {
		pending, err := m.client.PendingNonceAt(ctx, addr)
		if err != nil {
			return fmt.Errorf("executor: init nonce for %s: %w", addr.Hex(), err)
		}
		acct.next = pending
		acct.initialized = true
	}

	err := fn(acct.next)
	if err == nil {
		acct.next++
		return nil
	}
	if isNonceError(err) {
		if pending, syncErr := m.client.PendingNonceAt(ctx, addr); syncErr == nil {
			acct.next = pending
		} else {
			acct.initialized = false
		}
	}
	return err
}

// isNonceError matches node errors that mean the local sequence drifted.
func isNonceError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "nonce too high") ||
		strings.Contains(msg, "replacement transaction underpriced")
}
