package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory asset ledger for tests and local development. It
// tracks per-account balances and fails transfers that exceed them.
//
// The hooks run before the transfer applies and may be used to inject
// failures or to re-enter the vault, which is how the reentrancy latch is
// exercised in tests.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]int64

	PullHook func(from, to string, amount int64) error
	PushHook func(to string, amount int64) error

	vault string
}

// NewMemory creates an empty ledger whose vault-side account is named by
// vaultAccount.
func NewMemory(vaultAccount string) *Memory {
	return &Memory{
		accounts: make(map[string]int64),
		vault:    vaultAccount,
	}
}

// Mint credits an account out of thin air. Test setup only.
func (m *Memory) Mint(account string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account] += amount
}

// Balance reads an account's balance.
func (m *Memory) Balance(account string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[account]
}

// Pull implements AssetLedger.
func (m *Memory) Pull(ctx context.Context, from, to string, amount int64) error {
	if hook := m.PullHook; hook != nil {
		if err := hook(from, to, amount); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accounts[from] < amount {
		return fmt.Errorf("ledger: account %s has %d, cannot pull %d", from, m.accounts[from], amount)
	}
	m.accounts[from] -= amount
	m.accounts[to] += amount
	return nil
}

// Push implements AssetLedger.
func (m *Memory) Push(ctx context.Context, to string, amount int64) error {
	if hook := m.PushHook; hook != nil {
		if err := hook(to, amount); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accounts[m.vault] < amount {
		return fmt.Errorf("ledger: vault has %d, cannot push %d", m.accounts[m.vault], amount)
	}
	m.accounts[m.vault] -= amount
	m.accounts[to] += amount
	return nil
}

var _ AssetLedger = (*Memory)(nil)
