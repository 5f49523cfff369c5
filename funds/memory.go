package funds

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

// InMemory is a Sink backed by in-process account balances. Useful for
// tests and simulations; production deployments adapt a real payment
// provider instead.
type InMemory struct {
	mu       sync.Mutex
	currency string
	balances map[string]int64 // account id -> balance in smallest unit
	vault    int64            // funds the engine has taken in
}

// NewInMemory creates an in-memory sink denominated in currency.
func NewInMemory(currency string) *InMemory {
	return &InMemory{
		currency: currency,
		balances: make(map[string]int64),
	}
}

// Fund credits an account so it can cover deposits.
func (m *InMemory) Fund(account id.AccountID, amount types.Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account.String()] += amount.Amount
}

// Balance returns an account's current balance.
func (m *InMemory) Balance(account id.AccountID) types.Money {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.New(m.balances[account.String()], m.currency)
}

// Vault returns the total the sink is holding on the engine's behalf.
func (m *InMemory) Vault() types.Money {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.New(m.vault, m.currency)
}

// Received implements Sink. Fails when the account cannot cover amount.
func (m *InMemory) Received(ctx context.Context, from id.AccountID, amount types.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount.Currency != m.currency {
		return fmt.Errorf("funds: currency mismatch: sink holds %s, got %s", m.currency, amount.Currency)
	}

	key := from.String()
	if m.balances[key] < amount.Amount {
		return fmt.Errorf("funds: account %s has %d, needs %d", key, m.balances[key], amount.Amount)
	}

	m.balances[key] -= amount.Amount
	m.vault += amount.Amount
	return nil
}

// PayOut implements Sink.
func (m *InMemory) PayOut(ctx context.Context, to id.AccountID, amount types.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount.Currency != m.currency {
		return fmt.Errorf("funds: currency mismatch: sink holds %s, got %s", m.currency, amount.Currency)
	}
	if m.vault < amount.Amount {
		return fmt.Errorf("funds: vault holds %d, cannot pay out %d", m.vault, amount.Amount)
	}

	m.vault -= amount.Amount
	m.balances[to.String()] += amount.Amount
	return nil
}

// Failing wraps a Sink and fails every call with err. Test helper for
// exercising rollback paths.
type Failing struct {
	Err error
}

func (f *Failing) Received(ctx context.Context, from id.AccountID, amount types.Money) error {
	return f.Err
}

func (f *Failing) PayOut(ctx context.Context, to id.AccountID, amount types.Money) error {
	return f.Err
}
