// Package memory provides an in-memory Treasury for tests and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/settle/treasury"
	"github.com/xraph/settle/types"
)

var _ treasury.Treasury = (*Treasury)(nil)

// Treasury keeps per-principal balances in memory, one balance per
// currency. Transfers fail when the source balance is insufficient, which
// makes it a faithful stand-in for a real asset ledger in tests.
type Treasury struct {
	mu       sync.Mutex
	balances map[types.Principal]map[string]int64
}

// New creates an empty in-memory treasury.
func New() *Treasury {
	return &Treasury{
		balances: make(map[types.Principal]map[string]int64),
	}
}

// Mint credits amount to p out of thin air.
func (t *Treasury) Mint(p types.Principal, amount types.Money) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(p, amount)
}

// Balance returns p's balance in the given currency.
func (t *Treasury) Balance(p types.Principal, currency string) types.Money {
	t.mu.Lock()
	defer t.mu.Unlock()

	return types.Money{Amount: t.balances[p][currency], Currency: currency}
}

// Transfer implements treasury.Treasury.
func (t *Treasury) Transfer(_ context.Context, from, to types.Principal, amount types.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("treasury: non-positive transfer %s", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balances[from][amount.Currency] < amount.Amount {
		return fmt.Errorf("treasury: insufficient funds: %s has %d %s, need %d",
			from, t.balances[from][amount.Currency], amount.Currency, amount.Amount)
	}

	t.balances[from][amount.Currency] -= amount.Amount
	t.credit(to, amount)
	return nil
}

func (t *Treasury) credit(p types.Principal, amount types.Money) {
	if t.balances[p] == nil {
		t.balances[p] = make(map[string]int64)
	}
	t.balances[p][amount.Currency] += amount.Amount
}
