// Package treasury defines the external asset-transfer boundary.
//
// The engine never holds balances itself; every movement of funds goes
// through a Treasury. The interface is defined locally so the engine does
// not import a concrete asset ledger — callers inject the real backend at
// wiring time.
package treasury

import (
	"context"

	"github.com/xraph/settle/types"
)

// Treasury moves funds between principals on the external asset ledger.
// Transfer is synchronous: it either succeeds or fails within the caller's
// atomic unit. There are no timeout semantics at this boundary.
type Treasury interface {
	Transfer(ctx context.Context, from, to types.Principal, amount types.Money) error
}

// Func is an adapter to use a plain function as a Treasury.
type Func func(ctx context.Context, from, to types.Principal, amount types.Money) error

// Transfer implements Treasury.
func (f Func) Transfer(ctx context.Context, from, to types.Principal, amount types.Money) error {
	return f(ctx, from, to, amount)
}
