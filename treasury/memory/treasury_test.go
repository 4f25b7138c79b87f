package memory

import (
	"context"
	"testing"

	"github.com/xraph/settle/types"
)

func TestMintAndBalance(t *testing.T) {
	tre := New()
	alice := types.Principal("user:alice")

	if bal := tre.Balance(alice, "usd"); !bal.IsZero() {
		t.Errorf("fresh balance = %s, want zero", bal)
	}

	tre.Mint(alice, types.USD(1000))
	tre.Mint(alice, types.USD(500))
	tre.Mint(alice, types.EUR(200))

	if bal := tre.Balance(alice, "usd"); !bal.Equal(types.USD(1500)) {
		t.Errorf("usd balance = %s, want $15.00", bal)
	}
	if bal := tre.Balance(alice, "eur"); !bal.Equal(types.EUR(200)) {
		t.Errorf("eur balance = %s, want €2.00", bal)
	}
}

func TestTransfer(t *testing.T) {
	tre := New()
	ctx := context.Background()
	alice := types.Principal("user:alice")
	bob := types.Principal("user:bob")

	tre.Mint(alice, types.USD(1000))

	if err := tre.Transfer(ctx, alice, bob, types.USD(400)); err != nil {
		t.Fatal(err)
	}
	if bal := tre.Balance(alice, "usd"); !bal.Equal(types.USD(600)) {
		t.Errorf("sender balance = %s, want $6.00", bal)
	}
	if bal := tre.Balance(bob, "usd"); !bal.Equal(types.USD(400)) {
		t.Errorf("recipient balance = %s, want $4.00", bal)
	}

	// Insufficient funds leave both balances untouched.
	if err := tre.Transfer(ctx, alice, bob, types.USD(601)); err == nil {
		t.Error("overdraft transfer succeeded")
	}
	if bal := tre.Balance(alice, "usd"); !bal.Equal(types.USD(600)) {
		t.Errorf("sender balance = %s after overdraft, want $6.00", bal)
	}

	// Balances are per currency.
	if err := tre.Transfer(ctx, alice, bob, types.EUR(1)); err == nil {
		t.Error("transfer in unfunded currency succeeded")
	}
}

func TestTransferNonPositive(t *testing.T) {
	tre := New()
	ctx := context.Background()
	bob := types.Principal("user:bob")

	tests := []struct {
		name   string
		from   types.Principal
		amount types.Money
	}{
		{"Zero amount", "user:alice", types.Zero("usd")},
		{"Negative amount", "user:alice", types.USD(-100)},
		// A principal the treasury has never seen must not panic.
		{"Zero amount from unknown principal", "user:ghost", types.Zero("usd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tre.Transfer(ctx, tt.from, bob, tt.amount); err == nil {
				t.Error("non-positive transfer succeeded")
			}
		})
	}
}
