package settle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/settle"
	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

func TestCreateAllowanceValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		agent  types.Principal
		limit  types.Money
		period types.Period
	}{
		{"Zero agent", types.NoPrincipal, types.USD(1000), types.PeriodDaily},
		{"Zero limit", bot, types.Zero("usd"), types.PeriodDaily},
		{"Negative limit", bot, types.USD(-100), types.PeriodDaily},
		{"Unknown period", bot, types.USD(1000), types.Period("hourly")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateAllowance(as(alice), tt.agent, tt.limit, tt.period, false)
			if !errors.Is(err, settle.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSpendWithinLimit(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(alice, types.USD(100000))

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(100000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(40000))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Remaining.Equal(types.USD(60000)) {
		t.Errorf("Remaining = %s, want $600.00", res.Remaining)
	}
	if res.TxHash == "" {
		t.Error("spend did not report a transfer hash")
	}

	// A second spend above the remaining limit is rejected without
	// touching the spent counter.
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(70000)); !errors.Is(err, settle.ErrInsufficientAllowance) {
		t.Fatalf("got %v, want ErrInsufficientAllowance", err)
	}

	got, err := h.engine.GetAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Spent.Equal(types.USD(40000)) {
		t.Errorf("Spent = %s, want $400.00", got.Spent)
	}

	remaining, err := h.engine.RemainingAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.Equal(types.USD(60000)) {
		t.Errorf("RemainingAllowance = %s, want $600.00", remaining)
	}

	// Funds moved owner -> recipient through the treasury.
	if bal := h.treasury.Balance(carol, "usd"); !bal.Equal(types.USD(40000)) {
		t.Errorf("recipient balance = %s, want $400.00", bal)
	}
	if bal := h.treasury.Balance(alice, "usd"); !bal.Equal(types.USD(60000)) {
		t.Errorf("owner balance = %s, want $600.00", bal)
	}
}

func TestSpendExactRemaining(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(alice, types.USD(1000))

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(1000))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Remaining.IsZero() {
		t.Errorf("Remaining = %s, want zero", res.Remaining)
	}
}

func TestSpendRejections(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(alice, types.USD(10000))

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.Spend(as(carol), a.ID, bob, types.USD(100)); !errors.Is(err, settle.ErrNotAgent) {
		t.Errorf("non-agent spend: got %v, want ErrNotAgent", err)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.EUR(100)); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("currency mismatch: got %v, want ErrInvalidInput", err)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, types.NoPrincipal, types.USD(100)); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("zero recipient: got %v, want ErrInvalidInput", err)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(-5)); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("negative amount: got %v, want ErrInvalidInput", err)
	}

	if err := h.engine.RevokeAllowance(as(alice), a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(100)); !errors.Is(err, settle.ErrAllowanceNotActive) {
		t.Errorf("revoked spend: got %v, want ErrAllowanceNotActive", err)
	}
}

func TestSpendTransferFailure(t *testing.T) {
	h := newHarness(t)
	// Deliberately no Mint: the owner has no funds on the treasury.

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.engine.Spend(as(bot), a.ID, carol, types.USD(100))
	if !errors.Is(err, settle.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	got, err := h.engine.GetAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Spent.IsZero() {
		t.Errorf("Spent = %s after failed transfer, want zero", got.Spent)
	}
}

func TestPeriodReset(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(alice, types.USD(100000))

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(800)); err != nil {
		t.Fatal(err)
	}

	// Within the period the remaining limit stays reduced.
	remaining, err := h.engine.RemainingAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.Equal(types.USD(200)) {
		t.Errorf("RemainingAllowance = %s, want $2.00", remaining)
	}

	// A full day later the read path reports the full limit without
	// mutating the record.
	h.clock.Advance(24 * time.Hour)
	remaining, err = h.engine.RemainingAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.Equal(types.USD(1000)) {
		t.Errorf("RemainingAllowance after period = %s, want $10.00", remaining)
	}

	// The next spend applies the reset: the full limit is available again.
	res, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(900))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Remaining.Equal(types.USD(100)) {
		t.Errorf("Remaining after reset = %s, want $1.00", res.Remaining)
	}

	resets, err := h.engine.ListEvents(context.Background(), event.ListOpts{Kind: event.KindPeriodReset})
	if err != nil {
		t.Fatal(err)
	}
	if len(resets) != 1 {
		t.Fatalf("got %d period reset events, want 1", len(resets))
	}
}

func TestPeriodResetRollover(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(alice, types.USD(100000))

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(400)); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(24 * time.Hour)

	// Rollover is informational: the carried-over amount appears on the
	// reset event, but the spendable limit does not grow.
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(100)); err != nil {
		t.Fatal(err)
	}
	remaining, err := h.engine.RemainingAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.Equal(types.USD(900)) {
		t.Errorf("RemainingAllowance = %s, want $9.00", remaining)
	}

	resets, err := h.engine.ListEvents(context.Background(), event.ListOpts{Kind: event.KindPeriodReset})
	if err != nil {
		t.Fatal(err)
	}
	if len(resets) != 1 {
		t.Fatalf("got %d period reset events, want 1", len(resets))
	}
	carried, ok := resets[0].Data["carried_over"].(types.Money)
	if !ok {
		t.Fatalf("carried_over missing from reset event data: %v", resets[0].Data)
	}
	if !carried.Equal(types.USD(600)) {
		t.Errorf("carried_over = %s, want $6.00", carried)
	}
}

func TestUpdateAllowance(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(alice, types.USD(100000))

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(800)); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.UpdateAllowance(as(bob), a.ID, types.USD(2000), types.PeriodWeekly); !errors.Is(err, settle.ErrNotOwner) {
		t.Errorf("non-owner update: got %v, want ErrNotOwner", err)
	}

	updated, err := h.engine.UpdateAllowance(as(alice), a.ID, types.USD(500), types.PeriodWeekly)
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Limit.Equal(types.USD(500)) || updated.Period != types.PeriodWeekly {
		t.Errorf("updated limit/period = %s/%s, want $5.00/weekly", updated.Limit, updated.Period)
	}

	// The spent counter survives the update unrevalidated, so the
	// remaining allowance can go negative until the next reset.
	if !updated.Spent.Equal(types.USD(800)) {
		t.Errorf("Spent = %s after update, want $8.00", updated.Spent)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(1)); !errors.Is(err, settle.ErrInsufficientAllowance) {
		t.Errorf("spend over shrunk limit: got %v, want ErrInsufficientAllowance", err)
	}
}

func TestUpdateAllowanceCurrencyMismatch(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(alice, types.USD(1000))

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(400)); err != nil {
		t.Fatal(err)
	}

	// A limit in another currency is rejected up front: accepting it
	// would leave the spent counter incomparable to the new limit.
	if _, err := h.engine.UpdateAllowance(as(alice), a.ID, types.EUR(1000), types.PeriodDaily); !errors.Is(err, settle.ErrInvalidInput) {
		t.Fatalf("foreign-currency limit: got %v, want ErrInvalidInput", err)
	}

	// The allowance is untouched and still fully usable.
	remaining, err := h.engine.RemainingAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.Equal(types.USD(600)) {
		t.Errorf("RemainingAllowance = %s, want $6.00", remaining)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(100)); err != nil {
		t.Errorf("spend after rejected update: %v", err)
	}
}

func TestRevokeAllowance(t *testing.T) {
	h := newHarness(t)

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := h.engine.RevokeAllowance(as(bob), a.ID); !errors.Is(err, settle.ErrNotOwner) {
		t.Errorf("non-owner revoke: got %v, want ErrNotOwner", err)
	}
	if err := h.engine.RevokeAllowance(as(alice), a.ID); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.RevokeAllowance(as(alice), a.ID); !errors.Is(err, settle.ErrAllowanceNotActive) {
		t.Errorf("double revoke: got %v, want ErrAllowanceNotActive", err)
	}

	// A revoked allowance reports zero remaining.
	remaining, err := h.engine.RemainingAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.IsZero() {
		t.Errorf("RemainingAllowance = %s after revoke, want zero", remaining)
	}
}

func TestMultiSigGate(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(alice, types.USD(100000))

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(100000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}
	signer := types.Principal("user:dana")
	if _, err := h.engine.ConfigureMultiSig(as(alice), bot, types.USD(50000), []types.Principal{signer}); err != nil {
		t.Fatal(err)
	}

	// Below the threshold no approvals are needed.
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(49999)); err != nil {
		t.Fatal(err)
	}

	// At or above the threshold the spend is gated until the hash carries
	// enough approvals, and the spent counter stays put.
	_, err = h.engine.Spend(as(bot), a.ID, carol, types.USD(50000))
	if !errors.Is(err, settle.ErrMultiSigRequired) {
		t.Fatalf("gated spend: got %v, want ErrMultiSigRequired", err)
	}
	got, err := h.engine.GetAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Spent.Equal(types.USD(49999)) {
		t.Errorf("Spent = %s after gated spend, want $499.99", got.Spent)
	}

	txHash := settle.TransferHash(a.ID, carol, types.USD(50000), h.clock.Now())

	if err := h.engine.ApproveTransaction(as(carol), bot, txHash); !errors.Is(err, settle.ErrNotSigner) {
		t.Errorf("non-signer approval: got %v, want ErrNotSigner", err)
	}
	if err := h.engine.ApproveTransaction(as(signer), bot, txHash); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.ApproveTransaction(as(signer), bot, txHash); !errors.Is(err, settle.ErrAlreadyApproved) {
		t.Errorf("repeat approval: got %v, want ErrAlreadyApproved", err)
	}

	res, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(50000))
	if err != nil {
		t.Fatal(err)
	}
	if res.TxHash != txHash {
		t.Errorf("released spend tx hash = %s, want %s", res.TxHash, txHash)
	}
}

func TestMultiSigOneApprovalPerHash(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(alice, types.USD(100000))

	if _, err := h.engine.CreateAllowance(as(alice), bot, types.USD(100000), types.PeriodDaily, false); err != nil {
		t.Fatal(err)
	}
	s1 := types.Principal("user:dana")
	s2 := types.Principal("user:erin")
	if _, err := h.engine.ConfigureMultiSig(as(alice), bot, types.USD(50000), []types.Principal{s1, s2}); err != nil {
		t.Fatal(err)
	}

	// A hash accepts exactly one approval; the second signer is rejected
	// even though the gate wants approvals from the whole signer set.
	txHash := settle.TransferHash(id.NewAllowanceID(), carol, types.USD(50000), h.clock.Now())
	if err := h.engine.ApproveTransaction(as(s1), bot, txHash); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.ApproveTransaction(as(s2), bot, txHash); !errors.Is(err, settle.ErrAlreadyApproved) {
		t.Errorf("second signer approval: got %v, want ErrAlreadyApproved", err)
	}
}

func TestConfigureMultiSig(t *testing.T) {
	h := newHarness(t)

	// Configuring a gate requires owning at least one allowance for the
	// agent.
	if _, err := h.engine.ConfigureMultiSig(as(alice), bot, types.USD(50000), nil); !errors.Is(err, settle.ErrNotOwner) {
		t.Errorf("config without allowance: got %v, want ErrNotOwner", err)
	}

	if _, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.ConfigureMultiSig(as(alice), bot, types.USD(-1), nil); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("negative threshold: got %v, want ErrInvalidInput", err)
	}
	if _, err := h.engine.ConfigureMultiSig(as(alice), bot, types.USD(500), []types.Principal{types.NoPrincipal}); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("zero signer: got %v, want ErrInvalidInput", err)
	}
	// A threshold in a currency the agent never spends would gate
	// nothing; it is rejected rather than silently configured dead.
	if _, err := h.engine.ConfigureMultiSig(as(alice), bot, types.EUR(500), []types.Principal{bob}); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("foreign-currency threshold: got %v, want ErrInvalidInput", err)
	}

	cfg, err := h.engine.ConfigureMultiSig(as(alice), bot, types.USD(500), []types.Principal{bob})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agent != bot || len(cfg.Signers) != 1 {
		t.Errorf("config = %+v, want agent %s with 1 signer", cfg, bot)
	}

	// Reconfiguring replaces the config wholesale, dropping pending
	// approvals.
	txHash := settle.TransferHash(id.NewAllowanceID(), carol, types.USD(500), h.clock.Now())
	if err := h.engine.ApproveTransaction(as(bob), bot, txHash); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.ConfigureMultiSig(as(alice), bot, types.USD(500), []types.Principal{bob}); err != nil {
		t.Fatal(err)
	}
	fresh, err := h.engine.GetMultiSig(context.Background(), bot)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh.Approvals) != 0 {
		t.Errorf("approvals survived reconfigure: %v", fresh.Approvals)
	}
}
