package settle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/settle"
	"github.com/xraph/settle/invoice"
	"github.com/xraph/settle/types"
)

func TestCreateInvoiceValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name      string
		recipient types.Principal
		amount    types.Money
	}{
		{"Zero recipient", types.NoPrincipal, types.USD(100)},
		{"Self invoice", alice, types.USD(100)},
		{"Zero amount", bob, types.Zero("usd")},
		{"Negative amount", bob, types.USD(-100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateInvoice(as(alice), tt.recipient, tt.amount, "", nil, false)
			if !errors.Is(err, settle.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestInvoiceSettlement(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(bob, types.USD(10000))

	inv, err := h.engine.CreateInvoice(as(alice), bob, types.USD(10000), "research report", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != invoice.StatusDraft {
		t.Fatalf("new invoice status = %s, want draft", inv.Status)
	}

	if _, err := h.engine.SendInvoice(as(alice), inv.ID); err != nil {
		t.Fatal(err)
	}

	// First partial payment escrows the funds.
	paid, err := h.engine.PayInvoice(as(bob), inv.ID, types.USD(6000))
	if err != nil {
		t.Fatal(err)
	}
	if paid.Status != invoice.StatusEscrowed {
		t.Errorf("status after first payment = %s, want escrowed", paid.Status)
	}
	if !paid.Escrow.Equal(types.USD(6000)) || !paid.PaidAmount.Equal(types.USD(6000)) {
		t.Errorf("escrow/paid = %s/%s, want $60.00/$60.00", paid.Escrow, paid.PaidAmount)
	}
	if bal := h.treasury.Balance(settle.DefaultEscrowAccount, "usd"); !bal.Equal(types.USD(6000)) {
		t.Errorf("escrow account balance = %s, want $60.00", bal)
	}

	// Paying the balance settles: 5% fee, 95% payout.
	paid, err = h.engine.PayInvoice(as(bob), inv.ID, types.USD(4000))
	if err != nil {
		t.Fatal(err)
	}
	if paid.Status != invoice.StatusPaid {
		t.Errorf("status after full payment = %s, want paid", paid.Status)
	}
	if !paid.Escrow.IsZero() {
		t.Errorf("escrow = %s after settlement, want zero", paid.Escrow)
	}
	if paid.PaidAt == nil {
		t.Error("PaidAt not set on settlement")
	}

	if bal := h.treasury.Balance(alice, "usd"); !bal.Equal(types.USD(9500)) {
		t.Errorf("issuer balance = %s, want $95.00", bal)
	}
	if bal := h.treasury.Balance(settle.DefaultFeeAccount, "usd"); !bal.Equal(types.USD(500)) {
		t.Errorf("fee account balance = %s, want $5.00", bal)
	}
	if bal := h.treasury.Balance(settle.DefaultEscrowAccount, "usd"); !bal.IsZero() {
		t.Errorf("escrow account balance = %s after settlement, want zero", bal)
	}
	if bal := h.treasury.Balance(bob, "usd"); !bal.IsZero() {
		t.Errorf("payer balance = %s, want zero", bal)
	}

	fees, err := h.engine.ProtocolFees(context.Background(), "usd")
	if err != nil {
		t.Fatal(err)
	}
	if !fees.Equal(types.USD(500)) {
		t.Errorf("ProtocolFees = %s, want $5.00", fees)
	}
}

func TestPayInvoiceRejections(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(bob, types.USD(100000))

	inv, err := h.engine.CreateInvoice(as(alice), bob, types.USD(10000), "", nil, false)
	if err != nil {
		t.Fatal(err)
	}

	// Draft invoices are not payable.
	if _, err := h.engine.PayInvoice(as(bob), inv.ID, types.USD(10000)); !errors.Is(err, settle.ErrInvoiceNotPayable) {
		t.Errorf("pay draft: got %v, want ErrInvoiceNotPayable", err)
	}

	if _, err := h.engine.SendInvoice(as(alice), inv.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.PayInvoice(as(carol), inv.ID, types.USD(10000)); !errors.Is(err, settle.ErrNotRecipient) {
		t.Errorf("pay by stranger: got %v, want ErrNotRecipient", err)
	}
	if _, err := h.engine.PayInvoice(as(bob), inv.ID, types.EUR(10000)); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("currency mismatch: got %v, want ErrInvalidInput", err)
	}
	if _, err := h.engine.PayInvoice(as(bob), inv.ID, types.USD(10001)); !errors.Is(err, settle.ErrInvoiceOverpaid) {
		t.Errorf("overpay: got %v, want ErrInvoiceOverpaid", err)
	}
	if _, err := h.engine.PayInvoice(as(bob), inv.ID, types.USD(6000)); !errors.Is(err, settle.ErrPartialPaymentNotAllowed) {
		t.Errorf("partial on full-only invoice: got %v, want ErrPartialPaymentNotAllowed", err)
	}

	// A settled invoice accepts no further payments.
	if _, err := h.engine.PayInvoice(as(bob), inv.ID, types.USD(10000)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.PayInvoice(as(bob), inv.ID, types.USD(1)); !errors.Is(err, settle.ErrInvoiceNotPayable) {
		t.Errorf("pay settled invoice: got %v, want ErrInvoiceNotPayable", err)
	}
}

func TestCancelInvoice(t *testing.T) {
	h := newHarness(t)
	h.treasury.Mint(bob, types.USD(10000))

	draft, err := h.engine.CreateInvoice(as(alice), bob, types.USD(100), "", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.CancelInvoice(as(bob), draft.ID); !errors.Is(err, settle.ErrNotIssuer) {
		t.Errorf("cancel by recipient: got %v, want ErrNotIssuer", err)
	}
	cancelled, err := h.engine.CancelInvoice(as(alice), draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != invoice.StatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("cancelled draft = %s/%v", cancelled.Status, cancelled.CancelledAt)
	}

	sent, err := h.engine.CreateInvoice(as(alice), bob, types.USD(100), "", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.SendInvoice(as(alice), sent.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.CancelInvoice(as(alice), sent.ID); err != nil {
		t.Errorf("cancel sent invoice: %v", err)
	}

	// Escrowed funds lock the invoice against unilateral cancellation.
	escrowed, err := h.engine.CreateInvoice(as(alice), bob, types.USD(10000), "", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.SendInvoice(as(alice), escrowed.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.PayInvoice(as(bob), escrowed.ID, types.USD(6000)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.CancelInvoice(as(alice), escrowed.ID); !errors.Is(err, settle.ErrInvoiceNotCancellable) {
		t.Errorf("cancel escrowed invoice: got %v, want ErrInvoiceNotCancellable", err)
	}
}

// escrowedInvoice creates, sends, and partially pays an invoice so it
// sits in ESCROWED with $60.00 held.
func escrowedInvoice(t *testing.T, h *harness) *invoice.Invoice {
	t.Helper()
	h.treasury.Mint(bob, types.USD(6000))
	inv, err := h.engine.CreateInvoice(as(alice), bob, types.USD(10000), "disputed work", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.SendInvoice(as(alice), inv.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.PayInvoice(as(bob), inv.ID, types.USD(6000)); err != nil {
		t.Fatal(err)
	}
	return inv
}

func TestRaiseDispute(t *testing.T) {
	h := newHarness(t)
	validators := []types.Principal{"validator:1", "validator:2", "validator:3"}

	inv, err := h.engine.CreateInvoice(as(alice), bob, types.USD(100), "", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.SendInvoice(as(alice), inv.ID); err != nil {
		t.Fatal(err)
	}
	// Only escrowed invoices can be disputed.
	if _, err := h.engine.RaiseDispute(as(bob), inv.ID, "no deliverable", validators); !errors.Is(err, settle.ErrInvoiceNotEscrowed) {
		t.Errorf("dispute sent invoice: got %v, want ErrInvoiceNotEscrowed", err)
	}

	esc := escrowedInvoice(t, h)
	if _, err := h.engine.RaiseDispute(as(bob), esc.ID, "", nil); !errors.Is(err, settle.ErrNoValidators) {
		t.Errorf("dispute without validators: got %v, want ErrNoValidators", err)
	}
	if _, err := h.engine.RaiseDispute(as(carol), esc.ID, "", validators); !errors.Is(err, settle.ErrNotInvoiceParty) {
		t.Errorf("dispute by stranger: got %v, want ErrNotInvoiceParty", err)
	}

	d, err := h.engine.RaiseDispute(as(bob), esc.ID, "no deliverable", validators)
	if err != nil {
		t.Fatal(err)
	}
	if d.InvoiceID != esc.ID || d.Initiator != bob || len(d.Validators) != 3 {
		t.Errorf("dispute = %+v", d)
	}
	if d.Majority() != 2 {
		t.Errorf("Majority() = %d with 3 validators, want 2", d.Majority())
	}

	got, err := h.engine.GetInvoice(context.Background(), esc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != invoice.StatusDisputed {
		t.Errorf("invoice status = %s after dispute, want disputed", got.Status)
	}
}

func TestResolveDisputeRefund(t *testing.T) {
	h := newHarness(t)
	v1 := types.Principal("validator:1")
	v2 := types.Principal("validator:2")
	v3 := types.Principal("validator:3")

	inv := escrowedInvoice(t, h)
	if _, err := h.engine.RaiseDispute(as(bob), inv.ID, "no deliverable", []types.Principal{v1, v2, v3}); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.ResolveDispute(as(carol), inv.ID, true); !errors.Is(err, settle.ErrNotValidator) {
		t.Errorf("vote by stranger: got %v, want ErrNotValidator", err)
	}

	// One vote of three is short of the majority.
	d, err := h.engine.ResolveDispute(as(v1), inv.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if d.Resolved || d.Approvals != 1 {
		t.Fatalf("after one vote: resolved=%v approvals=%d", d.Resolved, d.Approvals)
	}

	// The second vote reaches the majority and refunds the escrow.
	d, err = h.engine.ResolveDispute(as(v2), inv.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Resolved || !d.Refunded {
		t.Fatalf("after majority: resolved=%v refunded=%v", d.Resolved, d.Refunded)
	}

	got, err := h.engine.GetInvoice(context.Background(), inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != invoice.StatusCancelled {
		t.Errorf("invoice status = %s after refund, want cancelled", got.Status)
	}
	if !got.Escrow.IsZero() {
		t.Errorf("escrow = %s after refund, want zero", got.Escrow)
	}
	// PaidAmount stays as a historical record of what was paid in.
	if !got.PaidAmount.Equal(types.USD(6000)) {
		t.Errorf("PaidAmount = %s after refund, want $60.00", got.PaidAmount)
	}

	if bal := h.treasury.Balance(bob, "usd"); !bal.Equal(types.USD(6000)) {
		t.Errorf("recipient balance = %s after refund, want $60.00", bal)
	}
	if bal := h.treasury.Balance(settle.DefaultEscrowAccount, "usd"); !bal.IsZero() {
		t.Errorf("escrow account balance = %s after refund, want zero", bal)
	}

	if _, err := h.engine.ResolveDispute(as(v3), inv.ID, true); !errors.Is(err, settle.ErrAlreadyResolved) {
		t.Errorf("vote on resolved dispute: got %v, want ErrAlreadyResolved", err)
	}
}

func TestResolveDisputeRelease(t *testing.T) {
	h := newHarness(t)
	v1 := types.Principal("validator:1")
	v2 := types.Principal("validator:2")
	v3 := types.Principal("validator:3")

	inv := escrowedInvoice(t, h)
	if _, err := h.engine.RaiseDispute(as(alice), inv.ID, "payment stalled", []types.Principal{v1, v2, v3}); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.ResolveDispute(as(v1), inv.ID, false); err != nil {
		t.Fatal(err)
	}
	d, err := h.engine.ResolveDispute(as(v2), inv.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Resolved || d.Refunded {
		t.Fatalf("after majority: resolved=%v refunded=%v", d.Resolved, d.Refunded)
	}

	// The escrow settles to the issuer with the usual 5% fee.
	got, err := h.engine.GetInvoice(context.Background(), inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != invoice.StatusPaid {
		t.Errorf("invoice status = %s after release, want paid", got.Status)
	}
	if bal := h.treasury.Balance(alice, "usd"); !bal.Equal(types.USD(5700)) {
		t.Errorf("issuer balance = %s after release, want $57.00", bal)
	}
	if bal := h.treasury.Balance(settle.DefaultFeeAccount, "usd"); !bal.Equal(types.USD(300)) {
		t.Errorf("fee account balance = %s after release, want $3.00", bal)
	}
}

func TestResolveDisputeVotesPerCall(t *testing.T) {
	h := newHarness(t)
	v1 := types.Principal("validator:1")

	inv := escrowedInvoice(t, h)
	if _, err := h.engine.RaiseDispute(as(bob), inv.ID, "", []types.Principal{v1, "validator:2", "validator:3"}); err != nil {
		t.Fatal(err)
	}

	// Votes are counted per call: the same validator voting twice
	// reaches the majority alone.
	if _, err := h.engine.ResolveDispute(as(v1), inv.ID, true); err != nil {
		t.Fatal(err)
	}
	d, err := h.engine.ResolveDispute(as(v1), inv.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Resolved {
		t.Error("repeated votes from one validator did not resolve")
	}
}
