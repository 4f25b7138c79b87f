package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/invoice"
	"github.com/xraph/settle/types"
)

func invoiceKey(invID id.InvoiceID) string {
	return "invoice/" + invID.String()
}

// ──────────────────────────────────────────────────
// Invoice Escrow
// ──────────────────────────────────────────────────

// CreateInvoice creates a draft invoice from the caller to recipient.
func (e *Engine) CreateInvoice(ctx context.Context, recipient types.Principal, amount types.Money, description string, dueDate *time.Time, partialPayment bool) (*invoice.Invoice, error) {
	issuer, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if recipient.IsZero() {
		return nil, fmt.Errorf("%w: recipient principal is required", ErrInvalidInput)
	}
	if recipient == issuer {
		return nil, fmt.Errorf("%w: recipient must differ from issuer", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	now := e.now()
	inv := &invoice.Invoice{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewInvoiceID(),
		Issuer:         issuer,
		Recipient:      recipient,
		Amount:         amount,
		PaidAmount:     types.Zero(amount.Currency),
		Escrow:         types.Zero(amount.Currency),
		Status:         invoice.StatusDraft,
		Description:    description,
		DueDate:        dueDate,
		PartialPayment: partialPayment,
	}

	if err := e.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindInvoiceCreated, issuer, inv.ID, map[string]any{
		"recipient":       inv.Recipient,
		"amount":          inv.Amount,
		"partial_payment": inv.PartialPayment,
	}); err != nil {
		return nil, err
	}

	e.plugins.EmitInvoiceCreated(ctx, inv)
	return inv, nil
}

// SendInvoice moves a draft invoice to SENT. Issuer only.
func (e *Engine) SendInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	ctx, release, err := e.locks.acquire(ctx, invoiceKey(invID))
	if err != nil {
		return nil, err
	}
	defer release()

	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.Issuer != caller {
		return nil, ErrNotIssuer
	}
	if inv.Status != invoice.StatusDraft {
		return nil, fmt.Errorf("%w: status is %s", ErrInvoiceNotDraft, inv.Status)
	}

	staged := inv.Clone()
	staged.Status = invoice.StatusSent
	staged.Touch(e.now())

	if err := e.store.UpdateInvoice(ctx, staged); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindInvoiceSent, caller, staged.ID, nil); err != nil {
		return nil, err
	}

	e.plugins.EmitInvoiceSent(ctx, staged)
	return staged, nil
}

// PayInvoice pays amount toward an invoice. Recipient only; the invoice
// must be SENT or ESCROWED. Funds move from the payer into escrow custody
// before any record is written. A payment below the remaining balance
// requires the invoice to allow partial payments; a payment above it is
// rejected. Paying the balance in full triggers settlement.
func (e *Engine) PayInvoice(ctx context.Context, invID id.InvoiceID, amount types.Money) (*invoice.Invoice, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	ctx, release, err := e.locks.acquire(ctx, invoiceKey(invID))
	if err != nil {
		return nil, err
	}
	defer release()

	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.Recipient != caller {
		return nil, ErrNotRecipient
	}
	if !inv.Payable() {
		return nil, fmt.Errorf("%w: status is %s", ErrInvoiceNotPayable, inv.Status)
	}
	if !amount.SameCurrency(inv.Amount) {
		return nil, fmt.Errorf("%w: payment currency %q does not match invoice currency %q",
			ErrInvalidInput, amount.Currency, inv.Amount.Currency)
	}

	remaining := inv.Remaining()
	if amount.GreaterThan(remaining) {
		return nil, fmt.Errorf("%w: paid %s, remaining %s", ErrInvoiceOverpaid, amount, remaining)
	}
	if amount.LessThan(remaining) && !inv.PartialPayment {
		return nil, fmt.Errorf("%w: paid %s of %s", ErrPartialPaymentNotAllowed, amount, remaining)
	}

	now := e.now()
	staged := inv.Clone()
	staged.PaidAmount = staged.PaidAmount.Add(amount)
	staged.Escrow = staged.Escrow.Add(amount)
	firstPayment := staged.Status == invoice.StatusSent
	if firstPayment {
		staged.Status = invoice.StatusEscrowed
	}
	staged.Touch(now)

	if err := e.treasury.Transfer(ctx, caller, e.escrowAccount, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	fullyPaid := staged.PaidAmount.Equal(staged.Amount)
	if fullyPaid {
		return e.settle(ctx, staged, caller, amount, firstPayment)
	}

	if err := e.store.UpdateInvoice(ctx, staged); err != nil {
		return nil, err
	}

	if firstPayment {
		if err := e.record(ctx, event.KindInvoiceEscrowed, caller, staged.ID, map[string]any{
			"amount": amount,
		}); err != nil {
			return nil, err
		}
		e.plugins.EmitInvoiceEscrowed(ctx, staged)
	}

	if err := e.record(ctx, event.KindPartialPayment, caller, staged.ID, map[string]any{
		"amount":    amount,
		"remaining": staged.Remaining(),
	}); err != nil {
		return nil, err
	}
	e.plugins.EmitPartialPayment(ctx, staged, amount, staged.Remaining())

	return staged, nil
}

// settle splits the escrow between the issuer and the protocol fee pool
// and finishes the invoice. The payout transfer runs before the record
// write; the fee stays on the escrow account and is booked against the
// fee accumulator.
func (e *Engine) settle(ctx context.Context, staged *invoice.Invoice, payer types.Principal, payment types.Money, firstPayment bool) (*invoice.Invoice, error) {
	escrow := staged.Escrow
	fee := escrow.BasisPoints(PlatformFeeBps)
	payout := escrow.Subtract(fee)

	now := e.now()
	staged.Escrow = types.Zero(escrow.Currency)
	staged.Status = invoice.StatusPaid
	staged.PaidAt = &now
	staged.Touch(now)

	if err := e.treasury.Transfer(ctx, e.escrowAccount, staged.Issuer, payout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if fee.IsPositive() {
		if err := e.treasury.Transfer(ctx, e.escrowAccount, e.feeAccount, fee); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	if err := e.store.AddProtocolFees(ctx, fee); err != nil {
		return nil, err
	}
	if err := e.store.UpdateInvoice(ctx, staged); err != nil {
		return nil, err
	}

	if firstPayment {
		if err := e.record(ctx, event.KindInvoiceEscrowed, payer, staged.ID, map[string]any{
			"amount": payment,
		}); err != nil {
			return nil, err
		}
		e.plugins.EmitInvoiceEscrowed(ctx, staged)
	}

	if err := e.record(ctx, event.KindInvoicePaid, payer, staged.ID, map[string]any{
		"payout": payout,
		"fee":    fee,
	}); err != nil {
		return nil, err
	}
	e.plugins.EmitInvoicePaid(ctx, staged, payout, fee)

	return staged, nil
}

// CancelInvoice cancels a draft or sent invoice. Issuer only; an invoice
// with escrowed funds can only close through settlement or a dispute.
func (e *Engine) CancelInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	ctx, release, err := e.locks.acquire(ctx, invoiceKey(invID))
	if err != nil {
		return nil, err
	}
	defer release()

	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.Issuer != caller {
		return nil, ErrNotIssuer
	}
	if inv.Status != invoice.StatusDraft && inv.Status != invoice.StatusSent {
		return nil, fmt.Errorf("%w: status is %s", ErrInvoiceNotCancellable, inv.Status)
	}

	now := e.now()
	staged := inv.Clone()
	staged.Status = invoice.StatusCancelled
	staged.CancelledAt = &now
	staged.Touch(now)

	if err := e.store.UpdateInvoice(ctx, staged); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindInvoiceCancelled, caller, staged.ID, nil); err != nil {
		return nil, err
	}

	e.plugins.EmitInvoiceCancelled(ctx, staged)
	return staged, nil
}

// RaiseDispute challenges an escrowed invoice. Either party may raise it;
// the named validators arbitrate by majority vote.
func (e *Engine) RaiseDispute(ctx context.Context, invID id.InvoiceID, reason string, validators []types.Principal) (*invoice.Dispute, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if len(validators) == 0 {
		return nil, ErrNoValidators
	}
	for _, v := range validators {
		if v.IsZero() {
			return nil, fmt.Errorf("%w: validator principal must not be zero", ErrInvalidInput)
		}
	}

	ctx, release, err := e.locks.acquire(ctx, invoiceKey(invID))
	if err != nil {
		return nil, err
	}
	defer release()

	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.Issuer != caller && inv.Recipient != caller {
		return nil, ErrNotInvoiceParty
	}
	if inv.Status != invoice.StatusEscrowed {
		return nil, fmt.Errorf("%w: status is %s", ErrInvoiceNotEscrowed, inv.Status)
	}

	now := e.now()
	d := &invoice.Dispute{
		Entity:     types.NewEntityAt(now),
		ID:         id.NewDisputeID(),
		InvoiceID:  inv.ID,
		Initiator:  caller,
		Reason:     reason,
		Validators: append([]types.Principal(nil), validators...),
	}

	staged := inv.Clone()
	staged.Status = invoice.StatusDisputed
	staged.Touch(now)

	if err := e.store.CreateDispute(ctx, d); err != nil {
		return nil, err
	}
	if err := e.store.UpdateInvoice(ctx, staged); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindDisputeRaised, caller, staged.ID, map[string]any{
		"dispute_id": d.ID,
		"reason":     reason,
		"validators": len(validators),
	}); err != nil {
		return nil, err
	}

	e.plugins.EmitDisputeRaised(ctx, d)
	return d, nil
}

// ResolveDispute records one validator vote toward resolving a dispute.
// Votes are counted per call, not per validator. Reaching a strict
// majority finalizes: refund returns the full escrow to the recipient and
// cancels the invoice, otherwise the escrow settles normally to the
// issuer. PaidAmount stays untouched either way as a historical record.
func (e *Engine) ResolveDispute(ctx context.Context, invID id.InvoiceID, refund bool) (*invoice.Dispute, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	ctx, release, err := e.locks.acquire(ctx, invoiceKey(invID))
	if err != nil {
		return nil, err
	}
	defer release()

	d, err := e.store.GetDispute(ctx, invID)
	if err != nil {
		return nil, err
	}
	if d.Resolved {
		return nil, ErrAlreadyResolved
	}
	if !d.HasValidator(caller) {
		return nil, ErrNotValidator
	}

	now := e.now()
	staged := d.Clone()
	staged.Approvals++
	staged.Touch(now)

	if staged.Approvals < staged.Majority() {
		if err := e.store.UpdateDispute(ctx, staged); err != nil {
			return nil, err
		}
		return staged, nil
	}

	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}

	staged.Resolved = true
	staged.Refunded = refund

	stagedInv := inv.Clone()

	if refund {
		escrow := stagedInv.Escrow
		stagedInv.Escrow = types.Zero(escrow.Currency)
		stagedInv.Status = invoice.StatusCancelled
		stagedInv.CancelledAt = &now
		stagedInv.Touch(now)

		if escrow.IsPositive() {
			if err := e.treasury.Transfer(ctx, e.escrowAccount, stagedInv.Recipient, escrow); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
			}
		}

		if err := e.store.UpdateInvoice(ctx, stagedInv); err != nil {
			return nil, err
		}
		if err := e.store.UpdateDispute(ctx, staged); err != nil {
			return nil, err
		}

		if err := e.record(ctx, event.KindInvoiceCancelled, caller, stagedInv.ID, map[string]any{
			"refunded": escrow,
		}); err != nil {
			return nil, err
		}
		e.plugins.EmitInvoiceCancelled(ctx, stagedInv)
	} else {
		if _, err := e.settle(ctx, stagedInv, caller, types.Zero(stagedInv.Amount.Currency), false); err != nil {
			return nil, err
		}
		if err := e.store.UpdateDispute(ctx, staged); err != nil {
			return nil, err
		}
	}

	if err := e.record(ctx, event.KindDisputeResolved, caller, invID, map[string]any{
		"dispute_id": staged.ID,
		"refunded":   refund,
		"approvals":  staged.Approvals,
	}); err != nil {
		return nil, err
	}

	e.plugins.EmitDisputeResolved(ctx, staged, refund)
	return staged, nil
}

// ProtocolFees reports the accrued platform fee pool for a currency.
func (e *Engine) ProtocolFees(ctx context.Context, currency string) (types.Money, error) {
	return e.store.ProtocolFees(ctx, currency)
}

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invID)
}

// ListInvoices returns invoices matching the filter.
func (e *Engine) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return e.store.ListInvoices(ctx, opts)
}

// GetDispute retrieves the dispute for an invoice.
func (e *Engine) GetDispute(ctx context.Context, invID id.InvoiceID) (*invoice.Dispute, error) {
	return e.store.GetDispute(ctx, invID)
}
