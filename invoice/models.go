// Package invoice defines the escrow-backed invoice entities.
package invoice

import (
	"time"

	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

// Status is the invoice lifecycle state.
type Status string

// Lifecycle: DRAFT → SENT → ESCROWED → PAID, with DRAFT|SENT → CANCELLED
// and ESCROWED → DISPUTED → PAID|CANCELLED.
const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusEscrowed  Status = "escrowed"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
)

// Invoice is a bill from an issuer to a recipient. Payments accumulate in
// escrow custody until settlement or a refund resolution. PaidAmount is a
// historical record and never decreases; Escrow tracks the funds currently
// held and drops to zero on settlement or refund.
type Invoice struct {
	types.Entity
	ID             id.InvoiceID    `json:"id"`
	Issuer         types.Principal `json:"issuer"`
	Recipient      types.Principal `json:"recipient"`
	Amount         types.Money     `json:"amount"`
	PaidAmount     types.Money     `json:"paid_amount"`
	Escrow         types.Money     `json:"escrow"`
	Status         Status          `json:"status"`
	Description    string          `json:"description"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	PartialPayment bool            `json:"partial_payment"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
}

// Remaining returns the unpaid portion of the invoice amount.
func (i *Invoice) Remaining() types.Money {
	return i.Amount.Subtract(i.PaidAmount)
}

// Payable reports whether the invoice can accept a payment.
func (i *Invoice) Payable() bool {
	return i.Status == StatusSent || i.Status == StatusEscrowed
}

// Clone returns a deep copy.
func (i *Invoice) Clone() *Invoice {
	c := *i
	if i.DueDate != nil {
		d := *i.DueDate
		c.DueDate = &d
	}
	if i.PaidAt != nil {
		d := *i.PaidAt
		c.PaidAt = &d
	}
	if i.CancelledAt != nil {
		d := *i.CancelledAt
		c.CancelledAt = &d
	}
	return &c
}

// Dispute is a validator-arbitrated challenge over an escrowed invoice.
// It resolves once Approvals reaches a strict majority of the validator
// set: floor(len(Validators)/2) + 1.
type Dispute struct {
	types.Entity
	ID         id.DisputeID      `json:"id"`
	InvoiceID  id.InvoiceID      `json:"invoice_id"`
	Initiator  types.Principal   `json:"initiator"`
	Reason     string            `json:"reason"`
	Validators []types.Principal `json:"validators"`
	Approvals  int               `json:"approvals"`
	Resolved   bool              `json:"resolved"`
	Refunded   bool              `json:"refunded"`
}

// Majority returns the number of approvals required to resolve.
func (d *Dispute) Majority() int {
	return len(d.Validators)/2 + 1
}

// HasValidator reports whether p is in the validator set.
func (d *Dispute) HasValidator(p types.Principal) bool {
	for _, v := range d.Validators {
		if v == p {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (d *Dispute) Clone() *Dispute {
	c := *d
	c.Validators = append([]types.Principal(nil), d.Validators...)
	return &c
}
