// Package event defines the append-only domain event journal.
//
// Every committed state transition appends exactly one Event. Events are
// immutable, ordered facts consumed by out-of-process dispatchers via
// polling; they are at-least-once notifications, not a source of truth —
// the entity records stay authoritative.
package event

import (
	"time"

	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

// Kind tags the state transition an event describes.
type Kind string

// Allowance events.
const (
	KindAllowanceCreated   Kind = "allowance.created"
	KindAllowanceUpdated   Kind = "allowance.updated"
	KindAllowanceRevoked   Kind = "allowance.revoked"
	KindSpent              Kind = "allowance.spent"
	KindPeriodReset        Kind = "allowance.period_reset"
	KindMultiSigConfigured Kind = "allowance.multisig_configured"
	KindMultiSigApproval   Kind = "allowance.multisig_approval"
)

// Invoice events.
const (
	KindInvoiceCreated   Kind = "invoice.created"
	KindInvoiceSent      Kind = "invoice.sent"
	KindInvoiceEscrowed  Kind = "invoice.escrowed"
	KindInvoicePaid      Kind = "invoice.paid"
	KindPartialPayment   Kind = "invoice.partial_payment"
	KindInvoiceCancelled Kind = "invoice.cancelled"
	KindDisputeRaised    Kind = "invoice.dispute_raised"
	KindDisputeResolved  Kind = "invoice.dispute_resolved"
)

// Subscription events.
const (
	KindSubscriptionCreated   Kind = "subscription.created"
	KindSubscriptionBilled    Kind = "subscription.billed"
	KindBillingFailed         Kind = "subscription.billing_failed"
	KindSubscriptionPaused    Kind = "subscription.paused"
	KindSubscriptionResumed   Kind = "subscription.resumed"
	KindSubscriptionCancelled Kind = "subscription.cancelled"
)

// Event is one immutable fact about a committed state transition. Seq is
// assigned by the store on append and is strictly increasing; consumers
// resume from the last Seq they processed.
type Event struct {
	ID      id.EventID      `json:"id"`
	Seq     int64           `json:"seq"`
	Kind    Kind            `json:"kind"`
	At      time.Time       `json:"at"`
	Actor   types.Principal `json:"actor,omitempty"`
	Subject id.AnyID        `json:"subject"`
	Data    map[string]any  `json:"data,omitempty"`
}
