// Package plugin provides an extensible plugin system for Settle.
// Plugins can hook into domain events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/invoice"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Allowance hooks
// ──────────────────────────────────────────────────

// OnAllowanceCreated is called when a new allowance is created.
type OnAllowanceCreated interface {
	Plugin
	OnAllowanceCreated(ctx context.Context, a *allowance.Allowance) error
}

// OnAllowanceUpdated is called when an allowance's limit or period changes.
type OnAllowanceUpdated interface {
	Plugin
	OnAllowanceUpdated(ctx context.Context, a *allowance.Allowance) error
}

// OnAllowanceRevoked is called when an allowance is revoked.
type OnAllowanceRevoked interface {
	Plugin
	OnAllowanceRevoked(ctx context.Context, a *allowance.Allowance) error
}

// OnSpent is called when an agent successfully spends against an allowance.
type OnSpent interface {
	Plugin
	OnSpent(ctx context.Context, a *allowance.Allowance, recipient types.Principal, amount, remaining types.Money) error
}

// OnPeriodReset is called when an allowance's period rolls over.
type OnPeriodReset interface {
	Plugin
	OnPeriodReset(ctx context.Context, a *allowance.Allowance, carriedOver types.Money) error
}

// OnMultiSigConfigured is called when an agent's multi-sig config is replaced.
type OnMultiSigConfigured interface {
	Plugin
	OnMultiSigConfigured(ctx context.Context, cfg *allowance.MultiSigConfig) error
}

// OnMultiSigApproval is called when a signer approves a transfer hash.
type OnMultiSigApproval interface {
	Plugin
	OnMultiSigApproval(ctx context.Context, agent types.Principal, txHash string, approvals int) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called when a new invoice is created.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceSent is called when a draft invoice is sent.
type OnInvoiceSent interface {
	Plugin
	OnInvoiceSent(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceEscrowed is called when the first payment moves an invoice
// into escrow.
type OnInvoiceEscrowed interface {
	Plugin
	OnInvoiceEscrowed(ctx context.Context, inv *invoice.Invoice) error
}

// OnPartialPayment is called when a payment leaves an invoice partially paid.
type OnPartialPayment interface {
	Plugin
	OnPartialPayment(ctx context.Context, inv *invoice.Invoice, amount, remaining types.Money) error
}

// OnInvoicePaid is called when settlement completes.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice, payout, fee types.Money) error
}

// OnInvoiceCancelled is called when an invoice is cancelled, including by
// a refund dispute resolution.
type OnInvoiceCancelled interface {
	Plugin
	OnInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) error
}

// OnDisputeRaised is called when a party disputes an escrowed invoice.
type OnDisputeRaised interface {
	Plugin
	OnDisputeRaised(ctx context.Context, d *invoice.Dispute) error
}

// OnDisputeResolved is called when a dispute reaches validator majority.
type OnDisputeResolved interface {
	Plugin
	OnDisputeResolved(ctx context.Context, d *invoice.Dispute, refunded bool) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a new subscription is created.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionBilled is called after a successful billing cycle.
type OnSubscriptionBilled interface {
	Plugin
	OnSubscriptionBilled(ctx context.Context, sub *subscription.Subscription, amount types.Money) error
}

// OnBillingFailed is called when a billing attempt fails. expired is true
// when the failure crossed the failure limit and forced expiry.
type OnBillingFailed interface {
	Plugin
	OnBillingFailed(ctx context.Context, sub *subscription.Subscription, expired bool) error
}

// OnSubscriptionPaused is called when a subscription is paused.
type OnSubscriptionPaused interface {
	Plugin
	OnSubscriptionPaused(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionResumed is called when a paused subscription resumes.
type OnSubscriptionResumed interface {
	Plugin
	OnSubscriptionResumed(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionCancelled is called when a subscription is cancelled.
// refund is the prorated amount returned to the subscriber (possibly zero).
type OnSubscriptionCancelled interface {
	Plugin
	OnSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription, refund types.Money) error
}
