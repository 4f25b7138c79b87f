// Package audithook bridges Settle lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/invoice"
	"github.com/xraph/settle/plugin"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnAllowanceCreated      = (*Extension)(nil)
	_ plugin.OnAllowanceUpdated      = (*Extension)(nil)
	_ plugin.OnAllowanceRevoked      = (*Extension)(nil)
	_ plugin.OnSpent                 = (*Extension)(nil)
	_ plugin.OnPeriodReset           = (*Extension)(nil)
	_ plugin.OnMultiSigConfigured    = (*Extension)(nil)
	_ plugin.OnMultiSigApproval      = (*Extension)(nil)
	_ plugin.OnInvoiceCreated        = (*Extension)(nil)
	_ plugin.OnInvoiceSent           = (*Extension)(nil)
	_ plugin.OnInvoiceEscrowed       = (*Extension)(nil)
	_ plugin.OnPartialPayment        = (*Extension)(nil)
	_ plugin.OnInvoicePaid           = (*Extension)(nil)
	_ plugin.OnInvoiceCancelled      = (*Extension)(nil)
	_ plugin.OnDisputeRaised         = (*Extension)(nil)
	_ plugin.OnDisputeResolved       = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated   = (*Extension)(nil)
	_ plugin.OnSubscriptionBilled    = (*Extension)(nil)
	_ plugin.OnBillingFailed         = (*Extension)(nil)
	_ plugin.OnSubscriptionPaused    = (*Extension)(nil)
	_ plugin.OnSubscriptionResumed   = (*Extension)(nil)
	_ plugin.OnSubscriptionCancelled = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Settle lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Allowance lifecycle hooks
// ──────────────────────────────────────────────────

// OnAllowanceCreated implements plugin.OnAllowanceCreated.
func (e *Extension) OnAllowanceCreated(ctx context.Context, a *allowance.Allowance) error {
	return e.record(ctx, ActionAllowanceCreated, SeverityInfo, OutcomeSuccess,
		ResourceAllowance, a.ID.String(), CategorySpending, nil,
		"owner", a.Owner.String(),
		"agent", a.Agent.String(),
		"limit", a.Limit.String(),
		"period", string(a.Period),
	)
}

// OnAllowanceUpdated implements plugin.OnAllowanceUpdated.
func (e *Extension) OnAllowanceUpdated(ctx context.Context, a *allowance.Allowance) error {
	return e.record(ctx, ActionAllowanceUpdated, SeverityInfo, OutcomeSuccess,
		ResourceAllowance, a.ID.String(), CategorySpending, nil,
		"limit", a.Limit.String(),
		"period", string(a.Period),
	)
}

// OnAllowanceRevoked implements plugin.OnAllowanceRevoked.
func (e *Extension) OnAllowanceRevoked(ctx context.Context, a *allowance.Allowance) error {
	return e.record(ctx, ActionAllowanceRevoked, SeverityWarning, OutcomeSuccess,
		ResourceAllowance, a.ID.String(), CategorySpending, nil,
		"owner", a.Owner.String(),
		"agent", a.Agent.String(),
	)
}

// OnSpent implements plugin.OnSpent.
func (e *Extension) OnSpent(ctx context.Context, a *allowance.Allowance, recipient types.Principal, amount, remaining types.Money) error {
	return e.record(ctx, ActionSpent, SeverityInfo, OutcomeSuccess,
		ResourceAllowance, a.ID.String(), CategorySpending, nil,
		"agent", a.Agent.String(),
		"recipient", recipient.String(),
		"amount", amount.String(),
		"remaining", remaining.String(),
	)
}

// OnPeriodReset implements plugin.OnPeriodReset.
func (e *Extension) OnPeriodReset(ctx context.Context, a *allowance.Allowance, carriedOver types.Money) error {
	return e.record(ctx, ActionPeriodReset, SeverityInfo, OutcomeSuccess,
		ResourceAllowance, a.ID.String(), CategorySpending, nil,
		"carried_over", carriedOver.String(),
	)
}

// ──────────────────────────────────────────────────
// Multi-sig lifecycle hooks
// ──────────────────────────────────────────────────

// OnMultiSigConfigured implements plugin.OnMultiSigConfigured.
func (e *Extension) OnMultiSigConfigured(ctx context.Context, cfg *allowance.MultiSigConfig) error {
	return e.record(ctx, ActionMultiSigConfigured, SeverityWarning, OutcomeSuccess,
		ResourceMultiSig, cfg.Agent.String(), CategoryGovernance, nil,
		"threshold", cfg.Threshold.String(),
		"signers", len(cfg.Signers),
	)
}

// OnMultiSigApproval implements plugin.OnMultiSigApproval.
func (e *Extension) OnMultiSigApproval(ctx context.Context, agent types.Principal, txHash string, approvals int) error {
	return e.record(ctx, ActionMultiSigApproval, SeverityInfo, OutcomeSuccess,
		ResourceMultiSig, agent.String(), CategoryGovernance, nil,
		"tx_hash", txHash,
		"approvals", approvals,
	)
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"issuer", inv.Issuer.String(),
		"recipient", inv.Recipient.String(),
		"amount", inv.Amount.String(),
	)
}

// OnInvoiceSent implements plugin.OnInvoiceSent.
func (e *Extension) OnInvoiceSent(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceSent, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"recipient", inv.Recipient.String(),
	)
}

// OnInvoiceEscrowed implements plugin.OnInvoiceEscrowed.
func (e *Extension) OnInvoiceEscrowed(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceEscrowed, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"escrow", inv.Escrow.String(),
	)
}

// OnPartialPayment implements plugin.OnPartialPayment.
func (e *Extension) OnPartialPayment(ctx context.Context, inv *invoice.Invoice, amount, remaining types.Money) error {
	return e.record(ctx, ActionPartialPayment, SeverityInfo, OutcomePartial,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"amount", amount.String(),
		"remaining", remaining.String(),
	)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice, payout, fee types.Money) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"issuer", inv.Issuer.String(),
		"payout", payout.String(),
		"fee", fee.String(),
	)
}

// OnInvoiceCancelled implements plugin.OnInvoiceCancelled.
func (e *Extension) OnInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCancelled, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"status", string(inv.Status),
	)
}

// ──────────────────────────────────────────────────
// Dispute lifecycle hooks
// ──────────────────────────────────────────────────

// OnDisputeRaised implements plugin.OnDisputeRaised.
func (e *Extension) OnDisputeRaised(ctx context.Context, d *invoice.Dispute) error {
	return e.record(ctx, ActionDisputeRaised, SeverityWarning, OutcomeSuccess,
		ResourceDispute, d.ID.String(), CategoryArbitration, nil,
		"invoice_id", d.InvoiceID.String(),
		"initiator", d.Initiator.String(),
		"validators", len(d.Validators),
	)
}

// OnDisputeResolved implements plugin.OnDisputeResolved.
func (e *Extension) OnDisputeResolved(ctx context.Context, d *invoice.Dispute, refunded bool) error {
	return e.record(ctx, ActionDisputeResolved, SeverityWarning, OutcomeSuccess,
		ResourceDispute, d.ID.String(), CategoryArbitration, nil,
		"invoice_id", d.InvoiceID.String(),
		"refunded", refunded,
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"subscriber", sub.Subscriber.String(),
		"provider", sub.Provider.String(),
		"amount", sub.Amount.String(),
		"interval", string(sub.Interval),
	)
}

// OnSubscriptionBilled implements plugin.OnSubscriptionBilled.
func (e *Extension) OnSubscriptionBilled(ctx context.Context, sub *subscription.Subscription, amount types.Money) error {
	return e.record(ctx, ActionSubscriptionBilled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"amount", amount.String(),
		"total_paid", sub.TotalPaid.String(),
	)
}

// OnBillingFailed implements plugin.OnBillingFailed.
func (e *Extension) OnBillingFailed(ctx context.Context, sub *subscription.Subscription, expired bool) error {
	severity := SeverityWarning
	if expired {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionBillingFailed, severity, OutcomeFailure,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"failures", sub.FailedBillings,
		"expired", expired,
	)
}

// OnSubscriptionPaused implements plugin.OnSubscriptionPaused.
func (e *Extension) OnSubscriptionPaused(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionPaused, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
	)
}

// OnSubscriptionResumed implements plugin.OnSubscriptionResumed.
func (e *Extension) OnSubscriptionResumed(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionResumed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"next_billing", sub.NextBilling,
	)
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (e *Extension) OnSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription, refund types.Money) error {
	return e.record(ctx, ActionSubscriptionCancelled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"refund", refund.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
