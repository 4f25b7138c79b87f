// Package observability provides a metrics plugin for Settle that records
// lifecycle event counts via a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/invoice"
	"github.com/xraph/settle/plugin"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnAllowanceCreated      = (*MetricsExtension)(nil)
	_ plugin.OnAllowanceRevoked      = (*MetricsExtension)(nil)
	_ plugin.OnSpent                 = (*MetricsExtension)(nil)
	_ plugin.OnPeriodReset           = (*MetricsExtension)(nil)
	_ plugin.OnMultiSigApproval      = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated        = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceEscrowed       = (*MetricsExtension)(nil)
	_ plugin.OnPartialPayment        = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid           = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCancelled      = (*MetricsExtension)(nil)
	_ plugin.OnDisputeRaised         = (*MetricsExtension)(nil)
	_ plugin.OnDisputeResolved       = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated   = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionBilled    = (*MetricsExtension)(nil)
	_ plugin.OnBillingFailed         = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCancelled = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Settle plugin to automatically track settlement metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Allowance metrics
	AllowanceCreated Counter
	AllowanceRevoked Counter
	SpendVolume      Histogram
	Spends           Counter
	PeriodResets     Counter
	MultiSigApproved Counter

	// Invoice metrics
	InvoiceCreated   Counter
	InvoiceEscrowed  Counter
	PartialPayments  Counter
	InvoicePaid      Counter
	InvoiceCancelled Counter
	SettlementPayout Histogram
	SettlementFee    Histogram
	DisputesRaised   Counter
	DisputesResolved Counter
	DisputesRefunded Counter

	// Subscription metrics
	SubscriptionCreated   Counter
	SubscriptionBilled    Counter
	BillingFailed         Counter
	SubscriptionExpired   Counter
	SubscriptionCancelled Counter
	RefundVolume          Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Allowance metrics
		AllowanceCreated: factory.Counter("settle.allowance.created"),
		AllowanceRevoked: factory.Counter("settle.allowance.revoked"),
		SpendVolume:      factory.Histogram("settle.allowance.spend_amount"),
		Spends:           factory.Counter("settle.allowance.spends"),
		PeriodResets:     factory.Counter("settle.allowance.period_resets"),
		MultiSigApproved: factory.Counter("settle.multisig.approvals"),

		// Invoice metrics
		InvoiceCreated:   factory.Counter("settle.invoice.created"),
		InvoiceEscrowed:  factory.Counter("settle.invoice.escrowed"),
		PartialPayments:  factory.Counter("settle.invoice.partial_payments"),
		InvoicePaid:      factory.Counter("settle.invoice.paid"),
		InvoiceCancelled: factory.Counter("settle.invoice.cancelled"),
		SettlementPayout: factory.Histogram("settle.invoice.payout_amount"),
		SettlementFee:    factory.Histogram("settle.invoice.fee_amount"),
		DisputesRaised:   factory.Counter("settle.dispute.raised"),
		DisputesResolved: factory.Counter("settle.dispute.resolved"),
		DisputesRefunded: factory.Counter("settle.dispute.refunded"),

		// Subscription metrics
		SubscriptionCreated:   factory.Counter("settle.subscription.created"),
		SubscriptionBilled:    factory.Counter("settle.subscription.billed"),
		BillingFailed:         factory.Counter("settle.subscription.billing_failures"),
		SubscriptionExpired:   factory.Counter("settle.subscription.expired"),
		SubscriptionCancelled: factory.Counter("settle.subscription.cancelled"),
		RefundVolume:          factory.Histogram("settle.subscription.refund_amount"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Allowance lifecycle hooks
// ──────────────────────────────────────────────────

// OnAllowanceCreated implements plugin.OnAllowanceCreated.
func (m *MetricsExtension) OnAllowanceCreated(_ context.Context, _ *allowance.Allowance) error {
	m.AllowanceCreated.Inc()
	return nil
}

// OnAllowanceRevoked implements plugin.OnAllowanceRevoked.
func (m *MetricsExtension) OnAllowanceRevoked(_ context.Context, _ *allowance.Allowance) error {
	m.AllowanceRevoked.Inc()
	return nil
}

// OnSpent implements plugin.OnSpent.
func (m *MetricsExtension) OnSpent(_ context.Context, _ *allowance.Allowance, _ types.Principal, amount, _ types.Money) error {
	m.Spends.Inc()
	m.SpendVolume.Observe(float64(amount.Amount))
	return nil
}

// OnPeriodReset implements plugin.OnPeriodReset.
func (m *MetricsExtension) OnPeriodReset(_ context.Context, _ *allowance.Allowance, _ types.Money) error {
	m.PeriodResets.Inc()
	return nil
}

// OnMultiSigApproval implements plugin.OnMultiSigApproval.
func (m *MetricsExtension) OnMultiSigApproval(_ context.Context, _ types.Principal, _ string, _ int) error {
	m.MultiSigApproved.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceCreated.Inc()
	return nil
}

// OnInvoiceEscrowed implements plugin.OnInvoiceEscrowed.
func (m *MetricsExtension) OnInvoiceEscrowed(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceEscrowed.Inc()
	return nil
}

// OnPartialPayment implements plugin.OnPartialPayment.
func (m *MetricsExtension) OnPartialPayment(_ context.Context, _ *invoice.Invoice, _, _ types.Money) error {
	m.PartialPayments.Inc()
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice, payout, fee types.Money) error {
	m.InvoicePaid.Inc()
	m.SettlementPayout.Observe(float64(payout.Amount))
	m.SettlementFee.Observe(float64(fee.Amount))
	return nil
}

// OnInvoiceCancelled implements plugin.OnInvoiceCancelled.
func (m *MetricsExtension) OnInvoiceCancelled(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceCancelled.Inc()
	return nil
}

// OnDisputeRaised implements plugin.OnDisputeRaised.
func (m *MetricsExtension) OnDisputeRaised(_ context.Context, _ *invoice.Dispute) error {
	m.DisputesRaised.Inc()
	return nil
}

// OnDisputeResolved implements plugin.OnDisputeResolved.
func (m *MetricsExtension) OnDisputeResolved(_ context.Context, _ *invoice.Dispute, refunded bool) error {
	m.DisputesResolved.Inc()
	if refunded {
		m.DisputesRefunded.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionBilled implements plugin.OnSubscriptionBilled.
func (m *MetricsExtension) OnSubscriptionBilled(_ context.Context, _ *subscription.Subscription, _ types.Money) error {
	m.SubscriptionBilled.Inc()
	return nil
}

// OnBillingFailed implements plugin.OnBillingFailed.
func (m *MetricsExtension) OnBillingFailed(_ context.Context, _ *subscription.Subscription, expired bool) error {
	m.BillingFailed.Inc()
	if expired {
		m.SubscriptionExpired.Inc()
	}
	return nil
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (m *MetricsExtension) OnSubscriptionCancelled(_ context.Context, _ *subscription.Subscription, refund types.Money) error {
	m.SubscriptionCancelled.Inc()
	if refund.IsPositive() {
		m.RefundVolume.Observe(float64(refund.Amount))
	}
	return nil
}
