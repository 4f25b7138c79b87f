package audithook

// Action constants for audit events.
const (
	// Allowance actions
	ActionAllowanceCreated = "allowance.created"
	ActionAllowanceUpdated = "allowance.updated"
	ActionAllowanceRevoked = "allowance.revoked"
	ActionSpent            = "allowance.spent"
	ActionPeriodReset      = "allowance.period_reset"

	// Multi-sig actions
	ActionMultiSigConfigured = "multisig.configured"
	ActionMultiSigApproval   = "multisig.approval"

	// Invoice actions
	ActionInvoiceCreated   = "invoice.created"
	ActionInvoiceSent      = "invoice.sent"
	ActionInvoiceEscrowed  = "invoice.escrowed"
	ActionPartialPayment   = "invoice.partial_payment"
	ActionInvoicePaid      = "invoice.paid"
	ActionInvoiceCancelled = "invoice.cancelled"

	// Dispute actions
	ActionDisputeRaised   = "dispute.raised"
	ActionDisputeResolved = "dispute.resolved"

	// Subscription actions
	ActionSubscriptionCreated   = "subscription.created"
	ActionSubscriptionBilled    = "subscription.billed"
	ActionBillingFailed         = "subscription.billing_failed"
	ActionSubscriptionPaused    = "subscription.paused"
	ActionSubscriptionResumed   = "subscription.resumed"
	ActionSubscriptionCancelled = "subscription.cancelled"
)

// Resource constants for audit events.
const (
	ResourceAllowance    = "allowance"
	ResourceMultiSig     = "multisig"
	ResourceInvoice      = "invoice"
	ResourceDispute      = "dispute"
	ResourceSubscription = "subscription"
)

// Category constants for audit events.
const (
	CategorySpending     = "spending"
	CategoryGovernance   = "governance"
	CategoryPayment      = "payment"
	CategoryArbitration  = "arbitration"
	CategorySubscription = "subscription"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
