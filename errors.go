package settle

import (
	"errors"
)

// Sentinel errors for common failure scenarios. Each maps to one category
// of the engine's failure taxonomy: validation, authorization, state,
// capacity, or external. All hard failures abort the whole operation with
// no partial effect.
var (
	// General errors
	ErrNotFound      = errors.New("settle: not found")
	ErrAlreadyExists = errors.New("settle: already exists")
	ErrInvalidInput  = errors.New("settle: invalid input")
	ErrMissingCaller = errors.New("settle: no caller principal in context")
	ErrReentrantCall = errors.New("settle: reentrant call rejected")

	// Allowance errors
	ErrAllowanceNotFound     = errors.New("settle: allowance not found")
	ErrAllowanceNotActive    = errors.New("settle: allowance is not active")
	ErrNotOwner              = errors.New("settle: caller is not the allowance owner")
	ErrNotAgent              = errors.New("settle: caller is not the allowance agent")
	ErrInsufficientAllowance = errors.New("settle: amount exceeds remaining allowance")
	ErrMultiSigRequired      = errors.New("settle: transfer requires multi-sig approval")
	ErrMultiSigNotConfigured = errors.New("settle: no multi-sig config for agent")
	ErrNotSigner             = errors.New("settle: caller is not a configured signer")
	ErrAlreadyApproved       = errors.New("settle: transaction already approved")

	// Invoice errors
	ErrInvoiceNotFound          = errors.New("settle: invoice not found")
	ErrInvoiceNotDraft          = errors.New("settle: invoice is not a draft")
	ErrInvoiceNotPayable        = errors.New("settle: invoice is not payable")
	ErrInvoiceNotCancellable    = errors.New("settle: invoice can no longer be cancelled")
	ErrInvoiceNotEscrowed       = errors.New("settle: invoice has no escrowed funds")
	ErrInvoiceOverpaid          = errors.New("settle: payment exceeds remaining amount")
	ErrPartialPaymentNotAllowed = errors.New("settle: invoice does not allow partial payments")
	ErrNotInvoiceParty          = errors.New("settle: caller is neither issuer nor recipient")
	ErrNotIssuer                = errors.New("settle: caller is not the invoice issuer")
	ErrNotRecipient             = errors.New("settle: caller is not the invoice recipient")
	ErrNoValidators             = errors.New("settle: dispute requires at least one validator")
	ErrDisputeNotFound          = errors.New("settle: dispute not found")
	ErrNotValidator             = errors.New("settle: caller is not a dispute validator")
	ErrAlreadyResolved          = errors.New("settle: dispute already resolved")

	// Subscription errors
	ErrSubscriptionNotFound  = errors.New("settle: subscription not found")
	ErrSubscriptionNotActive = errors.New("settle: subscription is not active")
	ErrSubscriptionNotPaused = errors.New("settle: subscription is not paused")
	ErrSubscriptionClosed    = errors.New("settle: subscription is cancelled or expired")
	ErrNotSubscriber         = errors.New("settle: caller is not the subscriber")
	ErrTooManyFailures       = errors.New("settle: too many failed billings")

	// External errors
	ErrTransferFailed = errors.New("settle: asset transfer failed")

	// Store errors
	ErrStoreClosed     = errors.New("settle: store is closed")
	ErrMigrationFailed = errors.New("settle: migration failed")
)

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAllowanceNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrDisputeNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrMultiSigNotConfigured)
}

// IsValidation returns true for malformed or zero-value input errors,
// rejected before any state is touched.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMissingCaller) ||
		errors.Is(err, ErrNoValidators)
}

// IsAuthorization returns true when the caller is not the required
// principal for the operation.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrNotAgent) ||
		errors.Is(err, ErrNotSigner) ||
		errors.Is(err, ErrNotInvoiceParty) ||
		errors.Is(err, ErrNotIssuer) ||
		errors.Is(err, ErrNotRecipient) ||
		errors.Is(err, ErrNotValidator) ||
		errors.Is(err, ErrNotSubscriber)
}

// IsState returns true when the operation is invalid for the entity's
// current lifecycle state.
func IsState(err error) bool {
	return errors.Is(err, ErrAllowanceNotActive) ||
		errors.Is(err, ErrInvoiceNotDraft) ||
		errors.Is(err, ErrInvoiceNotPayable) ||
		errors.Is(err, ErrInvoiceNotCancellable) ||
		errors.Is(err, ErrInvoiceNotEscrowed) ||
		errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrAlreadyApproved) ||
		errors.Is(err, ErrSubscriptionNotActive) ||
		errors.Is(err, ErrSubscriptionNotPaused) ||
		errors.Is(err, ErrSubscriptionClosed) ||
		errors.Is(err, ErrReentrantCall)
}

// IsCapacity returns true for limit-related failures: insufficient
// allowance, overpayment, or an unmet multi-sig threshold.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrInsufficientAllowance) ||
		errors.Is(err, ErrInvoiceOverpaid) ||
		errors.Is(err, ErrPartialPaymentNotAllowed) ||
		errors.Is(err, ErrMultiSigRequired) ||
		errors.Is(err, ErrTooManyFailures)
}

// IsExternal returns true when the underlying asset transfer failed.
func IsExternal(err error) bool {
	return errors.Is(err, ErrTransferFailed)
}
