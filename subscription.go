package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// BillingStatus is the outcome class of one billing attempt.
type BillingStatus string

const (
	// BillingStatusBilled means the cycle was charged successfully.
	BillingStatusBilled BillingStatus = "billed"
	// BillingStatusNotDue means the next billing time has not arrived.
	BillingStatusNotDue BillingStatus = "not_due"
	// BillingStatusFailed means the charge failed and the failure counter
	// advanced; the subscription stays active for retry on the next cycle.
	BillingStatusFailed BillingStatus = "failed"
	// BillingStatusExpired means the failure forced the subscription to
	// EXPIRED because it reached the failure limit.
	BillingStatusExpired BillingStatus = "expired"
)

// BillingOutcome reports what one billing attempt did. A failed charge is
// a recorded outcome, not an operation error: the attempt itself
// succeeded at attempting and recording.
type BillingOutcome struct {
	Status   BillingStatus `json:"status"`
	Amount   types.Money   `json:"amount,omitempty"`
	Failures int           `json:"failures"`
}

// BatchResult pairs one subscription in a batch with its outcome. Err is
// set for hard failures (unknown id, inactive subscription); soft billing
// failures land in Outcome instead.
type BatchResult struct {
	ID      id.SubscriptionID `json:"id"`
	Outcome *BillingOutcome   `json:"outcome,omitempty"`
	Err     error             `json:"-"`
}

func subscriptionKey(subID id.SubscriptionID) string {
	return "subscription/" + subID.String()
}

// ──────────────────────────────────────────────────
// Subscription Biller
// ──────────────────────────────────────────────────

// Subscribe starts a recurring billing schedule from the caller to
// provider, funded through an active allowance the caller acts as agent
// for. The first cycle is due one interval from now; Subscribe attempts
// it immediately, which no-ops until the interval elapses.
func (e *Engine) Subscribe(ctx context.Context, provider types.Principal, amount types.Money, interval types.Period, allowanceID id.AllowanceID) (*subscription.Subscription, error) {
	subscriber, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if provider.IsZero() {
		return nil, fmt.Errorf("%w: provider principal is required", ErrInvalidInput)
	}
	if provider == subscriber {
		return nil, fmt.Errorf("%w: provider must differ from subscriber", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unknown interval %q", ErrInvalidInput, interval)
	}

	a, err := e.store.GetAllowance(ctx, allowanceID)
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, ErrAllowanceNotActive
	}
	if a.Agent != subscriber {
		return nil, ErrNotAgent
	}
	if !amount.SameCurrency(a.Limit) {
		return nil, fmt.Errorf("%w: amount currency %q does not match allowance currency %q",
			ErrInvalidInput, amount.Currency, a.Limit.Currency)
	}

	now := e.now()
	sub := &subscription.Subscription{
		Entity:      types.NewEntityAt(now),
		ID:          id.NewSubscriptionID(),
		Subscriber:  subscriber,
		Provider:    provider,
		Amount:      amount,
		Interval:    interval,
		Status:      subscription.StatusActive,
		AllowanceID: allowanceID,
		NextBilling: now.Add(interval.Duration()),
		TotalPaid:   types.Zero(amount.Currency),
	}

	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindSubscriptionCreated, subscriber, sub.ID, map[string]any{
		"provider":     sub.Provider,
		"amount":       sub.Amount,
		"interval":     sub.Interval,
		"allowance_id": sub.AllowanceID,
	}); err != nil {
		return nil, err
	}
	e.plugins.EmitSubscriptionCreated(ctx, sub)

	if _, err := e.ProcessBilling(ctx, sub.ID); err != nil {
		return nil, err
	}

	return e.store.GetSubscription(ctx, sub.ID)
}

// ProcessBilling attempts one billing cycle. Not-yet-due returns silently.
// A failed charge is recorded on the subscription and reported in the
// outcome, not returned as an error; reaching the failure limit expires
// the subscription.
func (e *Engine) ProcessBilling(ctx context.Context, subID id.SubscriptionID) (*BillingOutcome, error) {
	ctx, release, err := e.locks.acquire(ctx, subscriptionKey(subID))
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscription.StatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrSubscriptionNotActive, sub.Status)
	}

	now := e.now()
	if !sub.Due(now) {
		return &BillingOutcome{Status: BillingStatusNotDue, Failures: sub.FailedBillings}, nil
	}

	// Unreachable while failures auto-expire, kept as a backstop.
	if sub.FailedBillings >= subscription.MaxFailedBillings {
		return nil, ErrTooManyFailures
	}

	remaining, err := e.RemainingAllowance(ctx, sub.AllowanceID)
	if err != nil {
		return e.recordBillingFailure(ctx, sub, now)
	}
	if remaining.LessThan(sub.Amount) {
		return e.recordBillingFailure(ctx, sub, now)
	}

	// The charge runs as the subscriber, who is the allowance's agent.
	if _, err := e.Spend(WithCaller(ctx, sub.Subscriber), sub.AllowanceID, sub.Provider, sub.Amount); err != nil {
		return e.recordBillingFailure(ctx, sub, now)
	}

	staged := sub.Clone()
	staged.FailedBillings = 0
	staged.LastBilled = &now
	staged.NextBilling = staged.NextBilling.Add(staged.Interval.Duration())
	staged.TotalPaid = staged.TotalPaid.Add(staged.Amount)
	staged.Touch(now)

	if err := e.store.UpdateSubscription(ctx, staged); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindSubscriptionBilled, staged.Subscriber, staged.ID, map[string]any{
		"amount":     staged.Amount,
		"total_paid": staged.TotalPaid,
	}); err != nil {
		return nil, err
	}
	e.plugins.EmitSubscriptionBilled(ctx, staged, staged.Amount)

	return &BillingOutcome{Status: BillingStatusBilled, Amount: staged.Amount}, nil
}

// recordBillingFailure advances the failure counter and expires the
// subscription once the counter reaches the limit.
func (e *Engine) recordBillingFailure(ctx context.Context, sub *subscription.Subscription, now time.Time) (*BillingOutcome, error) {
	staged := sub.Clone()
	staged.FailedBillings++
	expired := staged.FailedBillings >= subscription.MaxFailedBillings
	if expired {
		staged.Status = subscription.StatusExpired
	}
	staged.Touch(now)

	if err := e.store.UpdateSubscription(ctx, staged); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindBillingFailed, staged.Subscriber, staged.ID, map[string]any{
		"failures": staged.FailedBillings,
		"expired":  expired,
	}); err != nil {
		return nil, err
	}
	e.plugins.EmitBillingFailed(ctx, staged, expired)

	status := BillingStatusFailed
	if expired {
		status = BillingStatusExpired
	}
	return &BillingOutcome{Status: status, Failures: staged.FailedBillings}, nil
}

// BatchBilling attempts billing for each id in turn. Each attempt is its
// own atomic unit; one subscription's failure never aborts the rest, and
// hard per-id errors are reported in the result, not returned.
func (e *Engine) BatchBilling(ctx context.Context, subIDs []id.SubscriptionID) []BatchResult {
	results := make([]BatchResult, 0, len(subIDs))
	for _, subID := range subIDs {
		outcome, err := e.ProcessBilling(ctx, subID)
		if err != nil {
			e.logger.Warn("billing attempt failed",
				"subscription_id", subID,
				"error", err,
			)
			results = append(results, BatchResult{ID: subID, Err: err})
			continue
		}
		results = append(results, BatchResult{ID: subID, Outcome: outcome})
	}
	return results
}

// PauseSubscription pauses billing. Subscriber only.
func (e *Engine) PauseSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	ctx, release, err := e.locks.acquire(ctx, subscriptionKey(subID))
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Subscriber != caller {
		return nil, ErrNotSubscriber
	}
	if sub.Status != subscription.StatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrSubscriptionNotActive, sub.Status)
	}

	staged := sub.Clone()
	staged.Status = subscription.StatusPaused
	staged.Touch(e.now())

	if err := e.store.UpdateSubscription(ctx, staged); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindSubscriptionPaused, caller, staged.ID, nil); err != nil {
		return nil, err
	}
	e.plugins.EmitSubscriptionPaused(ctx, staged)

	return staged, nil
}

// ResumeSubscription reactivates a paused subscription. The next cycle is
// due one full interval from now; paused time is not credited back.
func (e *Engine) ResumeSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	ctx, release, err := e.locks.acquire(ctx, subscriptionKey(subID))
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Subscriber != caller {
		return nil, ErrNotSubscriber
	}
	if sub.Status != subscription.StatusPaused {
		return nil, fmt.Errorf("%w: status is %s", ErrSubscriptionNotPaused, sub.Status)
	}

	now := e.now()
	staged := sub.Clone()
	staged.Status = subscription.StatusActive
	staged.NextBilling = now.Add(staged.Interval.Duration())
	staged.Touch(now)

	if err := e.store.UpdateSubscription(ctx, staged); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindSubscriptionResumed, caller, staged.ID, nil); err != nil {
		return nil, err
	}
	e.plugins.EmitSubscriptionResumed(ctx, staged)

	return staged, nil
}

// CancelSubscription ends an active or paused subscription. A cycle that
// was billed and is still partially unused earns a prorated refund from
// the provider, proportional to the time left in the interval.
func (e *Engine) CancelSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	ctx, release, err := e.locks.acquire(ctx, subscriptionKey(subID))
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Subscriber != caller {
		return nil, ErrNotSubscriber
	}
	if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusPaused {
		return nil, fmt.Errorf("%w: status is %s", ErrSubscriptionClosed, sub.Status)
	}

	now := e.now()
	refund := types.Zero(sub.Amount.Currency)
	if sub.LastBilled != nil {
		interval := sub.Interval.Duration()
		elapsed := now.Sub(*sub.LastBilled)
		if elapsed < interval {
			unusedSec := int64((interval - elapsed).Seconds())
			refund = sub.Amount.MulDiv(unusedSec, int64(interval.Seconds()))
		}
	}

	staged := sub.Clone()
	staged.Status = subscription.StatusCancelled
	staged.CancelledAt = &now
	staged.Touch(now)

	if refund.IsPositive() {
		if err := e.treasury.Transfer(ctx, staged.Provider, staged.Subscriber, refund); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	if err := e.store.UpdateSubscription(ctx, staged); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindSubscriptionCancelled, caller, staged.ID, map[string]any{
		"refund": refund,
	}); err != nil {
		return nil, err
	}
	e.plugins.EmitSubscriptionCancelled(ctx, staged, refund)

	return staged, nil
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// ListSubscriptions returns subscriptions matching the filter.
func (e *Engine) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return e.store.ListSubscriptions(ctx, opts)
}
