package settle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/settle"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// fundedAllowance grants bot an allowance owned by alice and mints the
// backing treasury balance.
func fundedAllowance(t *testing.T, h *harness, limit types.Money) id.AllowanceID {
	t.Helper()
	h.treasury.Mint(alice, limit)
	a, err := h.engine.CreateAllowance(as(alice), bot, limit, types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}
	return a.ID
}

func TestSubscribeValidation(t *testing.T) {
	h := newHarness(t)
	allowanceID := fundedAllowance(t, h, types.USD(100000))

	if _, err := h.engine.Subscribe(as(bot), types.NoPrincipal, types.USD(3000), types.PeriodDaily, allowanceID); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("zero provider: got %v, want ErrInvalidInput", err)
	}
	if _, err := h.engine.Subscribe(as(bot), bot, types.USD(3000), types.PeriodDaily, allowanceID); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("self subscription: got %v, want ErrInvalidInput", err)
	}
	if _, err := h.engine.Subscribe(as(bot), carol, types.USD(-1), types.PeriodDaily, allowanceID); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("negative amount: got %v, want ErrInvalidInput", err)
	}
	if _, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.Period("hourly"), allowanceID); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("unknown interval: got %v, want ErrInvalidInput", err)
	}
	if _, err := h.engine.Subscribe(as(bot), carol, types.EUR(3000), types.PeriodDaily, allowanceID); !errors.Is(err, settle.ErrInvalidInput) {
		t.Errorf("currency mismatch: got %v, want ErrInvalidInput", err)
	}

	// The subscriber must be the allowance's agent.
	if _, err := h.engine.Subscribe(as(carol), bob, types.USD(3000), types.PeriodDaily, allowanceID); !errors.Is(err, settle.ErrNotAgent) {
		t.Errorf("non-agent subscriber: got %v, want ErrNotAgent", err)
	}

	if err := h.engine.RevokeAllowance(as(alice), allowanceID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, allowanceID); !errors.Is(err, settle.ErrAllowanceNotActive) {
		t.Errorf("revoked allowance: got %v, want ErrAllowanceNotActive", err)
	}
}

func TestSubscribeSchedulesFirstCycle(t *testing.T) {
	h := newHarness(t)
	allowanceID := fundedAllowance(t, h, types.USD(100000))
	start := h.clock.Now()

	sub, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, allowanceID)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != subscription.StatusActive {
		t.Errorf("status = %s, want active", sub.Status)
	}
	if want := start.Add(24 * time.Hour); !sub.NextBilling.Equal(want) {
		t.Errorf("NextBilling = %v, want %v", sub.NextBilling, want)
	}
	// Nothing is charged at creation.
	if !sub.TotalPaid.IsZero() || sub.LastBilled != nil {
		t.Errorf("TotalPaid/LastBilled = %s/%v at creation", sub.TotalPaid, sub.LastBilled)
	}
	if bal := h.treasury.Balance(carol, "usd"); !bal.IsZero() {
		t.Errorf("provider balance = %s at creation, want zero", bal)
	}

	// Billing before the due time is a silent no-op.
	outcome, err := h.engine.ProcessBilling(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != settle.BillingStatusNotDue {
		t.Errorf("outcome = %s before due, want not_due", outcome.Status)
	}
}

func TestProcessBilling(t *testing.T) {
	h := newHarness(t)
	allowanceID := fundedAllowance(t, h, types.USD(100000))

	sub, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, allowanceID)
	if err != nil {
		t.Fatal(err)
	}
	firstDue := sub.NextBilling

	h.clock.Advance(25 * time.Hour)
	outcome, err := h.engine.ProcessBilling(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != settle.BillingStatusBilled || !outcome.Amount.Equal(types.USD(3000)) {
		t.Fatalf("outcome = %s/%s, want billed/$30.00", outcome.Status, outcome.Amount)
	}

	got, err := h.engine.GetSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.TotalPaid.Equal(types.USD(3000)) {
		t.Errorf("TotalPaid = %s, want $30.00", got.TotalPaid)
	}
	if got.LastBilled == nil || !got.LastBilled.Equal(h.clock.Now()) {
		t.Errorf("LastBilled = %v, want %v", got.LastBilled, h.clock.Now())
	}
	// The schedule advances from the old due time, not from the billing
	// instant, so a late sweep does not drift the cycle.
	if want := firstDue.Add(24 * time.Hour); !got.NextBilling.Equal(want) {
		t.Errorf("NextBilling = %v, want %v", got.NextBilling, want)
	}

	// The charge draws down the funding allowance and pays the provider.
	if bal := h.treasury.Balance(carol, "usd"); !bal.Equal(types.USD(3000)) {
		t.Errorf("provider balance = %s, want $30.00", bal)
	}
	remaining, err := h.engine.RemainingAllowance(context.Background(), allowanceID)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.Equal(types.USD(97000)) {
		t.Errorf("allowance remaining = %s, want $970.00", remaining)
	}
}

func TestBillingFailureRetry(t *testing.T) {
	h := newHarness(t)
	// Allowance exists but alice holds no treasury balance, so the
	// charge's transfer fails.
	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(100000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(25 * time.Hour)

	outcome, err := h.engine.ProcessBilling(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != settle.BillingStatusFailed || outcome.Failures != 1 {
		t.Fatalf("outcome = %s/%d, want failed/1", outcome.Status, outcome.Failures)
	}

	// The failure leaves the schedule due, so funding the owner lets the
	// next attempt succeed and clear the counter.
	h.treasury.Mint(alice, types.USD(3000))
	outcome, err = h.engine.ProcessBilling(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != settle.BillingStatusBilled {
		t.Fatalf("outcome after funding = %s, want billed", outcome.Status)
	}
	got, err := h.engine.GetSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailedBillings != 0 {
		t.Errorf("FailedBillings = %d after success, want 0", got.FailedBillings)
	}
}

func TestBillingFailuresExpireSubscription(t *testing.T) {
	h := newHarness(t)
	// The allowance is smaller than the subscription amount, so every
	// attempt fails on the remaining-limit check.
	allowanceID := fundedAllowance(t, h, types.USD(1000))

	sub, err := h.engine.Subscribe(as(bot), carol, types.USD(99900), types.PeriodDaily, allowanceID)
	if err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(25 * time.Hour)

	for want := 1; want <= subscription.MaxFailedBillings; want++ {
		outcome, err := h.engine.ProcessBilling(context.Background(), sub.ID)
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Failures != want {
			t.Fatalf("attempt %d: failures = %d", want, outcome.Failures)
		}
		wantStatus := settle.BillingStatusFailed
		if want == subscription.MaxFailedBillings {
			wantStatus = settle.BillingStatusExpired
		}
		if outcome.Status != wantStatus {
			t.Fatalf("attempt %d: status = %s, want %s", want, outcome.Status, wantStatus)
		}
	}

	got, err := h.engine.GetSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != subscription.StatusExpired {
		t.Errorf("status = %s after %d failures, want expired", got.Status, subscription.MaxFailedBillings)
	}
	if _, err := h.engine.ProcessBilling(context.Background(), sub.ID); !errors.Is(err, settle.ErrSubscriptionNotActive) {
		t.Errorf("billing expired subscription: got %v, want ErrSubscriptionNotActive", err)
	}
}

func TestBatchBillingIsolation(t *testing.T) {
	h := newHarness(t)
	funded := fundedAllowance(t, h, types.USD(100000))

	// A second allowance with no treasury backing: its charges fail.
	broke, err := h.engine.CreateAllowance(as(bob), bot, types.USD(100000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}

	s1, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, funded)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, broke.ID)
	if err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(25 * time.Hour)

	results := h.engine.BatchBilling(context.Background(), []id.SubscriptionID{s1.ID, s2.ID, id.NewSubscriptionID()})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	if results[0].Err != nil || results[0].Outcome.Status != settle.BillingStatusBilled {
		t.Errorf("funded sub: %+v", results[0])
	}
	// A failed charge is an outcome, not an error, and does not stop the
	// rest of the batch.
	if results[1].Err != nil || results[1].Outcome.Status != settle.BillingStatusFailed {
		t.Errorf("unfunded sub: %+v", results[1])
	}
	if results[2].Err == nil || !settle.IsNotFound(results[2].Err) {
		t.Errorf("unknown sub: %+v", results[2])
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	allowanceID := fundedAllowance(t, h, types.USD(100000))

	sub, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, allowanceID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.PauseSubscription(as(carol), sub.ID); !errors.Is(err, settle.ErrNotSubscriber) {
		t.Errorf("pause by provider: got %v, want ErrNotSubscriber", err)
	}
	if _, err := h.engine.ResumeSubscription(as(bot), sub.ID); !errors.Is(err, settle.ErrSubscriptionNotPaused) {
		t.Errorf("resume active: got %v, want ErrSubscriptionNotPaused", err)
	}

	paused, err := h.engine.PauseSubscription(as(bot), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if paused.Status != subscription.StatusPaused {
		t.Errorf("status = %s, want paused", paused.Status)
	}
	if _, err := h.engine.PauseSubscription(as(bot), sub.ID); !errors.Is(err, settle.ErrSubscriptionNotActive) {
		t.Errorf("double pause: got %v, want ErrSubscriptionNotActive", err)
	}

	// A paused subscription never bills, even past its due time.
	h.clock.Advance(48 * time.Hour)
	if _, err := h.engine.ProcessBilling(context.Background(), sub.ID); !errors.Is(err, settle.ErrSubscriptionNotActive) {
		t.Errorf("bill paused: got %v, want ErrSubscriptionNotActive", err)
	}

	// Resume restarts the cycle a full interval out; paused time is not
	// credited back.
	resumed, err := h.engine.ResumeSubscription(as(bot), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if want := h.clock.Now().Add(24 * time.Hour); !resumed.NextBilling.Equal(want) {
		t.Errorf("NextBilling = %v after resume, want %v", resumed.NextBilling, want)
	}
}

func TestCancelSubscriptionProration(t *testing.T) {
	h := newHarness(t)
	allowanceID := fundedAllowance(t, h, types.USD(100000))

	sub, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, allowanceID)
	if err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(24 * time.Hour)
	if _, err := h.engine.ProcessBilling(context.Background(), sub.ID); err != nil {
		t.Fatal(err)
	}

	// Half the billed day is unused: half the amount comes back from the
	// provider.
	h.clock.Advance(12 * time.Hour)
	cancelled, err := h.engine.CancelSubscription(as(bot), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != subscription.StatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("cancelled = %s/%v", cancelled.Status, cancelled.CancelledAt)
	}
	if bal := h.treasury.Balance(carol, "usd"); !bal.Equal(types.USD(1500)) {
		t.Errorf("provider balance = %s after proration, want $15.00", bal)
	}
	// The refund goes to the subscriber, not the allowance owner.
	if bal := h.treasury.Balance(bot, "usd"); !bal.Equal(types.USD(1500)) {
		t.Errorf("subscriber balance = %s after proration, want $15.00", bal)
	}

	if _, err := h.engine.CancelSubscription(as(bot), sub.ID); !errors.Is(err, settle.ErrSubscriptionClosed) {
		t.Errorf("double cancel: got %v, want ErrSubscriptionClosed", err)
	}
}

func TestCancelSubscriptionNoRefund(t *testing.T) {
	h := newHarness(t)
	allowanceID := fundedAllowance(t, h, types.USD(100000))

	t.Run("NeverBilled", func(t *testing.T) {
		sub, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, allowanceID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := h.engine.CancelSubscription(as(bot), sub.ID); err != nil {
			t.Fatal(err)
		}
		if bal := h.treasury.Balance(carol, "usd"); !bal.IsZero() {
			t.Errorf("provider balance = %s, want zero", bal)
		}
	})

	t.Run("CycleFullyUsed", func(t *testing.T) {
		sub, err := h.engine.Subscribe(as(bot), carol, types.USD(3000), types.PeriodDaily, allowanceID)
		if err != nil {
			t.Fatal(err)
		}
		h.clock.Advance(24 * time.Hour)
		if _, err := h.engine.ProcessBilling(context.Background(), sub.ID); err != nil {
			t.Fatal(err)
		}
		h.clock.Advance(24 * time.Hour)
		if _, err := h.engine.CancelSubscription(as(bot), sub.ID); err != nil {
			t.Fatal(err)
		}
		if bal := h.treasury.Balance(carol, "usd"); !bal.Equal(types.USD(3000)) {
			t.Errorf("provider balance = %s, want $30.00 with no refund", bal)
		}
	})
}
