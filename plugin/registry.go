package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/invoice"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onAllowanceCreated      []OnAllowanceCreated
	onAllowanceUpdated      []OnAllowanceUpdated
	onAllowanceRevoked      []OnAllowanceRevoked
	onSpent                 []OnSpent
	onPeriodReset           []OnPeriodReset
	onMultiSigConfigured    []OnMultiSigConfigured
	onMultiSigApproval      []OnMultiSigApproval
	onInvoiceCreated        []OnInvoiceCreated
	onInvoiceSent           []OnInvoiceSent
	onInvoiceEscrowed       []OnInvoiceEscrowed
	onPartialPayment        []OnPartialPayment
	onInvoicePaid           []OnInvoicePaid
	onInvoiceCancelled      []OnInvoiceCancelled
	onDisputeRaised         []OnDisputeRaised
	onDisputeResolved       []OnDisputeResolved
	onSubscriptionCreated   []OnSubscriptionCreated
	onSubscriptionBilled    []OnSubscriptionBilled
	onBillingFailed         []OnBillingFailed
	onSubscriptionPaused    []OnSubscriptionPaused
	onSubscriptionResumed   []OnSubscriptionResumed
	onSubscriptionCancelled []OnSubscriptionCancelled
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAllowanceCreated); ok {
		r.onAllowanceCreated = append(r.onAllowanceCreated, v)
	}
	if v, ok := p.(OnAllowanceUpdated); ok {
		r.onAllowanceUpdated = append(r.onAllowanceUpdated, v)
	}
	if v, ok := p.(OnAllowanceRevoked); ok {
		r.onAllowanceRevoked = append(r.onAllowanceRevoked, v)
	}
	if v, ok := p.(OnSpent); ok {
		r.onSpent = append(r.onSpent, v)
	}
	if v, ok := p.(OnPeriodReset); ok {
		r.onPeriodReset = append(r.onPeriodReset, v)
	}
	if v, ok := p.(OnMultiSigConfigured); ok {
		r.onMultiSigConfigured = append(r.onMultiSigConfigured, v)
	}
	if v, ok := p.(OnMultiSigApproval); ok {
		r.onMultiSigApproval = append(r.onMultiSigApproval, v)
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
	}
	if v, ok := p.(OnInvoiceSent); ok {
		r.onInvoiceSent = append(r.onInvoiceSent, v)
	}
	if v, ok := p.(OnInvoiceEscrowed); ok {
		r.onInvoiceEscrowed = append(r.onInvoiceEscrowed, v)
	}
	if v, ok := p.(OnPartialPayment); ok {
		r.onPartialPayment = append(r.onPartialPayment, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnInvoiceCancelled); ok {
		r.onInvoiceCancelled = append(r.onInvoiceCancelled, v)
	}
	if v, ok := p.(OnDisputeRaised); ok {
		r.onDisputeRaised = append(r.onDisputeRaised, v)
	}
	if v, ok := p.(OnDisputeResolved); ok {
		r.onDisputeResolved = append(r.onDisputeResolved, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionBilled); ok {
		r.onSubscriptionBilled = append(r.onSubscriptionBilled, v)
	}
	if v, ok := p.(OnBillingFailed); ok {
		r.onBillingFailed = append(r.onBillingFailed, v)
	}
	if v, ok := p.(OnSubscriptionPaused); ok {
		r.onSubscriptionPaused = append(r.onSubscriptionPaused, v)
	}
	if v, ok := p.(OnSubscriptionResumed); ok {
		r.onSubscriptionResumed = append(r.onSubscriptionResumed, v)
	}
	if v, ok := p.(OnSubscriptionCancelled); ok {
		r.onSubscriptionCancelled = append(r.onSubscriptionCancelled, v)
	}

	r.logger.Info("plugin registered", "name", p.Name())

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitAllowanceCreated emits an allowance created event.
func (r *Registry) EmitAllowanceCreated(ctx context.Context, a *allowance.Allowance) {
	r.mu.RLock()
	plugins := r.onAllowanceCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnAllowanceCreated", func() error {
			return p.OnAllowanceCreated(ctx, a)
		})
	}
}

// EmitAllowanceUpdated emits an allowance updated event.
func (r *Registry) EmitAllowanceUpdated(ctx context.Context, a *allowance.Allowance) {
	r.mu.RLock()
	plugins := r.onAllowanceUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnAllowanceUpdated", func() error {
			return p.OnAllowanceUpdated(ctx, a)
		})
	}
}

// EmitAllowanceRevoked emits an allowance revoked event.
func (r *Registry) EmitAllowanceRevoked(ctx context.Context, a *allowance.Allowance) {
	r.mu.RLock()
	plugins := r.onAllowanceRevoked
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnAllowanceRevoked", func() error {
			return p.OnAllowanceRevoked(ctx, a)
		})
	}
}

// EmitSpent emits a spend event.
func (r *Registry) EmitSpent(ctx context.Context, a *allowance.Allowance, recipient types.Principal, amount, remaining types.Money) {
	r.mu.RLock()
	plugins := r.onSpent
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnSpent", func() error {
			return p.OnSpent(ctx, a, recipient, amount, remaining)
		})
	}
}

// EmitPeriodReset emits a period reset event.
func (r *Registry) EmitPeriodReset(ctx context.Context, a *allowance.Allowance, carriedOver types.Money) {
	r.mu.RLock()
	plugins := r.onPeriodReset
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPeriodReset", func() error {
			return p.OnPeriodReset(ctx, a, carriedOver)
		})
	}
}

// EmitMultiSigConfigured emits a multi-sig configuration event.
func (r *Registry) EmitMultiSigConfigured(ctx context.Context, cfg *allowance.MultiSigConfig) {
	r.mu.RLock()
	plugins := r.onMultiSigConfigured
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnMultiSigConfigured", func() error {
			return p.OnMultiSigConfigured(ctx, cfg)
		})
	}
}

// EmitMultiSigApproval emits a multi-sig approval event.
func (r *Registry) EmitMultiSigApproval(ctx context.Context, agent types.Principal, txHash string, approvals int) {
	r.mu.RLock()
	plugins := r.onMultiSigApproval
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnMultiSigApproval", func() error {
			return p.OnMultiSigApproval(ctx, agent, txHash, approvals)
		})
	}
}

// EmitInvoiceCreated emits an invoice created event.
func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceCreated", func() error {
			return p.OnInvoiceCreated(ctx, inv)
		})
	}
}

// EmitInvoiceSent emits an invoice sent event.
func (r *Registry) EmitInvoiceSent(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceSent
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceSent", func() error {
			return p.OnInvoiceSent(ctx, inv)
		})
	}
}

// EmitInvoiceEscrowed emits an invoice escrowed event.
func (r *Registry) EmitInvoiceEscrowed(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceEscrowed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceEscrowed", func() error {
			return p.OnInvoiceEscrowed(ctx, inv)
		})
	}
}

// EmitPartialPayment emits a partial payment event.
func (r *Registry) EmitPartialPayment(ctx context.Context, inv *invoice.Invoice, amount, remaining types.Money) {
	r.mu.RLock()
	plugins := r.onPartialPayment
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPartialPayment", func() error {
			return p.OnPartialPayment(ctx, inv, amount, remaining)
		})
	}
}

// EmitInvoicePaid emits an invoice paid event.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice, payout, fee types.Money) {
	r.mu.RLock()
	plugins := r.onInvoicePaid
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoicePaid", func() error {
			return p.OnInvoicePaid(ctx, inv, payout, fee)
		})
	}
}

// EmitInvoiceCancelled emits an invoice cancelled event.
func (r *Registry) EmitInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceCancelled", func() error {
			return p.OnInvoiceCancelled(ctx, inv)
		})
	}
}

// EmitDisputeRaised emits a dispute raised event.
func (r *Registry) EmitDisputeRaised(ctx context.Context, d *invoice.Dispute) {
	r.mu.RLock()
	plugins := r.onDisputeRaised
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnDisputeRaised", func() error {
			return p.OnDisputeRaised(ctx, d)
		})
	}
}

// EmitDisputeResolved emits a dispute resolved event.
func (r *Registry) EmitDisputeResolved(ctx context.Context, d *invoice.Dispute, refunded bool) {
	r.mu.RLock()
	plugins := r.onDisputeResolved
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnDisputeResolved", func() error {
			return p.OnDisputeResolved(ctx, d, refunded)
		})
	}
}

// EmitSubscriptionCreated emits a subscription created event.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnSubscriptionCreated", func() error {
			return p.OnSubscriptionCreated(ctx, sub)
		})
	}
}

// EmitSubscriptionBilled emits a successful billing event.
func (r *Registry) EmitSubscriptionBilled(ctx context.Context, sub *subscription.Subscription, amount types.Money) {
	r.mu.RLock()
	plugins := r.onSubscriptionBilled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnSubscriptionBilled", func() error {
			return p.OnSubscriptionBilled(ctx, sub, amount)
		})
	}
}

// EmitBillingFailed emits a failed billing event.
func (r *Registry) EmitBillingFailed(ctx context.Context, sub *subscription.Subscription, expired bool) {
	r.mu.RLock()
	plugins := r.onBillingFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBillingFailed", func() error {
			return p.OnBillingFailed(ctx, sub, expired)
		})
	}
}

// EmitSubscriptionPaused emits a subscription paused event.
func (r *Registry) EmitSubscriptionPaused(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscriptionPaused
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnSubscriptionPaused", func() error {
			return p.OnSubscriptionPaused(ctx, sub)
		})
	}
}

// EmitSubscriptionResumed emits a subscription resumed event.
func (r *Registry) EmitSubscriptionResumed(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscriptionResumed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnSubscriptionResumed", func() error {
			return p.OnSubscriptionResumed(ctx, sub)
		})
	}
}

// EmitSubscriptionCancelled emits a subscription cancelled event.
func (r *Registry) EmitSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription, refund types.Money) {
	r.mu.RLock()
	plugins := r.onSubscriptionCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnSubscriptionCancelled", func() error {
			return p.OnSubscriptionCancelled(ctx, sub, refund)
		})
	}
}

// dispatch runs one plugin hook with timeout protection and logs failures.
func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin hook failed",
			"plugin", pluginName,
			"hook", hook,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
