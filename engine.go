package settle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/plugin"
	"github.com/xraph/settle/store"
	"github.com/xraph/settle/treasury"
	"github.com/xraph/settle/types"
)

// PlatformFeeBps is the settlement fee retained by the protocol,
// in basis points (500 bps = 5%).
const PlatformFeeBps = 500

// Default engine-owned accounts on the external asset ledger.
const (
	DefaultEscrowAccount types.Principal = "settle:escrow"
	DefaultFeeAccount    types.Principal = "settle:fees"
)

// Engine is the settlement engine: the allowance ledger, invoice escrow,
// and subscription biller over a shared store and treasury. Every public
// operation executes as one atomic unit — all fallible steps (including
// the outbound asset transfer) run before the first store write, and a
// per-entity critical section serializes calls touching the same record.
type Engine struct {
	store    store.Store
	treasury treasury.Treasury
	plugins  *plugin.Registry
	logger   *slog.Logger

	now   func() time.Time
	locks *keyedLocks

	escrowAccount types.Principal
	feeAccount    types.Principal

	// Billing sweep worker
	sweepInterval time.Duration
	sweepBatch    int
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// New creates a new Engine over the given store and treasury.
func New(s store.Store, t treasury.Treasury, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		treasury:      t,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		now:           time.Now,
		locks:         newKeyedLocks(),
		escrowAccount: DefaultEscrowAccount,
		feeAccount:    DefaultFeeAccount,
		sweepBatch:    100,
		stopChan:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the engine's time source. Period resets, billing
// due checks, and transfer hashes all read this clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithEscrowAccount sets the engine-owned principal that holds
// escrowed invoice funds.
func WithEscrowAccount(p types.Principal) Option {
	return func(e *Engine) {
		e.escrowAccount = p
	}
}

// WithFeeAccount sets the principal that accrues protocol fees.
func WithFeeAccount(p types.Principal) Option {
	return func(e *Engine) {
		e.feeAccount = p
	}
}

// WithBillingSweep configures the background billing worker: every
// interval it bills up to batch due subscriptions. A zero interval
// disables the worker.
func WithBillingSweep(batch int, interval time.Duration) Option {
	return func(e *Engine) {
		e.sweepBatch = batch
		e.sweepInterval = interval
	}
}

// Start migrates the store and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	if e.sweepInterval > 0 {
		e.wg.Add(1)
		go e.billingSweepWorker(ctx)
	}

	e.logger.Info("settle engine started",
		"sweep_interval", e.sweepInterval,
		"sweep_batch", e.sweepBatch,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// billingSweepWorker periodically bills due subscriptions. Each per-id
// attempt is its own atomic unit; a failure on one id never aborts the
// rest of the sweep.
func (e *Engine) billingSweepWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.runBillingSweep(ctx)
		}
	}
}

func (e *Engine) runBillingSweep(ctx context.Context) {
	due, err := e.store.ListDueSubscriptions(ctx, e.now(), e.sweepBatch)
	if err != nil {
		e.logger.Error("billing sweep: list due subscriptions failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	ids := make([]id.SubscriptionID, 0, len(due))
	for _, sub := range due {
		ids = append(ids, sub.ID)
	}

	results := e.BatchBilling(ctx, ids)

	var billed, failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		switch res.Outcome.Status {
		case BillingStatusBilled:
			billed++
		case BillingStatusFailed, BillingStatusExpired:
			failed++
		}
	}

	e.logger.Debug("billing sweep completed",
		"due", len(due),
		"billed", billed,
		"failed", failed,
	)
}

// ──────────────────────────────────────────────────
// Event journal
// ──────────────────────────────────────────────────

// ListEvents returns journal records for polling consumers.
func (e *Engine) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	return e.store.ListEvents(ctx, opts)
}

// record appends one journal event for a committed state transition.
func (e *Engine) record(ctx context.Context, kind event.Kind, actor types.Principal, subject id.AnyID, data map[string]any) error {
	return e.store.AppendEvent(ctx, &event.Event{
		ID:      id.NewEventID(),
		Kind:    kind,
		At:      e.now(),
		Actor:   actor,
		Subject: subject,
		Data:    data,
	})
}
