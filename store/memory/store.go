// Package memory provides an in-memory Store for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/settle"
	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/invoice"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

type Store struct {
	mu sync.RWMutex

	// Allowance storage
	allowances map[string]*allowance.Allowance
	multisig   map[types.Principal]*allowance.MultiSigConfig

	// Invoice storage
	invoices map[string]*invoice.Invoice
	disputes map[string]*invoice.Dispute // keyed by invoice ID
	fees     map[string]int64            // currency -> accrued minor units

	// Subscription storage
	subscriptions map[string]*subscription.Subscription

	// Event journal
	events  []event.Event
	nextSeq int64
}

func New() *Store {
	return &Store{
		allowances:    make(map[string]*allowance.Allowance),
		multisig:      make(map[types.Principal]*allowance.MultiSigConfig),
		invoices:      make(map[string]*invoice.Invoice),
		disputes:      make(map[string]*invoice.Dispute),
		fees:          make(map[string]int64),
		subscriptions: make(map[string]*subscription.Subscription),
		events:        make([]event.Event, 0),
		nextSeq:       1,
	}
}

// Allowance Store implementation
func (s *Store) CreateAllowance(_ context.Context, a *allowance.Allowance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.allowances[a.ID.String()]; exists {
		return settle.ErrAlreadyExists
	}
	s.allowances[a.ID.String()] = a.Clone()
	return nil
}

func (s *Store) GetAllowance(_ context.Context, allowanceID id.AllowanceID) (*allowance.Allowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.allowances[allowanceID.String()]; ok {
		return a.Clone(), nil
	}
	return nil, settle.ErrAllowanceNotFound
}

func (s *Store) ListAllowances(_ context.Context, opts allowance.ListOpts) ([]*allowance.Allowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*allowance.Allowance, 0)
	for _, a := range s.allowances {
		if !opts.Owner.IsZero() && a.Owner != opts.Owner {
			continue
		}
		if !opts.Agent.IsZero() && a.Agent != opts.Agent {
			continue
		}
		if opts.ActiveOnly && !a.Active {
			continue
		}
		result = append(result, a.Clone())
	}
	sortByCreated(result, func(a *allowance.Allowance) time.Time { return a.CreatedAt })

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateAllowance(_ context.Context, a *allowance.Allowance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.allowances[a.ID.String()]; !exists {
		return settle.ErrAllowanceNotFound
	}
	s.allowances[a.ID.String()] = a.Clone()
	return nil
}

func (s *Store) GetMultiSig(_ context.Context, agent types.Principal) (*allowance.MultiSigConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cfg, ok := s.multisig[agent]; ok {
		return cfg.Clone(), nil
	}
	return nil, settle.ErrMultiSigNotConfigured
}

func (s *Store) PutMultiSig(_ context.Context, cfg *allowance.MultiSigConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.multisig[cfg.Agent] = cfg.Clone()
	return nil
}

// Invoice Store implementation
func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return settle.ErrAlreadyExists
	}
	s.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return inv.Clone(), nil
	}
	return nil, settle.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if !opts.Issuer.IsZero() && inv.Issuer != opts.Issuer {
			continue
		}
		if !opts.Recipient.IsZero() && inv.Recipient != opts.Recipient {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		result = append(result, inv.Clone())
	}
	sortByCreated(result, func(i *invoice.Invoice) time.Time { return i.CreatedAt })

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; !exists {
		return settle.ErrInvoiceNotFound
	}
	s.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (s *Store) CreateDispute(_ context.Context, d *invoice.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.disputes[d.InvoiceID.String()]; exists {
		return settle.ErrAlreadyExists
	}
	s.disputes[d.InvoiceID.String()] = d.Clone()
	return nil
}

func (s *Store) GetDispute(_ context.Context, invID id.InvoiceID) (*invoice.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.disputes[invID.String()]; ok {
		return d.Clone(), nil
	}
	return nil, settle.ErrDisputeNotFound
}

func (s *Store) UpdateDispute(_ context.Context, d *invoice.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.disputes[d.InvoiceID.String()]; !exists {
		return settle.ErrDisputeNotFound
	}
	s.disputes[d.InvoiceID.String()] = d.Clone()
	return nil
}

func (s *Store) AddProtocolFees(_ context.Context, fee types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fees[fee.Currency] += fee.Amount
	return nil
}

func (s *Store) ProtocolFees(_ context.Context, currency string) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return types.Money{Amount: s.fees[currency], Currency: currency}, nil
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return settle.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = sub.Clone()
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return sub.Clone(), nil
	}
	return nil, settle.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if !opts.Subscriber.IsZero() && sub.Subscriber != opts.Subscriber {
			continue
		}
		if !opts.Provider.IsZero() && sub.Provider != opts.Provider {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		result = append(result, sub.Clone())
	}
	sortByCreated(result, func(s *subscription.Subscription) time.Time { return s.CreatedAt })

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListDueSubscriptions(_ context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.Status == subscription.StatusActive && sub.Due(asOf) {
			result = append(result, sub.Clone())
		}
	}
	sortByCreated(result, func(s *subscription.Subscription) time.Time { return s.NextBilling })

	return page(result, 0, limit), nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return settle.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID.String()] = sub.Clone()
	return nil
}

// Event journal implementation
func (s *Store) AppendEvent(_ context.Context, e *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Seq = s.nextSeq
	s.nextSeq++
	s.events = append(s.events, *e)
	return nil
}

func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0)
	for i := range s.events {
		e := s.events[i]
		if e.Seq <= opts.AfterSeq {
			continue
		}
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		result = append(result, &e)
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}
	return result, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions
func sortByCreated[T any](items []*T, at func(*T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return at(items[i]).Before(at(items[j]))
	})
}

func page[T any](items []*T, offset, limit int) []*T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
