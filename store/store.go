// Package store defines the unified storage interface for Settle.
package store

import (
	"context"
	"time"

	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/invoice"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// Store is the unified storage interface for all Settle entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Allowance methods
	CreateAllowance(ctx context.Context, a *allowance.Allowance) error
	GetAllowance(ctx context.Context, allowanceID id.AllowanceID) (*allowance.Allowance, error)
	ListAllowances(ctx context.Context, opts allowance.ListOpts) ([]*allowance.Allowance, error)
	UpdateAllowance(ctx context.Context, a *allowance.Allowance) error
	GetMultiSig(ctx context.Context, agent types.Principal) (*allowance.MultiSigConfig, error)
	PutMultiSig(ctx context.Context, cfg *allowance.MultiSigConfig) error

	// Invoice methods
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error
	CreateDispute(ctx context.Context, d *invoice.Dispute) error
	GetDispute(ctx context.Context, invID id.InvoiceID) (*invoice.Dispute, error)
	UpdateDispute(ctx context.Context, d *invoice.Dispute) error
	AddProtocolFees(ctx context.Context, fee types.Money) error
	ProtocolFees(ctx context.Context, currency string) (types.Money, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	ListDueSubscriptions(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error

	// Event journal methods
	AppendEvent(ctx context.Context, e *event.Event) error
	ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
