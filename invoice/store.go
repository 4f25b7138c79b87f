package invoice

import (
	"context"

	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

// Store persists invoices, their disputes, and the protocol fee accumulator.
type Store interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	List(ctx context.Context, opts ListOpts) ([]*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error

	CreateDispute(ctx context.Context, d *Dispute) error
	GetDispute(ctx context.Context, invID id.InvoiceID) (*Dispute, error)
	UpdateDispute(ctx context.Context, d *Dispute) error

	AddProtocolFees(ctx context.Context, fee types.Money) error
	ProtocolFees(ctx context.Context, currency string) (types.Money, error)
}

// ListOpts filter invoices for the external query layer.
type ListOpts struct {
	Issuer    types.Principal
	Recipient types.Principal
	Status    Status
	Limit     int
	Offset    int
}
