package allowance

import (
	"context"

	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

// Store persists allowances and per-agent multi-sig configuration.
type Store interface {
	Create(ctx context.Context, a *Allowance) error
	Get(ctx context.Context, allowanceID id.AllowanceID) (*Allowance, error)
	List(ctx context.Context, opts ListOpts) ([]*Allowance, error)
	Update(ctx context.Context, a *Allowance) error

	GetMultiSig(ctx context.Context, agent types.Principal) (*MultiSigConfig, error)
	PutMultiSig(ctx context.Context, cfg *MultiSigConfig) error
}

// ListOpts filter allowances for the external query layer.
type ListOpts struct {
	Owner      types.Principal
	Agent      types.Principal
	ActiveOnly bool
	Limit      int
	Offset     int
}
