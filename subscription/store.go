package subscription

import (
	"context"
	"time"

	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

// Store persists subscriptions.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	List(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
}

// ListOpts filter subscriptions for the external query layer.
type ListOpts struct {
	Subscriber types.Principal
	Provider   types.Principal
	Status     Status
	Limit      int
	Offset     int
}
