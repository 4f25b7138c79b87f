// Package subscription defines the recurring billing entities.
package subscription

import (
	"time"

	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

// Status is the subscription lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// MaxFailedBillings is the number of consecutive billing failures
// tolerated before a subscription is force-expired.
const MaxFailedBillings = 3

// Subscription is a recurring billing schedule from a subscriber to a
// provider, funded through the subscriber's allowance. FailedBillings
// counts consecutive failures; reaching MaxFailedBillings expires the
// subscription.
type Subscription struct {
	types.Entity
	ID             id.SubscriptionID `json:"id"`
	Subscriber     types.Principal   `json:"subscriber"`
	Provider       types.Principal   `json:"provider"`
	Amount         types.Money       `json:"amount"`
	Interval       types.Period      `json:"interval"`
	Status         Status            `json:"status"`
	AllowanceID    id.AllowanceID    `json:"allowance_id"`
	NextBilling    time.Time         `json:"next_billing"`
	LastBilled     *time.Time        `json:"last_billed,omitempty"`
	FailedBillings int               `json:"failed_billings"`
	TotalPaid      types.Money       `json:"total_paid"`
	CancelledAt    *time.Time        `json:"cancelled_at,omitempty"`
}

// Due reports whether a billing cycle is due.
func (s *Subscription) Due(now time.Time) bool {
	return !now.Before(s.NextBilling)
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.LastBilled != nil {
		t := *s.LastBilled
		c.LastBilled = &t
	}
	if s.CancelledAt != nil {
		t := *s.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
