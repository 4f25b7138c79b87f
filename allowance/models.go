// Package allowance defines the periodic spending allowance entities.
package allowance

import (
	"time"

	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

// Allowance is a periodic spending limit granted by an owner to an agent.
// Spent accumulates within the current period and resets at period
// boundaries. Revocation soft-deletes: Active goes false, the record stays.
type Allowance struct {
	types.Entity
	ID        id.AllowanceID  `json:"id"`
	Owner     types.Principal `json:"owner"`
	Agent     types.Principal `json:"agent"`
	Limit     types.Money     `json:"limit"`
	Period    types.Period    `json:"period"`
	Spent     types.Money     `json:"spent"`
	LastReset time.Time       `json:"last_reset"`
	Rollover  bool            `json:"rollover"`
	Active    bool            `json:"active"`
}

// ResetDue reports whether a full period has elapsed since the last reset.
func (a *Allowance) ResetDue(now time.Time) bool {
	return now.Sub(a.LastReset) >= a.Period.Duration()
}

// Available returns the unspent portion of the limit for the current
// period, without accounting for a pending reset.
func (a *Allowance) Available() types.Money {
	return a.Limit.Subtract(a.Spent)
}

// Clone returns a deep copy. Engine operations stage mutations on clones
// and persist only after every fallible step has succeeded.
func (a *Allowance) Clone() *Allowance {
	c := *a
	return &c
}

// MultiSigConfig gates high-value transfers for one agent. A transfer of
// amount >= Threshold (when Threshold is positive) may execute only once
// Approvals for its transfer hash reaches len(Signers).
type MultiSigConfig struct {
	types.Entity
	Agent     types.Principal   `json:"agent"`
	Threshold types.Money       `json:"threshold"`
	Signers   []types.Principal `json:"signers"`
	Approvals map[string]int    `json:"approvals"`
}

// HasSigner reports whether p is in the signer set.
func (c *MultiSigConfig) HasSigner(p types.Principal) bool {
	for _, s := range c.Signers {
		if s == p {
			return true
		}
	}
	return false
}

// Gates reports whether a transfer of amount requires approvals.
func (c *MultiSigConfig) Gates(amount types.Money) bool {
	return c.Threshold.IsPositive() &&
		amount.SameCurrency(c.Threshold) &&
		!amount.LessThan(c.Threshold)
}

// Clone returns a deep copy including the approvals map.
func (c *MultiSigConfig) Clone() *MultiSigConfig {
	cp := *c
	cp.Signers = append([]types.Principal(nil), c.Signers...)
	cp.Approvals = make(map[string]int, len(c.Approvals))
	for k, v := range c.Approvals {
		cp.Approvals[k] = v
	}
	return &cp
}
