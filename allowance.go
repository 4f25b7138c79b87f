package settle

import (
	"context"
	"fmt"

	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

// SpendResult reports a completed spend: the transfer hash the spend
// executed under and the allowance remaining after it.
type SpendResult struct {
	TxHash    string      `json:"tx_hash"`
	Remaining types.Money `json:"remaining"`
}

func allowanceKey(allowanceID id.AllowanceID) string {
	return "allowance/" + allowanceID.String()
}

func multiSigKey(agent types.Principal) string {
	return "multisig/" + agent.String()
}

// ──────────────────────────────────────────────────
// Allowance Ledger
// ──────────────────────────────────────────────────

// CreateAllowance grants agent a periodic spending limit owned by the
// caller. The first period starts now.
func (e *Engine) CreateAllowance(ctx context.Context, agent types.Principal, limit types.Money, period types.Period, rollover bool) (*allowance.Allowance, error) {
	owner, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if agent.IsZero() {
		return nil, fmt.Errorf("%w: agent principal is required", ErrInvalidInput)
	}
	if !limit.IsPositive() {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, period)
	}

	now := e.now()
	a := &allowance.Allowance{
		Entity:    types.NewEntityAt(now),
		ID:        id.NewAllowanceID(),
		Owner:     owner,
		Agent:     agent,
		Limit:     limit,
		Period:    period,
		Spent:     types.Zero(limit.Currency),
		LastReset: now,
		Rollover:  rollover,
		Active:    true,
	}

	if err := e.store.CreateAllowance(ctx, a); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindAllowanceCreated, owner, a.ID, map[string]any{
		"agent":    a.Agent,
		"limit":    a.Limit,
		"period":   a.Period,
		"rollover": a.Rollover,
	}); err != nil {
		return nil, err
	}

	e.plugins.EmitAllowanceCreated(ctx, a)
	return a, nil
}

// Spend executes an agent transfer against an allowance. The caller must
// be the allowance's agent. A due period reset is applied first, then the
// remaining-limit check, then the multi-sig gate for amounts at or above
// the configured threshold. The asset transfer from owner to recipient
// runs before any record is written, so a failed transfer leaves the
// allowance untouched.
func (e *Engine) Spend(ctx context.Context, allowanceID id.AllowanceID, recipient types.Principal, amount types.Money) (*SpendResult, error) {
	agent, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if recipient.IsZero() {
		return nil, fmt.Errorf("%w: recipient principal is required", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	ctx, release, err := e.locks.acquire(ctx, allowanceKey(allowanceID))
	if err != nil {
		return nil, err
	}
	defer release()

	a, err := e.store.GetAllowance(ctx, allowanceID)
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, ErrAllowanceNotActive
	}
	if a.Agent != agent {
		return nil, ErrNotAgent
	}
	if !amount.SameCurrency(a.Limit) {
		return nil, fmt.Errorf("%w: amount currency %q does not match allowance currency %q",
			ErrInvalidInput, amount.Currency, a.Limit.Currency)
	}

	now := e.now()
	staged := a.Clone()

	// Period reset. Rollover is informational: the carried-over amount is
	// reported on the reset event, the stored limit never grows.
	var reset bool
	var carriedOver types.Money
	if staged.ResetDue(now) {
		reset = true
		carriedOver = types.Zero(staged.Limit.Currency)
		if staged.Rollover {
			carriedOver = staged.Available()
		}
		staged.Spent = types.Zero(staged.Limit.Currency)
		staged.LastReset = now
	}

	available := staged.Available()
	if amount.GreaterThan(available) {
		return nil, fmt.Errorf("%w: requested %s, available %s",
			ErrInsufficientAllowance, amount, available)
	}

	txHash := TransferHash(allowanceID, recipient, amount, now)
	if err := e.checkMultiSig(ctx, staged.Agent, txHash, amount); err != nil {
		return nil, err
	}

	staged.Spent = staged.Spent.Add(amount)
	staged.Touch(now)

	if err := e.treasury.Transfer(ctx, staged.Owner, recipient, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := e.store.UpdateAllowance(ctx, staged); err != nil {
		return nil, err
	}

	remaining := staged.Available()

	if reset {
		if err := e.record(ctx, event.KindPeriodReset, agent, staged.ID, map[string]any{
			"carried_over": carriedOver,
		}); err != nil {
			return nil, err
		}
		e.plugins.EmitPeriodReset(ctx, staged, carriedOver)
	}

	if err := e.record(ctx, event.KindSpent, agent, staged.ID, map[string]any{
		"recipient": recipient,
		"amount":    amount,
		"remaining": remaining,
		"tx_hash":   txHash,
	}); err != nil {
		return nil, err
	}
	e.plugins.EmitSpent(ctx, staged, recipient, amount, remaining)

	return &SpendResult{TxHash: txHash, Remaining: remaining}, nil
}

// checkMultiSig enforces the approval gate for amounts at or above the
// agent's configured threshold. Absent config means no gate.
func (e *Engine) checkMultiSig(ctx context.Context, agent types.Principal, txHash string, amount types.Money) error {
	cfg, err := e.store.GetMultiSig(ctx, agent)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	if !cfg.Gates(amount) {
		return nil
	}
	if cfg.Approvals[txHash] < len(cfg.Signers) {
		return fmt.Errorf("%w: %d of %d approvals for hash %s",
			ErrMultiSigRequired, cfg.Approvals[txHash], len(cfg.Signers), txHash)
	}
	return nil
}

// UpdateAllowance replaces an allowance's limit and period. Owner only,
// and the new limit must stay in the allowance's currency. The current
// period's spent counter is deliberately not revalidated against the new
// limit.
func (e *Engine) UpdateAllowance(ctx context.Context, allowanceID id.AllowanceID, limit types.Money, period types.Period) (*allowance.Allowance, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if !limit.IsPositive() {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, period)
	}

	ctx, release, err := e.locks.acquire(ctx, allowanceKey(allowanceID))
	if err != nil {
		return nil, err
	}
	defer release()

	a, err := e.store.GetAllowance(ctx, allowanceID)
	if err != nil {
		return nil, err
	}
	if a.Owner != caller {
		return nil, ErrNotOwner
	}
	if !limit.SameCurrency(a.Limit) {
		return nil, fmt.Errorf("%w: limit currency %q does not match allowance currency %q",
			ErrInvalidInput, limit.Currency, a.Limit.Currency)
	}

	staged := a.Clone()
	staged.Limit = limit
	staged.Period = period
	staged.Touch(e.now())

	if err := e.store.UpdateAllowance(ctx, staged); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindAllowanceUpdated, caller, staged.ID, map[string]any{
		"limit":  staged.Limit,
		"period": staged.Period,
	}); err != nil {
		return nil, err
	}

	e.plugins.EmitAllowanceUpdated(ctx, staged)
	return staged, nil
}

// RevokeAllowance deactivates an allowance. Owner only, and permanent:
// there is no operation that reactivates a revoked allowance.
func (e *Engine) RevokeAllowance(ctx context.Context, allowanceID id.AllowanceID) error {
	caller, err := e.caller(ctx)
	if err != nil {
		return err
	}

	ctx, release, err := e.locks.acquire(ctx, allowanceKey(allowanceID))
	if err != nil {
		return err
	}
	defer release()

	a, err := e.store.GetAllowance(ctx, allowanceID)
	if err != nil {
		return err
	}
	if a.Owner != caller {
		return ErrNotOwner
	}
	if !a.Active {
		return ErrAllowanceNotActive
	}

	staged := a.Clone()
	staged.Active = false
	staged.Touch(e.now())

	if err := e.store.UpdateAllowance(ctx, staged); err != nil {
		return err
	}

	if err := e.record(ctx, event.KindAllowanceRevoked, caller, staged.ID, nil); err != nil {
		return err
	}

	e.plugins.EmitAllowanceRevoked(ctx, staged)
	return nil
}

// ConfigureMultiSig sets the approval gate for an agent, replacing any
// prior config wholesale. The caller must own at least one allowance
// targeting the agent.
func (e *Engine) ConfigureMultiSig(ctx context.Context, agent types.Principal, threshold types.Money, signers []types.Principal) (*allowance.MultiSigConfig, error) {
	caller, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if agent.IsZero() {
		return nil, fmt.Errorf("%w: agent principal is required", ErrInvalidInput)
	}
	if threshold.IsNegative() {
		return nil, fmt.Errorf("%w: threshold must not be negative", ErrInvalidInput)
	}
	for _, s := range signers {
		if s.IsZero() {
			return nil, fmt.Errorf("%w: signer principal must not be zero", ErrInvalidInput)
		}
	}

	owned, err := e.store.ListAllowances(ctx, allowance.ListOpts{Owner: caller, Agent: agent})
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return nil, ErrNotOwner
	}

	// A threshold in a currency no owned allowance spends would never
	// gate anything; reject it instead of configuring a dead gate.
	if threshold.IsPositive() {
		matched := false
		for _, a := range owned {
			if threshold.SameCurrency(a.Limit) {
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: threshold currency %q does not match any allowance for agent %q",
				ErrInvalidInput, threshold.Currency, agent)
		}
	}

	ctx, release, err := e.locks.acquire(ctx, multiSigKey(agent))
	if err != nil {
		return nil, err
	}
	defer release()

	cfg := &allowance.MultiSigConfig{
		Entity:    types.NewEntityAt(e.now()),
		Agent:     agent,
		Threshold: threshold,
		Signers:   append([]types.Principal(nil), signers...),
		Approvals: make(map[string]int),
	}

	if err := e.store.PutMultiSig(ctx, cfg); err != nil {
		return nil, err
	}

	if err := e.record(ctx, event.KindMultiSigConfigured, caller, id.ID{}, map[string]any{
		"agent":     agent,
		"threshold": threshold,
		"signers":   len(signers),
	}); err != nil {
		return nil, err
	}

	e.plugins.EmitMultiSigConfigured(ctx, cfg)
	return cfg, nil
}

// ApproveTransaction records a signer's approval for a transfer hash.
// A hash that already carries an approval rejects every further approval,
// from any signer, with ErrAlreadyApproved.
func (e *Engine) ApproveTransaction(ctx context.Context, agent types.Principal, txHash string) error {
	caller, err := e.caller(ctx)
	if err != nil {
		return err
	}
	if txHash == "" {
		return fmt.Errorf("%w: transaction hash is required", ErrInvalidInput)
	}

	ctx, release, err := e.locks.acquire(ctx, multiSigKey(agent))
	if err != nil {
		return err
	}
	defer release()

	cfg, err := e.store.GetMultiSig(ctx, agent)
	if err != nil {
		return err
	}
	if !cfg.HasSigner(caller) {
		return ErrNotSigner
	}
	if cfg.Approvals[txHash] > 0 {
		return ErrAlreadyApproved
	}

	staged := cfg.Clone()
	staged.Approvals[txHash]++
	staged.Touch(e.now())

	if err := e.store.PutMultiSig(ctx, staged); err != nil {
		return err
	}

	if err := e.record(ctx, event.KindMultiSigApproval, caller, id.ID{}, map[string]any{
		"agent":     agent,
		"tx_hash":   txHash,
		"approvals": staged.Approvals[txHash],
	}); err != nil {
		return err
	}

	e.plugins.EmitMultiSigApproval(ctx, agent, txHash, staged.Approvals[txHash])
	return nil
}

// RemainingAllowance reports the allowance available right now without
// mutating anything: zero when inactive, the full limit when a period
// reset is due, otherwise limit minus spent.
func (e *Engine) RemainingAllowance(ctx context.Context, allowanceID id.AllowanceID) (types.Money, error) {
	a, err := e.store.GetAllowance(ctx, allowanceID)
	if err != nil {
		return types.Money{}, err
	}
	if !a.Active {
		return types.Zero(a.Limit.Currency), nil
	}
	if a.ResetDue(e.now()) {
		return a.Limit, nil
	}
	return a.Available(), nil
}

// GetAllowance retrieves an allowance by ID.
func (e *Engine) GetAllowance(ctx context.Context, allowanceID id.AllowanceID) (*allowance.Allowance, error) {
	return e.store.GetAllowance(ctx, allowanceID)
}

// ListAllowances returns allowances matching the filter.
func (e *Engine) ListAllowances(ctx context.Context, opts allowance.ListOpts) ([]*allowance.Allowance, error) {
	return e.store.ListAllowances(ctx, opts)
}

// GetMultiSig retrieves the multi-sig config for an agent.
func (e *Engine) GetMultiSig(ctx context.Context, agent types.Principal) (*allowance.MultiSigConfig, error) {
	return e.store.GetMultiSig(ctx, agent)
}
