package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/invoice"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// ==================== Allowance models ====================

type allowanceModel struct {
	grove.BaseModel `grove:"table:settle_allowances"`

	ID            string    `grove:"id,pk"`
	Owner         string    `grove:"owner"`
	Agent         string    `grove:"agent"`
	LimitMinor    int64     `grove:"limit_minor"`
	LimitCurrency string    `grove:"limit_currency"`
	Period        string    `grove:"period"`
	SpentMinor    int64     `grove:"spent_minor"`
	LastReset     time.Time `grove:"last_reset"`
	Rollover      bool      `grove:"rollover"`
	Active        bool      `grove:"active"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toAllowanceModel(a *allowance.Allowance) *allowanceModel {
	return &allowanceModel{
		ID:            a.ID.String(),
		Owner:         a.Owner.String(),
		Agent:         a.Agent.String(),
		LimitMinor:    a.Limit.Amount,
		LimitCurrency: a.Limit.Currency,
		Period:        string(a.Period),
		SpentMinor:    a.Spent.Amount,
		LastReset:     a.LastReset,
		Rollover:      a.Rollover,
		Active:        a.Active,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func fromAllowanceModel(m *allowanceModel) (*allowance.Allowance, error) {
	allowanceID, err := id.ParseAllowanceID(m.ID)
	if err != nil {
		return nil, err
	}

	return &allowance.Allowance{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        allowanceID,
		Owner:     types.Principal(m.Owner),
		Agent:     types.Principal(m.Agent),
		Limit:     types.Money{Amount: m.LimitMinor, Currency: m.LimitCurrency},
		Period:    types.Period(m.Period),
		Spent:     types.Money{Amount: m.SpentMinor, Currency: m.LimitCurrency},
		LastReset: m.LastReset,
		Rollover:  m.Rollover,
		Active:    m.Active,
	}, nil
}

// ==================== MultiSig models ====================

type multiSigModel struct {
	grove.BaseModel `grove:"table:settle_multisig_configs"`

	Agent             string          `grove:"agent,pk"`
	ThresholdMinor    int64           `grove:"threshold_minor"`
	ThresholdCurrency string          `grove:"threshold_currency"`
	Signers           json.RawMessage `grove:"signers,type:jsonb"`
	Approvals         json.RawMessage `grove:"approvals,type:jsonb"`
	CreatedAt         time.Time       `grove:"created_at"`
	UpdatedAt         time.Time       `grove:"updated_at"`
}

func toMultiSigModel(cfg *allowance.MultiSigConfig) *multiSigModel {
	signers, _ := json.Marshal(cfg.Signers)     //nolint:errcheck // best-effort
	approvals, _ := json.Marshal(cfg.Approvals) //nolint:errcheck // best-effort

	return &multiSigModel{
		Agent:             cfg.Agent.String(),
		ThresholdMinor:    cfg.Threshold.Amount,
		ThresholdCurrency: cfg.Threshold.Currency,
		Signers:           signers,
		Approvals:         approvals,
		CreatedAt:         cfg.CreatedAt,
		UpdatedAt:         cfg.UpdatedAt,
	}
}

func fromMultiSigModel(m *multiSigModel) *allowance.MultiSigConfig {
	var signers []types.Principal
	if len(m.Signers) > 0 {
		_ = json.Unmarshal(m.Signers, &signers) //nolint:errcheck // best-effort
	}

	approvals := make(map[string]int)
	if len(m.Approvals) > 0 {
		_ = json.Unmarshal(m.Approvals, &approvals) //nolint:errcheck // best-effort
	}

	return &allowance.MultiSigConfig{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Agent:     types.Principal(m.Agent),
		Threshold: types.Money{Amount: m.ThresholdMinor, Currency: m.ThresholdCurrency},
		Signers:   signers,
		Approvals: approvals,
	}
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:settle_invoices"`

	ID             string     `grove:"id,pk"`
	Issuer         string     `grove:"issuer"`
	Recipient      string     `grove:"recipient"`
	AmountMinor    int64      `grove:"amount_minor"`
	Currency       string     `grove:"currency"`
	PaidMinor      int64      `grove:"paid_minor"`
	EscrowMinor    int64      `grove:"escrow_minor"`
	Status         string     `grove:"status"`
	Description    string     `grove:"description"`
	DueDate        *time.Time `grove:"due_date"`
	PartialPayment bool       `grove:"partial_payment"`
	PaidAt         *time.Time `grove:"paid_at"`
	CancelledAt    *time.Time `grove:"cancelled_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	return &invoiceModel{
		ID:             inv.ID.String(),
		Issuer:         inv.Issuer.String(),
		Recipient:      inv.Recipient.String(),
		AmountMinor:    inv.Amount.Amount,
		Currency:       inv.Amount.Currency,
		PaidMinor:      inv.PaidAmount.Amount,
		EscrowMinor:    inv.Escrow.Amount,
		Status:         string(inv.Status),
		Description:    inv.Description,
		DueDate:        inv.DueDate,
		PartialPayment: inv.PartialPayment,
		PaidAt:         inv.PaidAt,
		CancelledAt:    inv.CancelledAt,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             invID,
		Issuer:         types.Principal(m.Issuer),
		Recipient:      types.Principal(m.Recipient),
		Amount:         types.Money{Amount: m.AmountMinor, Currency: m.Currency},
		PaidAmount:     types.Money{Amount: m.PaidMinor, Currency: m.Currency},
		Escrow:         types.Money{Amount: m.EscrowMinor, Currency: m.Currency},
		Status:         invoice.Status(m.Status),
		Description:    m.Description,
		DueDate:        m.DueDate,
		PartialPayment: m.PartialPayment,
		PaidAt:         m.PaidAt,
		CancelledAt:    m.CancelledAt,
	}, nil
}

// ==================== Dispute models ====================

type disputeModel struct {
	grove.BaseModel `grove:"table:settle_disputes"`

	ID         string          `grove:"id,pk"`
	InvoiceID  string          `grove:"invoice_id"`
	Initiator  string          `grove:"initiator"`
	Reason     string          `grove:"reason"`
	Validators json.RawMessage `grove:"validators,type:jsonb"`
	Approvals  int             `grove:"approvals"`
	Resolved   bool            `grove:"resolved"`
	Refunded   bool            `grove:"refunded"`
	CreatedAt  time.Time       `grove:"created_at"`
	UpdatedAt  time.Time       `grove:"updated_at"`
}

func toDisputeModel(d *invoice.Dispute) *disputeModel {
	validators, _ := json.Marshal(d.Validators) //nolint:errcheck // best-effort

	return &disputeModel{
		ID:         d.ID.String(),
		InvoiceID:  d.InvoiceID.String(),
		Initiator:  d.Initiator.String(),
		Reason:     d.Reason,
		Validators: validators,
		Approvals:  d.Approvals,
		Resolved:   d.Resolved,
		Refunded:   d.Refunded,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func fromDisputeModel(m *disputeModel) (*invoice.Dispute, error) {
	disputeID, err := id.ParseDisputeID(m.ID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return nil, err
	}

	var validators []types.Principal
	if len(m.Validators) > 0 {
		_ = json.Unmarshal(m.Validators, &validators) //nolint:errcheck // best-effort
	}

	return &invoice.Dispute{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         disputeID,
		InvoiceID:  invID,
		Initiator:  types.Principal(m.Initiator),
		Reason:     m.Reason,
		Validators: validators,
		Approvals:  m.Approvals,
		Resolved:   m.Resolved,
		Refunded:   m.Refunded,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:settle_subscriptions"`

	ID             string     `grove:"id,pk"`
	Subscriber     string     `grove:"subscriber"`
	Provider       string     `grove:"provider"`
	AmountMinor    int64      `grove:"amount_minor"`
	Currency       string     `grove:"currency"`
	Interval       string     `grove:"billing_interval"`
	Status         string     `grove:"status"`
	AllowanceID    string     `grove:"allowance_id"`
	NextBilling    time.Time  `grove:"next_billing"`
	LastBilled     *time.Time `grove:"last_billed"`
	FailedBillings int        `grove:"failed_billings"`
	TotalPaidMinor int64      `grove:"total_paid_minor"`
	CancelledAt    *time.Time `grove:"cancelled_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:             s.ID.String(),
		Subscriber:     s.Subscriber.String(),
		Provider:       s.Provider.String(),
		AmountMinor:    s.Amount.Amount,
		Currency:       s.Amount.Currency,
		Interval:       string(s.Interval),
		Status:         string(s.Status),
		AllowanceID:    s.AllowanceID.String(),
		NextBilling:    s.NextBilling,
		LastBilled:     s.LastBilled,
		FailedBillings: s.FailedBillings,
		TotalPaidMinor: s.TotalPaid.Amount,
		CancelledAt:    s.CancelledAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	allowanceID, err := id.ParseAllowanceID(m.AllowanceID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             subID,
		Subscriber:     types.Principal(m.Subscriber),
		Provider:       types.Principal(m.Provider),
		Amount:         types.Money{Amount: m.AmountMinor, Currency: m.Currency},
		Interval:       types.Period(m.Interval),
		Status:         subscription.Status(m.Status),
		AllowanceID:    allowanceID,
		NextBilling:    m.NextBilling,
		LastBilled:     m.LastBilled,
		FailedBillings: m.FailedBillings,
		TotalPaid:      types.Money{Amount: m.TotalPaidMinor, Currency: m.Currency},
		CancelledAt:    m.CancelledAt,
	}, nil
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:settle_events"`

	ID      string          `grove:"id,pk"`
	Seq     int64           `grove:"seq"`
	Kind    string          `grove:"kind"`
	At      time.Time       `grove:"at"`
	Actor   string          `grove:"actor"`
	Subject string          `grove:"subject"`
	Data    json.RawMessage `grove:"data,type:jsonb"`
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}

	var subject id.AnyID
	if m.Subject != "" {
		subject, err = id.Parse(m.Subject)
		if err != nil {
			return nil, err
		}
	}

	var data map[string]any
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &data) //nolint:errcheck // best-effort
	}

	return &event.Event{
		ID:      evtID,
		Seq:     m.Seq,
		Kind:    event.Kind(m.Kind),
		At:      m.At,
		Actor:   types.Principal(m.Actor),
		Subject: subject,
		Data:    data,
	}, nil
}
