package mongo

import (
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

	ID            string    `grove:"id,pk"          bson:"_id"`
	Owner         string    `grove:"owner"          bson:"owner"`
	Agent         string    `grove:"agent"          bson:"agent"`
	LimitMinor    int64     `grove:"limit_minor"    bson:"limit_minor"`
	LimitCurrency string    `grove:"limit_currency" bson:"limit_currency"`
	Period        string    `grove:"period"         bson:"period"`
	SpentMinor    int64     `grove:"spent_minor"    bson:"spent_minor"`
	LastReset     time.Time `grove:"last_reset"     bson:"last_reset"`
	Rollover      bool      `grove:"rollover"       bson:"rollover"`
	Active        bool      `grove:"active"         bson:"active"`
	CreatedAt     time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"     bson:"updated_at"`
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

	Agent             string         `grove:"agent,pk"           bson:"_id"`
	ThresholdMinor    int64          `grove:"threshold_minor"    bson:"threshold_minor"`
	ThresholdCurrency string         `grove:"threshold_currency" bson:"threshold_currency"`
	Signers           []string       `grove:"signers"            bson:"signers"`
	Approvals         map[string]int `grove:"approvals"          bson:"approvals,omitempty"`
	CreatedAt         time.Time      `grove:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time      `grove:"updated_at"         bson:"updated_at"`
}

func toMultiSigModel(cfg *allowance.MultiSigConfig) *multiSigModel {
	signers := make([]string, len(cfg.Signers))
	for i, s := range cfg.Signers {
		signers[i] = s.String()
	}

	return &multiSigModel{
		Agent:             cfg.Agent.String(),
		ThresholdMinor:    cfg.Threshold.Amount,
		ThresholdCurrency: cfg.Threshold.Currency,
		Signers:           signers,
		Approvals:         cfg.Approvals,
		CreatedAt:         cfg.CreatedAt,
		UpdatedAt:         cfg.UpdatedAt,
	}
}

func fromMultiSigModel(m *multiSigModel) *allowance.MultiSigConfig {
	signers := make([]types.Principal, len(m.Signers))
	for i, s := range m.Signers {
		signers[i] = types.Principal(s)
	}

	approvals := m.Approvals
	if approvals == nil {
		approvals = make(map[string]int)
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

	ID             string     `grove:"id,pk"           bson:"_id"`
	Issuer         string     `grove:"issuer"          bson:"issuer"`
	Recipient      string     `grove:"recipient"       bson:"recipient"`
	AmountMinor    int64      `grove:"amount_minor"    bson:"amount_minor"`
	Currency       string     `grove:"currency"        bson:"currency"`
	PaidMinor      int64      `grove:"paid_minor"      bson:"paid_minor"`
	EscrowMinor    int64      `grove:"escrow_minor"    bson:"escrow_minor"`
	Status         string     `grove:"status"          bson:"status"`
	Description    string     `grove:"description"     bson:"description"`
	DueDate        *time.Time `grove:"due_date"        bson:"due_date,omitempty"`
	PartialPayment bool       `grove:"partial_payment" bson:"partial_payment"`
	PaidAt         *time.Time `grove:"paid_at"         bson:"paid_at,omitempty"`
	CancelledAt    *time.Time `grove:"cancelled_at"    bson:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"      bson:"updated_at"`
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

	ID         string    `grove:"id,pk"      bson:"_id"`
	InvoiceID  string    `grove:"invoice_id" bson:"invoice_id"`
	Initiator  string    `grove:"initiator"  bson:"initiator"`
	Reason     string    `grove:"reason"     bson:"reason"`
	Validators []string  `grove:"validators" bson:"validators"`
	Approvals  int       `grove:"approvals"  bson:"approvals"`
	Resolved   bool      `grove:"resolved"   bson:"resolved"`
	Refunded   bool      `grove:"refunded"   bson:"refunded"`
	CreatedAt  time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at" bson:"updated_at"`
}

func toDisputeModel(d *invoice.Dispute) *disputeModel {
	validators := make([]string, len(d.Validators))
	for i, v := range d.Validators {
		validators[i] = v.String()
	}

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

	validators := make([]types.Principal, len(m.Validators))
	for i, v := range m.Validators {
		validators[i] = types.Principal(v)
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

	ID             string     `grove:"id,pk"            bson:"_id"`
	Subscriber     string     `grove:"subscriber"       bson:"subscriber"`
	Provider       string     `grove:"provider"         bson:"provider"`
	AmountMinor    int64      `grove:"amount_minor"     bson:"amount_minor"`
	Currency       string     `grove:"currency"         bson:"currency"`
	Interval       string     `grove:"billing_interval" bson:"billing_interval"`
	Status         string     `grove:"status"           bson:"status"`
	AllowanceID    string     `grove:"allowance_id"     bson:"allowance_id"`
	NextBilling    time.Time  `grove:"next_billing"     bson:"next_billing"`
	LastBilled     *time.Time `grove:"last_billed"      bson:"last_billed,omitempty"`
	FailedBillings int        `grove:"failed_billings"  bson:"failed_billings"`
	TotalPaidMinor int64      `grove:"total_paid_minor" bson:"total_paid_minor"`
	CancelledAt    *time.Time `grove:"cancelled_at"     bson:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"       bson:"updated_at"`
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

// ==================== Protocol fee models ====================

type feeModel struct {
	grove.BaseModel `grove:"table:settle_protocol_fees"`

	Currency    string `grove:"currency,pk"  bson:"_id"`
	AmountMinor int64  `grove:"amount_minor" bson:"amount_minor"`
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:settle_events"`

	ID      string         `grove:"id,pk"   bson:"_id"`
	Seq     int64          `grove:"seq"     bson:"seq"`
	Kind    string         `grove:"kind"    bson:"kind"`
	At      time.Time      `grove:"at"      bson:"at"`
	Actor   string         `grove:"actor"   bson:"actor"`
	Subject string         `grove:"subject" bson:"subject"`
	Data    map[string]any `grove:"data"    bson:"data,omitempty"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:      e.ID.String(),
		Seq:     e.Seq,
		Kind:    string(e.Kind),
		At:      e.At,
		Actor:   e.Actor.String(),
		Subject: e.Subject.String(),
		Data:    e.Data,
	}
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

	return &event.Event{
		ID:      evtID,
		Seq:     m.Seq,
		Kind:    event.Kind(m.Kind),
		At:      m.At,
		Actor:   types.Principal(m.Actor),
		Subject: subject,
		Data:    m.Data,
	}, nil
}
