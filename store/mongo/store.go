// Package mongo provides a MongoDB-backed store for Settle via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	settle "github.com/xraph/settle"
	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/invoice"
	settlestore "github.com/xraph/settle/store"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// Collection name constants.
const (
	colAllowances    = "settle_allowances"
	colMultiSig      = "settle_multisig_configs"
	colInvoices      = "settle_invoices"
	colDisputes      = "settle_disputes"
	colSubscriptions = "settle_subscriptions"
	colFees          = "settle_protocol_fees"
	colEvents        = "settle_events"
	colCounters      = "settle_counters"
)

// compile-time interface check
var _ settlestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all Settle collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("settle/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Allowance Store ====================

func (s *Store) CreateAllowance(ctx context.Context, a *allowance.Allowance) error {
	m := toAllowanceModel(a)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: create allowance: %w", err)
	}
	return nil
}

func (s *Store) GetAllowance(ctx context.Context, allowanceID id.AllowanceID) (*allowance.Allowance, error) {
	var m allowanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": allowanceID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, settle.ErrAllowanceNotFound
		}
		return nil, fmt.Errorf("settle/mongo: get allowance: %w", err)
	}
	return fromAllowanceModel(&m)
}

func (s *Store) ListAllowances(ctx context.Context, opts allowance.ListOpts) ([]*allowance.Allowance, error) {
	var models []allowanceModel

	filter := bson.M{}
	if !opts.Owner.IsZero() {
		filter["owner"] = opts.Owner.String()
	}
	if !opts.Agent.IsZero() {
		filter["agent"] = opts.Agent.String()
	}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("settle/mongo: list allowances: %w", err)
	}

	result := make([]*allowance.Allowance, len(models))
	for i := range models {
		a, err := fromAllowanceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

func (s *Store) UpdateAllowance(ctx context.Context, a *allowance.Allowance) error {
	m := toAllowanceModel(a)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: update allowance: %w", err)
	}
	if res.MatchedCount() == 0 {
		return settle.ErrAllowanceNotFound
	}
	return nil
}

func (s *Store) GetMultiSig(ctx context.Context, agent types.Principal) (*allowance.MultiSigConfig, error) {
	var m multiSigModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": agent.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, settle.ErrMultiSigNotConfigured
		}
		return nil, fmt.Errorf("settle/mongo: get multisig: %w", err)
	}
	return fromMultiSigModel(&m), nil
}

func (s *Store) PutMultiSig(ctx context.Context, cfg *allowance.MultiSigConfig) error {
	m := toMultiSigModel(cfg)
	m.UpdatedAt = now()

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Agent}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":                m.Agent,
			"threshold_minor":    m.ThresholdMinor,
			"threshold_currency": m.ThresholdCurrency,
			"signers":            m.Signers,
			"approvals":          m.Approvals,
			"created_at":         m.CreatedAt,
			"updated_at":         m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: put multisig: %w", err)
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, settle.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("settle/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	filter := bson.M{}
	if !opts.Issuer.IsZero() {
		filter["issuer"] = opts.Issuer.String()
	}
	if !opts.Recipient.IsZero() {
		filter["recipient"] = opts.Recipient.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("settle/mongo: list invoices: %w", err)
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: update invoice: %w", err)
	}
	if res.MatchedCount() == 0 {
		return settle.ErrInvoiceNotFound
	}
	return nil
}

// ==================== Dispute Store ====================

func (s *Store) CreateDispute(ctx context.Context, d *invoice.Dispute) error {
	m := toDisputeModel(d)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: create dispute: %w", err)
	}
	return nil
}

func (s *Store) GetDispute(ctx context.Context, invID id.InvoiceID) (*invoice.Dispute, error) {
	var m disputeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"invoice_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, settle.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("settle/mongo: get dispute: %w", err)
	}
	return fromDisputeModel(&m)
}

func (s *Store) UpdateDispute(ctx context.Context, d *invoice.Dispute) error {
	m := toDisputeModel(d)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: update dispute: %w", err)
	}
	if res.MatchedCount() == 0 {
		return settle.ErrDisputeNotFound
	}
	return nil
}

// ==================== Protocol Fee Store ====================

func (s *Store) AddProtocolFees(ctx context.Context, fee types.Money) error {
	if fee.IsZero() {
		return nil
	}

	m := &feeModel{Currency: fee.Currency, AmountMinor: fee.Amount}
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": fee.Currency}).
		SetUpdate(bson.M{"$inc": bson.M{"amount_minor": fee.Amount}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: add protocol fees: %w", err)
	}
	return nil
}

func (s *Store) ProtocolFees(ctx context.Context, currency string) (types.Money, error) {
	var m feeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": currency}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Zero(currency), nil
		}
		return types.Zero(currency), fmt.Errorf("settle/mongo: protocol fees: %w", err)
	}
	return types.Money{Amount: m.AmountMinor, Currency: currency}, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, settle.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("settle/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if !opts.Subscriber.IsZero() {
		filter["subscriber"] = opts.Subscriber.String()
	}
	if !opts.Provider.IsZero() {
		filter["provider"] = opts.Provider.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("settle/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) ListDueSubscriptions(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status":       string(subscription.StatusActive),
			"next_billing": bson.M{"$lte": asOf},
		}).
		Sort(bson.D{{Key: "next_billing", Value: 1}})

	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("settle/mongo: list due subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("settle/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return settle.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Event Store ====================

func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	seq, err := s.nextEventSeq(ctx)
	if err != nil {
		return err
	}

	m := toEventModel(e)
	m.Seq = seq

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("settle/mongo: append event: %w", err)
	}
	e.Seq = seq
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel

	filter := bson.M{}
	if opts.AfterSeq > 0 {
		filter["seq"] = bson.M{"$gt": opts.AfterSeq}
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("settle/mongo: list events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// nextEventSeq atomically increments and returns the journal sequence
// counter. Mongo has no serial column, so the counter lives in its own
// collection and is bumped with findOneAndUpdate.
func (s *Store) nextEventSeq(ctx context.Context) (int64, error) {
	res := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": "events"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, fmt.Errorf("settle/mongo: next event seq: %w", err)
	}
	return doc.Seq, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all Settle collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAllowances: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "agent", Value: 1}, {Key: "active", Value: 1}}},
		},
		colMultiSig: {},
		colInvoices: {
			{Keys: bson.D{{Key: "issuer", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colDisputes: {
			{
				Keys:    bson.D{{Key: "invoice_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_billing", Value: 1}}},
			{Keys: bson.D{{Key: "subscriber", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "provider", Value: 1}}},
		},
		colFees: {},
		colEvents: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "seq", Value: 1}}},
		},
	}
}
