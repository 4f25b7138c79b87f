package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	settle "github.com/xraph/settle"
	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/invoice"
	settlestore "github.com/xraph/settle/store"
	"github.com/xraph/settle/subscription"
	"github.com/xraph/settle/types"
)

// compile-time interface check
var _ settlestore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("settle/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("settle/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetAllowance(ctx context.Context, allowanceID id.AllowanceID) (*allowance.Allowance, error) {
	m := new(allowanceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", allowanceID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, settle.ErrAllowanceNotFound
		}
		return nil, err
	}
	return fromAllowanceModel(m)
}

func (s *Store) ListAllowances(ctx context.Context, opts allowance.ListOpts) ([]*allowance.Allowance, error) {
	var models []allowanceModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Owner != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("owner = $%d", argIdx), opts.Owner.String())
	}
	if opts.Agent != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("agent = $%d", argIdx), opts.Agent.String())
	}
	if opts.ActiveOnly {
		q = q.Where("active")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return settle.ErrAllowanceNotFound
	}
	return nil
}

func (s *Store) GetMultiSig(ctx context.Context, agent types.Principal) (*allowance.MultiSigConfig, error) {
	m := new(multiSigModel)
	err := s.pg.NewSelect(m).
		Where("agent = $1", agent.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, settle.ErrMultiSigNotConfigured
		}
		return nil, err
	}
	return fromMultiSigModel(m), nil
}

func (s *Store) PutMultiSig(ctx context.Context, cfg *allowance.MultiSigConfig) error {
	m := toMultiSigModel(cfg)
	m.UpdatedAt = now()
	_, err := s.pg.NewInsert(m).
		OnConflict("(agent) DO UPDATE").
		Set("threshold_minor = EXCLUDED.threshold_minor").
		Set("threshold_currency = EXCLUDED.threshold_currency").
		Set("signers = EXCLUDED.signers").
		Set("approvals = EXCLUDED.approvals").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, settle.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Issuer != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("issuer = $%d", argIdx), opts.Issuer.String())
	}
	if opts.Recipient != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("recipient = $%d", argIdx), opts.Recipient.String())
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return settle.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) CreateDispute(ctx context.Context, d *invoice.Dispute) error {
	m := toDisputeModel(d)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetDispute(ctx context.Context, invID id.InvoiceID) (*invoice.Dispute, error) {
	m := new(disputeModel)
	err := s.pg.NewSelect(m).
		Where("invoice_id = $1", invID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, settle.ErrDisputeNotFound
		}
		return nil, err
	}
	return fromDisputeModel(m)
}

func (s *Store) UpdateDispute(ctx context.Context, d *invoice.Dispute) error {
	m := toDisputeModel(d)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return settle.ErrDisputeNotFound
	}
	return nil
}

func (s *Store) AddProtocolFees(ctx context.Context, fee types.Money) error {
	if fee.IsZero() {
		return nil
	}
	var total int64
	return s.pg.NewRaw(`
		INSERT INTO settle_protocol_fees (currency, amount_minor)
		VALUES ($1, $2)
		ON CONFLICT (currency) DO UPDATE
		SET amount_minor = settle_protocol_fees.amount_minor + EXCLUDED.amount_minor
		RETURNING amount_minor
	`, fee.Currency, fee.Amount).Scan(ctx, &total)
}

func (s *Store) ProtocolFees(ctx context.Context, currency string) (types.Money, error) {
	var total int64
	err := s.pg.NewRaw(`
		SELECT COALESCE(SUM(amount_minor), 0) FROM settle_protocol_fees
		WHERE currency = $1
	`, currency).Scan(ctx, &total)
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: total, Currency: currency}, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, settle.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Subscriber != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("subscriber = $%d", argIdx), opts.Subscriber.String())
	}
	if opts.Provider != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("provider = $%d", argIdx), opts.Provider.String())
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	q := s.pg.NewSelect(&models).
		Where("status = $1", string(subscription.StatusActive)).
		Where("next_billing <= $2", asOf).
		OrderExpr("next_billing ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return settle.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Event Store ====================

func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	data, _ := json.Marshal(e.Data) //nolint:errcheck // best-effort
	if len(data) == 0 {
		data = []byte("{}")
	}

	var seq int64
	err := s.pg.NewRaw(`
		INSERT INTO settle_events (id, kind, at, actor, subject, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, e.ID.String(), string(e.Kind), e.At, e.Actor.String(), e.Subject.String(), data).Scan(ctx, &seq)
	if err != nil {
		return err
	}

	e.Seq = seq
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.AfterSeq > 0 {
		argIdx++
		q = q.Where(fmt.Sprintf("seq > $%d", argIdx), opts.AfterSeq)
	}
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
