package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Settle store.
var Migrations = migrate.NewGroup("settle")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_settle_allowances",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS settle_allowances (
    id             TEXT PRIMARY KEY,
    owner          TEXT NOT NULL DEFAULT '',
    agent          TEXT NOT NULL DEFAULT '',
    limit_minor    BIGINT NOT NULL DEFAULT 0,
    limit_currency TEXT NOT NULL DEFAULT '',
    period         TEXT NOT NULL DEFAULT 'monthly',
    spent_minor    BIGINT NOT NULL DEFAULT 0,
    last_reset     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    rollover       BOOLEAN NOT NULL DEFAULT FALSE,
    active         BOOLEAN NOT NULL DEFAULT TRUE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_settle_allowances_owner ON settle_allowances (owner);
CREATE INDEX IF NOT EXISTS idx_settle_allowances_agent ON settle_allowances (agent);
CREATE INDEX IF NOT EXISTS idx_settle_allowances_owner_agent ON settle_allowances (owner, agent);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS settle_allowances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_settle_multisig_configs",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS settle_multisig_configs (
    agent              TEXT PRIMARY KEY,
    threshold_minor    BIGINT NOT NULL DEFAULT 0,
    threshold_currency TEXT NOT NULL DEFAULT '',
    signers            JSONB NOT NULL DEFAULT '[]',
    approvals          JSONB NOT NULL DEFAULT '{}',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS settle_multisig_configs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_settle_invoices",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS settle_invoices (
    id              TEXT PRIMARY KEY,
    issuer          TEXT NOT NULL DEFAULT '',
    recipient       TEXT NOT NULL DEFAULT '',
    amount_minor    BIGINT NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT '',
    paid_minor      BIGINT NOT NULL DEFAULT 0,
    escrow_minor    BIGINT NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'draft',
    description     TEXT NOT NULL DEFAULT '',
    due_date        TIMESTAMPTZ,
    partial_payment BOOLEAN NOT NULL DEFAULT FALSE,
    paid_at         TIMESTAMPTZ,
    cancelled_at    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_settle_invoices_issuer ON settle_invoices (issuer);
CREATE INDEX IF NOT EXISTS idx_settle_invoices_recipient ON settle_invoices (recipient);
CREATE INDEX IF NOT EXISTS idx_settle_invoices_status ON settle_invoices (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS settle_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_settle_disputes",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS settle_disputes (
    id         TEXT PRIMARY KEY,
    invoice_id TEXT NOT NULL DEFAULT '',
    initiator  TEXT NOT NULL DEFAULT '',
    reason     TEXT NOT NULL DEFAULT '',
    validators JSONB NOT NULL DEFAULT '[]',
    approvals  INT NOT NULL DEFAULT 0,
    resolved   BOOLEAN NOT NULL DEFAULT FALSE,
    refunded   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_settle_disputes_invoice ON settle_disputes (invoice_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS settle_disputes`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_settle_subscriptions",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS settle_subscriptions (
    id               TEXT PRIMARY KEY,
    subscriber       TEXT NOT NULL DEFAULT '',
    provider         TEXT NOT NULL DEFAULT '',
    amount_minor     BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT '',
    billing_interval TEXT NOT NULL DEFAULT 'monthly',
    status           TEXT NOT NULL DEFAULT 'active',
    allowance_id     TEXT NOT NULL DEFAULT '',
    next_billing     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_billed      TIMESTAMPTZ,
    failed_billings  INT NOT NULL DEFAULT 0,
    total_paid_minor BIGINT NOT NULL DEFAULT 0,
    cancelled_at     TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_settle_subs_subscriber ON settle_subscriptions (subscriber);
CREATE INDEX IF NOT EXISTS idx_settle_subs_provider ON settle_subscriptions (provider);
CREATE INDEX IF NOT EXISTS idx_settle_subs_due ON settle_subscriptions (status, next_billing);
CREATE INDEX IF NOT EXISTS idx_settle_subs_allowance ON settle_subscriptions (allowance_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS settle_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_settle_protocol_fees",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS settle_protocol_fees (
    currency     TEXT PRIMARY KEY,
    amount_minor BIGINT NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS settle_protocol_fees`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_settle_events",
			Version: "20240101000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS settle_events (
    seq     BIGSERIAL PRIMARY KEY,
    id      TEXT NOT NULL UNIQUE,
    kind    TEXT NOT NULL DEFAULT '',
    at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    actor   TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    data    JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_settle_events_kind ON settle_events (kind, seq);
CREATE INDEX IF NOT EXISTS idx_settle_events_subject ON settle_events (subject);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS settle_events`)
				return err
			},
		},
	)
}
