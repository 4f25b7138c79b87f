package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Settle store (SQLite).
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
    limit_minor    INTEGER NOT NULL DEFAULT 0,
    limit_currency TEXT NOT NULL DEFAULT '',
    period         TEXT NOT NULL DEFAULT 'monthly',
    spent_minor    INTEGER NOT NULL DEFAULT 0,
    last_reset     TEXT NOT NULL DEFAULT (datetime('now')),
    rollover       INTEGER NOT NULL DEFAULT 0,
    active         INTEGER NOT NULL DEFAULT 1,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
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
    threshold_minor    INTEGER NOT NULL DEFAULT 0,
    threshold_currency TEXT NOT NULL DEFAULT '',
    signers            TEXT NOT NULL DEFAULT '[]',
    approvals          TEXT NOT NULL DEFAULT '{}',
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
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
    amount_minor    INTEGER NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT '',
    paid_minor      INTEGER NOT NULL DEFAULT 0,
    escrow_minor    INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'draft',
    description     TEXT NOT NULL DEFAULT '',
    due_date        TEXT,
    partial_payment INTEGER NOT NULL DEFAULT 0,
    paid_at         TEXT,
    cancelled_at    TEXT,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
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
    validators TEXT NOT NULL DEFAULT '[]',
    approvals  INTEGER NOT NULL DEFAULT 0,
    resolved   INTEGER NOT NULL DEFAULT 0,
    refunded   INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
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
    amount_minor     INTEGER NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT '',
    billing_interval TEXT NOT NULL DEFAULT 'monthly',
    status           TEXT NOT NULL DEFAULT 'active',
    allowance_id     TEXT NOT NULL DEFAULT '',
    next_billing     TEXT NOT NULL DEFAULT (datetime('now')),
    last_billed      TEXT,
    failed_billings  INTEGER NOT NULL DEFAULT 0,
    total_paid_minor INTEGER NOT NULL DEFAULT 0,
    cancelled_at     TEXT,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
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
    amount_minor INTEGER NOT NULL DEFAULT 0
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
    seq     INTEGER PRIMARY KEY AUTOINCREMENT,
    id      TEXT NOT NULL UNIQUE,
    kind    TEXT NOT NULL DEFAULT '',
    at      TEXT NOT NULL DEFAULT (datetime('now')),
    actor   TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    data    TEXT NOT NULL DEFAULT '{}'
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
