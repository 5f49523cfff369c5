package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Circulation store.
var Migrations = migrate.NewGroup("circulation")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_circ_items",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circ_items (
    id             BIGSERIAL PRIMARY KEY,
    title          TEXT NOT NULL DEFAULT '',
    author         TEXT NOT NULL DEFAULT '',
    content_uri    TEXT NOT NULL DEFAULT '',
    license        TEXT NOT NULL DEFAULT '',
    manifest_uri   TEXT NOT NULL DEFAULT '',
    provenance_uri TEXT NOT NULL DEFAULT '',
    contributors   JSONB NOT NULL DEFAULT '[]',
    paused         BOOLEAN NOT NULL DEFAULT FALSE,
    created_by     TEXT NOT NULL DEFAULT '',
    metadata       JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_circ_items_author ON circ_items (author);
CREATE INDEX IF NOT EXISTS idx_circ_items_paused ON circ_items (paused);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circ_items`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circ_loans",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circ_loans (
    borrower         TEXT NOT NULL,
    item_id          BIGINT NOT NULL,
    loan_id          TEXT NOT NULL,
    due_date         TIMESTAMPTZ NOT NULL,
    deposit_cents    BIGINT NOT NULL DEFAULT 0,
    deposit_currency TEXT NOT NULL DEFAULT '',
    extensions_used  INT NOT NULL DEFAULT 0,
    opened_at        TIMESTAMPTZ NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (borrower, item_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_circ_loans_loan_id ON circ_loans (loan_id);
CREATE INDEX IF NOT EXISTS idx_circ_loans_due ON circ_loans (due_date);
CREATE INDEX IF NOT EXISTS idx_circ_loans_item ON circ_loans (item_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circ_loans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circ_escrow",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circ_escrow (
    loan_id         TEXT PRIMARY KEY,
    borrower        TEXT NOT NULL DEFAULT '',
    amount_cents    BIGINT NOT NULL DEFAULT 0,
    amount_currency TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_circ_escrow_borrower ON circ_escrow (borrower);

CREATE TABLE IF NOT EXISTS circ_pool (
    id           INT PRIMARY KEY CHECK (id = 1),
    amount_cents BIGINT NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT ''
);

INSERT INTO circ_pool (id, amount_cents, currency) VALUES (1, 0, '')
ON CONFLICT (id) DO NOTHING;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circ_escrow; DROP TABLE IF EXISTS circ_pool`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circ_holdings",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circ_holdings (
    account    TEXT NOT NULL,
    item_id    BIGINT NOT NULL,
    units      BIGINT NOT NULL DEFAULT 0 CHECK (units >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (account, item_id)
);

CREATE INDEX IF NOT EXISTS idx_circ_holdings_account ON circ_holdings (account);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circ_holdings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circ_policy_roles",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circ_policy (
    id               INT PRIMARY KEY CHECK (id = 1),
    loan_duration_ns BIGINT NOT NULL DEFAULT 0,
    deposit_cents    BIGINT NOT NULL DEFAULT 0,
    deposit_currency TEXT NOT NULL DEFAULT '',
    grace_ns         BIGINT NOT NULL DEFAULT 0,
    extension_ns     BIGINT NOT NULL DEFAULT 0,
    max_extensions   INT NOT NULL DEFAULT 0,
    branch           TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS circ_roles (
    id         INT PRIMARY KEY CHECK (id = 1),
    steward    TEXT NOT NULL DEFAULT '',
    renounced  BOOLEAN NOT NULL DEFAULT FALSE,
    curators   JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circ_policy; DROP TABLE IF EXISTS circ_roles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circ_cards",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circ_cards (
    id         TEXT PRIMARY KEY,
    account    TEXT NOT NULL DEFAULT '',
    tier       TEXT NOT NULL DEFAULT '',
    issued_by  TEXT NOT NULL DEFAULT '',
    issued_at  TIMESTAMPTZ NOT NULL,
    revoked_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_circ_cards_account ON circ_cards (account);
CREATE UNIQUE INDEX IF NOT EXISTS idx_circ_cards_active ON circ_cards (account) WHERE revoked_at IS NULL;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circ_cards`)
				return err
			},
		},
	)
}
