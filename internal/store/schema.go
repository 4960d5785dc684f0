package store

// Schema creates the postgres tables. It is idempotent and runs on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    code              TEXT PRIMARY KEY,
    quantity          NUMERIC NOT NULL DEFAULT 0,
    default_buy_rate  NUMERIC NOT NULL DEFAULT 0,
    default_sell_rate NUMERIC NOT NULL DEFAULT 0,
    version           INTEGER NOT NULL DEFAULT 1,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id             TEXT PRIMARY KEY,
    currency_code  TEXT NOT NULL,
    operation_type TEXT NOT NULL CHECK (operation_type IN ('Purchase', 'Sale', 'Deposit')),
    rate           NUMERIC NOT NULL,
    quantity       NUMERIC NOT NULL,
    total          NUMERIC NOT NULL,
    username       TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_created
    ON ledger_entries(created_at, id);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_created
    ON ledger_entries(username, created_at);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_currency
    ON ledger_entries(currency_code);

CREATE TABLE IF NOT EXISTS users (
    username      TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('admin', 'teller')),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ledger_meta (
    key   TEXT PRIMARY KEY,
    value BIGINT NOT NULL
);

INSERT INTO ledger_meta (key, value) VALUES ('generation', 0)
    ON CONFLICT (key) DO NOTHING;
`
