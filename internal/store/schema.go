package store

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    owner_name TEXT NOT NULL,
    owner_email TEXT NOT NULL,
    owner_org TEXT NOT NULL,
    mailbox_address TEXT NOT NULL,
    access_token TEXT NOT NULL,
    refresh_token TEXT,
    token_expiry DATETIME NOT NULL,
    watch_history_id TEXT,
    watch_expiry DATETIME,
    watch_channel TEXT,
    registered_at DATETIME NOT NULL,
    last_renewed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_accounts_mailbox ON accounts(mailbox_address);
CREATE INDEX IF NOT EXISTS idx_accounts_watch_expiry ON accounts(watch_expiry);
`
