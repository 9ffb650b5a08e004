package store

import (
	"database/sql"
	"time"
)

// Credentials is the decrypted token set for an account. RefreshToken is
// empty for accounts that never granted offline access; such accounts
// cannot be auto-renewed.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// HasRefreshToken reports whether the account granted offline access.
func (c Credentials) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// Subscription is the provider-side push registration for an account's
// inbox. HistoryID is the opaque continuation cursor returned by the
// provider's watch call.
type Subscription struct {
	HistoryID string
	Expiry    time.Time
	Channel   string
}

// Account is one registered mailbox authorization.
type Account struct {
	ID             string
	OwnerName      string
	OwnerEmail     string
	OwnerOrg       string
	MailboxAddress string
	Credentials    Credentials
	Subscription   *Subscription
	RegisteredAt   time.Time
	LastRenewedAt  *time.Time
}

// accountRow is the raw database representation.
type accountRow struct {
	ID             string         `db:"id"`
	OwnerName      string         `db:"owner_name"`
	OwnerEmail     string         `db:"owner_email"`
	OwnerOrg       string         `db:"owner_org"`
	MailboxAddress string         `db:"mailbox_address"`
	AccessToken    string         `db:"access_token"`
	RefreshToken   sql.NullString `db:"refresh_token"`
	TokenExpiry    time.Time      `db:"token_expiry"`
	WatchHistoryID sql.NullString `db:"watch_history_id"`
	WatchExpiry    sql.NullTime   `db:"watch_expiry"`
	WatchChannel   sql.NullString `db:"watch_channel"`
	RegisteredAt   time.Time      `db:"registered_at"`
	LastRenewedAt  sql.NullTime   `db:"last_renewed_at"`
}
