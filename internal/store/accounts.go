package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Upsert writes the full account record, replacing an existing row with the
// same id. Credential fields are encrypted before the write. The statement
// is a single atomic insert-or-update; no partially constructed account is
// ever visible.
func (s *Store) Upsert(ctx context.Context, a *Account) error {
	row, err := s.toRow(a)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (
			id, owner_name, owner_email, owner_org, mailbox_address,
			access_token, refresh_token, token_expiry,
			watch_history_id, watch_expiry, watch_channel,
			registered_at, last_renewed_at
		) VALUES (
			:id, :owner_name, :owner_email, :owner_org, :mailbox_address,
			:access_token, :refresh_token, :token_expiry,
			:watch_history_id, :watch_expiry, :watch_channel,
			:registered_at, :last_renewed_at
		)
		ON CONFLICT(id) DO UPDATE SET
			owner_name = excluded.owner_name,
			owner_email = excluded.owner_email,
			owner_org = excluded.owner_org,
			mailbox_address = excluded.mailbox_address,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			watch_history_id = excluded.watch_history_id,
			watch_expiry = excluded.watch_expiry,
			watch_channel = excluded.watch_channel,
			last_renewed_at = excluded.last_renewed_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("store: failed to upsert account: %w", err)
	}
	return nil
}

// GetByID loads one account with decrypted credentials.
func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM accounts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to get account: %w", err)
	}
	return s.fromRow(&row)
}

// GetByMailbox looks up an account by mailbox address. If multiple accounts
// share an address that is a data-integrity problem, not a supported case;
// one of them is returned.
func (s *Store) GetByMailbox(ctx context.Context, address string) (*Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM accounts WHERE mailbox_address = ? LIMIT 1`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to get account by mailbox: %w", err)
	}
	return s.fromRow(&row)
}

// ListExpiringBefore returns every account whose subscription expires at or
// before the given instant. Accounts without a subscription are excluded.
func (s *Store) ListExpiringBefore(ctx context.Context, instant time.Time) ([]*Account, error) {
	var rows []accountRow
	query := `
		SELECT * FROM accounts
		WHERE watch_expiry IS NOT NULL AND watch_expiry <= ?
		ORDER BY watch_expiry ASC
	`
	if err := s.db.SelectContext(ctx, &rows, query, instant); err != nil {
		return nil, fmt.Errorf("store: failed to list expiring accounts: %w", err)
	}

	accounts := make([]*Account, 0, len(rows))
	for i := range rows {
		a, err := s.fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// UpdateSubscription sets or clears the subscription fields for an account.
// Setting also stamps last_renewed_at; clearing does not. A non-future
// expiry is rejected rather than persisted: a stale expiry is evidence of a
// bug upstream, not a valid state.
func (s *Store) UpdateSubscription(ctx context.Context, id string, sub *Subscription) error {
	var res sql.Result
	var err error

	if sub == nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE accounts
			SET watch_history_id = NULL, watch_expiry = NULL, watch_channel = NULL
			WHERE id = ?
		`, id)
	} else {
		now := time.Now().UTC()
		if !sub.Expiry.After(now) {
			return fmt.Errorf("store: refusing to persist non-future subscription expiry %s", sub.Expiry)
		}
		res, err = s.db.ExecContext(ctx, `
			UPDATE accounts
			SET watch_history_id = ?, watch_expiry = ?, watch_channel = ?, last_renewed_at = ?
			WHERE id = ?
		`, sub.HistoryID, sub.Expiry, sub.Channel, now, id)
	}
	if err != nil {
		return fmt.Errorf("store: failed to update subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: failed to check update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCredentials persists a refreshed token set for an account. There is
// no transactional guard against a concurrent refresh of the same account;
// last writer wins.
func (s *Store) UpdateCredentials(ctx context.Context, id string, creds Credentials) error {
	access, refresh, err := s.encryptCredentials(creds)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET access_token = ?, refresh_token = ?, token_expiry = ? WHERE id = ?
	`, access, refresh, creds.Expiry, id)
	if err != nil {
		return fmt.Errorf("store: failed to update credentials: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: failed to check update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) encryptCredentials(creds Credentials) (access string, refresh sql.NullString, err error) {
	access, err = s.vault.EncryptString(creds.AccessToken)
	if err != nil {
		return "", sql.NullString{}, err
	}
	if creds.RefreshToken != "" {
		enc, err := s.vault.EncryptString(creds.RefreshToken)
		if err != nil {
			return "", sql.NullString{}, err
		}
		refresh = sql.NullString{String: enc, Valid: true}
	}
	return access, refresh, nil
}

func (s *Store) toRow(a *Account) (*accountRow, error) {
	access, refresh, err := s.encryptCredentials(a.Credentials)
	if err != nil {
		return nil, err
	}

	row := &accountRow{
		ID:             a.ID,
		OwnerName:      a.OwnerName,
		OwnerEmail:     a.OwnerEmail,
		OwnerOrg:       a.OwnerOrg,
		MailboxAddress: a.MailboxAddress,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiry:    a.Credentials.Expiry,
		RegisteredAt:   a.RegisteredAt,
	}
	if a.Subscription != nil {
		row.WatchHistoryID = sql.NullString{String: a.Subscription.HistoryID, Valid: true}
		row.WatchExpiry = sql.NullTime{Time: a.Subscription.Expiry, Valid: true}
		row.WatchChannel = sql.NullString{String: a.Subscription.Channel, Valid: true}
	}
	if a.LastRenewedAt != nil {
		row.LastRenewedAt = sql.NullTime{Time: *a.LastRenewedAt, Valid: true}
	}
	return row, nil
}

func (s *Store) fromRow(row *accountRow) (*Account, error) {
	access, err := s.vault.DecryptString(row.AccessToken)
	if err != nil {
		return nil, err
	}

	a := &Account{
		ID:             row.ID,
		OwnerName:      row.OwnerName,
		OwnerEmail:     row.OwnerEmail,
		OwnerOrg:       row.OwnerOrg,
		MailboxAddress: row.MailboxAddress,
		Credentials: Credentials{
			AccessToken: access,
			Expiry:      row.TokenExpiry,
		},
		RegisteredAt: row.RegisteredAt,
	}
	if row.RefreshToken.Valid {
		refresh, err := s.vault.DecryptString(row.RefreshToken.String)
		if err != nil {
			return nil, err
		}
		a.Credentials.RefreshToken = refresh
	}
	if row.WatchExpiry.Valid {
		a.Subscription = &Subscription{
			HistoryID: row.WatchHistoryID.String,
			Expiry:    row.WatchExpiry.Time,
			Channel:   row.WatchChannel.String,
		}
	}
	if row.LastRenewedAt.Valid {
		t := row.LastRenewedAt.Time
		a.LastRenewedAt = &t
	}
	return a, nil
}
