package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/relayworks/mailwatch/internal/vault"
)

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("store: account not found")

// Store is the durable per-account record keeper. Credential fields are
// encrypted through the vault before they touch disk and decrypted on read.
// The store never retries internally; backend failures surface to callers.
type Store struct {
	db    *sqlx.DB
	vault *vault.Vault
}

// New opens the SQLite database at path and prepares the schema.
func New(path string, v *vault.Vault) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to connect to database: %w", err)
	}

	s := &Store{db: db, vault: v}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: failed to run migrations: %w", err)
	}
	return nil
}

// Ping verifies the backend is reachable. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
