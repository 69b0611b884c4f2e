// Package postgres provides PostgreSQL implementation of the store interfaces.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/narvanalabs/locum/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// NewPostgresStore creates a new PostgreSQL store with the given configuration.
func NewPostgresStore(cfg *Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL database")
	return &PostgresStore{db: db, logger: logger}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	s.logger.Info("database schema applied")
	return nil
}

// Jobs returns the JobStore.
func (s *PostgresStore) Jobs() store.JobStore {
	return &JobStore{db: s.db}
}

// Applications returns the ApplicationStore.
func (s *PostgresStore) Applications() store.ApplicationStore {
	return &ApplicationStore{db: s.db}
}

// Verifications returns the VerificationStore.
func (s *PostgresStore) Verifications() store.VerificationStore {
	return &VerificationStore{db: s.db}
}

// Invitations returns the InvitationStore.
func (s *PostgresStore) Invitations() store.InvitationStore {
	return &InvitationStore{db: s.db}
}

// Notifications returns the NotificationStore.
func (s *PostgresStore) Notifications() store.NotificationStore {
	return &NotificationStore{db: s.db}
}

// Memberships returns the MembershipStore.
func (s *PostgresStore) Memberships() store.MembershipStore {
	return &MembershipStore{db: s.db}
}

// Accounts returns the AccountStore.
func (s *PostgresStore) Accounts() store.AccountStore {
	return &AccountStore{db: s.db}
}

// WithTx executes the given function within a database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	// Create a transaction-scoped store
	txStore := &txStore{
		tx:     tx,
		logger: s.logger,
	}

	// Execute the function
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	// Commit the transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing PostgreSQL connection")
	return s.db.Close()
}

// DB returns the underlying database connection.
// The delivery queue shares it.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// txStore wraps a transaction and implements the Store interface.
type txStore struct {
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *txStore) Jobs() store.JobStore                   { return &JobStore{tx: s.tx} }
func (s *txStore) Applications() store.ApplicationStore   { return &ApplicationStore{tx: s.tx} }
func (s *txStore) Verifications() store.VerificationStore { return &VerificationStore{tx: s.tx} }
func (s *txStore) Invitations() store.InvitationStore     { return &InvitationStore{tx: s.tx} }
func (s *txStore) Notifications() store.NotificationStore { return &NotificationStore{tx: s.tx} }
func (s *txStore) Memberships() store.MembershipStore     { return &MembershipStore{tx: s.tx} }
func (s *txStore) Accounts() store.AccountStore           { return &AccountStore{tx: s.tx} }

func (s *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txStore) Close() error {
	// No-op for transaction store
	return nil
}

// queryable is an interface that both *sql.DB and *sql.Tx implement.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// handle is embedded by every sub-store and picks the transaction when present.
type handle struct {
	db *sql.DB
	tx *sql.Tx
}

func (h handle) conn() queryable {
	if h.tx != nil {
		return h.tx
	}
	return h.db
}
