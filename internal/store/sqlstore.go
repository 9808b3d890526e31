package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

type SQLStore struct {
	db           *sqlx.DB
	dialect      dialect
	queryTimeout time.Duration
}

// NewSQLStore opens a pooled connection to the database, verifies it and
// creates the users and instructions tables when missing.
func NewSQLStore(driver, dataSourceName string, queryTimeout time.Duration) (*SQLStore, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	store := &SQLStore{db: db, dialect: d, queryTimeout: queryTimeout}

	ctx, cancel := store.withTimeout(context.Background())
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err = store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// User methods
func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var user User
	query := s.db.Rebind("SELECT username, password_hash, role, created_at FROM users WHERE username = ?")
	if err := s.db.GetContext(ctx, &user, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user record. Users are provisioned out-of-band; the
// HTTP API never calls this.
func (s *SQLStore) CreateUser(ctx context.Context, username, passwordHash, role string) (*User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	query := s.db.Rebind("INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)")
	if _, err := s.db.ExecContext(ctx, query, username, passwordHash, role, now); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &User{Username: username, PasswordHash: passwordHash, Role: role, CreatedAt: now}, nil
}

// Instructions methods
func (s *SQLStore) GetInstructions(ctx context.Context) (*Instructions, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var ins Instructions
	if err := s.db.GetContext(ctx, &ins, "SELECT text, temperature FROM instructions WHERE id = 1"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No row saved yet
		}
		return nil, fmt.Errorf("failed to query instructions: %w", err)
	}
	return &ins, nil
}

// SaveInstructions replaces the singleton row wholesale. The temperature range is
// not checked here.
func (s *SQLStore) SaveInstructions(ctx context.Context, text string, temperature float64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(s.dialect.upsertInstruction), text, temperature); err != nil {
		return fmt.Errorf("failed to save instructions: %w", err)
	}
	return nil
}
