// Package store persists relay contacts and message envelopes in sqlite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harrylevesque/dwetransfer/internal/messaging"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

// Open opens sqlite at path and applies migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// PutContact inserts or replaces the contact for c.Address.
func (s *Store) PutContact(ctx context.Context, c messaging.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (address, public_key, signature, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET public_key = excluded.public_key, signature = excluded.signature`,
		c.Address, c.PublicKey, c.Signature, now())
	return err
}

func (s *Store) GetContact(ctx context.Context, address string) (messaging.Contact, error) {
	var c messaging.Contact
	err := s.db.QueryRowContext(ctx,
		`SELECT address, public_key, signature FROM contacts WHERE address = ?`, address).
		Scan(&c.Address, &c.PublicKey, &c.Signature)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// AddMessage stores env under a new id and returns it.
func (s *Store) AddMessage(ctx context.Context, env messaging.Envelope) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, recipient, sender, ciphertext, signature, sent_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, env.Recipient, env.Sender, env.Ciphertext, env.Signature, env.SentAt.UTC(), now())
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListMessages returns the envelopes addressed to recipient, oldest first.
func (s *Store) ListMessages(ctx context.Context, recipient string) ([]messaging.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient, sender, ciphertext, signature, sent_at
		FROM messages WHERE recipient = ? ORDER BY rowid`, recipient)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []messaging.Envelope
	for rows.Next() {
		var e messaging.Envelope
		if err := rows.Scan(&e.ID, &e.Recipient, &e.Sender, &e.Ciphertext, &e.Signature, &e.SentAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func now() time.Time {
	return time.Now().UTC()
}
