// Package postgres provides a pgx-backed implementation of both sessionauth
// collaborator contracts. The refresh slot lives on the principal row itself
// (current_refresh_token), so a deployment that already keeps users in
// Postgres needs no second store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sessionauth/sessionauth"
)

//go:embed schema.sql
var schemaSQL string

// DB is the subset of pgxpool.Pool the store uses. pgxmock satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements sessionauth.PrincipalStore and sessionauth.SessionStore
// on a single principals table.
type Store struct {
	db DB
}

// Connect opens a pgx pool for the given DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// NewStore wraps an open pool (or a mock) in a Store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Migrate creates the principals table and its uniqueness indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

const principalColumns = `id, username, email, display_name, secret_digest,
	COALESCE(current_refresh_token, ''), avatar_url, cover_url, created_at, updated_at`

// FindByIdentifier resolves a principal by username or email,
// case-insensitively.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*sessionauth.Principal, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+principalColumns+`
		 FROM principals
		 WHERE lower(username) = lower($1) OR lower(email) = lower($1)`,
		identifier)
	return scanPrincipal(row)
}

// FindByID resolves a principal by its stable id.
func (s *Store) FindByID(ctx context.Context, id string) (*sessionauth.Principal, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+principalColumns+`
		 FROM principals
		 WHERE id = $1`,
		id)
	return scanPrincipal(row)
}

// Create inserts a principal. Username or email collisions surface as
// sessionauth.ErrConflict.
func (s *Store) Create(ctx context.Context, p *sessionauth.Principal) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO principals
		   (id, username, email, display_name, secret_digest, avatar_url, cover_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Username, p.Email, p.DisplayName, p.SecretDigest,
		p.AvatarURL, p.CoverURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return sessionauth.ErrConflict
		}
		return fmt.Errorf("postgres: create principal: %w", err)
	}
	return nil
}

// UpdateSecretDigest replaces the stored digest for one principal.
func (s *Store) UpdateSecretDigest(ctx context.Context, id, digest string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE principals SET secret_digest = $2, updated_at = now() WHERE id = $1`,
		id, digest)
	if err != nil {
		return fmt.Errorf("postgres: update secret digest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sessionauth.ErrNotFound
	}
	return nil
}

// UpdateProfile replaces the mutable profile fields.
func (s *Store) UpdateProfile(ctx context.Context, id, displayName, email string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE principals SET display_name = $2, email = $3, updated_at = now() WHERE id = $1`,
		id, displayName, email)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return sessionauth.ErrConflict
		}
		return fmt.Errorf("postgres: update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sessionauth.ErrNotFound
	}
	return nil
}

// Get reads the refresh slot. A missing principal and an empty slot both
// report "", matching the SessionStore contract.
func (s *Store) Get(ctx context.Context, principalID string) (string, error) {
	var value string
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(current_refresh_token, '') FROM principals WHERE id = $1`,
		principalID).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: get refresh slot: %w", err)
	}
	return value, nil
}

// Set overwrites the refresh slot for one principal.
func (s *Store) Set(ctx context.Context, principalID, refreshToken string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE principals SET current_refresh_token = $2, updated_at = now() WHERE id = $1`,
		principalID, refreshToken)
	if err != nil {
		return fmt.Errorf("postgres: set refresh slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sessionauth.ErrNotFound
	}
	return nil
}

// Clear nulls the refresh slot. Clearing an unknown principal is a no-op.
func (s *Store) Clear(ctx context.Context, principalID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE principals SET current_refresh_token = NULL, updated_at = now() WHERE id = $1`,
		principalID)
	if err != nil {
		return fmt.Errorf("postgres: clear refresh slot: %w", err)
	}
	return nil
}

func scanPrincipal(row pgx.Row) (*sessionauth.Principal, error) {
	var p sessionauth.Principal
	err := row.Scan(
		&p.ID, &p.Username, &p.Email, &p.DisplayName, &p.SecretDigest,
		&p.CurrentRefreshToken, &p.AvatarURL, &p.CoverURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sessionauth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan principal: %w", err)
	}
	return &p, nil
}
