package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ProviderVideoAPI is the row key for the remote video generation API.
	ProviderVideoAPI = "videoapi"
)

// Store keeps API tokens in the local SQLite database, one row per provider.
type Store struct {
	db *sql.DB
}

// NewStore prepares the token table and returns a store over db.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("credentials: database is required")
	}
	const schema = `CREATE TABLE IF NOT EXISTS integration_tokens (
		provider   TEXT PRIMARY KEY,
		token      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("credentials: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Token returns the stored token for provider, or "" when none is set.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token FROM integration_tokens WHERE provider = ?`, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: read token: %w", err)
	}
	return strings.TrimSpace(token), nil
}

// SetToken stores or replaces the token for provider.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credentials: token is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO integration_tokens (provider, token, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		provider, token, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("credentials: store token: %w", err)
	}
	return nil
}

// DeleteToken removes the token for provider. Deleting an absent token is
// not an error.
func (s *Store) DeleteToken(ctx context.Context, provider string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM integration_tokens WHERE provider = ?`, provider); err != nil {
		return fmt.Errorf("credentials: delete token: %w", err)
	}
	return nil
}
