package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template is a user-authored reusable prompt.
type Template struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Prompt    string `json:"prompt"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// ErrNotFound is returned when no template exists under the requested id.
var ErrNotFound = errors.New("templates: not found")

// Store persists prompt templates in the local SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore prepares the template table and returns a store over db.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("templates: database is required")
	}
	const schema = `CREATE TABLE IF NOT EXISTS templates (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		prompt     TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("templates: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// List returns every template, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, prompt, created_at, updated_at
		 FROM templates ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("templates: list: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var tpl Template
		if err := rows.Scan(&tpl.ID, &tpl.Title, &tpl.Prompt, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("templates: scan: %w", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("templates: list: %w", err)
	}
	return out, nil
}

// Get returns one template by id.
func (s *Store) Get(ctx context.Context, id string) (Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, prompt, created_at, updated_at FROM templates WHERE id = ?`, id)
	var tpl Template
	if err := row.Scan(&tpl.ID, &tpl.Title, &tpl.Prompt, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Template{}, ErrNotFound
		}
		return Template{}, fmt.Errorf("templates: get: %w", err)
	}
	return tpl, nil
}

// Put creates or updates a template. A missing id means a new template and
// gets one assigned; the stored record is returned either way.
func (s *Store) Put(ctx context.Context, tpl Template) (Template, error) {
	tpl.Title = strings.TrimSpace(tpl.Title)
	tpl.Prompt = strings.TrimSpace(tpl.Prompt)
	if tpl.Title == "" {
		return Template{}, errors.New("templates: title is required")
	}
	if tpl.Prompt == "" {
		return Template{}, errors.New("templates: prompt is required")
	}

	now := time.Now().Unix()
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
		tpl.CreatedAt = now
		tpl.UpdatedAt = now
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO templates (id, title, prompt, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			tpl.ID, tpl.Title, tpl.Prompt, tpl.CreatedAt, tpl.UpdatedAt)
		if err != nil {
			return Template{}, fmt.Errorf("templates: insert: %w", err)
		}
		return tpl, nil
	}

	existing, err := s.Get(ctx, tpl.ID)
	if err != nil {
		return Template{}, err
	}
	tpl.CreatedAt = existing.CreatedAt
	tpl.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`UPDATE templates SET title = ?, prompt = ?, updated_at = ? WHERE id = ?`,
		tpl.Title, tpl.Prompt, tpl.UpdatedAt, tpl.ID)
	if err != nil {
		return Template{}, fmt.Errorf("templates: update: %w", err)
	}
	return tpl, nil
}

// Delete removes a template by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("templates: delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
