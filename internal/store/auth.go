package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const authPrefixLen = 22

// AuthStore is the read-mostly publishers table backing hybrid
// exact/prefix token authorization (SPEC_FULL.md §4.C).
type AuthStore struct {
	db    *sql.DB
	table string
}

// NewAuthStore wraps an already-open *sql.DB (driver "sqlite3").
func NewAuthStore(db *sql.DB, tableName string) (*AuthStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db is nil", ErrInvalidInput)
	}
	if tableName == "" {
		tableName = "publishers"
	}
	if err := validateTableName(tableName); err != nil {
		return nil, err
	}
	return &AuthStore{db: db, table: tableName}, nil
}

// EnsureSchema idempotently creates the publishers table.
func (a *AuthStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		authval TEXT PRIMARY KEY,
		name    TEXT NOT NULL DEFAULT ''
	)`, a.table)
	if _, err := a.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrDB, err)
	}
	return nil
}

// Authorized reports whether token is accepted, first by exact match, then
// by the documented 22-character prefix match (SPEC_FULL.md §4.C). Tokens
// shorter than authPrefixLen can only match exactly.
func (a *AuthStore) Authorized(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	if ok, err := a.checkExact(ctx, token); err != nil || ok {
		return ok, err
	}
	if len(token) < authPrefixLen {
		return false, nil
	}
	return a.checkPrefix(ctx, token[:authPrefixLen])
}

func (a *AuthStore) checkExact(ctx context.Context, token string) (bool, error) {
	q := fmt.Sprintf(`SELECT 1 FROM %s WHERE authval = ? LIMIT 1`, a.table)
	var dummy int
	err := a.db.QueryRowContext(ctx, q, token).Scan(&dummy)
	switch {
	case err == nil:
		return true, nil
	case err == sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("%w: check exact: %v", ErrDB, err)
	}
}

func (a *AuthStore) checkPrefix(ctx context.Context, prefix string) (bool, error) {
	q := fmt.Sprintf(`SELECT 1 FROM %s WHERE substr(authval, 1, ?) = ? LIMIT 1`, a.table)
	var dummy int
	err := a.db.QueryRowContext(ctx, q, authPrefixLen, prefix).Scan(&dummy)
	switch {
	case err == nil:
		return true, nil
	case err == sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("%w: check prefix: %v", ErrDB, err)
	}
}

// ListNames returns every publisher's display name (never its token) in
// insertion order, for the /publishers listing endpoint.
func (a *AuthStore) ListNames(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf(`SELECT name FROM %s ORDER BY rowid ASC`, a.table)
	rows, err := a.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrDB, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrDB, err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces a publisher token, used by the seed loader.
func (a *AuthStore) Upsert(ctx context.Context, token, name string) error {
	q := fmt.Sprintf(`INSERT INTO %s (authval, name) VALUES (?, ?)
		ON CONFLICT(authval) DO UPDATE SET name = excluded.name`, a.table)
	if _, err := a.db.ExecContext(ctx, q, token, name); err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrDB, err)
	}
	return nil
}
