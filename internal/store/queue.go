// Package store holds the gateway's two durable sqlite-backed tables: the
// notification queue (QueueStore) and the read-only publisher table
// (AuthStore). Both follow this codebase's database/sql store shape
// (Options{Clock, TableName}, validated table name, idempotent EnsureSchema)
// as established in services/storage/internal/relational/postgres_store.go,
// adapted from Postgres placeholders/ON CONFLICT syntax to SQLite's and from
// an object store to the queue's insert/upsert/select/mark/reset/delete
// operation set (SPEC_FULL.md §4.B).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/podcastindex/podping-gateway/internal/podping"
)

// Sentinel errors.
var (
	ErrInvalidInput = errors.New("store: invalid input")
	ErrDB           = errors.New("store: db error")
)

// Clock supplies the current time; overridable for deterministic tests.
type Clock func() time.Time

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateTableName(name string) error {
	if !validTableName.MatchString(name) {
		return fmt.Errorf("%w: invalid table name %q", ErrInvalidInput, name)
	}
	return nil
}

// Options configures a QueueStore.
type Options struct {
	// Clock supplies "now" for debounce/staleness comparisons. Defaults to
	// time.Now.
	Clock Clock
	// TableName overrides the queue table name (default "queue").
	TableName string
	// DebounceWindow is the minimum age before a row is eligible for
	// selection (default 15s, per SPEC_FULL.md §4.B).
	DebounceWindow time.Duration
	// StaleInflightWindow is the age after which an inflight row is eligible
	// for reset (default 180s).
	StaleInflightWindow time.Duration
	// BatchLimit bounds select_batch (default 1000).
	BatchLimit int
	// ResetLimit bounds reset_stale_inflight (default 25).
	ResetLimit int
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.TableName == "" {
		o.TableName = "queue"
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 15 * time.Second
	}
	if o.StaleInflightWindow <= 0 {
		o.StaleInflightWindow = 180 * time.Second
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = 1000
	}
	if o.ResetLimit <= 0 {
		o.ResetLimit = 25
	}
}

// QueueStore is the durable, ordered, keyed notification queue described in
// SPEC_FULL.md §4.B.
type QueueStore struct {
	db    *sql.DB
	opts  Options
	table string
}

// NewQueueStore wraps an already-open *sql.DB (driver "sqlite3").
func NewQueueStore(db *sql.DB, opts Options) (*QueueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db is nil", ErrInvalidInput)
	}
	opts.setDefaults()
	if err := validateTableName(opts.TableName); err != nil {
		return nil, err
	}
	return &QueueStore{db: db, opts: opts, table: opts.TableName}, nil
}

// EnsureSchema idempotently creates the queue table.
func (s *QueueStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		url       TEXT PRIMARY KEY,
		createdon INTEGER NOT NULL,
		reason    TEXT NOT NULL,
		medium    TEXT NOT NULL,
		inflight  BOOLEAN NOT NULL DEFAULT 0
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrDB, err)
	}
	return nil
}

// Insert applies the insert-or-upsert-or-reject rule of SPEC_FULL.md §4.B
// invariant 3.
func (s *QueueStore) Insert(ctx context.Context, n podping.Notification) (podping.InsertOutcome, error) {
	insertQ := fmt.Sprintf(`INSERT INTO %s (url, createdon, reason, medium, inflight) VALUES (?, ?, ?, ?, 0)`, s.table)
	_, err := s.db.ExecContext(ctx, insertQ, n.URL, n.EpochSecs, n.Reason.String(), n.Medium.String())
	if err == nil {
		return podping.Inserted, nil
	}
	if !isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: insert: %v", ErrDB, err)
	}
	if n.Reason != podping.ReasonLive && n.Reason != podping.ReasonLiveEnd {
		return podping.DuplicateRejected, nil
	}
	updateQ := fmt.Sprintf(`UPDATE %s SET createdon = ?, reason = ?, medium = ?, inflight = 0 WHERE url = ?`, s.table)
	res, err := s.db.ExecContext(ctx, updateQ, n.EpochSecs, n.Reason.String(), n.Medium.String(), n.URL)
	if err != nil {
		return 0, fmt.Errorf("%w: upsert: %v", ErrDB, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// Row vanished between the failed insert and this update (deleted by
		// the forwarder); treat as a fresh insert.
		if _, err := s.db.ExecContext(ctx, insertQ, n.URL, n.EpochSecs, n.Reason.String(), n.Medium.String()); err != nil {
			return 0, fmt.Errorf("%w: insert-after-vanish: %v", ErrDB, err)
		}
		return podping.Inserted, nil
	}
	return podping.Upserted, nil
}

// SelectBatch returns up to BatchLimit eligible rows, ordered by
// reason-priority (LiveEnd > Live > NewIRI > Update) then insertion order.
// This is the REDESIGN FLAG ordering from SPEC_FULL.md §9, replacing the
// original's accidental text-ascending sort.
func (s *QueueStore) SelectBatch(ctx context.Context, includeInflight bool) ([]podping.QueueRow, error) {
	s.opts.setDefaults()
	now := s.opts.Clock().Unix()
	cutoff := now - int64(s.opts.DebounceWindow/time.Second)

	inflightClause := "inflight = 0"
	if includeInflight {
		inflightClause = "inflight >= 0"
	}
	q := fmt.Sprintf(`SELECT url, createdon, reason, medium, inflight FROM %s
		WHERE %s AND createdon < ?
		ORDER BY
			CASE lower(reason)
				WHEN 'liveend' THEN 3
				WHEN 'live' THEN 2
				WHEN 'newiri' THEN 1
				ELSE 0
			END DESC,
			rowid ASC
		LIMIT ?`, s.table, inflightClause)

	rows, err := s.db.QueryContext(ctx, q, cutoff, s.opts.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: select batch: %v", ErrDB, err)
	}
	defer rows.Close()

	var out []podping.QueueRow
	for rows.Next() {
		var r podping.QueueRow
		var reasonText, mediumText string
		if err := rows.Scan(&r.URL, &r.EpochSecs, &reasonText, &mediumText, &r.Inflight); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrDB, err)
		}
		r.Reason = podping.ParseReason(reasonText)
		r.Medium = podping.ParseMedium(mediumText)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrDB, err)
	}
	return out, nil
}

// MarkInflight sets inflight=true; a no-op if the row is absent.
func (s *QueueStore) MarkInflight(ctx context.Context, url string) error {
	q := fmt.Sprintf(`UPDATE %s SET inflight = 1 WHERE url = ?`, s.table)
	if _, err := s.db.ExecContext(ctx, q, url); err != nil {
		return fmt.Errorf("%w: mark inflight: %v", ErrDB, err)
	}
	return nil
}

// ResetStaleInflight clears inflight on up to ResetLimit rows whose inflight
// has outlived StaleInflightWindow, bumping createdon so they re-enter the
// debounce window rather than being immediately re-sent.
func (s *QueueStore) ResetStaleInflight(ctx context.Context) error {
	s.opts.setDefaults()
	now := s.opts.Clock().Unix()
	cutoff := now - int64(s.opts.StaleInflightWindow/time.Second)
	q := fmt.Sprintf(`UPDATE %s SET inflight = 0, createdon = ?
		WHERE url IN (
			SELECT url FROM %s WHERE inflight = 1 AND createdon < ? LIMIT ?
		)`, s.table, s.table)
	if _, err := s.db.ExecContext(ctx, q, now, cutoff, s.opts.ResetLimit); err != nil {
		return fmt.Errorf("%w: reset stale inflight: %v", ErrDB, err)
	}
	return nil
}

// Delete idempotently removes a row by url.
func (s *QueueStore) Delete(ctx context.Context, url string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE url = ?`, s.table)
	if _, err := s.db.ExecContext(ctx, q, url); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrDB, err)
	}
	return nil
}

// Stats reports a cheap aggregate read for the readiness surface.
type Stats struct {
	Rows     int64
	Inflight int64
}

func (s *QueueStore) Stats(ctx context.Context) (Stats, error) {
	q := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(inflight), 0) FROM %s`, s.table)
	var st Stats
	if err := s.db.QueryRowContext(ctx, q).Scan(&st.Rows, &st.Inflight); err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %v", ErrDB, err)
	}
	return st, nil
}

// isUniqueViolation detects a primary-key collision from mattn/go-sqlite3's
// error text (the driver does not export a typed sentinel for this).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE constraint failed") || strings.Contains(s, "constraint failed")
}
