package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS resources (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	name            TEXT NOT NULL,
	pattern         TEXT NOT NULL DEFAULT '',
	credential      BLOB,
	quota_limit     INTEGER NOT NULL,
	period          TEXT NOT NULL,
	usage           INTEGER NOT NULL DEFAULT 0,
	window_start_ms INTEGER NOT NULL,
	version         INTEGER NOT NULL DEFAULT 0,
	created_at_ms   INTEGER NOT NULL,
	UNIQUE (user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_resources_user ON resources(user_id, created_at_ms);

CREATE TABLE IF NOT EXISTS alert_rules (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	resource_id       TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
	threshold         INTEGER NOT NULL,
	active            INTEGER NOT NULL DEFAULT 1,
	last_triggered_ms INTEGER,
	created_at_ms     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_resource ON alert_rules(resource_id);

CREATE TABLE IF NOT EXISTS usage_samples (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	resource_id  TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
	count        INTEGER NOT NULL,
	granularity  TEXT NOT NULL,
	recorded_ms  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_samples_resource ON usage_samples(resource_id, recorded_ms);
`

// SQLiteStore is a persistent Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// initialises the schema. Use ":memory:" for an in-memory SQLite database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("apiwatch/store: open sqlite: %w", err)
	}

	// A ":memory:" database exists per connection, and SQLite serialises
	// writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apiwatch/store: init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// withPragmas adds the connection pragmas to dsn so that every connection
// the pool opens gets them, not only the first.
func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch code := se.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		case code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	return err
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

type rowScanner interface {
	Scan(dest ...any) error
}

const resourceColumns = `id, user_id, name, pattern, credential, quota_limit, period, usage, window_start_ms, version, created_at_ms`

func scanResource(row rowScanner) (Resource, error) {
	var (
		r                   Resource
		windowMS, createdMS int64
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Pattern, &r.Credential, &r.Limit, &r.Period,
		&r.Counter.Usage, &windowMS, &r.Counter.Version, &createdMS)
	if err != nil {
		return Resource{}, err
	}
	r.Counter.WindowStart = fromMillis(windowMS)
	r.CreatedAt = fromMillis(createdMS)
	return r, nil
}

const ruleColumns = `id, user_id, resource_id, threshold, active, last_triggered_ms, created_at_ms`

func scanRule(row rowScanner) (AlertRule, error) {
	var (
		rule      AlertRule
		active    int
		lastMS    sql.NullInt64
		createdMS int64
	)
	if err := row.Scan(&rule.ID, &rule.UserID, &rule.ResourceID, &rule.Threshold, &active, &lastMS, &createdMS); err != nil {
		return AlertRule{}, err
	}
	rule.Active = active != 0
	if lastMS.Valid {
		t := fromMillis(lastMS.Int64)
		rule.LastTriggered = &t
	}
	rule.CreatedAt = fromMillis(createdMS)
	return rule, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateResource inserts a new resource.
func (s *SQLiteStore) CreateResource(ctx context.Context, r Resource) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (`+resourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Name, r.Pattern, r.Credential, r.Limit, r.Period,
		r.Counter.Usage, toMillis(r.Counter.WindowStart), r.Counter.Version, toMillis(r.CreatedAt),
	)
	return classify(err)
}

// GetResource returns an owned resource.
func (s *SQLiteStore) GetResource(ctx context.Context, userID, id string) (Resource, error) {
	r, err := scanResource(s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ? AND user_id = ?`, id, userID,
	))
	return r, classify(err)
}

// ListResources returns all resources of a user, newest first.
func (s *SQLiteStore) ListResources(ctx context.Context, userID string) ([]Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE user_id = ? ORDER BY created_at_ms DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

// UpdateResource overwrites the descriptive fields of an owned resource.
func (s *SQLiteStore) UpdateResource(ctx context.Context, r Resource) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE resources SET name = ?, pattern = ?, credential = ?, quota_limit = ?, period = ?
		 WHERE id = ? AND user_id = ?`,
		r.Name, r.Pattern, r.Credential, r.Limit, r.Period, r.ID, r.UserID,
	)
	if err != nil {
		return classify(err)
	}
	return requireRow(res)
}

// DeleteResource removes an owned resource with its rules and samples.
func (s *SQLiteStore) DeleteResource(ctx context.Context, userID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return classify(err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_rules WHERE resource_id = ?`, id); err != nil {
		return classify(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_samples WHERE resource_id = ?`, id); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

// UpdateCounter reads the counter, applies fn and writes it back guarded by
// the version column, all inside one transaction. A version mismatch means
// another process committed first and yields ErrConflict.
func (s *SQLiteStore) UpdateCounter(ctx context.Context, userID, id string, fn func(Resource) Counter) (Counter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Counter{}, classify(err)
	}
	defer tx.Rollback()

	r, err := scanResource(tx.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ? AND user_id = ?`, id, userID,
	))
	if err != nil {
		return Counter{}, classify(err)
	}

	next := fn(r)
	next.Version = r.Counter.Version + 1

	res, err := tx.ExecContext(ctx,
		`UPDATE resources SET usage = ?, window_start_ms = ?, version = ? WHERE id = ? AND version = ?`,
		next.Usage, toMillis(next.WindowStart), next.Version, id, r.Counter.Version,
	)
	if err != nil {
		return Counter{}, classify(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Counter{}, classify(err)
	} else if n == 0 {
		return Counter{}, ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return Counter{}, classify(err)
	}
	return next, nil
}

// CreateRule inserts an alert rule for an owned resource.
func (s *SQLiteStore) CreateRule(ctx context.Context, rule AlertRule) error {
	var lastMS any
	if rule.LastTriggered != nil {
		lastMS = toMillis(*rule.LastTriggered)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_rules (`+ruleColumns+`)
		 SELECT ?, ?, ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM resources WHERE id = ? AND user_id = ?)`,
		rule.ID, rule.UserID, rule.ResourceID, rule.Threshold, boolInt(rule.Active), lastMS, toMillis(rule.CreatedAt),
		rule.ResourceID, rule.UserID,
	)
	if err != nil {
		return classify(err)
	}
	return requireRow(res)
}

// GetRule returns an owned rule.
func (s *SQLiteStore) GetRule(ctx context.Context, userID, id string) (AlertRule, error) {
	rule, err := scanRule(s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE id = ? AND user_id = ?`, id, userID,
	))
	return rule, classify(err)
}

func (s *SQLiteStore) queryRules(ctx context.Context, query string, args ...any) ([]AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, classify(rows.Err())
}

// ListRules returns all rules of a user, newest first.
func (s *SQLiteStore) ListRules(ctx context.Context, userID string) ([]AlertRule, error) {
	return s.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE user_id = ? ORDER BY created_at_ms DESC, id DESC`, userID)
}

// ResourceRules returns the rules of a resource, oldest first.
func (s *SQLiteStore) ResourceRules(ctx context.Context, resourceID string) ([]AlertRule, error) {
	return s.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE resource_id = ? ORDER BY created_at_ms ASC, id ASC`, resourceID)
}

// UpdateRule overwrites the threshold and active flag of an owned rule.
func (s *SQLiteStore) UpdateRule(ctx context.Context, rule AlertRule) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET threshold = ?, active = ? WHERE id = ? AND user_id = ?`,
		rule.Threshold, boolInt(rule.Active), rule.ID, rule.UserID,
	)
	if err != nil {
		return classify(err)
	}
	return requireRow(res)
}

// DeleteRule removes an owned rule.
func (s *SQLiteStore) DeleteRule(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return classify(err)
	}
	return requireRow(res)
}

// MarkRuleTriggered swaps last_triggered_ms from prev to at in a single
// conditional UPDATE.
func (s *SQLiteStore) MarkRuleTriggered(ctx context.Context, ruleID string, prev *time.Time, at time.Time) (bool, error) {
	var prevMS any
	if prev != nil {
		prevMS = toMillis(*prev)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET last_triggered_ms = ? WHERE id = ? AND last_triggered_ms IS ?`,
		toMillis(at), ruleID, prevMS,
	)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM alert_rules WHERE id = ?`, ruleID).Scan(&exists)
	if err != nil {
		return false, classify(err)
	}
	return false, nil
}

// AppendSample adds a ledger row for an existing resource.
func (s *SQLiteStore) AppendSample(ctx context.Context, sample Sample) (Sample, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_samples (resource_id, count, granularity, recorded_ms)
		 SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM resources WHERE id = ?)`,
		sample.ResourceID, sample.Count, sample.Granularity, toMillis(sample.RecordedAt), sample.ResourceID,
	)
	if err != nil {
		return Sample{}, classify(err)
	}
	if err := requireRow(res); err != nil {
		return Sample{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Sample{}, classify(err)
	}
	sample.ID = id
	return sample, nil
}

func (s *SQLiteStore) querySamples(ctx context.Context, query string, args ...any) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			sample     Sample
			recordedMS int64
		)
		if err := rows.Scan(&sample.ID, &sample.ResourceID, &sample.Count, &sample.Granularity, &recordedMS); err != nil {
			return nil, err
		}
		sample.RecordedAt = fromMillis(recordedMS)
		out = append(out, sample)
	}
	return out, classify(rows.Err())
}

// Samples returns the samples of a resource since the given instant,
// oldest first.
func (s *SQLiteStore) Samples(ctx context.Context, resourceID string, since time.Time, granularity string) ([]Sample, error) {
	return s.querySamples(ctx,
		`SELECT id, resource_id, count, granularity, recorded_ms FROM usage_samples
		 WHERE resource_id = ? AND recorded_ms >= ? AND (? = '' OR granularity = ?)
		 ORDER BY recorded_ms ASC, id ASC`,
		resourceID, toMillis(since), granularity, granularity,
	)
}

// RecentSamples returns up to n samples of a resource, newest first.
func (s *SQLiteStore) RecentSamples(ctx context.Context, resourceID string, n int) ([]Sample, error) {
	return s.querySamples(ctx,
		`SELECT id, resource_id, count, granularity, recorded_ms FROM usage_samples
		 WHERE resource_id = ? ORDER BY recorded_ms DESC, id DESC LIMIT ?`,
		resourceID, n,
	)
}

// PruneSamples deletes samples recorded before the given instant.
func (s *SQLiteStore) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_samples WHERE recorded_ms < ?`, toMillis(before))
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return n, classify(err)
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
