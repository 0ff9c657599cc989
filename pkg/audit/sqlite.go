package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Two SQLite drivers are supported: "sqlite" (modernc, pure Go, the
	// default) and "sqlite3" (mattn, cgo) for deployments that already link
	// libsqlite3.
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLiteConfig contains configuration for the SQLite audit store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the SQL driver: "sqlite" (pure Go, default) or
	// "sqlite3" (cgo).
	Driver string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// QueryLimit is the default row cap for queries. Default: 100.
	QueryLimit int
}

// DefaultSQLiteConfig returns the default audit store configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:         "data/audit.db",
		Driver:       "sqlite",
		MaxOpenConns: 10,
		BusyTimeout:  5 * time.Second,
		QueryLimit:   100,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id             TEXT PRIMARY KEY,
	dispatch_id    TEXT NOT NULL,
	provider_id    TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	latency_ms     INTEGER NOT NULL,
	status_code    INTEGER NOT NULL DEFAULT 0,
	estimated_cost REAL NOT NULL DEFAULT 0,
	error_detail   TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_provider ON attempts(provider_id, created_at);
`

// SQLiteStore implements Store using SQLite. WAL mode is enabled for better
// concurrency between the async writer and queries.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if necessary) the audit database and
// initializes its schema.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit store path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.Driver != "sqlite" && cfg.Driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = 100
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database %q: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	s := &SQLiteStore{
		db:     db,
		config: cfg,
		logger: slog.Default().With("component", "audit.store"),
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// init applies pragmas and the schema.
func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.config.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return nil
}

// Save writes one record.
func (s *SQLiteStore) Save(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts
		 (id, dispatch_id, provider_id, outcome, latency_ms, status_code, estimated_cost, error_detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.DispatchID,
		record.ProviderID,
		record.Outcome,
		record.LatencyMS,
		record.StatusCode,
		record.EstimatedCost,
		record.ErrorDetail,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit record %q: %w", record.ID, err)
	}

	return nil
}

// Query returns records matching the filter, newest first.
func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	query := `SELECT id, dispatch_id, provider_id, outcome, latency_ms, status_code,
	                 estimated_cost, error_detail, created_at
	          FROM attempts WHERE 1=1`
	args := make([]interface{}, 0, 4)

	if filter.ProviderID != "" {
		query += " AND provider_id = ?"
		args = append(args, filter.ProviderID)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += " AND created_at < ?"
		args = append(args, filter.Until.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = s.config.QueryLimit
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.DispatchID, &r.ProviderID, &r.Outcome, &r.LatencyMS,
			&r.StatusCode, &r.EstimatedCost, &r.ErrorDetail, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}

// Prune deletes records created before the cutoff and, when maxRecords is
// positive, trims the table to the newest maxRecords rows.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time, maxRecords int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM attempts WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("audit prune failed: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if maxRecords > 0 {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM attempts WHERE id NOT IN
			 (SELECT id FROM attempts ORDER BY created_at DESC LIMIT ?)`,
			maxRecords)
		if err != nil {
			return deleted, fmt.Errorf("audit size prune failed: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	return deleted, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
