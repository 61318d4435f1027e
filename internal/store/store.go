// Package store persists inspection outcomes in an embedded SQLite
// database.
//
// The database runs with WAL mode for concurrent reads and a single
// views table keyed by (host, location). Upserts have replace
// semantics: storing the same key twice overwrites the previous row,
// so re-running a scan against an unchanged tree converges to the same
// row set.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/repoatlas/repoatlas/internal/atlas"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection holding persisted views.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at path. Parent directories are
// created as needed. The caller must Close the store when done.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// InitSchema creates the views table and indexes. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS views (
		host       TEXT NOT NULL,
		location   TEXT NOT NULL,  -- JSON-encoded Location, identity key
		kind       TEXT NOT NULL,  -- fs | net, denormalized for filtering
		facts      TEXT,           -- JSON-encoded Facts, NULL on failed inspection
		updated_at TEXT NOT NULL,
		PRIMARY KEY (host, location)
	);

	CREATE INDEX IF NOT EXISTS idx_views_host ON views(host);
	CREATE INDEX IF NOT EXISTS idx_views_kind ON views(kind);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// UpsertView inserts or replaces the view's row, keyed by
// (host, location). It returns the rowid for logging. A nil Facts is
// stored as NULL; the failure stays visible in the database.
func (s *Store) UpsertView(ctx context.Context, view *atlas.View) (int64, error) {
	if err := view.Validate(); err != nil {
		return 0, fmt.Errorf("invalid view: %w", err)
	}

	locJSON, err := json.Marshal(view.Location)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal location: %w", err)
	}

	var facts sql.NullString
	if view.Facts != nil {
		factsJSON, err := json.Marshal(view.Facts)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal facts: %w", err)
		}
		facts = sql.NullString{String: string(factsJSON), Valid: true}
	}

	query := `
	INSERT INTO views (host, location, kind, facts, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(host, location) DO UPDATE SET
		kind = excluded.kind,
		facts = excluded.facts,
		updated_at = excluded.updated_at
	`

	res, err := s.conn.ExecContext(ctx, query,
		view.Host,
		string(locJSON),
		string(view.Location.Kind),
		facts,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert view for %s: %w", view.Location, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, nil // driver without rowid support; the write succeeded
	}
	return id, nil
}

// Filter narrows ListViews results. Zero values match everything.
type Filter struct {
	// Host restricts results to one originating host.
	Host string
	// Kind restricts results to one location kind ("fs" or "net").
	Kind string
}

// ListViews returns persisted views matching the filter, ordered by
// host then location.
func (s *Store) ListViews(ctx context.Context, filter Filter) ([]*atlas.View, error) {
	query := `SELECT host, location, facts FROM views`
	var conditions []string
	var args []any

	if filter.Host != "" {
		conditions = append(conditions, "host = ?")
		args = append(args, filter.Host)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY host ASC, location ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	var views []*atlas.View
	for rows.Next() {
		var host, locJSON string
		var factsJSON sql.NullString

		if err := rows.Scan(&host, &locJSON, &factsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}

		var loc atlas.Location
		if err := json.Unmarshal([]byte(locJSON), &loc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal location %q: %w", locJSON, err)
		}

		var facts *atlas.Facts
		if factsJSON.Valid {
			facts = &atlas.Facts{}
			if err := json.Unmarshal([]byte(factsJSON.String), facts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal facts for %s: %w", loc, err)
			}
		}

		views = append(views, &atlas.View{Host: host, Location: loc, Facts: facts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating views: %w", err)
	}

	return views, nil
}

// CountViews returns the total number of persisted views.
func (s *Store) CountViews(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM views").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count views: %w", err)
	}
	return count, nil
}
