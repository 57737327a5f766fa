// Package sqlstore implements the snapshot store on SQLite. The primary key
// over (source, resource_id, cache_tag, bucket) is the exclusive-create
// primitive: a plain INSERT either publishes the artifact or fails the
// uniqueness constraint, which surfaces as a write conflict.
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"datakraken/internal/snapshot"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	source      TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	cache_tag   TEXT NOT NULL DEFAULT '',
	bucket      TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	payload     BLOB NOT NULL,
	PRIMARY KEY (source, resource_id, cache_tag, bucket)
);`

// Options configures optional store behavior.
type Options struct {
	// AllowBackfill permits bucket labels that sort before the current
	// latest bucket for their key. Off by default.
	AllowBackfill bool
}

// Store is a SQLite-backed snapshot store.
type Store struct {
	db   *sql.DB
	opts Options
	now  func() time.Time
}

// Open opens (creating if needed) a store at path. Pass ":memory:" for an
// ephemeral store in tests.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlstore: path is required")
	}

	// Both options must reach every pooled connection, so they travel in
	// the DSN rather than a one-off Exec. _txlock=immediate makes write
	// transactions take the write lock at Begin instead of upgrading from
	// a read lock mid-transaction, which SQLite reports as SQLITE_BUSY
	// without consulting the busy handler. busy_timeout then turns the
	// remaining lock contention into a bounded wait.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_txlock=immediate&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if strings.Contains(path, ":memory:") {
		// Each pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot schema: %w", err)
	}

	return &Store{db: db, opts: opts, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock overrides the timestamp source for created_at. Used by tests.
func (s *Store) SetClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// ListBuckets returns the bucket labels for key in ascending label order.
func (s *Store) ListBuckets(key snapshot.Key) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT bucket FROM snapshots
		 WHERE source = ? AND resource_id = ? AND cache_tag = ?
		 ORDER BY bucket ASC`,
		key.Source, key.ResourceID, key.CacheTag)
	if err != nil {
		return nil, fmt.Errorf("list buckets for %s: %w", key, err)
	}
	defer rows.Close()

	var buckets []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("list buckets for %s: %w", key, err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list buckets for %s: %w", key, err)
	}
	return buckets, nil
}

// ReadBucket returns the artifact stored at (key, bucket).
func (s *Store) ReadBucket(key snapshot.Key, bucket string) (*snapshot.Artifact, error) {
	row := s.db.QueryRow(
		`SELECT created_at, payload FROM snapshots
		 WHERE source = ? AND resource_id = ? AND cache_tag = ? AND bucket = ?`,
		key.Source, key.ResourceID, key.CacheTag, bucket)

	var createdAt string
	var payload []byte
	if err := row.Scan(&createdAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s bucket %q", snapshot.ErrNotFound, key, bucket)
		}
		return nil, fmt.Errorf("read %s bucket %q: %w", key, bucket, err)
	}

	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bucket %q has malformed created_at %q", snapshot.ErrCorrupted, key, bucket, createdAt)
	}

	return &snapshot.Artifact{
		Key:       key,
		Bucket:    bucket,
		CreatedAt: ts,
		Length:    int64(len(payload)),
		Payload:   payload,
	}, nil
}

// ReadLatest returns the artifact under the greatest bucket label for key.
func (s *Store) ReadLatest(key snapshot.Key) (*snapshot.Artifact, error) {
	row := s.db.QueryRow(
		`SELECT bucket FROM snapshots
		 WHERE source = ? AND resource_id = ? AND cache_tag = ?
		 ORDER BY bucket DESC LIMIT 1`,
		key.Source, key.ResourceID, key.CacheTag)

	var bucket string
	if err := row.Scan(&bucket); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s has no buckets", snapshot.ErrNotFound, key)
		}
		return nil, fmt.Errorf("read latest for %s: %w", key, err)
	}
	return s.ReadBucket(key, bucket)
}

// WriteBucket publishes payload at (key, bucket). The monotonicity check and
// the insert run in one immediate transaction, so racing writers serialize
// at Begin and the loser observes the winner's row as a unique violation.
func (s *Store) WriteBucket(key snapshot.Key, bucket string, payload []byte) (*snapshot.Artifact, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket label must not be empty")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("write %s bucket %q: %w", key, bucket, err)
	}
	defer tx.Rollback()

	if !s.opts.AllowBackfill {
		row := tx.QueryRow(
			`SELECT bucket FROM snapshots
			 WHERE source = ? AND resource_id = ? AND cache_tag = ?
			 ORDER BY bucket DESC LIMIT 1`,
			key.Source, key.ResourceID, key.CacheTag)
		var latest string
		if err := row.Scan(&latest); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("write %s bucket %q: %w", key, bucket, err)
		} else if err == nil && bucket < latest {
			return nil, fmt.Errorf("%w: %s bucket %q sorts before latest %q", snapshot.ErrOrderViolation, key, bucket, latest)
		}
	}

	createdAt := s.now().UTC().Truncate(time.Second)
	_, err = tx.Exec(
		`INSERT INTO snapshots (source, resource_id, cache_tag, bucket, created_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.Source, key.ResourceID, key.CacheTag, bucket,
		createdAt.Format(time.RFC3339), payload)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s bucket %q", snapshot.ErrConflict, key, bucket)
		}
		return nil, fmt.Errorf("write %s bucket %q: %w", key, bucket, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("write %s bucket %q: %w", key, bucket, err)
	}

	return &snapshot.Artifact{
		Key:       key,
		Bucket:    bucket,
		CreatedAt: createdAt,
		Length:    int64(len(payload)),
		Payload:   payload,
	}, nil
}

// isUniqueViolation reports whether err is a primary key collision. The
// modernc driver exposes SQLite errors as formatted strings, so match on the
// canonical constraint message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
