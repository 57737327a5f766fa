// Package fsstore implements the snapshot store on the local filesystem.
//
// Layout under the store root:
//
//	<root>/<source>/<resource>[--<tag>]/
//	  <bucket>.json     # one immutable artifact per bucket
//	  LATEST_BUCKET     # informational marker, never used to answer queries
//
// Publishing is write-temporary-then-link: the payload is written and synced
// to a hidden temp file, then hard-linked into place. The link is the
// exclusive-create primitive: it is atomic and fails if the target exists,
// which is what makes buckets write-once even across processes.
package fsstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"datakraken/internal/snapshot"
)

const (
	artifactExt  = ".json"
	latestMarker = "LATEST_BUCKET"
)

// Options configures optional store behavior.
type Options struct {
	// AllowBackfill permits writing a bucket whose label sorts before the
	// current latest bucket for its key. Off by default: out-of-order
	// labels normally indicate a stale caller and break the audit trail.
	AllowBackfill bool
}

// Store is a filesystem-backed snapshot store rooted at a single directory.
type Store struct {
	root string
	opts Options
}

// New creates a store rooted at dir with default options.
func New(dir string) *Store {
	return NewWithOptions(dir, Options{})
}

// NewWithOptions creates a store rooted at dir.
func NewWithOptions(dir string, opts Options) *Store {
	return &Store{root: filepath.Clean(dir), opts: opts}
}

// ListBuckets returns the bucket labels for key in ascending label order.
func (s *Store) ListBuckets(key snapshot.Key) ([]string, error) {
	entries, err := os.ReadDir(s.keyDir(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list buckets for %s: %w", key, err)
	}

	var buckets []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, artifactExt) || strings.HasPrefix(name, ".") {
			continue
		}
		buckets = append(buckets, strings.TrimSuffix(name, artifactExt))
	}
	sort.Strings(buckets)
	return buckets, nil
}

// ReadBucket returns the artifact stored at (key, bucket).
func (s *Store) ReadBucket(key snapshot.Key, bucket string) (*snapshot.Artifact, error) {
	if err := validateBucket(bucket); err != nil {
		return nil, err
	}

	path := s.bucketPath(key, bucket)
	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s bucket %q", snapshot.ErrNotFound, key, bucket)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s bucket %q: %w", key, bucket, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s bucket %q: %w", key, bucket, err)
	}

	return &snapshot.Artifact{
		Key:       key,
		Bucket:    bucket,
		CreatedAt: info.ModTime(),
		Length:    int64(len(payload)),
		Payload:   payload,
	}, nil
}

// ReadLatest returns the artifact under the greatest bucket label for key.
func (s *Store) ReadLatest(key snapshot.Key) (*snapshot.Artifact, error) {
	buckets, err := s.ListBuckets(key)
	if err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		return nil, fmt.Errorf("%w: %s has no buckets", snapshot.ErrNotFound, key)
	}
	return s.ReadBucket(key, buckets[len(buckets)-1])
}

// WriteBucket publishes payload at (key, bucket). The coordinate is
// write-once; racing writers get ErrConflict and never corrupt each other.
func (s *Store) WriteBucket(key snapshot.Key, bucket string, payload []byte) (*snapshot.Artifact, error) {
	if err := validateBucket(bucket); err != nil {
		return nil, err
	}

	dir := s.keyDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create key dir for %s: %w", key, err)
	}

	if !s.opts.AllowBackfill {
		buckets, err := s.ListBuckets(key)
		if err != nil {
			return nil, err
		}
		if n := len(buckets); n > 0 && bucket < buckets[n-1] {
			return nil, fmt.Errorf("%w: %s bucket %q sorts before latest %q", snapshot.ErrOrderViolation, key, bucket, buckets[n-1])
		}
	}

	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	if err := writeFileSync(tmp, payload); err != nil {
		return nil, fmt.Errorf("stage %s bucket %q: %w", key, bucket, err)
	}
	defer os.Remove(tmp)

	final := s.bucketPath(key, bucket)
	if err := os.Link(tmp, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s bucket %q", snapshot.ErrConflict, key, bucket)
		}
		return nil, fmt.Errorf("publish %s bucket %q: %w", key, bucket, err)
	}

	s.updateLatestMarker(key)

	return s.ReadBucket(key, bucket)
}

// updateLatestMarker rewrites the informational LATEST_BUCKET file for key.
// Best effort: the marker exists for humans poking around the data root, so
// failures are ignored and queries never read it.
func (s *Store) updateLatestMarker(key snapshot.Key) {
	buckets, err := s.ListBuckets(key)
	if err != nil || len(buckets) == 0 {
		return
	}
	path := filepath.Join(s.keyDir(key), latestMarker)
	_ = os.WriteFile(path, []byte(buckets[len(buckets)-1]+"\n"), 0o644)
}

func (s *Store) keyDir(key snapshot.Key) string {
	leaf := sanitize(key.ResourceID)
	if key.CacheTag != "" {
		leaf += "--" + sanitize(key.CacheTag)
	}
	return filepath.Join(s.root, sanitize(key.Source), leaf)
}

func (s *Store) bucketPath(key snapshot.Key, bucket string) string {
	return filepath.Join(s.keyDir(key), bucket+artifactExt)
}

// writeFileSync writes data and fsyncs before returning, so a published
// artifact is durable once WriteBucket succeeds.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// validateBucket rejects labels that cannot serve as a single path element.
func validateBucket(bucket string) error {
	if bucket == "" {
		return fmt.Errorf("bucket label must not be empty")
	}
	if strings.HasPrefix(bucket, ".") {
		return fmt.Errorf("bucket label %q must not start with a dot", bucket)
	}
	if strings.ContainsAny(bucket, `/\`) {
		return fmt.Errorf("bucket label %q must not contain path separators", bucket)
	}
	return nil
}

// sanitize maps an identifier onto a safe path element. Slashes, spaces and
// other unsafe characters become underscores.
func sanitize(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
