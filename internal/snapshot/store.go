package snapshot

import "time"

// Artifact is one immutable snapshot: the raw payload fetched from an
// external source plus its coordinate and creation metadata. Once a store
// publishes an artifact it is never updated or deleted by this package.
type Artifact struct {
	Key       Key
	Bucket    string
	CreatedAt time.Time
	Length    int64
	Payload   []byte
}

// Store persists artifacts under (key, bucket) coordinates. Buckets for a
// key are totally ordered by their label (lexicographic); "latest" always
// means the greatest label, not the newest timestamp.
//
// Contract:
//   - Append-only: a finalized bucket is never mutated or overwritten.
//   - WriteBucket is exclusive-create: a second write to the same coordinate
//     fails with ErrConflict, even across processes.
//   - Writes are atomic to readers: a crash mid-write never leaves a
//     partially written artifact visible.
//   - Implementations must be safe for concurrent use.
type Store interface {
	// ListBuckets returns the bucket labels for key in ascending order.
	// Unknown keys yield an empty slice, not an error.
	ListBuckets(key Key) ([]string, error)

	// ReadBucket returns the artifact at (key, bucket), or ErrNotFound.
	ReadBucket(key Key, bucket string) (*Artifact, error)

	// ReadLatest returns the artifact under the greatest bucket label for
	// key, or ErrNotFound if the key has no buckets.
	ReadLatest(key Key) (*Artifact, error)

	// WriteBucket publishes payload at (key, bucket). Fails with
	// ErrConflict if the coordinate exists, or ErrOrderViolation if bucket
	// sorts before the current latest label (unless the store was opened
	// with backfill allowed).
	WriteBucket(key Key, bucket string, payload []byte) (*Artifact, error)
}
