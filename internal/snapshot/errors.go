package snapshot

import "errors"

// Sentinel errors for store and session operations. Callers match them with
// errors.Is; store implementations wrap them with coordinate details.
var (
	// ErrNotFound indicates a read of an unknown (key, bucket) coordinate.
	// Recoverable and often expected, e.g. when probing for a cache hit.
	ErrNotFound = errors.New("snapshot: bucket not found")

	// ErrConflict indicates a write to a coordinate that already exists.
	// Buckets are write-once; a concurrent writer won the race. The session
	// recovers by re-reading the winner's artifact.
	ErrConflict = errors.New("snapshot: bucket already exists")

	// ErrOrderViolation indicates a bucket label that sorts before the
	// latest existing bucket for the key. Surfaced as a caller error, never
	// retried; the caller passed a stale or incorrect label.
	ErrOrderViolation = errors.New("snapshot: bucket label older than latest")

	// ErrCorrupted indicates the store claimed a bucket exists but it could
	// not be read back. Fatal; never masked as a cache miss.
	ErrCorrupted = errors.New("snapshot: store corrupted")
)
