package fetcher

import "datakraken/internal/snapshot"

// Result is the outcome of resolving one fetch job through the snapshot
// cache. Results are sent through a channel from worker goroutines to the
// coordinator, which reports and run-logs them.
type Result struct {
	// Key identifies the resource the job resolved.
	Key snapshot.Key

	// Bucket is the as-of bucket the artifact lives under. Empty when the
	// job failed before an artifact was resolved.
	Bucket string

	// CacheHit reports whether the artifact came from the cache rather
	// than a fresh fetch.
	CacheHit bool

	// Length is the payload size in bytes.
	Length int64

	// Err contains any error from the policy engine, the store or the
	// external source. If Err is not nil the other fields besides Key are
	// meaningless.
	Err error
}
