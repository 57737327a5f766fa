package fetcher

import (
	"context"

	"datakraken/internal/snapshot"
)

// Fetcher is the fetch collaborator for one cacheable resource. Each
// implementation knows how to retrieve the raw payload for a specific
// resource from its external source and under which snapshot key the result
// is cached.
//
// Payloads are opaque to the cache: raw HTML, JSON or CSV bytes exactly as
// the source served them. Normalization happens downstream of the raw dump.
type Fetcher interface {
	// Fetch retrieves the raw payload. Errors are returned as-is to the
	// snapshot session, which propagates them unchanged to the caller.
	Fetch(ctx context.Context) ([]byte, error)

	// Key returns the snapshot key this fetcher's payloads are cached
	// under. Examples:
	//   - justetf:IE00B4L5Y983
	//   - fca_firds:FULINS_2025-10-27
	Key() snapshot.Key
}
