// Package inspect provides read-only tooling over the snapshot store:
// listing the bucket history of a key and diffing two artifacts. It only
// consumes the store's read API and never writes.
package inspect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"

	"datakraken/internal/snapshot"
)

// Info summarizes one bucket of a key's lineage.
type Info struct {
	Bucket    string
	CreatedAt time.Time
	Length    int64
}

// History returns per-bucket metadata for key, ascending by label.
func History(store snapshot.Store, key snapshot.Key) ([]Info, error) {
	buckets, err := store.ListBuckets(key)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(buckets))
	for _, b := range buckets {
		art, err := store.ReadBucket(key, b)
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			Bucket:    art.Bucket,
			CreatedAt: art.CreatedAt,
			Length:    art.Length,
		})
	}
	return infos, nil
}

// Diff reports the structural difference between two artifacts' payloads.
// JSON payloads are compared as decoded values; anything else falls back to
// a byte comparison summary. An empty string means the payloads are
// structurally identical.
func Diff(a, b *snapshot.Artifact) (string, error) {
	if a == nil || b == nil {
		return "", fmt.Errorf("diff requires two artifacts")
	}

	var av, bv any
	if json.Unmarshal(a.Payload, &av) == nil && json.Unmarshal(b.Payload, &bv) == nil {
		return cmp.Diff(av, bv), nil
	}

	if bytes.Equal(a.Payload, b.Payload) {
		return "", nil
	}
	return fmt.Sprintf("payloads differ: %s/%s is %d bytes, %s/%s is %d bytes",
		a.Key, a.Bucket, a.Length, b.Key, b.Bucket, b.Length), nil
}
