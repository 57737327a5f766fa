package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects the caching behavior for a fetch request.
type Mode int

const (
	// ModeBypass always fetches fresh. Existing buckets are never read to
	// satisfy the request, but the result is still written under a fresh
	// bucket to preserve the audit trail.
	ModeBypass Mode = iota

	// ModeTTL reuses the latest bucket while it is younger than the
	// configured TTL, otherwise fetches into a new bucket.
	ModeTTL

	// ModeEternalFrozen reuses the existing bucket unconditionally once one
	// exists, regardless of age. Used for sources whose snapshot is meant
	// to never change.
	ModeEternalFrozen

	// ModeExplicitBucket targets a caller-supplied bucket label: reuse it
	// verbatim if present, otherwise fetch and create it.
	ModeExplicitBucket
)

// String returns the config spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBypass:
		return "bypass"
	case ModeTTL:
		return "ttl"
	case ModeEternalFrozen:
		return "eternal_frozen"
	case ModeExplicitBucket:
		return "explicit_bucket"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a config string to a Mode (case-insensitive).
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "bypass":
		return ModeBypass, nil
	case "ttl":
		return ModeTTL, nil
	case "eternal_frozen":
		return ModeEternalFrozen, nil
	case "explicit_bucket":
		return ModeExplicitBucket, nil
	default:
		return 0, fmt.Errorf("unknown cache mode %q", value)
	}
}

// Policy is the caching rule applied to a fetch request.
type Policy struct {
	Mode Mode

	// TTL is the reuse window for ModeTTL; ignored otherwise.
	TTL time.Duration

	// Bucket is the label (or Go time layout, see ResolveBucket) used when
	// a fetch targets a new bucket. Required semantics only for
	// ModeExplicitBucket; for other modes it overrides the default label.
	Bucket string
}

// Bypass returns a policy that always fetches fresh.
func Bypass() Policy { return Policy{Mode: ModeBypass} }

// TTL returns a policy that reuses the latest bucket within ttl.
func TTL(ttl time.Duration) Policy { return Policy{Mode: ModeTTL, TTL: ttl} }

// EternalFrozen returns a policy that never refetches once a bucket exists.
func EternalFrozen() Policy { return Policy{Mode: ModeEternalFrozen} }

// ExplicitBucket returns a policy targeting the given bucket label.
func ExplicitBucket(label string) Policy {
	return Policy{Mode: ModeExplicitBucket, Bucket: label}
}

// Bucket label layouts. Labels sort lexicographically, and both layouts
// sort in chronological order for UTC times.
const (
	// dayLayout labels a bucket with the calendar day of the fetch.
	dayLayout = "2006-01-02"

	// stampLayout labels a bucket with the fetch timestamp. Used for modes
	// that must mint a distinct label per refetch (TTL, bypass), since two
	// fetches on the same day would otherwise collide on the day label.
	// Granularity is one second: two refetches within the same second mint
	// the same label, and the later writer's session resolves the write
	// conflict by returning the earlier artifact as a hit.
	stampLayout = "2006-01-02T15-04-05"
)

// ResolveBucket resolves a configured bucket value into a concrete label.
//   - ""            -> now (UTC) formatted as a calendar day, e.g. "2025-10-28"
//   - "2006-01"     -> now (UTC) formatted with the given Go time layout
//   - "2025Q4"      -> returned unchanged (literal label)
//
// A value is treated as a layout when it contains the reference year "2006".
func ResolveBucket(value string, now time.Time) string {
	if value == "" {
		return now.UTC().Format(dayLayout)
	}
	if strings.Contains(value, "2006") {
		return now.UTC().Format(value)
	}
	return value
}

// Decision is the policy engine's verdict for one fetch request: either
// reuse the artifact already stored at Bucket, or fetch and write Bucket.
type Decision struct {
	Reuse  bool
	Bucket string
}

// Decide applies pol to key against the current store state. It only reads
// the store; the session performs the actual read or fetch-and-write.
func Decide(pol Policy, key Key, store Store, now time.Time) (Decision, error) {
	switch pol.Mode {
	case ModeBypass:
		return Decision{Bucket: freshLabel(pol, now)}, nil

	case ModeTTL:
		latest, err := store.ReadLatest(key)
		if errors.Is(err, ErrNotFound) {
			return Decision{Bucket: freshLabel(pol, now)}, nil
		}
		if err != nil {
			return Decision{}, err
		}
		if now.Sub(latest.CreatedAt) < pol.TTL {
			return Decision{Reuse: true, Bucket: latest.Bucket}, nil
		}
		return Decision{Bucket: freshLabel(pol, now)}, nil

	case ModeEternalFrozen:
		latest, err := store.ReadLatest(key)
		if errors.Is(err, ErrNotFound) {
			return Decision{Bucket: ResolveBucket(pol.Bucket, now)}, nil
		}
		if err != nil {
			return Decision{}, err
		}
		return Decision{Reuse: true, Bucket: latest.Bucket}, nil

	case ModeExplicitBucket:
		label := ResolveBucket(pol.Bucket, now)
		_, err := store.ReadBucket(key, label)
		if errors.Is(err, ErrNotFound) {
			return Decision{Bucket: label}, nil
		}
		if err != nil {
			return Decision{}, err
		}
		return Decision{Reuse: true, Bucket: label}, nil

	default:
		return Decision{}, fmt.Errorf("unknown cache mode %d", int(pol.Mode))
	}
}

// freshLabel mints the label for a fetch that must produce a new bucket.
// Defaults to the fetch timestamp so that repeated refetches within one day
// still get distinct, monotonically increasing labels.
func freshLabel(pol Policy, now time.Time) string {
	if pol.Bucket != "" {
		return ResolveBucket(pol.Bucket, now)
	}
	return now.UTC().Format(stampLayout)
}
