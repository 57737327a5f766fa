package snapshot

import "fmt"

// Key identifies a lineage of cached snapshots for one logical resource.
// It is a value type: two keys built from the same arguments compare equal
// and hash identically, so Key is usable directly as a map key.
type Key struct {
	// Source names the external data source, e.g. "justetf" or "fca_firds".
	Source string

	// ResourceID is the logical resource within the source, e.g. an ISIN.
	ResourceID string

	// CacheTag disambiguates fetches of the same resource that must be
	// cached separately (e.g. different query parameters that are not part
	// of the resource id). Empty for most keys.
	CacheTag string
}

// MakeKey builds a Key. Pure function, no side effects.
func MakeKey(source, resourceID, cacheTag string) Key {
	return Key{Source: source, ResourceID: resourceID, CacheTag: cacheTag}
}

// String returns a hierarchical representation in the form
// "source:resource" or "source:resource:tag".
// Examples:
//   - justetf:IE00B4L5Y983
//   - fca_firds:FULINS_E_20251027
//   - justetf:IE00B4L5Y983:html
func (k Key) String() string {
	if k.CacheTag == "" {
		return fmt.Sprintf("%s:%s", k.Source, k.ResourceID)
	}
	return fmt.Sprintf("%s:%s:%s", k.Source, k.ResourceID, k.CacheTag)
}
