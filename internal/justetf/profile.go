package justetf

import (
	"context"
	"fmt"

	"resty.dev/v3"

	"datakraken/internal/fetcher"
	"datakraken/internal/ratelimit"
	"datakraken/internal/snapshot"
)

const sourceName = "justetf"

// ProfileFetcher fetches the raw HTML of a justETF profile page for one ISIN.
// The HTML is cached verbatim; parsing it into a normalized profile happens
// downstream of the raw dump.
type ProfileFetcher struct {
	isin     string
	cacheTag string
	client   *resty.Client
}

// NewProfileFetcher creates a profile page fetcher for isin.
func NewProfileFetcher(isin, baseURL string) *ProfileFetcher {
	client := fetcher.NewHTTPClient(baseURL).
		SetHeader("Accept", "text/html")

	return &ProfileFetcher{
		isin:   isin,
		client: client,
	}
}

// SetCacheTag sets an optional cache tag, for callers that fetch the same
// profile under variations not captured by the ISIN (e.g. locale).
func (f *ProfileFetcher) SetCacheTag(tag string) *ProfileFetcher {
	f.cacheTag = tag
	return f
}

// Fetch retrieves the profile page HTML.
func (f *ProfileFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APIJustETF); err != nil {
		return nil, err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("isin", f.isin).
		Get("/en/etf-profile.html")

	if err != nil {
		return nil, fetcher.NewNetworkError(fmt.Errorf("fetch profile for %s: %w", f.isin, err))
	}

	if !resp.IsSuccess() {
		return nil, fetcher.ClassifyHTTPError(resp.StatusCode())
	}

	return resp.Bytes(), nil
}

// Key returns the snapshot key for this profile.
func (f *ProfileFetcher) Key() snapshot.Key {
	return snapshot.MakeKey(sourceName, f.isin, f.cacheTag)
}
