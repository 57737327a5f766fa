package justetf

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"resty.dev/v3"

	"datakraken/internal/fetcher"
	"datakraken/internal/ratelimit"
	"datakraken/internal/snapshot"
)

const (
	profileIndexResource = "profile_index"
	sitemapPath          = "/sitemap5.xml"
)

// SitemapFetcher fetches the justETF sitemap listing every ETF profile page.
// The raw XML is what gets cached; BuildProfileIndex turns a cached payload
// into the ISIN universe. Pairs naturally with a TTL policy, since the
// universe changes as ETFs launch and delist.
type SitemapFetcher struct {
	client *resty.Client
}

// NewSitemapFetcher creates a sitemap fetcher against baseURL.
func NewSitemapFetcher(baseURL string) *SitemapFetcher {
	client := fetcher.NewHTTPClient(baseURL).
		SetHeader("Accept", "application/xml")

	return &SitemapFetcher{client: client}
}

// Fetch retrieves the raw sitemap XML.
func (f *SitemapFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APIJustETF); err != nil {
		return nil, err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		Get(sitemapPath)

	if err != nil {
		return nil, fetcher.NewNetworkError(fmt.Errorf("fetch profile sitemap: %w", err))
	}

	if !resp.IsSuccess() {
		return nil, fetcher.ClassifyHTTPError(resp.StatusCode())
	}

	return resp.Bytes(), nil
}

// Key returns the snapshot key for the profile index.
func (f *SitemapFetcher) Key() snapshot.Key {
	return snapshot.MakeKey(sourceName, profileIndexResource, "")
}

// ProfileIndexEntry is one ETF in the profile index: its ISIN and the
// canonical profile URL the sitemap lists for it.
type ProfileIndexEntry struct {
	ISIN    string `json:"isin"`
	URL     string `json:"url"`
	LastMod string `json:"lastmod,omitempty"`
}

// BuildProfileIndex parses a sitemap payload into the ETF profile index.
// Each ISIN appears multiple times under different language paths; entries
// are deduplicated by ISIN, preferring the /en/ profile URL as canonical.
// URLs without an isin query parameter are skipped. First-seen order is
// preserved.
func BuildProfileIndex(payload []byte) ([]ProfileIndexEntry, error) {
	var doc struct {
		URLs []struct {
			Loc     string `xml:"loc"`
			LastMod string `xml:"lastmod"`
		} `xml:"url"`
	}
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("parse profile sitemap: %w", err)
	}

	var entries []ProfileIndexEntry
	seen := make(map[string]int)

	for _, u := range doc.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}

		parsed, err := url.Parse(loc)
		if err != nil {
			continue
		}
		isin := parsed.Query().Get("isin")
		if isin == "" {
			continue
		}

		entry := ProfileIndexEntry{
			ISIN:    isin,
			URL:     loc,
			LastMod: strings.TrimSpace(u.LastMod),
		}

		if i, ok := seen[isin]; ok {
			if strings.Contains(loc, "/en/") && !strings.Contains(entries[i].URL, "/en/") {
				entries[i] = entry
			}
			continue
		}
		seen[isin] = len(entries)
		entries = append(entries, entry)
	}

	return entries, nil
}
