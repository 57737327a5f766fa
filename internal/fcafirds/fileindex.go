package fcafirds

import (
	"context"
	"fmt"

	"resty.dev/v3"

	"datakraken/internal/fetcher"
	"datakraken/internal/ratelimit"
	"datakraken/internal/snapshot"
)

const (
	sourceName = "fca_firds"
	userAgent  = "datakraken/0.1 (+https://moneyexmachina.com)"
)

// FileIndexFetcher fetches the FCA FIRDS file registry listing for one
// file type and publication date, as the raw JSON document the API serves.
// Published FIRDS files never change once listed, so these snapshots pair
// naturally with the eternal-frozen or explicit-bucket cache policies.
type FileIndexFetcher struct {
	fileType string // "FULINS", "DLTINS" or "FULCAN"
	pubDate  string // publication date, YYYY-MM-DD
	client   *resty.Client
}

// NewFileIndexFetcher creates a file index fetcher for one (type, date).
func NewFileIndexFetcher(fileType, pubDate, baseURL string) *FileIndexFetcher {
	client := fetcher.NewHTTPClient(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &FileIndexFetcher{
		fileType: fileType,
		pubDate:  pubDate,
		client:   client,
	}
}

// Fetch retrieves the raw registry listing.
func (f *FileIndexFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APIFCAFirds); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"((file_type:%s) AND (publication_date:[%s TO %s]))",
		f.fileType, f.pubDate, f.pubDate)

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":    query,
			"from": "0",
			"size": "500",
		}).
		Get("")

	if err != nil {
		return nil, fetcher.NewNetworkError(fmt.Errorf("fetch firds index %s/%s: %w", f.fileType, f.pubDate, err))
	}

	if !resp.IsSuccess() {
		return nil, fetcher.ClassifyHTTPError(resp.StatusCode())
	}

	return resp.Bytes(), nil
}

// Key returns the snapshot key for this registry listing. The publication
// date is part of the resource identity, not the bucket: the same listing
// refetched later must land in the same lineage.
func (f *FileIndexFetcher) Key() snapshot.Key {
	return snapshot.MakeKey(sourceName, fmt.Sprintf("%s_%s", f.fileType, f.pubDate), "")
}
