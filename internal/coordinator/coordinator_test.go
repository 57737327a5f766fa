package coordinator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"datakraken/internal/runlog"
	"datakraken/internal/snapshot"
	"datakraken/internal/snapshot/fsstore"
	"datakraken/internal/testutil"
)

func newTestSession(t *testing.T) *snapshot.Session {
	t.Helper()
	return snapshot.NewSession(fsstore.New(t.TempDir()))
}

func TestCoordinator_Run_NoJobs(t *testing.T) {
	coord := New(newTestSession(t), nil)
	if _, err := coord.Run(context.Background()); err == nil {
		t.Error("Run() with no jobs did not fail")
	}
}

func TestCoordinator_Run_AllSucceed(t *testing.T) {
	session := newTestSession(t)

	var jobs []Job
	keys := map[snapshot.Key]bool{}
	for _, isin := range []string{"IE00B4L5Y983", "LU0274208692", "IE00B3RBWM25"} {
		key := snapshot.MakeKey("justetf", isin, "")
		keys[key] = true
		jobs = append(jobs, Job{
			Fetcher: testutil.NewMockFetcher(key, []byte(`{"isin":"`+isin+`"}`), nil),
			Policy:  snapshot.TTL(time.Hour),
		})
	}

	results, err := New(session, jobs).SetWorkers(2).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(results) != len(jobs) {
		t.Fatalf("Run() returned %d results, want %d", len(results), len(jobs))
	}

	for _, res := range results {
		if res.Err != nil {
			t.Errorf("%s: unexpected error %v", res.Key, res.Err)
		}
		if res.CacheHit {
			t.Errorf("%s: first run reported a cache hit", res.Key)
		}
		if !keys[res.Key] {
			t.Errorf("unexpected result key %v", res.Key)
		}
		delete(keys, res.Key)
	}
}

func TestCoordinator_Run_FailureDoesNotAbortOthers(t *testing.T) {
	session := newTestSession(t)
	boom := errors.New("connection refused")

	good := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")
	bad := snapshot.MakeKey("justetf", "XX0000000000", "")
	jobs := []Job{
		{Fetcher: testutil.NewMockFetcher(good, []byte("{}"), nil), Policy: snapshot.TTL(time.Hour)},
		{Fetcher: testutil.NewMockFetcher(bad, nil, boom), Policy: snapshot.TTL(time.Hour)},
	}

	results, err := New(session, jobs).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Run() returned %d results, want 2", len(results))
	}

	for _, res := range results {
		switch res.Key {
		case good:
			if res.Err != nil {
				t.Errorf("good job failed: %v", res.Err)
			}
		case bad:
			if !errors.Is(res.Err, boom) {
				t.Errorf("bad job error = %v, want the fetch error unchanged", res.Err)
			}
		}
	}
}

func TestCoordinator_Run_SecondRunHitsCache(t *testing.T) {
	session := newTestSession(t)
	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")
	mock := testutil.NewMockFetcher(key, []byte("{}"), nil)
	jobs := []Job{{Fetcher: mock, Policy: snapshot.TTL(time.Hour)}}

	if _, err := New(session, jobs).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	results, err := New(session, jobs).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !results[0].CacheHit {
		t.Error("second run did not hit the cache")
	}
	if mock.Calls() != 1 {
		t.Errorf("fetch collaborator invoked %d times, want 1", mock.Calls())
	}
}

func TestCoordinator_Run_RecordsRunLog(t *testing.T) {
	session := newTestSession(t)
	runsDir := t.TempDir()

	log, err := runlog.New(runsDir, "test-run")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	hitKey := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")
	errKey := snapshot.MakeKey("justetf", "XX0000000000", "")

	// Seed the store so the first job is a cache hit.
	if _, _, err := session.Get(context.Background(), hitKey, snapshot.ExplicitBucket("2025-10-28"),
		func(ctx context.Context) ([]byte, error) { return []byte("{}"), nil }); err != nil {
		t.Fatal(err)
	}

	jobs := []Job{
		{Fetcher: testutil.NewMockFetcher(hitKey, []byte("{}"), nil), Policy: snapshot.ExplicitBucket("2025-10-28")},
		{Fetcher: testutil.NewMockFetcher(errKey, nil, errors.New("boom")), Policy: snapshot.TTL(time.Hour)},
	}

	if _, err := New(session, jobs).SetRunLog(log).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(runsDir, "test-run", "progress.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	statuses := map[string]runlog.Status{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e runlog.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("progress line is not valid JSON: %v", err)
		}
		statuses[e.Resource] = e.Status
	}

	if statuses[hitKey.String()] != runlog.StatusSkip {
		t.Errorf("cache hit logged as %q, want skip", statuses[hitKey.String()])
	}
	if statuses[errKey.String()] != runlog.StatusErr {
		t.Errorf("failed job logged as %q, want err", statuses[errKey.String()])
	}

	if _, err := os.Stat(filepath.Join(runsDir, "test-run", "err", "XX0000000000.json")); err != nil {
		t.Errorf("error marker missing: %v", err)
	}
}
