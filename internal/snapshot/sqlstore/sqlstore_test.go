package sqlstore

import (
	"bytes"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"datakraken/internal/snapshot"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "snapshots.db"), opts)
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	store := openTestStore(t, Options{})
	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")
	payload := []byte(`{"isin":"IE00B4L5Y983","ter":0.2}`)

	written, err := store.WriteBucket(key, "2025-10-28", payload)
	if err != nil {
		t.Fatalf("WriteBucket() returned error: %v", err)
	}
	if written.Length != int64(len(payload)) {
		t.Errorf("Length = %d, want %d", written.Length, len(payload))
	}

	read, err := store.ReadBucket(key, "2025-10-28")
	if err != nil {
		t.Fatalf("ReadBucket() returned error: %v", err)
	}
	if !bytes.Equal(read.Payload, payload) {
		t.Errorf("payload = %s, want %s", read.Payload, payload)
	}
	if !read.CreatedAt.Equal(written.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", read.CreatedAt, written.CreatedAt)
	}
}

func TestStore_WriteOnce(t *testing.T) {
	store := openTestStore(t, Options{})
	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")

	if _, err := store.WriteBucket(key, "2025-10-28", []byte("X")); err != nil {
		t.Fatal(err)
	}

	_, err := store.WriteBucket(key, "2025-10-28", []byte("Y"))
	if !errors.Is(err, snapshot.ErrConflict) {
		t.Fatalf("second WriteBucket() error = %v, want ErrConflict", err)
	}

	art, err := store.ReadBucket(key, "2025-10-28")
	if err != nil {
		t.Fatal(err)
	}
	if string(art.Payload) != "X" {
		t.Errorf("payload = %s, want the first writer's X", art.Payload)
	}
}

func TestStore_OrderViolation(t *testing.T) {
	store := openTestStore(t, Options{})
	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")

	if _, err := store.WriteBucket(key, "2025-10-28", []byte("X")); err != nil {
		t.Fatal(err)
	}

	_, err := store.WriteBucket(key, "2025-10-27", []byte("Z"))
	if !errors.Is(err, snapshot.ErrOrderViolation) {
		t.Fatalf("WriteBucket() error = %v, want ErrOrderViolation", err)
	}
}

func TestStore_BackfillOptIn(t *testing.T) {
	store := openTestStore(t, Options{AllowBackfill: true})
	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")

	if _, err := store.WriteBucket(key, "2025-10-28", []byte("X")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.WriteBucket(key, "2025-10-27", []byte("Z")); err != nil {
		t.Fatalf("backfill WriteBucket() returned error: %v", err)
	}
}

func TestStore_ListBucketsAscending(t *testing.T) {
	store := openTestStore(t, Options{})
	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")

	buckets, err := store.ListBuckets(key)
	if err != nil {
		t.Fatalf("ListBuckets() on unknown key returned error: %v", err)
	}
	if len(buckets) != 0 {
		t.Errorf("ListBuckets() on unknown key = %v, want empty", buckets)
	}

	for _, b := range []string{"2025-10-26", "2025-10-27", "2025-10-28"} {
		if _, err := store.WriteBucket(key, b, []byte(b)); err != nil {
			t.Fatal(err)
		}
	}

	buckets, err = store.ListBuckets(key)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2025-10-26", "2025-10-27", "2025-10-28"}
	if !slices.Equal(buckets, want) {
		t.Errorf("ListBuckets() = %v, want %v", buckets, want)
	}
}

func TestStore_ReadLatest(t *testing.T) {
	store := openTestStore(t, Options{})
	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")

	if _, err := store.ReadLatest(key); !errors.Is(err, snapshot.ErrNotFound) {
		t.Errorf("ReadLatest() on empty key error = %v, want ErrNotFound", err)
	}

	for _, b := range []string{"2025-10-26", "2025-10-28"} {
		if _, err := store.WriteBucket(key, b, []byte(b)); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := store.ReadLatest(key)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Bucket != "2025-10-28" {
		t.Errorf("latest bucket = %q, want 2025-10-28", latest.Bucket)
	}
}

func TestStore_CacheTagSeparatesLineages(t *testing.T) {
	store := openTestStore(t, Options{})
	plain := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")
	tagged := snapshot.MakeKey("justetf", "IE00B4L5Y983", "html")

	if _, err := store.WriteBucket(plain, "2025-10-28", []byte("plain")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.WriteBucket(tagged, "2025-10-28", []byte("tagged")); err != nil {
		t.Fatalf("tagged WriteBucket() returned error: %v", err)
	}
}

func TestStore_ConcurrentWritersExactlyOneWins(t *testing.T) {
	store := openTestStore(t, Options{})
	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")

	const writers = 16
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			_, err := store.WriteBucket(key, "2025-10-28", []byte{byte(n)})
			errs <- err
		}(i)
	}

	var wins, conflicts int
	for i := 0; i < writers; i++ {
		switch err := <-errs; {
		case err == nil:
			wins++
		case errors.Is(err, snapshot.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected writer error: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("%d writers succeeded, want exactly 1", wins)
	}
	if conflicts != writers-1 {
		t.Errorf("%d writers conflicted, want %d", conflicts, writers-1)
	}
}

func TestStore_ClockControlsCreatedAt(t *testing.T) {
	store := openTestStore(t, Options{})
	then := time.Date(2025, 10, 28, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return then })

	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")
	art, err := store.WriteBucket(key, "2025-10-28", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !art.CreatedAt.Equal(then) {
		t.Errorf("CreatedAt = %v, want %v", art.CreatedAt, then)
	}

	read, err := store.ReadBucket(key, "2025-10-28")
	if err != nil {
		t.Fatal(err)
	}
	if !read.CreatedAt.Equal(then) {
		t.Errorf("persisted CreatedAt = %v, want %v", read.CreatedAt, then)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	key := snapshot.MakeKey("justetf", "IE00B4L5Y983", "")

	store, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.WriteBucket(key, "2025-10-28", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	art, err := reopened.ReadBucket(key, "2025-10-28")
	if err != nil {
		t.Fatalf("ReadBucket() after reopen returned error: %v", err)
	}
	if string(art.Payload) != "x" {
		t.Errorf("payload after reopen = %s, want x", art.Payload)
	}
}
