package snapshot

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store used by policy and session tests. It gives
// tests full control over created-at timestamps via the clock function.
type memStore struct {
	mu            sync.Mutex
	artifacts     map[Key]map[string]*Artifact
	allowBackfill bool
	now           func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	if now == nil {
		now = time.Now
	}
	return &memStore{
		artifacts: make(map[Key]map[string]*Artifact),
		now:       now,
	}
}

func (s *memStore) ListBuckets(key Key) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buckets []string
	for b := range s.artifacts[key] {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	return buckets, nil
}

func (s *memStore) ReadBucket(key Key, bucket string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	art, ok := s.artifacts[key][bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %s bucket %q", ErrNotFound, key, bucket)
	}
	return art, nil
}

func (s *memStore) ReadLatest(key Key) (*Artifact, error) {
	buckets, err := s.ListBuckets(key)
	if err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		return nil, fmt.Errorf("%w: %s has no buckets", ErrNotFound, key)
	}
	return s.ReadBucket(key, buckets[len(buckets)-1])
}

func (s *memStore) WriteBucket(key Key, bucket string, payload []byte) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[key][bucket]; exists {
		return nil, fmt.Errorf("%w: %s bucket %q", ErrConflict, key, bucket)
	}

	if !s.allowBackfill {
		for b := range s.artifacts[key] {
			if bucket < b {
				return nil, fmt.Errorf("%w: %s bucket %q sorts before %q", ErrOrderViolation, key, bucket, b)
			}
		}
	}

	art := &Artifact{
		Key:       key,
		Bucket:    bucket,
		CreatedAt: s.now(),
		Length:    int64(len(payload)),
		Payload:   payload,
	}
	if s.artifacts[key] == nil {
		s.artifacts[key] = make(map[string]*Artifact)
	}
	s.artifacts[key][bucket] = art
	return art, nil
}

// put seeds an artifact directly, bypassing write checks.
func (s *memStore) put(key Key, bucket string, payload []byte, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.artifacts[key] == nil {
		s.artifacts[key] = make(map[string]*Artifact)
	}
	s.artifacts[key][bucket] = &Artifact{
		Key:       key,
		Bucket:    bucket,
		CreatedAt: createdAt,
		Length:    int64(len(payload)),
		Payload:   payload,
	}
}

// drop removes an artifact directly, for simulating store corruption.
func (s *memStore) drop(key Key, bucket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts[key], bucket)
}
