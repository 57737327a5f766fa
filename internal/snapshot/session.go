package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// FetchFunc retrieves the raw payload for a resource from its external
// source. It may be slow and may fail with network or parsing errors; the
// session propagates such errors to the caller unchanged, with no retries.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Session resolves fetch requests through the cache: it consults the policy
// engine, reads the store on a hit, and invokes the fetch collaborator and
// writes through the store on a miss.
//
// A session holds no per-request state and is safe for concurrent use.
// Sessions with different stores or clocks can coexist in one process.
type Session struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewSession creates a session over store using the wall clock.
func NewSession(store Store) *Session {
	return &Session{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// SetClock overrides the session's time source. Used by tests and by
// callers that replay historical fetches.
func (s *Session) SetClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// SetLogger overrides the session's logger.
func (s *Session) SetLogger(logger *slog.Logger) *Session {
	s.logger = logger
	return s
}

// Get resolves one fetch request under pol. It returns the artifact and
// whether it was served from cache.
//
// Error handling: only ErrConflict is absorbed here (a concurrent writer won
// the race for the same coordinate; the winner's artifact is returned as a
// hit). Fetch errors, ErrOrderViolation and ErrCorrupted cross the boundary
// verbatim so retry policy stays with the caller.
func (s *Session) Get(ctx context.Context, key Key, pol Policy, fetch FetchFunc) (*Artifact, bool, error) {
	dec, err := Decide(pol, key, s.store, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("decide %s: %w", key, err)
	}

	if dec.Reuse {
		art, err := s.store.ReadBucket(key, dec.Bucket)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// The policy engine just observed this bucket; failing to
				// read it back means the store changed underneath us.
				return nil, false, fmt.Errorf("%w: %s bucket %q unreadable after policy decision", ErrCorrupted, key, dec.Bucket)
			}
			return nil, false, err
		}
		s.logger.Debug("cache hit",
			"key", key.String(),
			"bucket", dec.Bucket,
			"mode", pol.Mode.String())
		return art, true, nil
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}

	art, err := s.store.WriteBucket(key, dec.Bucket, payload)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost the write race; the winning writer's artifact is
			// equally valid for this coordinate.
			winner, rerr := s.store.ReadBucket(key, dec.Bucket)
			if rerr != nil {
				return nil, false, fmt.Errorf("%w: %s bucket %q exists but cannot be read after write conflict", ErrCorrupted, key, dec.Bucket)
			}
			s.logger.Debug("write conflict resolved by re-read",
				"key", key.String(),
				"bucket", dec.Bucket)
			return winner, true, nil
		}
		return nil, false, err
	}

	s.logger.Debug("cache miss",
		"key", key.String(),
		"bucket", dec.Bucket,
		"mode", pol.Mode.String(),
		"bytes", art.Length)
	return art, false, nil
}
