package testutil

import (
	"context"
	"sync/atomic"

	"datakraken/internal/snapshot"
)

// MockFetcher is a mock fetch collaborator for tests. It counts Fetch
// invocations so tests can assert that cache hits never reach the source.
type MockFetcher struct {
	FetchFunc func(ctx context.Context) ([]byte, error)
	KeyFunc   func() snapshot.Key

	calls atomic.Int64
}

// Fetch implements the fetcher interface and records the call.
func (m *MockFetcher) Fetch(ctx context.Context) ([]byte, error) {
	m.calls.Add(1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx)
	}
	return nil, nil
}

// Key implements the fetcher interface.
func (m *MockFetcher) Key() snapshot.Key {
	if m.KeyFunc != nil {
		return m.KeyFunc()
	}
	return snapshot.MakeKey("mock", "resource", "")
}

// Calls returns how many times Fetch was invoked.
func (m *MockFetcher) Calls() int {
	return int(m.calls.Load())
}

// NewMockFetcher creates a mock fetcher with fixed key, payload and error.
func NewMockFetcher(key snapshot.Key, payload []byte, err error) *MockFetcher {
	return &MockFetcher{
		FetchFunc: func(ctx context.Context) ([]byte, error) {
			return payload, err
		},
		KeyFunc: func() snapshot.Key {
			return key
		},
	}
}
