// mock_store.go - In-memory object store for testing
package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MockObjectStore implements storage.ObjectStore in memory and records
// every call so tests can assert on probe and upload behavior.
type MockObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// PutErrs makes Put fail for the given keys.
	PutErrs map[string]error

	// HeadErrs makes Head fail for the given keys.
	HeadErrs map[string]error

	PutCalls  []string
	HeadCalls []string
	SignCalls []string
}

// NewMockObjectStore creates an empty mock store.
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		objects:  make(map[string][]byte),
		PutErrs:  make(map[string]error),
		HeadErrs: make(map[string]error),
	}
}

func (m *MockObjectStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutCalls = append(m.PutCalls, key)
	if err, ok := m.PutErrs[key]; ok {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *MockObjectStore) Head(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HeadCalls = append(m.HeadCalls, key)
	if err, ok := m.HeadErrs[key]; ok {
		return false, err
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MockObjectStore) SignedURL(key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SignCalls = append(m.SignCalls, key)
	return fmt.Sprintf("https://store.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

// Seed stores an object directly, bypassing call recording.
func (m *MockObjectStore) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// Object returns a stored object's bytes.
func (m *MockObjectStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// HeadCount returns how many times key was probed.
func (m *MockObjectStore) HeadCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.HeadCalls {
		if k == key {
			n++
		}
	}
	return n
}

// PutCount returns how many uploads were issued.
func (m *MockObjectStore) PutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PutCalls)
}
