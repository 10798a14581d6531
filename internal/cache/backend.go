package cache

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Entry is one buffered write. Delete entries carry no value.
type Entry struct {
	Key    string
	Value  []byte
	Delete bool
}

// Backend is the storage behind a Database.
type Backend interface {
	Write(ctx context.Context, entries []Entry) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Scan visits every key starting with prefix in ascending key order.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
	Close() error
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

// MemoryBackend keeps entries in process memory. Used for paper runs and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Write(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return exception.ErrCacheClosed
	}
	for _, e := range entries {
		if e.Delete {
			delete(m.data, e.Key)
			continue
		}
		m.data[e.Key] = slices.Clone(e.Value)
	}
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.Wrap(exception.ErrKeyNotFound, "memory get").With("key", key)
	}
	return slices.Clone(v), nil
}

func (m *MemoryBackend) Scan(_ context.Context, prefix string, fn func(string, []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = m.data[k]
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn(k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
