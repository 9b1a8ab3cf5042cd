package storage

import (
	"sync"
)

// MemoryStore is an in-process store with the semantics of browser local storage:
// string keys, whole-value writes and a total byte quota.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string][]byte
	used     int64
	quota    int64
	disabled bool
}

// NewMemory creates an empty memory store. A quota <= 0 means unlimited.
func NewMemory(quota int64) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
		quota:   quota,
	}
}

// SetDisabled makes every operation fail with ErrUnavailable, the way local
// storage behaves in a sandboxed or private browsing context.
func (m *MemoryStore) SetDisabled(disabled bool) {
	m.mu.Lock()
	m.disabled = disabled
	m.mu.Unlock()
}

func (m *MemoryStore) Init() error {
	return nil
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.disabled {
		return nil, ErrUnavailable
	}
	value, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disabled {
		return ErrUnavailable
	}

	used := m.used + entrySize(key, value)
	if old, ok := m.entries[key]; ok {
		used -= entrySize(key, old)
	}
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = stored
	m.used = used
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disabled {
		return ErrUnavailable
	}
	if old, ok := m.entries[key]; ok {
		m.used -= entrySize(key, old)
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.disabled {
		return nil, ErrUnavailable
	}
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

// Used returns the number of bytes currently charged against the quota
func (m *MemoryStore) Used() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}
