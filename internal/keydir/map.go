package keydir

import "sync"

// Map is a keydir backed by a Go map behind a single RWMutex.
type Map struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMap() *Map {
	return &Map{entries: make(map[string]Entry)}
}

func (m *Map) Get(key []byte) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[string(key)]
	return entry, ok
}

func (m *Map) Put(key []byte, entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[string(key)] = entry
}

func (m *Map) Remove(key []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[string(key)]
	delete(m.entries, string(key))
	return ok
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

func (m *Map) Keys() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([][]byte, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, []byte(k))
	}
	return keys
}
