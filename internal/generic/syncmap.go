package generic

import "sync"

// SyncMap is a generic wrapper around sync.Map that allows you to specify the
// key and value types to avoid type assertions and casting.
type SyncMap[K comparable, V any] struct {
	m sync.Map
}

// Store sets the value for a key.
func (m *SyncMap[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

// Load returns the value stored in the map for a key. The ok result indicates
// whether value was found in the map.
func (m *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	if v, ok := m.m.Load(key); ok {
		return v.(V), true
	}

	return value, false
}
