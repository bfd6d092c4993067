// Package syncmap provides a mutex-guarded generic map, used for state that
// is replaced wholesale on reconnect while handlers read it.
package syncmap

import (
	"iter"
	"sync"
)

// Map is a regular map but synchronized with a mutex.
type Map[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

// New returns a new syncmap.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		m: make(map[K]V),
	}
}

// Load returns the value for a key.
func (m *Map[K, V]) Load(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	return v, ok
}

// Store sets the value for a key.
func (m *Map[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}

// Delete deletes a key.
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

// Len returns the number of elements in the map.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.m)
}

// Replace atomically replaces the map's contents with a copy of n and
// returns the previous contents.
func (m *Map[K, V]) Replace(n map[K]V) map[K]V {
	c := make(map[K]V, len(n))
	for k, v := range n {
		c[k] = v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.m
	m.m = c
	return old
}

// All iterates over a snapshot of the map's elements.
// The map may be modified during iteration.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(f func(K, V) bool) {
		m.mu.Lock()
		keys := make([]K, 0, len(m.m))
		vals := make([]V, 0, len(m.m))
		for k, v := range m.m {
			keys = append(keys, k)
			vals = append(vals, v)
		}
		m.mu.Unlock()
		for i, k := range keys {
			if !f(k, vals[i]) {
				return
			}
		}
	}
}
