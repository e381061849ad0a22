// Package orderedmap provides a map that remembers key insertion order.
// Rankings rely on it for "first encountered wins" tie-breaks.
package orderedmap

// Map is an insertion-ordered map. The zero value is not usable; call New.
type Map[K comparable, V any] struct {
	index map[K]int
	keys  []K
	vals  []V
}

// New creates an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{index: make(map[K]int)}
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	i, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return m.vals[i], true
}

// Set stores value under key. Updating an existing key keeps its position.
func (m *Map[K, V]) Set(key K, value V) {
	if i, ok := m.index[key]; ok {
		m.vals[i] = value
		return
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, value)
}

// GetOrInsert returns the value for key, inserting the result of init first
// when the key is absent.
func (m *Map[K, V]) GetOrInsert(key K, init func() V) V {
	if i, ok := m.index[key]; ok {
		return m.vals[i]
	}
	v := init()
	m.Set(key, v)
	return v
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.index[key]
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// Values returns the values in key insertion order.
func (m *Map[K, V]) Values() []V {
	out := make([]V, len(m.vals))
	copy(out, m.vals)
	return out
}

// Each calls fn for every entry in insertion order. Iteration stops when fn
// returns false.
func (m *Map[K, V]) Each(fn func(key K, value V) bool) {
	for i, k := range m.keys {
		if !fn(k, m.vals[i]) {
			return
		}
	}
}

// Clone returns a shallow copy.
func (m *Map[K, V]) Clone() *Map[K, V] {
	c := &Map[K, V]{
		index: make(map[K]int, len(m.index)),
		keys:  make([]K, len(m.keys)),
		vals:  make([]V, len(m.vals)),
	}
	copy(c.keys, m.keys)
	copy(c.vals, m.vals)
	for k, v := range m.index {
		c.index[k] = v
	}
	return c
}
