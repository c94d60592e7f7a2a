package sets

import "sync"

// Set is a simple generic hash set for comparable keys.
// Usage: s := sets.New[string]("a","b"); s.Add("c"); if s.Has("b") {...}
type Set[T comparable] map[T]struct{}

// New creates a set pre-populated with the provided values.
func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts value into the set.
func (s Set[T]) Add(v T) { s[v] = struct{}{} }

// Has returns true if v is present.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Delete removes v if present.
func (s Set[T]) Delete(v T) { delete(s, v) }

// Clone returns a shallow copy.
func (s Set[T]) Clone() Set[T] {
	out := make(Set[T], len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Concurrent is a set safe for use by multiple goroutines.
// The zero value is an empty set ready to use.
type Concurrent[T comparable] struct {
	m sync.Map
}

// Add inserts v and reports whether it was absent before.
func (c *Concurrent[T]) Add(v T) bool {
	_, loaded := c.m.LoadOrStore(v, struct{}{})
	return !loaded
}

// Has returns true if v is present.
func (c *Concurrent[T]) Has(v T) bool {
	_, ok := c.m.Load(v)
	return ok
}

// Delete removes v and reports whether it was present.
func (c *Concurrent[T]) Delete(v T) bool {
	_, loaded := c.m.LoadAndDelete(v)
	return loaded
}

// Len counts the members. It is a snapshot, not a synchronization point.
func (c *Concurrent[T]) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Snapshot copies the current members into a plain Set.
func (c *Concurrent[T]) Snapshot() Set[T] {
	out := make(Set[T])
	c.m.Range(func(k, _ any) bool {
		out.Add(k.(T))
		return true
	})
	return out
}
