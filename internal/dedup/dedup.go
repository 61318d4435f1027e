// Package dedup provides a concurrency-safe set whose single essential
// operation is atomic insert-if-absent. The pipeline uses three of
// these: local locations visited, remote addresses seen, and remote
// outcome classification.
package dedup

import "sync"

// Set is a mutex-guarded set of comparable values, safe for concurrent
// Add and membership queries from many goroutines.
type Set[T comparable] struct {
	mu      sync.Mutex
	members map[T]struct{}
}

// NewSet returns an empty Set.
func NewSet[T comparable]() *Set[T] {
	return &Set[T]{members: make(map[T]struct{})}
}

// Add inserts v and reports whether it was newly added. The
// check-and-insert is atomic: for any value, exactly one caller
// observes true.
func (s *Set[T]) Add(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[v]; ok {
		return false
	}
	s.members[v] = struct{}{}
	return true
}

// Contains reports whether v is a member.
func (s *Set[T]) Contains(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.members[v]
	return ok
}

// Len returns the current member count.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.members)
}

// Values returns a snapshot of the members in unspecified order.
func (s *Set[T]) Values() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, len(s.members))
	for v := range s.members {
		out = append(out, v)
	}
	return out
}
