package registry

import (
	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
)

// store is an identifier keyed map that remembers registration order. It is
// not synchronized; each registry guards its stores with its own lock.
type store[T any] struct {
	kind  string
	items map[string]T
	order []string
}

func newStore[T any](kind string) *store[T] {
	return &store[T]{kind: kind, items: make(map[string]T)}
}

func (s *store[T]) add(id string, item T) error {
	if _, exists := s.items[id]; exists {
		return mcperrors.Duplicate(s.kind, id)
	}
	s.items[id] = item
	s.order = append(s.order, id)
	return nil
}

func (s *store[T]) remove(id string) (T, error) {
	item, exists := s.items[id]
	if !exists {
		var zero T
		return zero, mcperrors.NotFound(s.kind, id)
	}
	delete(s.items, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return item, nil
}

func (s *store[T]) get(id string) (T, error) {
	item, exists := s.items[id]
	if !exists {
		var zero T
		return zero, mcperrors.NotFound(s.kind, id)
	}
	return item, nil
}

// values returns the items in registration order
func (s *store[T]) values() []T {
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

func (s *store[T]) len() int {
	return len(s.order)
}
