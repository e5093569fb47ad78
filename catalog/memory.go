package catalog

import (
	"context"
	"sync"
)

// MemoryStore keeps the menu in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	drinks []Drink
}

// NewMemoryStore returns a store holding a copy of drinks.
func NewMemoryStore(drinks []Drink) *MemoryStore {
	return &MemoryStore{drinks: append([]Drink(nil), drinks...)}
}

func (s *MemoryStore) List(ctx context.Context) ([]Drink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Drink(nil), s.drinks...), nil
}

func (s *MemoryStore) Get(ctx context.Context, name string) (Drink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.drinks {
		if d.Name == name {
			return d, nil
		}
	}
	return Drink{}, ErrNotFound
}

// Replace swaps the whole menu.
func (s *MemoryStore) Replace(drinks []Drink) {
	s.mu.Lock()
	s.drinks = append([]Drink(nil), drinks...)
	s.mu.Unlock()
}
