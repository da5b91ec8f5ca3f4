package field

import (
	"sort"
	"sync"

	"nanitecraft.ai/internal/sim/mining"
)

// Store is the set of live fields of a session.
type Store struct {
	mu     sync.RWMutex
	fields map[string]*Field
}

func NewStore() *Store {
	return &Store{fields: map[string]*Field{}}
}

func (s *Store) Add(f *Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[f.ID()] = f
}

// Remove drops a field. Targets inside it fail with an entity-gone outcome.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fields, id)
}

func (s *Store) Get(id string) (*Field, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fields[id]
	return f, ok
}

func (s *Store) Lookup(id string) (mining.Field, bool) {
	f, ok := s.Get(id)
	if !ok {
		return nil, false
	}
	return f, true
}

func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.fields))
	for id := range s.fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
