// Package templatestore provides the density template containers the
// likelihood components read from.
package templatestore

import (
	"fmt"
	"sort"
	"sync"

	"xelimit/domain/core"
	"xelimit/domain/histogram"
)

// MemoryStore keeps templates in a map. Templates are cloned on Put and
// shared read-only on lookup.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*histogram.Hist2D
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string]*histogram.Hist2D)}
}

// Put stores a copy of h under name.
func (s *MemoryStore) Put(name string, h *histogram.Hist2D) {
	c := h.Clone()
	c.Name = name
	s.mu.Lock()
	s.templates[name] = c
	s.mu.Unlock()
}

func (s *MemoryStore) Template(name string) (*histogram.Hist2D, error) {
	s.mu.RLock()
	h, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return nil, core.NewTemplateNotFoundError(name)
	}
	return h, nil
}

func (s *MemoryStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.templates[name]
	return ok
}

func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored templates.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates)
}

// Merge copies every template of other into s, rejecting name clashes.
func (s *MemoryStore) Merge(other *MemoryStore) error {
	for _, name := range other.Names() {
		if s.Has(name) {
			return fmt.Errorf("template %q defined twice", name)
		}
		h, _ := other.Template(name)
		s.Put(name, h)
	}
	return nil
}
