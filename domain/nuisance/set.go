package nuisance

import (
	"fmt"

	"xelimit/domain/core"
)

// Set is an ordered registry of uniquely named parameters.
type Set struct {
	params []*Parameter
	index  map[string]int
}

func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Add registers p. Adding the same pointer twice is a no-op; a different
// parameter with an existing name is rejected.
func (s *Set) Add(p *Parameter) error {
	if i, ok := s.index[p.Name]; ok {
		if s.params[i] == p {
			return nil
		}
		return fmt.Errorf("%w: %s", core.ErrDuplicateParameter, p.Name)
	}
	s.index[p.Name] = len(s.params)
	s.params = append(s.params, p)
	return nil
}

// Get returns the parameter named name.
func (s *Set) Get(name string) (*Parameter, error) {
	i, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrParameterNotFound, name)
	}
	return s.params[i], nil
}

func (s *Set) Len() int { return len(s.params) }

// All returns the parameters in registration order.
func (s *Set) All() []*Parameter {
	out := make([]*Parameter, len(s.params))
	copy(out, s.params)
	return out
}

// HasNaN reports whether any current value is NaN.
func (s *Set) HasNaN() bool {
	for _, p := range s.params {
		if p.Value != p.Value {
			return true
		}
	}
	return false
}

// LogConstraint sums the Gaussian terms of all constrained parameters.
func (s *Set) LogConstraint() float64 {
	sum := 0.0
	for _, p := range s.params {
		sum += p.LogConstraint()
	}
	return sum
}

// ResetAll restores every initial value.
func (s *Set) ResetAll() {
	for _, p := range s.params {
		p.Reset()
	}
}

// Value is a name/value pair captured from a Set.
type Value struct {
	Name  string  `json:"name" db:"name"`
	Value float64 `json:"value" db:"value"`
}

// Snapshot captures all current values in order.
func (s *Set) Snapshot() []Value {
	out := make([]Value, len(s.params))
	for i, p := range s.params {
		out[i] = Value{Name: p.Name, Value: p.Value}
	}
	return out
}

// Restore assigns values from a snapshot, ignoring unknown names.
func (s *Set) Restore(values []Value) {
	for _, v := range values {
		if i, ok := s.index[v.Name]; ok {
			s.params[i].Value = v.Value
		}
	}
}
