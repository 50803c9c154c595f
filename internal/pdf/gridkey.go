package pdf

import (
	"fmt"
	"strings"
)

// Coordinate is one shape parameter's grid value.
type Coordinate struct {
	Name  string
	Value float64
}

// Keyer maps a grid point to a storage key. Keeping it separate from the
// store lets a different backing store use its own keys.
type Keyer interface {
	Key(coords []Coordinate) string
}

// NameKeyer builds <base><name><value %.2f>...<suffix>, coordinates in
// declaration order.
type NameKeyer struct {
	Base   string
	Suffix string
}

func (k NameKeyer) Key(coords []Coordinate) string {
	var b strings.Builder
	b.WriteString(k.Base)
	for _, c := range coords {
		b.WriteString(c.Name)
		b.WriteString(formatGridValue(c.Value))
	}
	b.WriteString(k.Suffix)
	return b.String()
}

// formatGridValue prints two decimals and never "-0.00".
func formatGridValue(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}

// TupleKeyer keys by the rounded coordinate values alone, for in-memory
// stores that do not follow the file naming convention.
type TupleKeyer struct {
	Prefix string
}

func (k TupleKeyer) Key(coords []Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = formatGridValue(c.Value)
	}
	return k.Prefix + "(" + strings.Join(parts, ",") + ")"
}
