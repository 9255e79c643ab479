package game

import "sort"

const (
	// Epsilon keeps scores off absolute certainty
	Epsilon = 5.0
	// MinSuspicion and MaxSuspicion bound every stored score
	MinSuspicion = Epsilon
	MaxSuspicion = 100 - Epsilon
	// Baseline is the score assumed without any history
	Baseline = 35.0
)

// Matrix is a sparse observer -> target -> score table. Self entries never
// exist.
type Matrix struct {
	entries map[string]map[string]float64
}

// NewMatrix creates an empty matrix
func NewMatrix() *Matrix {
	return &Matrix{
		entries: make(map[string]map[string]float64),
	}
}

// Clamp bounds a score into [MinSuspicion, MaxSuspicion]
func Clamp(v float64) float64 {
	if v < MinSuspicion {
		return MinSuspicion
	}
	if v > MaxSuspicion {
		return MaxSuspicion
	}
	return v
}

// Get returns the observer's score for target, or Baseline when unset.
// ok is false for self-suspicion, which is undefined.
func (m *Matrix) Get(observer, target string) (float64, bool) {
	if observer == target {
		return 0, false
	}
	if row, exists := m.entries[observer]; exists {
		if v, set := row[target]; set {
			return v, true
		}
	}
	return Baseline, true
}

// Set stores a clamped score. Self entries are ignored.
func (m *Matrix) Set(observer, target string, value float64) {
	if observer == target {
		return
	}
	row, exists := m.entries[observer]
	if !exists {
		row = make(map[string]float64)
		m.entries[observer] = row
	}
	row[target] = Clamp(value)
}

// Has reports whether an explicit entry exists
func (m *Matrix) Has(observer, target string) bool {
	_, ok := m.entries[observer][target]
	return ok
}

// Average is the mean of stored entries for target, skipping exclude.
// Baseline when nothing is stored.
func (m *Matrix) Average(target, exclude string) float64 {
	var sum float64
	var n int
	for observer, row := range m.entries {
		if observer == exclude || observer == target {
			continue
		}
		if v, ok := row[target]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return Baseline
	}
	return sum / float64(n)
}

// Observer returns a copy of every stored entry held by observer
func (m *Matrix) Observer(observer string) map[string]float64 {
	out := make(map[string]float64, len(m.entries[observer]))
	for target, v := range m.entries[observer] {
		out[target] = v
	}
	return out
}

// Targets returns the targets observer has stored entries for, sorted
func (m *Matrix) Targets(observer string) []string {
	out := make([]string, 0, len(m.entries[observer]))
	for target := range m.entries[observer] {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// Decay pulls every stored entry toward Baseline by new = old*keep + Baseline*(1-keep)
func (m *Matrix) Decay(keep float64) {
	for _, row := range m.entries {
		for target, v := range row {
			row[target] = Clamp(v*keep + Baseline*(1-keep))
		}
	}
}

// Reset drops every entry
func (m *Matrix) Reset() {
	m.entries = make(map[string]map[string]float64)
}
