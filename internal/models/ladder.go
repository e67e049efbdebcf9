package models

import (
	"fmt"
	"sort"
)

// RetraceDirection records the most recent direction in which price crossed
// a ladder level.
type RetraceDirection string

const (
	// RetraceNone means the level has not been crossed since the last entry
	// consumed its annotation.
	RetraceNone RetraceDirection = ""
	// RetraceUp marks an upward cross through the level.
	RetraceUp RetraceDirection = "up"
	// RetraceDown marks a downward cross through the level.
	RetraceDown RetraceDirection = "down"
)

// Valid returns true if the direction is one of the defined constants.
func (d RetraceDirection) Valid() bool {
	switch d {
	case RetraceNone, RetraceUp, RetraceDown:
		return true
	default:
		return false
	}
}

// Ladder is an immutable, strictly increasing sequence of static price
// levels together with a mutable per-index retrace annotation. The level
// slice is fixed at construction and never mutated afterwards.
type Ladder struct {
	levels      []float64
	annotations []RetraceDirection
}

// NewLadder sorts a copy of the given levels and initializes every
// annotation to RetraceNone. Levels must be positive and free of duplicates.
func NewLadder(levels []float64) (*Ladder, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("ladder requires at least one level")
	}
	sorted := make([]float64, len(levels))
	copy(sorted, levels)
	sort.Float64s(sorted)
	for i, lv := range sorted {
		if lv <= 0 {
			return nil, fmt.Errorf("ladder level %v must be positive", lv)
		}
		if i > 0 && sorted[i-1] == lv {
			return nil, fmt.Errorf("duplicate ladder level %v", lv)
		}
	}
	return &Ladder{
		levels:      sorted,
		annotations: make([]RetraceDirection, len(sorted)),
	}, nil
}

// Len returns the number of ladder levels.
func (l *Ladder) Len() int { return len(l.levels) }

// Level returns the price at index i.
func (l *Ladder) Level(i int) float64 { return l.levels[i] }

// Levels returns a copy of the level prices in ascending order.
func (l *Ladder) Levels() []float64 {
	out := make([]float64, len(l.levels))
	copy(out, l.levels)
	return out
}

// IndexOf returns the index of the given level price, or -1 when the price
// is not a ladder level.
func (l *Ladder) IndexOf(level float64) int {
	i := sort.SearchFloat64s(l.levels, level)
	if i < len(l.levels) && l.levels[i] == level {
		return i
	}
	return -1
}

// InRange reports whether i is a valid ladder index.
func (l *Ladder) InRange(i int) bool { return i >= 0 && i < len(l.levels) }

// Annotate records the direction of the most recent cross of level i.
func (l *Ladder) Annotate(i int, dir RetraceDirection) {
	if l.InRange(i) {
		l.annotations[i] = dir
	}
}

// Annotation returns the current retrace annotation for level i.
func (l *Ladder) Annotation(i int) RetraceDirection {
	if !l.InRange(i) {
		return RetraceNone
	}
	return l.annotations[i]
}

// Clear resets the annotation for level i, consuming an armed setup.
func (l *Ladder) Clear(i int) {
	if l.InRange(i) {
		l.annotations[i] = RetraceNone
	}
}

// Annotations returns a copy of all per-index annotations.
func (l *Ladder) Annotations() []RetraceDirection {
	out := make([]RetraceDirection, len(l.annotations))
	copy(out, l.annotations)
	return out
}

// RestoreAnnotations replaces the annotation state, used when reloading a
// persisted strategy. The annotation count must match the ladder length.
func (l *Ladder) RestoreAnnotations(annotations []RetraceDirection) error {
	if len(annotations) != len(l.levels) {
		return fmt.Errorf("annotation count %d does not match ladder length %d",
			len(annotations), len(l.levels))
	}
	copy(l.annotations, annotations)
	return nil
}
