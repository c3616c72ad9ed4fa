package estimate

import (
	"sort"

	"gasmeter/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// DefaultHistoryCapacity keeps about an hour of cycles at a 5 minute period.
const DefaultHistoryCapacity = 12

// CircleHistory is a bounded FIFO of per-cycle dial geometries. Every set in
// the history has the same number of circles, ordered by x.
type CircleHistory struct {
	capacity int
	sets     [][]geometry.Circle
}

// NewCircleHistory creates an empty history holding at most capacity sets.
func NewCircleHistory(capacity int) *CircleHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &CircleHistory{capacity: capacity}
}

// Push appends a set, dropping the oldest once the history is full. A set
// whose size differs from the sets already held resets the history.
func (h *CircleHistory) Push(set []geometry.Circle) {
	if len(h.sets) > 0 && len(h.sets[0]) != len(set) {
		h.sets = nil
	}
	cp := make([]geometry.Circle, len(set))
	copy(cp, set)
	h.sets = append(h.sets, cp)
	if len(h.sets) > h.capacity {
		h.sets = h.sets[len(h.sets)-h.capacity:]
	}
}

// Len returns the number of sets held.
func (h *CircleHistory) Len() int {
	return len(h.sets)
}

// Capacity returns the maximum number of sets held.
func (h *CircleHistory) Capacity() int {
	return h.capacity
}

// Mean returns the column-wise mean of x, y and radius over the history.
func (h *CircleHistory) Mean() []geometry.Circle {
	return MeanSet(h.sets)
}

// column gathers one coordinate of circle i across all sets.
func column(sets [][]geometry.Circle, i int, get func(geometry.Circle) float64) []float64 {
	vals := make([]float64, len(sets))
	for j, set := range sets {
		vals[j] = get(set[i])
	}
	return vals
}

func getX(c geometry.Circle) float64 { return c.X }
func getY(c geometry.Circle) float64 { return c.Y }
func getR(c geometry.Circle) float64 { return c.Radius }

// MeanSet combines equally sized circle sets by averaging each coordinate of
// each dial column independently.
func MeanSet(sets [][]geometry.Circle) []geometry.Circle {
	if len(sets) == 0 {
		return nil
	}
	out := make([]geometry.Circle, len(sets[0]))
	for i := range out {
		out[i] = geometry.Circle{
			X:      stat.Mean(column(sets, i, getX), nil),
			Y:      stat.Mean(column(sets, i, getY), nil),
			Radius: stat.Mean(column(sets, i, getR), nil),
		}
	}
	return out
}

// MedianSet combines equally sized circle sets by taking the median of each
// coordinate of each dial column independently, so one corrupted frame
// cannot drag the result.
func MedianSet(sets [][]geometry.Circle) []geometry.Circle {
	if len(sets) == 0 {
		return nil
	}
	out := make([]geometry.Circle, len(sets[0]))
	for i := range out {
		out[i] = geometry.Circle{
			X:      median(column(sets, i, getX)),
			Y:      median(column(sets, i, getY)),
			Radius: median(column(sets, i, getR)),
		}
	}
	return out
}

// median averages the two middle values of an even-length sample.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
