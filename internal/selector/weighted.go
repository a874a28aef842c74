// Package selector provides weighted random selection for behavior profiles
// and task catalogs.
package selector

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Errors returned by the selector package.
var (
	// ErrNoItems is returned when there are no items to select from.
	ErrNoItems = errors.New("selector: no items available")
	// ErrInvalidWeight is returned when an item has a negative weight.
	ErrInvalidWeight = errors.New("selector: invalid weight")
	// ErrZeroTotalWeight is returned when all weights are zero.
	ErrZeroTotalWeight = errors.New("selector: weights sum to zero")
)

// Source supplies uniform random integers in [0, n), e.g. *math/rand/v2.Rand.
type Source interface {
	IntN(n int) int
}

// Weighted selects items with probability weight/total.
// It is built once and is safe for concurrent use; randomness comes from
// the caller's Source so each actor can keep its own generator.
type Weighted[T any] struct {
	items      []T
	weights    []int
	cumulative []int
	total      int
}

// NewWeighted builds a selector. weights[i] belongs to items[i].
// Zero weights are allowed and are never picked.
func NewWeighted[T any](items []T, weights []int) (*Weighted[T], error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if len(items) != len(weights) {
		return nil, fmt.Errorf("selector: %d items but %d weights", len(items), len(weights))
	}

	w := &Weighted[T]{
		items:      slices.Clone(items),
		weights:    slices.Clone(weights),
		cumulative: make([]int, len(weights)),
	}
	for i, weight := range weights {
		if weight < 0 {
			return nil, fmt.Errorf("%w: item %d has weight %d", ErrInvalidWeight, i, weight)
		}
		w.total += weight
		w.cumulative[i] = w.total
	}
	if w.total == 0 {
		return nil, ErrZeroTotalWeight
	}
	return w, nil
}

// Pick draws one item.
func (w *Weighted[T]) Pick(src Source) T {
	return w.items[w.index(src.IntN(w.total))]
}

// index finds the first entry whose cumulative weight exceeds target.
// Zero-weight entries share the cumulative value of their predecessor and
// are therefore never the first to exceed it.
func (w *Weighted[T]) index(target int) int {
	return sort.Search(len(w.cumulative), func(i int) bool {
		return w.cumulative[i] > target
	})
}

// Probability returns the selection probability of item i.
func (w *Weighted[T]) Probability(i int) float64 {
	if i < 0 || i >= len(w.weights) {
		return 0
	}
	return float64(w.weights[i]) / float64(w.total)
}

// Len returns the number of items, including zero-weight ones.
func (w *Weighted[T]) Len() int { return len(w.items) }

// Item returns item i.
func (w *Weighted[T]) Item(i int) T { return w.items[i] }

// TotalWeight returns the sum of all weights.
func (w *Weighted[T]) TotalWeight() int { return w.total }

// Apportion splits n across weights with the largest remainder method.
// The result always sums to n; ties go to the earlier index.
func Apportion(n int, weights []int) ([]int, error) {
	if len(weights) == 0 {
		return nil, ErrNoItems
	}
	total := 0
	for i, weight := range weights {
		if weight < 0 {
			return nil, fmt.Errorf("%w: item %d has weight %d", ErrInvalidWeight, i, weight)
		}
		total += weight
	}
	if total == 0 {
		return nil, ErrZeroTotalWeight
	}

	counts := make([]int, len(weights))
	remainders := make([]int, len(weights))
	assigned := 0
	for i, weight := range weights {
		counts[i] = n * weight / total
		remainders[i] = n * weight % total
		assigned += counts[i]
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for i := 0; assigned < n; i++ {
		counts[order[i%len(order)]]++
		assigned++
	}
	return counts, nil
}
