package selector

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource returns the queued values in order.
type fixedSource struct{ values []int }

func (s *fixedSource) IntN(int) int {
	v := s.values[0]
	s.values = s.values[1:]
	return v
}

func TestNewWeighted(t *testing.T) {
	tests := []struct {
		name    string
		items   []string
		weights []int
		wantErr error
	}{
		{name: "valid", items: []string{"a", "b"}, weights: []int{1, 2}},
		{name: "zero weight allowed", items: []string{"a", "b"}, weights: []int{0, 2}},
		{name: "no items", items: nil, weights: nil, wantErr: ErrNoItems},
		{name: "negative weight", items: []string{"a"}, weights: []int{-1}, wantErr: ErrInvalidWeight},
		{name: "all zero", items: []string{"a", "b"}, weights: []int{0, 0}, wantErr: ErrZeroTotalWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWeighted(tt.items, tt.weights)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, w)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.items), w.Len())
		})
	}

	t.Run("length mismatch", func(t *testing.T) {
		_, err := NewWeighted([]string{"a", "b"}, []int{1})
		assert.Error(t, err)
	})
}

func TestWeighted_PickBoundaries(t *testing.T) {
	// cumulative: a=3, b=3 (zero weight), c=5
	w, err := NewWeighted([]string{"a", "b", "c"}, []int{3, 0, 2})
	require.NoError(t, err)

	src := &fixedSource{values: []int{0, 2, 3, 4}}
	assert.Equal(t, "a", w.Pick(src))
	assert.Equal(t, "a", w.Pick(src))
	assert.Equal(t, "c", w.Pick(src), "zero-weight item is skipped")
	assert.Equal(t, "c", w.Pick(src))
}

func TestWeighted_Probability(t *testing.T) {
	w, err := NewWeighted([]string{"a", "b", "c"}, []int{10, 0, 30})
	require.NoError(t, err)

	assert.InDelta(t, 0.25, w.Probability(0), 1e-9)
	assert.Zero(t, w.Probability(1))
	assert.InDelta(t, 0.75, w.Probability(2), 1e-9)
	assert.Zero(t, w.Probability(5))
	assert.Equal(t, 40, w.TotalWeight())
	assert.Equal(t, "c", w.Item(2))
}

func TestWeighted_Distribution(t *testing.T) {
	names := []string{"Main Dashboard", "Sales Menu", "Fetch Partners Data", "Create Sale Order", "Disabled"}
	weights := []int{10, 8, 15, 2, 0}
	w, err := NewWeighted(names, weights)
	require.NoError(t, err)

	src := rand.New(rand.NewPCG(1, 2))
	const draws = 200000
	counts := make(map[string]int)
	for range draws {
		counts[w.Pick(src)]++
	}

	assert.Zero(t, counts["Disabled"])
	for i, name := range names {
		want := w.Probability(i)
		got := float64(counts[name]) / draws
		assert.LessOrEqual(t, math.Abs(got-want), 0.01, "%s: got %.4f want %.4f", name, got, want)
	}
}

func TestApportion(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		weights []int
		want    []int
	}{
		{name: "default population", n: 10, weights: []int{1, 1, 3}, want: []int{2, 2, 6}},
		{name: "exact", n: 5, weights: []int{1, 1, 3}, want: []int{1, 1, 3}},
		{name: "single user goes to heaviest remainder", n: 1, weights: []int{1, 1, 3}, want: []int{0, 0, 1}},
		{name: "remainder ties go first", n: 2, weights: []int{1, 1, 1}, want: []int{1, 1, 0}},
		{name: "zero users", n: 0, weights: []int{1, 2}, want: []int{0, 0}},
		{name: "zero weight gets none", n: 7, weights: []int{0, 1}, want: []int{0, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apportion(tt.n, tt.weights)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			sum := 0
			for _, c := range got {
				sum += c
			}
			assert.Equal(t, tt.n, sum)
		})
	}
}

func TestApportion_Errors(t *testing.T) {
	_, err := Apportion(3, nil)
	assert.ErrorIs(t, err, ErrNoItems)

	_, err = Apportion(3, []int{1, -1})
	assert.ErrorIs(t, err, ErrInvalidWeight)

	_, err = Apportion(3, []int{0, 0})
	assert.ErrorIs(t, err, ErrZeroTotalWeight)
}
