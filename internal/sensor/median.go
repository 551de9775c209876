package sensor

import (
	"slices"

	"github.com/smartcrop/sensor-node/internal/model"
)

// Median sorts a copy of values and returns the element at index n/2: the upper
// median for even n, never an interpolated mean. It reports false unless exactly
// n values were collected.
func Median(values []model.Value, n int) (model.Value, bool) {
	if n <= 0 || len(values) != n {
		return model.Value{}, false
	}
	sorted := slices.Clone(values)
	slices.SortStableFunc(sorted, func(a, b model.Value) int { return a.Compare(b) })
	return sorted[n/2], true
}
