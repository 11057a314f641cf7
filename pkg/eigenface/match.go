package eigenface

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// tieTolerance is the relative margin by which a later training sample must
// beat the current best distance to replace it.
const tieTolerance = 1e-9

// Match is the nearest training sample for a query.
type Match struct {
	Index    int
	Distance float64
}

// Nearest returns the training sample whose weight vector is closest to weights.
// Distances equal within tieTolerance resolve to the lowest index.
func (m *Model) Nearest(weights []float64) (Match, error) {
	if len(weights) != m.Rank() {
		return Match{}, fmt.Errorf("%w: weight vector has %d components, model rank is %d",
			ErrDimensionMismatch, len(weights), m.Rank())
	}
	return nearest(weights, m.weights), nil
}

// Match projects a flattened face and returns its nearest training sample.
func (m *Model) Match(face []float64) (Match, error) {
	w, err := m.Project(face)
	if err != nil {
		return Match{}, err
	}
	return m.Nearest(w)
}

func nearest(query []float64, weights *mat.Dense) Match {
	rows, _ := weights.Dims()
	best := Match{Index: -1, Distance: math.MaxFloat64}
	row := make([]float64, len(query))
	for j := 0; j < rows; j++ {
		mat.Row(row, j, weights)
		d := EuclideanDistance(query, row)
		if best.Index < 0 || d < best.Distance-tieTolerance*math.Max(1, best.Distance) {
			best = Match{Index: j, Distance: d}
		}
	}
	return best
}
