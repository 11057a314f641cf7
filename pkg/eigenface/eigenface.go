// Package eigenface fits an eigenface (PCA) model to a matrix of flattened
// faces and matches new faces against the training set by nearest neighbour
// in the reduced weight space.
//
// The fit works in image space (Turk–Pentland): with p pixels and n images it
// decomposes the n × n matrix AᵀA/(n−1) of the centered faces A instead of the
// p × p pixel covariance, then maps the selected eigenvectors back to pixel
// space with A.
package eigenface

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/MrCodeEU/facepca/pkg/logging"
)

// ErrEmptyMatrix is returned when fitting a matrix without pixels or images.
var ErrEmptyMatrix = errors.New("training matrix is empty")

// ErrRankOutOfRange is returned when k is outside [1, min(images, pixels)−1].
var ErrRankOutOfRange = errors.New("rank out of range")

// ErrDimensionMismatch is returned when a face or weight vector does not
// have the length the model was fitted with.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// ErrDecomposition is returned when the eigensolver does not converge.
var ErrDecomposition = errors.New("eigendecomposition failed")

// Model is a fitted eigenface model. It is immutable; refitting builds a new one.
type Model struct {
	mean        *mat.VecDense // pixels
	eigenfaces  *mat.Dense    // rank × pixels
	weights     *mat.Dense    // samples × rank
	eigenvalues []float64     // rank, descending
}

// MaxRank returns the largest usable rank for a training set of the given size.
func MaxRank(images, pixels int) int {
	return min(images, pixels) - 1
}

// Fit computes the mean face, the k eigenfaces with the largest eigenvalues
// and the training weights of m, a pixels × images matrix whose columns are
// flattened faces.
//
// Eigenfaces are ordered by descending eigenvalue and are not normalized.
// Their sign is whatever the solver returns; callers must not rely on it.
func Fit(m mat.Matrix, k int) (*Model, error) {
	p, n := m.Dims()
	if p == 0 || n == 0 {
		return nil, ErrEmptyMatrix
	}
	if maxRank := MaxRank(n, p); k < 1 || k > maxRank {
		return nil, fmt.Errorf("%w: k=%d, must be in [1, %d] for %d images of %d pixels",
			ErrRankOutOfRange, k, maxRank, n, p)
	}

	mean := mat.NewVecDense(p, nil)
	for i := 0; i < p; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += m.At(i, j)
		}
		mean.SetVec(i, sum/float64(n))
	}

	centered := mat.NewDense(p, n, nil)
	for i := 0; i < p; i++ {
		mu := mean.AtVec(i)
		for j := 0; j < n; j++ {
			centered.Set(i, j, m.At(i, j)-mu)
		}
	}

	var cov mat.SymDense
	cov.SymOuterK(1/float64(n-1), centered.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return nil, ErrDecomposition
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Values are ascending; take the last k columns, largest first.
	selected := mat.NewDense(n, k, nil)
	eigenvalues := make([]float64, k)
	for c := 0; c < k; c++ {
		idx := n - 1 - c
		eigenvalues[c] = values[idx]
		for r := 0; r < n; r++ {
			selected.Set(r, c, vectors.At(r, idx))
		}
	}

	eigenfaces := new(mat.Dense)
	eigenfaces.Mul(selected.T(), centered.T())

	model := &Model{
		mean:        mean,
		eigenfaces:  eigenfaces,
		weights:     mat.NewDense(n, k, nil),
		eigenvalues: eigenvalues,
	}
	for j := 0; j < n; j++ {
		col := mat.VecDenseCopyOf(centered.ColView(j))
		model.weights.SetRow(j, model.project(col))
	}

	logging.Component("eigenface").WithFields(logging.Fields{
		"pixels":  p,
		"images":  n,
		"rank":    k,
		"lambda0": eigenvalues[0],
	}).Debug("Model fitted")

	return model, nil
}

// Rank returns the number of eigenfaces.
func (m *Model) Rank() int { return len(m.eigenvalues) }

// Pixels returns the flattened face length the model expects.
func (m *Model) Pixels() int { return m.mean.Len() }

// Samples returns the number of training faces.
func (m *Model) Samples() int {
	r, _ := m.weights.Dims()
	return r
}

// Mean returns a copy of the mean face.
func (m *Model) Mean() []float64 {
	return append([]float64(nil), m.mean.RawVector().Data...)
}

// Eigenvalues returns the eigenvalues of the selected eigenfaces, largest first.
func (m *Model) Eigenvalues() []float64 {
	return append([]float64(nil), m.eigenvalues...)
}

// Eigenface returns a copy of the i-th eigenface.
func (m *Model) Eigenface(i int) []float64 {
	return mat.Row(nil, i, m.eigenfaces)
}

// Weights returns a copy of the weight vector of training face j.
func (m *Model) Weights(j int) []float64 {
	return mat.Row(nil, j, m.weights)
}

// Project returns the weight vector of a flattened face.
func (m *Model) Project(face []float64) ([]float64, error) {
	if len(face) != m.Pixels() {
		return nil, fmt.Errorf("%w: face has %d pixels, model expects %d",
			ErrDimensionMismatch, len(face), m.Pixels())
	}

	centered := mat.NewVecDense(len(face), nil)
	for i, v := range face {
		centered.SetVec(i, v-m.mean.AtVec(i))
	}
	return m.project(centered), nil
}

func (m *Model) project(centered *mat.VecDense) []float64 {
	var w mat.VecDense
	w.MulVec(m.eigenfaces, centered)
	return append([]float64(nil), w.RawVector().Data...)
}

// EuclideanDistance returns the Euclidean distance between two vectors,
// or math.MaxFloat64 when their lengths differ.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
