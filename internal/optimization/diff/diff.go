// Package diff is the differentiation collaborator of the evaluation cache.
//
// An Engine evaluates a function at a point and returns a Pullback: given a
// cotangent seed on the function output it writes the adjoint with respect to
// the input point. Gradients and Jacobians are assembled from pullbacks with
// one seed per output component, so a full Jacobian refresh of an m-valued
// function costs m reverse passes.
package diff

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
)

// Scalar is a scalar-valued function of the decision variables with an
// optional analytic gradient.
type Scalar struct {
	F func(x []float64) (float64, error)
	// Grad, when set, writes the gradient at x into grad.
	Grad func(grad, x []float64) error
}

// Vector is a vector-valued function of the decision variables with an
// optional analytic Jacobian.
type Vector struct {
	// Dim is the number of output components.
	Dim int
	// F writes the Dim outputs at x into dst.
	F func(dst, x []float64) error
	// Jac, when set, writes the Dim×n Jacobian at x into jac.
	Jac func(jac *mat.Dense, x []float64) error
}

// Len returns the number of output components, zero for a nil Vector.
func (v *Vector) Len() int {
	if v == nil || v.F == nil {
		return 0
	}
	return v.Dim
}

// Pullback writes into dst the adjoint of the input point for the given
// output cotangent seed. len(seed) is 1 for scalar functions.
type Pullback func(dst, seed []float64) error

// Engine produces values and pullbacks.
type Engine interface {
	ScalarPullback(f Scalar, x []float64) (float64, Pullback, error)
	VectorPullback(f Vector, x []float64) ([]float64, Pullback, error)
}

var unitSeed = []float64{1}

// Gradient fills dst with the gradient of a scalar function by seeding its
// pullback with 1.
func Gradient(dst []float64, pb Pullback) error {
	return pb(dst, unitSeed)
}

// Jacobian fills the rows of dst by seeding pb once per row with the
// matching basis vector.
func Jacobian(dst *mat.Dense, pb Pullback) error {
	m, n := dst.Dims()
	seed := make([]float64, m)
	row := make([]float64, n)
	for i := 0; i < m; i++ {
		seed[i] = 1
		if err := pb(row, seed); err != nil {
			return optimization.WrapErrorf(err, optimization.KindUserFunction, "pullback of row %d", i).
				WithComponent("diff").
				WithOperation("Jacobian")
		}
		dst.SetRow(i, row)
		seed[i] = 0
	}
	return nil
}
