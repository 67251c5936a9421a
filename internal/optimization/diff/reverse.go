package diff

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Reverse is the default Engine. It uses the analytic derivative supplied
// with a function when there is one and otherwise approximates it with
// finite differences. Derivatives are computed lazily on the first pullback
// call and reused for further seeds at the same point.
type Reverse struct {
	// Formula is the finite difference stencil. The zero value means central.
	Formula fd.Formula
	// Step is the finite difference step. Zero means the formula default.
	Step float64
}

// NewReverse returns a Reverse engine using central differences with the
// given step.
func NewReverse(step float64) *Reverse {
	return &Reverse{Formula: fd.Central, Step: step}
}

func (r *Reverse) formula() fd.Formula {
	if r.Formula.Stencil == nil {
		return fd.Central
	}
	return r.Formula
}

// ScalarPullback evaluates f at x and returns its pullback.
func (r *Reverse) ScalarPullback(f Scalar, x []float64) (float64, Pullback, error) {
	value, err := f.F(x)
	if err != nil {
		return 0, nil, err
	}
	at := append([]float64(nil), x...)

	var grad []float64
	pb := func(dst, seed []float64) error {
		if len(seed) != 1 {
			return fmt.Errorf("scalar pullback: seed has length %d", len(seed))
		}
		if grad == nil {
			g, err := r.gradient(f, at, value)
			if err != nil {
				return err
			}
			grad = g
		}
		floats.ScaleTo(dst, seed[0], grad)
		return nil
	}
	return value, pb, nil
}

func (r *Reverse) gradient(f Scalar, x []float64, value float64) ([]float64, error) {
	g := make([]float64, len(x))
	if f.Grad != nil {
		if err := f.Grad(g, x); err != nil {
			return nil, err
		}
		return g, nil
	}

	var evalErr error
	fd.Gradient(g, func(p []float64) float64 {
		v, err := f.F(p)
		if err != nil && evalErr == nil {
			evalErr = err
		}
		return v
	}, x, &fd.Settings{
		Formula:     r.formula(),
		Step:        r.Step,
		OriginKnown: true,
		OriginValue: value,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return g, nil
}

// VectorPullback evaluates f at x and returns its values and pullback.
func (r *Reverse) VectorPullback(f Vector, x []float64) ([]float64, Pullback, error) {
	values := make([]float64, f.Dim)
	if err := f.F(values, x); err != nil {
		return nil, nil, err
	}
	at := append([]float64(nil), x...)

	var jac *mat.Dense
	pb := func(dst, seed []float64) error {
		if len(seed) != f.Dim {
			return fmt.Errorf("vector pullback: seed has length %d, want %d", len(seed), f.Dim)
		}
		if jac == nil {
			j, err := r.jacobian(f, at, values)
			if err != nil {
				return err
			}
			jac = j
		}
		out := mat.NewVecDense(len(dst), dst)
		out.MulVec(jac.T(), mat.NewVecDense(len(seed), seed))
		return nil
	}
	return values, pb, nil
}

func (r *Reverse) jacobian(f Vector, x, values []float64) (*mat.Dense, error) {
	jac := mat.NewDense(f.Dim, len(x), nil)
	if f.Jac != nil {
		if err := f.Jac(jac, x); err != nil {
			return nil, err
		}
		return jac, nil
	}

	var evalErr error
	fd.Jacobian(jac, func(y, p []float64) {
		if err := f.F(y, p); err != nil && evalErr == nil {
			evalErr = err
		}
	}, x, &fd.JacobianSettings{
		Formula:     r.formula(),
		Step:        r.Step,
		OriginValue: values,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return jac, nil
}
