// Package optimization defines the nonlinear-programming model consumed by the
// solver and the error taxonomy shared by its subpackages.
package optimization

import (
	"fmt"
	"math"
)

// Objective is a scalar function of the decision variables. Grad is optional.
type Objective struct {
	F    func(x []float64) (float64, error)
	Grad func(grad, x []float64) error
}

// Constraints is a vector-valued constraint function. Every component c_i is
// read as c_i(x) <= 0 for inequalities and c_i(x) == 0 for equalities.
type Constraints struct {
	Dim int
	F   func(dst, x []float64) error
	// Jac, when set, writes the Dim×n Jacobian row-major into jac.
	Jac func(jac []float64, x []float64) error
}

// Len returns the number of components, zero for nil.
func (c *Constraints) Len() int {
	if c == nil || c.F == nil {
		return 0
	}
	return c.Dim
}

// Model is the nonlinear program handed to the solver.
type Model interface {
	Objective() Objective
	// Inequality returns the inequality constraints or nil.
	Inequality() *Constraints
	// Equality returns the equality constraints or nil.
	Equality() *Constraints
	// Bounds returns lower and upper bounds; entries may be ±Inf.
	Bounds() (lower, upper []float64)
	InitialPoint() []float64
}

// Problem is the plain struct implementation of Model.
type Problem struct {
	Obj     Objective
	Ineq    *Constraints
	Eq      *Constraints
	Lower   []float64
	Upper   []float64
	Initial []float64
}

var _ Model = (*Problem)(nil)

func (p *Problem) Objective() Objective           { return p.Obj }
func (p *Problem) Inequality() *Constraints       { return p.Ineq }
func (p *Problem) Equality() *Constraints         { return p.Eq }
func (p *Problem) Bounds() ([]float64, []float64) { return p.Lower, p.Upper }
func (p *Problem) InitialPoint() []float64        { return p.Initial }

// Unbounded returns lower and upper bound vectors of length n filled with
// -Inf and +Inf.
func Unbounded(n int) (lower, upper []float64) {
	lower, upper = make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i], upper[i] = math.Inf(-1), math.Inf(1)
	}
	return lower, upper
}

// Dimension returns the number of decision variables of m.
func Dimension(m Model) int { return len(m.InitialPoint()) }

// ValidateModel checks dimensions and bounds of m.
func ValidateModel(m Model) error {
	const op = "ValidateModel"

	x0 := m.InitialPoint()
	n := len(x0)
	if n == 0 {
		return NewError(KindInvalidModel, "initial point is empty").WithOperation(op)
	}
	if m.Objective().F == nil {
		return NewError(KindInvalidModel, "objective function is nil").WithOperation(op)
	}

	lower, upper := m.Bounds()
	if lower != nil && len(lower) != n {
		return NewErrorf(KindInvalidModel, "lower bounds have length %d, want %d", len(lower), n).WithOperation(op)
	}
	if upper != nil && len(upper) != n {
		return NewErrorf(KindInvalidModel, "upper bounds have length %d, want %d", len(upper), n).WithOperation(op)
	}
	for i := 0; i < n; i++ {
		lo, hi := math.Inf(-1), math.Inf(1)
		if lower != nil {
			lo = lower[i]
		}
		if upper != nil {
			hi = upper[i]
		}
		if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
			return NewErrorf(KindInvalidModel, "invalid bounds [%v, %v] for variable %d", lo, hi, i).WithOperation(op)
		}
	}

	for name, c := range map[string]*Constraints{"inequality": m.Inequality(), "equality": m.Equality()} {
		if c != nil && c.F != nil && c.Dim < 0 {
			return NewError(KindInvalidModel, fmt.Sprintf("%s constraint dimension is negative", name)).WithOperation(op)
		}
	}
	return nil
}
