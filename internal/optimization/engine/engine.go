// Package engine describes the numerical optimizer engine the solver drives.
// Implementations live in the nlopt and gonum subpackages.
package engine

import (
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
)

// Func is the engine callback. An empty gradient means "value only";
// otherwise the callback fills gradient with the derivative at x.
type Func func(x, gradient []float64) float64

// Outcome is what a solve returns. X is nil when the engine produced no
// point, which happens for the failure statuses.
type Outcome struct {
	X      []float64
	F      float64
	Status Status
}

// Problem is one engine-native problem instance.
type Problem interface {
	Algorithm() algorithm.ID
	Dimension() int

	SetLowerBounds(lb []float64) error
	SetUpperBounds(ub []float64) error
	SetMinObjective(f Func) error
	// AddInequalityConstraint registers f(x) <= tol.
	AddInequalityConstraint(f Func, tol float64) error
	// AddEqualityConstraint registers |f(x)| <= tol.
	AddEqualityConstraint(f Func, tol float64) error
	// SetLocalOptimizer attaches a configured sub-problem. Engines may take a
	// snapshot of local at this point.
	SetLocalOptimizer(local Problem) error

	SetFtolRel(tol float64) error
	SetFtolAbs(tol float64) error
	SetXtolRel(tol float64) error
	SetXtolAbs(tol float64) error
	SetMaxEval(n int) error
	SetMaxTime(seconds float64) error
	SetStopVal(v float64) error
	SetPopulation(n uint) error
	SetVectorStorage(m uint) error
	SetInitialStep(dx float64) error

	// ForceStop asks a running Optimize to return with ForcedStop. It must be
	// called from within a callback.
	ForceStop() error
	// Optimize runs the engine from x. The engine may overwrite x.
	Optimize(x []float64) (Outcome, error)
	// Destroy releases engine resources.
	Destroy()
}

// Engine creates problems.
type Engine interface {
	Name() string
	NewProblem(alg algorithm.ID, dim int) (Problem, error)
	// Supports reports whether alg can be created by this engine.
	Supports(alg algorithm.ID) bool
}
