// Package gonum implements the engine interfaces with gonum/optimize. It
// covers the unconstrained local and evolutionary subset of the catalog and
// runs without cgo. Bounds are enforced by projecting every trial point.
package gonum

import (
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
)

type family int

const (
	simplex family = iota
	quasiNewton
	limitedMemory
	conjugate
	evolution
)

var methods = map[algorithm.ID]family{
	algorithm.LN_NELDERMEAD:              simplex,
	algorithm.LN_SBPLX:                   simplex,
	algorithm.LN_PRAXIS:                  simplex,
	algorithm.LD_LBFGS:                   limitedMemory,
	algorithm.LD_VAR1:                    quasiNewton,
	algorithm.LD_VAR2:                    quasiNewton,
	algorithm.LD_TNEWTON:                 conjugate,
	algorithm.LD_TNEWTON_RESTART:         conjugate,
	algorithm.LD_TNEWTON_PRECOND:         conjugate,
	algorithm.LD_TNEWTON_PRECOND_RESTART: conjugate,
	algorithm.GN_CRS2_LM:                 evolution,
	algorithm.GN_ESCH:                    evolution,
}

var (
	statusForced  = optimize.NewStatus("ForcedStop", true, nil)
	statusStopval = optimize.NewStatus("StopvalReached", false, nil)
)

// Engine creates gonum problems.
type Engine struct{}

var _ engine.Engine = Engine{}

// New returns the gonum engine.
func New() Engine { return Engine{} }

func (Engine) Name() string { return "gonum" }

func (Engine) Supports(alg algorithm.ID) bool {
	_, ok := methods[alg]
	return ok
}

// NewProblem creates a problem of dimension dim.
func (Engine) NewProblem(alg algorithm.ID, dim int) (engine.Problem, error) {
	const op = "NewProblem"

	fam, ok := methods[alg]
	if !ok {
		return nil, optimization.NewErrorf(optimization.KindInvalidAlgorithm, "gonum engine has no algorithm %q", alg).
			WithComponent("gonum").WithOperation(op)
	}
	if dim <= 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidModel, "dimension %d is not positive", dim).
			WithComponent("gonum").WithOperation(op)
	}
	lower, upper := optimization.Unbounded(dim)
	return &Problem{
		alg:     alg,
		family:  fam,
		dim:     dim,
		lower:   lower,
		upper:   upper,
		stopVal: math.Inf(-1),
	}, nil
}

// Problem is a gonum/optimize run description.
type Problem struct {
	alg    algorithm.ID
	family family
	dim    int

	lower, upper []float64
	objective    engine.Func

	ftolRel, ftolAbs float64
	xtolRel, xtolAbs float64
	maxEval          int
	maxTime          float64
	stopVal          float64
	population       uint
	storage          uint
	initialStep      float64

	stopped bool
}

var _ engine.Problem = (*Problem)(nil)

func (p *Problem) Algorithm() algorithm.ID { return p.alg }
func (p *Problem) Dimension() int          { return p.dim }

func (p *Problem) SetLowerBounds(lb []float64) error {
	if len(lb) != p.dim {
		return p.invalid("SetLowerBounds", "lower bounds have length %d, want %d", len(lb), p.dim)
	}
	p.lower = append(p.lower[:0], lb...)
	return nil
}

func (p *Problem) SetUpperBounds(ub []float64) error {
	if len(ub) != p.dim {
		return p.invalid("SetUpperBounds", "upper bounds have length %d, want %d", len(ub), p.dim)
	}
	p.upper = append(p.upper[:0], ub...)
	return nil
}

func (p *Problem) SetMinObjective(f engine.Func) error {
	p.objective = f
	return nil
}

func (p *Problem) AddInequalityConstraint(engine.Func, float64) error {
	return p.unsupported("AddInequalityConstraint", "constraints")
}

func (p *Problem) AddEqualityConstraint(engine.Func, float64) error {
	return p.unsupported("AddEqualityConstraint", "constraints")
}

func (p *Problem) SetLocalOptimizer(engine.Problem) error {
	return p.unsupported("SetLocalOptimizer", "local optimizers")
}

func (p *Problem) SetFtolRel(tol float64) error { p.ftolRel = tol; return nil }
func (p *Problem) SetFtolAbs(tol float64) error { p.ftolAbs = tol; return nil }
func (p *Problem) SetXtolRel(tol float64) error { p.xtolRel = tol; return nil }
func (p *Problem) SetXtolAbs(tol float64) error { p.xtolAbs = tol; return nil }
func (p *Problem) SetStopVal(v float64) error   { p.stopVal = v; return nil }

func (p *Problem) SetMaxEval(n int) error {
	if n < 0 {
		n = 0
	}
	p.maxEval = n
	return nil
}

func (p *Problem) SetMaxTime(seconds float64) error {
	if seconds < 0 || math.IsNaN(seconds) {
		return p.invalid("SetMaxTime", "maxtime %v is invalid", seconds)
	}
	p.maxTime = seconds
	return nil
}

func (p *Problem) SetPopulation(n uint) error    { p.population = n; return nil }
func (p *Problem) SetVectorStorage(m uint) error { p.storage = m; return nil }

func (p *Problem) SetInitialStep(dx float64) error {
	if dx < 0 || math.IsNaN(dx) {
		return p.invalid("SetInitialStep", "initial step %v is invalid", dx)
	}
	p.initialStep = dx
	return nil
}

// ForceStop makes the running Optimize return ForcedStop at its next check.
func (p *Problem) ForceStop() error {
	p.stopped = true
	return nil
}

func (p *Problem) Destroy() {
	p.objective = nil
}

// Optimize minimizes from x. As with NLopt, outcomes are status data and
// failure statuses leave Outcome.X nil.
func (p *Problem) Optimize(x []float64) (engine.Outcome, error) {
	if len(x) != p.dim {
		return engine.Outcome{}, p.invalid("Optimize", "initial point has length %d, want %d", len(x), p.dim)
	}
	if p.objective == nil {
		return engine.Outcome{F: math.NaN(), Status: engine.InvalidArgs}, nil
	}
	for i := range x {
		if p.lower[i] > p.upper[i] {
			return engine.Outcome{F: math.NaN(), Status: engine.InvalidArgs}, nil
		}
	}
	p.stopped = false

	start := append([]float64(nil), x...)
	p.project(start)

	result, err := optimize.Minimize(p.problem(), start, p.settings(), p.method())
	if result == nil {
		return engine.Outcome{F: math.NaN(), Status: engine.Failure}, nil
	}
	status := mapStatus(result.Status)
	if p.stopped {
		status = engine.ForcedStop
	} else if err != nil && status.OK() {
		status = engine.Failure
	}
	if !status.OK() {
		return engine.Outcome{F: math.NaN(), Status: status}, nil
	}

	xopt := append([]float64(nil), result.X...)
	p.project(xopt)
	return engine.Outcome{X: xopt, F: result.F, Status: status}, nil
}

func (p *Problem) problem() optimize.Problem {
	trial := make([]float64, p.dim)
	prob := optimize.Problem{
		Status: func() (optimize.Status, error) {
			if p.stopped {
				return statusForced, nil
			}
			return optimize.NotTerminated, nil
		},
	}

	if p.family == simplex || p.family == evolution {
		prob.Func = func(x []float64) float64 {
			copy(trial, x)
			p.project(trial)
			return p.objective(trial, nil)
		}
		return prob
	}

	// Gradient methods query value and gradient at the same point; asking
	// for both in Func lets the callback answer Grad from its cache.
	scratch := make([]float64, p.dim)
	prob.Func = func(x []float64) float64 {
		copy(trial, x)
		p.project(trial)
		return p.objective(trial, scratch)
	}
	prob.Grad = func(grad, x []float64) {
		copy(trial, x)
		p.project(trial)
		p.objective(trial, grad)
		// The projected function is flat across an active bound.
		for i := range grad {
			if (trial[i] <= p.lower[i] && grad[i] > 0) || (trial[i] >= p.upper[i] && grad[i] < 0) {
				grad[i] = 0
			}
		}
	}
	return prob
}

func (p *Problem) settings() *optimize.Settings {
	s := &optimize.Settings{
		Converger: &converger{
			ftolRel:  p.ftolRel,
			ftolAbs:  p.ftolAbs,
			xtolRel:  p.xtolRel,
			xtolAbs:  p.xtolAbs,
			stopVal:  p.stopVal,
			patience: p.patience(),
		},
	}
	if p.maxEval > 0 {
		s.FuncEvaluations = p.maxEval
	}
	if p.maxTime > 0 {
		s.Runtime = time.Duration(p.maxTime * float64(time.Second))
	}
	return s
}

func (p *Problem) method() optimize.Method {
	switch p.family {
	case limitedMemory:
		return &optimize.LBFGS{Store: int(p.storage)}
	case quasiNewton:
		return &optimize.BFGS{}
	case conjugate:
		return &optimize.CG{}
	case evolution:
		return &optimize.CmaEsChol{
			Population:   int(p.population),
			InitStepSize: p.initialStep,
		}
	default:
		return &optimize.NelderMead{SimplexSize: p.initialStep}
	}
}

// patience is the number of consecutive major iterations a tolerance must
// hold. Simplex and evolutionary methods keep their best point across many
// iterations, so a single unchanged iteration is not convergence for them.
func (p *Problem) patience() int {
	switch p.family {
	case simplex:
		return 2 * (p.dim + 1)
	case evolution:
		return 10
	default:
		return 1
	}
}

func (p *Problem) project(x []float64) {
	for i := range x {
		x[i] = math.Max(p.lower[i], math.Min(x[i], p.upper[i]))
	}
}

func (p *Problem) invalid(op, format string, args ...interface{}) error {
	return optimization.NewErrorf(optimization.KindInvalidModel, format, args...).
		WithComponent("gonum").WithOperation(op)
}

func (p *Problem) unsupported(op, what string) error {
	return optimization.NewErrorf(optimization.KindEngine, "gonum engine does not support %s (%s)", what, p.alg).
		WithComponent("gonum").WithOperation(op)
}

func mapStatus(s optimize.Status) engine.Status {
	switch s {
	case optimize.Success, optimize.MethodConverge, optimize.GradientThreshold:
		return engine.Success
	case optimize.FunctionConvergence:
		return engine.FtolReached
	case optimize.StepConvergence:
		return engine.XtolReached
	case optimize.FunctionThreshold, statusStopval:
		return engine.StopvalReached
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit,
		optimize.GradientEvaluationLimit, optimize.HessianEvaluationLimit:
		return engine.MaxevalReached
	case optimize.RuntimeLimit:
		return engine.MaxtimeReached
	case statusForced:
		return engine.ForcedStop
	default:
		return engine.Failure
	}
}
