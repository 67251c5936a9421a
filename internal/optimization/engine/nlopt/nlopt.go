// Package nlopt implements the engine interfaces on top of the NLopt C
// library.
package nlopt

import (
	"fmt"
	"math"

	gonlopt "github.com/go-nlopt/nlopt"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
)

var algorithms = map[algorithm.ID]int{
	algorithm.GN_DIRECT:                  gonlopt.GN_DIRECT,
	algorithm.GN_DIRECT_L:                gonlopt.GN_DIRECT_L,
	algorithm.GN_DIRECT_L_RAND:           gonlopt.GN_DIRECT_L_RAND,
	algorithm.GN_DIRECT_NOSCAL:           gonlopt.GN_DIRECT_NOSCAL,
	algorithm.GN_DIRECT_L_NOSCAL:         gonlopt.GN_DIRECT_L_NOSCAL,
	algorithm.GN_DIRECT_L_RAND_NOSCAL:    gonlopt.GN_DIRECT_L_RAND_NOSCAL,
	algorithm.GN_ORIG_DIRECT:             gonlopt.GN_ORIG_DIRECT,
	algorithm.GN_ORIG_DIRECT_L:           gonlopt.GN_ORIG_DIRECT_L,
	algorithm.LD_LBFGS:                   gonlopt.LD_LBFGS,
	algorithm.LN_PRAXIS:                  gonlopt.LN_PRAXIS,
	algorithm.LD_VAR1:                    gonlopt.LD_VAR1,
	algorithm.LD_VAR2:                    gonlopt.LD_VAR2,
	algorithm.LD_TNEWTON:                 gonlopt.LD_TNEWTON,
	algorithm.LD_TNEWTON_RESTART:         gonlopt.LD_TNEWTON_RESTART,
	algorithm.LD_TNEWTON_PRECOND:         gonlopt.LD_TNEWTON_PRECOND,
	algorithm.LD_TNEWTON_PRECOND_RESTART: gonlopt.LD_TNEWTON_PRECOND_RESTART,
	algorithm.GN_CRS2_LM:                 gonlopt.GN_CRS2_LM,
	algorithm.GN_MLSL:                    gonlopt.GN_MLSL,
	algorithm.GD_MLSL:                    gonlopt.GD_MLSL,
	algorithm.GN_MLSL_LDS:                gonlopt.GN_MLSL_LDS,
	algorithm.GD_MLSL_LDS:                gonlopt.GD_MLSL_LDS,
	algorithm.LD_MMA:                     gonlopt.LD_MMA,
	algorithm.LN_COBYLA:                  gonlopt.LN_COBYLA,
	algorithm.LN_NEWUOA:                  gonlopt.LN_NEWUOA,
	algorithm.LN_NEWUOA_BOUND:            gonlopt.LN_NEWUOA_BOUND,
	algorithm.LN_NELDERMEAD:              gonlopt.LN_NELDERMEAD,
	algorithm.LN_SBPLX:                   gonlopt.LN_SBPLX,
	algorithm.LN_AUGLAG:                  gonlopt.LN_AUGLAG,
	algorithm.LD_AUGLAG:                  gonlopt.LD_AUGLAG,
	algorithm.LN_AUGLAG_EQ:               gonlopt.LN_AUGLAG_EQ,
	algorithm.LD_AUGLAG_EQ:               gonlopt.LD_AUGLAG_EQ,
	algorithm.LN_BOBYQA:                  gonlopt.LN_BOBYQA,
	algorithm.GN_ISRES:                   gonlopt.GN_ISRES,
	algorithm.AUGLAG:                     gonlopt.AUGLAG,
	algorithm.AUGLAG_EQ:                  gonlopt.AUGLAG_EQ,
	algorithm.G_MLSL:                     gonlopt.G_MLSL,
	algorithm.G_MLSL_LDS:                 gonlopt.G_MLSL_LDS,
	algorithm.LD_SLSQP:                   gonlopt.LD_SLSQP,
	algorithm.LD_CCSAQ:                   gonlopt.LD_CCSAQ,
	algorithm.GN_ESCH:                    gonlopt.GN_ESCH,
}

// Engine creates NLopt problems.
type Engine struct{}

var _ engine.Engine = Engine{}

// New returns the NLopt engine.
func New() Engine { return Engine{} }

func (Engine) Name() string { return "nlopt" }

// Version returns the version of the linked NLopt library.
func (Engine) Version() string { return gonlopt.Version() }

func (Engine) Supports(alg algorithm.ID) bool {
	_, ok := algorithms[alg]
	return ok
}

// NewProblem creates an NLopt problem of dimension dim.
func (Engine) NewProblem(alg algorithm.ID, dim int) (engine.Problem, error) {
	const op = "NewProblem"

	code, ok := algorithms[alg]
	if !ok {
		return nil, optimization.NewErrorf(optimization.KindInvalidAlgorithm, "nlopt has no algorithm %q", alg).
			WithComponent("nlopt").WithOperation(op)
	}
	if dim <= 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidModel, "dimension %d is not positive", dim).
			WithComponent("nlopt").WithOperation(op)
	}
	opt, err := gonlopt.NewNLopt(code, uint(dim))
	if err != nil {
		return nil, optimization.WrapErrorf(err, optimization.KindEngine, "create %s", alg).
			WithComponent("nlopt").WithOperation(op)
	}
	return &Problem{opt: opt, alg: alg, dim: dim}, nil
}

// Problem wraps one NLopt optimizer object.
type Problem struct {
	opt   *gonlopt.NLopt
	alg   algorithm.ID
	dim   int
	local *Problem
}

var _ engine.Problem = (*Problem)(nil)

func (p *Problem) Algorithm() algorithm.ID { return p.alg }
func (p *Problem) Dimension() int          { return p.dim }

func (p *Problem) SetLowerBounds(lb []float64) error {
	return p.check("SetLowerBounds", p.opt.SetLowerBounds(lb))
}

func (p *Problem) SetUpperBounds(ub []float64) error {
	return p.check("SetUpperBounds", p.opt.SetUpperBounds(ub))
}

func (p *Problem) SetMinObjective(f engine.Func) error {
	return p.check("SetMinObjective", p.opt.SetMinObjective(gonlopt.Func(f)))
}

func (p *Problem) AddInequalityConstraint(f engine.Func, tol float64) error {
	return p.check("AddInequalityConstraint", p.opt.AddInequalityConstraint(gonlopt.Func(f), tol))
}

func (p *Problem) AddEqualityConstraint(f engine.Func, tol float64) error {
	return p.check("AddEqualityConstraint", p.opt.AddEqualityConstraint(gonlopt.Func(f), tol))
}

// SetLocalOptimizer copies local into p. NLopt snapshots the sub-problem, so
// local must be fully configured before the call.
func (p *Problem) SetLocalOptimizer(local engine.Problem) error {
	lp, ok := local.(*Problem)
	if !ok {
		return optimization.NewErrorf(optimization.KindEngine, "local optimizer of type %T is not an nlopt problem", local).
			WithComponent("nlopt").WithOperation("SetLocalOptimizer")
	}
	if err := p.check("SetLocalOptimizer", p.opt.SetLocalOptimizer(lp.opt)); err != nil {
		return err
	}
	p.local = lp
	return nil
}

func (p *Problem) SetFtolRel(tol float64) error {
	return p.check("SetFtolRel", p.opt.SetFtolRel(tol))
}

func (p *Problem) SetFtolAbs(tol float64) error {
	return p.check("SetFtolAbs", p.opt.SetFtolAbs(tol))
}

func (p *Problem) SetXtolRel(tol float64) error {
	return p.check("SetXtolRel", p.opt.SetXtolRel(tol))
}

func (p *Problem) SetXtolAbs(tol float64) error {
	return p.check("SetXtolAbs", p.opt.SetXtolAbs1(tol))
}

func (p *Problem) SetMaxEval(n int) error {
	return p.check("SetMaxEval", p.opt.SetMaxEval(n))
}

func (p *Problem) SetMaxTime(seconds float64) error {
	return p.check("SetMaxTime", p.opt.SetMaxTime(seconds))
}

func (p *Problem) SetStopVal(v float64) error {
	return p.check("SetStopVal", p.opt.SetStopVal(v))
}

func (p *Problem) SetPopulation(n uint) error {
	return p.check("SetPopulation", p.opt.SetPopulation(n))
}

func (p *Problem) SetVectorStorage(m uint) error {
	return p.check("SetVectorStorage", p.opt.SetVectorStorage(m))
}

func (p *Problem) SetInitialStep(dx float64) error {
	return p.check("SetInitialStep", p.opt.SetInitialStep1(dx))
}

func (p *Problem) ForceStop() error {
	return p.check("ForceStop", p.opt.ForceStop())
}

// Optimize runs NLopt from x. Every NLopt result code is reported through
// Outcome.Status; failure codes leave Outcome.X nil and Outcome.F NaN.
func (p *Problem) Optimize(x []float64) (engine.Outcome, error) {
	if len(x) != p.dim {
		return engine.Outcome{}, optimization.NewErrorf(optimization.KindInvalidModel,
			"initial point has length %d, want %d", len(x), p.dim).
			WithComponent("nlopt").WithOperation("Optimize")
	}
	xopt, fopt, err := p.opt.Optimize(x)
	status := engine.ParseStatus(p.opt.LastStatus())
	if err != nil {
		if status == engine.Unknown {
			status = engine.Failure
		}
		return engine.Outcome{F: math.NaN(), Status: status}, nil
	}
	return engine.Outcome{X: xopt, F: fopt, Status: status}, nil
}

// Destroy releases p and its attached local problem.
func (p *Problem) Destroy() {
	if p.local != nil {
		p.local.Destroy()
		p.local = nil
	}
	if p.opt != nil {
		p.opt.Destroy()
		p.opt = nil
	}
}

func (p *Problem) check(op string, err error) error {
	if err == nil {
		return nil
	}
	return optimization.WrapError(err, optimization.KindEngine, fmt.Sprintf("%s rejected the call", p.alg)).
		WithComponent("nlopt").WithOperation(op)
}
