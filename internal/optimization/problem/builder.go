// Package problem translates a model, an algorithm configuration and an
// option set into a configured engine problem whose callbacks are served by
// an evaluation cache.
package problem

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
	"github.com/copyleftdev/nlpbridge/internal/optimization/evalcache"
	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
)

// Callbacks is the part of an evaluation cache the builder registers.
type Callbacks interface {
	Objective() engine.Func
	Inequality(i int) engine.Func
	Equality(i int) engine.Func
	NumInequality() int
	NumEquality() int
}

var _ Callbacks = (*evalcache.Cache)(nil)

// Builder creates configured engine problems.
type Builder struct {
	engine engine.Engine
	logger *zap.Logger
}

// NewBuilder returns a Builder for e. A nil logger disables logging.
func NewBuilder(e engine.Engine, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{engine: e, logger: logger.Named("problem")}
}

// Build creates the engine problem for cfg. When cfg is a Composite the
// local sub-problem is configured with the nested options, bounds and
// objective, then attached before any outer option is set. Constraint
// callbacks are registered one per component with tolerance 0.
//
// On error nothing is leaked; on success the caller owns the problem and
// must Destroy it.
func (b *Builder) Build(cfg algorithm.Config, bounds Bounds, cb Callbacks, opts *options.Set) (engine.Problem, error) {
	const op = "Build"

	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}
	n := bounds.Dim()
	lower, upper := bounds.Resolve()

	top, err := b.engine.NewProblem(cfg.Top(), n)
	if err != nil {
		return nil, err
	}

	if c, ok := cfg.(algorithm.Composite); ok {
		if err := b.attachLocal(top, c.Local, n, lower, upper, cb, opts.Suboptions()); err != nil {
			top.Destroy()
			return nil, err
		}
	}

	if err := b.configure(top, lower, upper, cb); err != nil {
		top.Destroy()
		return nil, err
	}
	if err := ApplyOptions(top, opts); err != nil {
		top.Destroy()
		return nil, err
	}

	for i := 0; i < cb.NumInequality(); i++ {
		if err := top.AddInequalityConstraint(cb.Inequality(i), 0); err != nil {
			top.Destroy()
			return nil, optimization.WrapErrorf(err, optimization.KindEngine, "register inequality %d", i).
				WithComponent("problem").WithOperation(op)
		}
	}
	for i := 0; i < cb.NumEquality(); i++ {
		if err := top.AddEqualityConstraint(cb.Equality(i), 0); err != nil {
			top.Destroy()
			return nil, optimization.WrapErrorf(err, optimization.KindEngine, "register equality %d", i).
				WithComponent("problem").WithOperation(op)
		}
	}

	b.logger.Debug("problem built",
		zap.String("engine", b.engine.Name()),
		zap.Stringer("algorithm", cfg),
		zap.Int("dim", n),
		zap.Int("inequalities", cb.NumInequality()),
		zap.Int("equalities", cb.NumEquality()),
		zap.Stringer("options", opts),
	)
	return top, nil
}

func (b *Builder) attachLocal(top engine.Problem, id algorithm.ID, n int, lower, upper []float64, cb Callbacks, sub *options.Set) error {
	local, err := b.engine.NewProblem(id, n)
	if err != nil {
		return err
	}
	if err := ApplyOptions(local, sub); err != nil {
		local.Destroy()
		return err
	}
	if err := b.configure(local, lower, upper, cb); err != nil {
		local.Destroy()
		return err
	}
	if err := top.SetLocalOptimizer(local); err != nil {
		local.Destroy()
		return optimization.WrapErrorf(err, optimization.KindEngine, "attach local optimizer %s", id).
			WithComponent("problem").WithOperation("Build")
	}
	return nil
}

func (b *Builder) configure(p engine.Problem, lower, upper []float64, cb Callbacks) error {
	if err := p.SetLowerBounds(lower); err != nil {
		return err
	}
	if err := p.SetUpperBounds(upper); err != nil {
		return err
	}
	return p.SetMinObjective(cb.Objective())
}

// Bounds are the box constraints of a model. Nil slices mean unbounded.
type Bounds struct {
	N            int
	Lower, Upper []float64
}

// BoundsOf reads the bounds of m.
func BoundsOf(m optimization.Model) Bounds {
	lower, upper := m.Bounds()
	return Bounds{N: optimization.Dimension(m), Lower: lower, Upper: upper}
}

// Dim returns the number of variables.
func (b Bounds) Dim() int { return b.N }

// Resolve returns full-length bound vectors, filling missing sides with ±Inf.
func (b Bounds) Resolve() (lower, upper []float64) {
	lower, upper = optimization.Unbounded(b.N)
	if b.Lower != nil {
		copy(lower, b.Lower)
	}
	if b.Upper != nil {
		copy(upper, b.Upper)
	}
	return lower, upper
}

// Infinite reports whether every bound is infinite.
func (b Bounds) Infinite() bool {
	lower, upper := b.Resolve()
	for i := range lower {
		if !math.IsInf(lower[i], -1) || !math.IsInf(upper[i], 1) {
			return false
		}
	}
	return true
}
