// Package evalcache adapts an objective and its constraints to the engine's
// per-component callbacks while evaluating each distinct point at most once.
//
// The engine typically queries the objective and then every constraint row at
// the same candidate point. All callbacks share one Cache, keyed on the last
// evaluated point, so one full evaluation (values, and derivatives when
// requested) serves every query at that point.
package evalcache

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/diff"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
)

// Config holds the inputs of a Cache.
type Config struct {
	Objective diff.Scalar
	// Inequality and Equality are nil when absent. A zero-length function is
	// treated as absent.
	Inequality *diff.Vector
	Equality   *diff.Vector

	InitialPoint []float64
	// DerivativeFree disables gradient evaluation during warm-up.
	DerivativeFree bool

	// Diff defaults to diff.NewReverse(0).
	Diff   diff.Engine
	Logger *zap.Logger
}

// State is the memoized evaluation at the last point.
type State struct {
	X       []float64
	Valid   bool
	HasGrad bool

	F    float64
	Grad []float64

	Ineq    []float64
	IneqJac *mat.Dense
	Eq      []float64
	EqJac   *mat.Dense
}

// Cache owns the evaluation state of one optimization run. It is not safe
// for concurrent use; each run needs its own Cache.
type Cache struct {
	obj  diff.Scalar
	ineq *diff.Vector
	eq   *diff.Vector
	ad   diff.Engine

	state   State
	counter Counter
	hits    int
	misses  int

	ctx  context.Context
	stop func()
	err  error

	logger *zap.Logger
}

// New builds a Cache and warms it at the initial point, so failures of the
// user functions surface here rather than inside the engine.
func New(cfg Config) (*Cache, error) {
	const op = "New"

	n := len(cfg.InitialPoint)
	if n == 0 {
		return nil, optimization.NewError(optimization.KindInvalidModel, "initial point is empty").
			WithComponent("evalcache").WithOperation(op)
	}
	if cfg.Objective.F == nil {
		return nil, optimization.NewError(optimization.KindInvalidModel, "objective is nil").
			WithComponent("evalcache").WithOperation(op)
	}
	if cfg.Diff == nil {
		cfg.Diff = diff.NewReverse(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &Cache{
		obj:    cfg.Objective,
		ad:     cfg.Diff,
		logger: cfg.Logger.Named("evalcache"),
		state: State{
			X:    make([]float64, n),
			Grad: make([]float64, n),
		},
	}
	if m := cfg.Inequality.Len(); m > 0 {
		c.ineq = cfg.Inequality
		c.state.Ineq = make([]float64, m)
		c.state.IneqJac = mat.NewDense(m, n, nil)
	}
	if m := cfg.Equality.Len(); m > 0 {
		c.eq = cfg.Equality
		c.state.Eq = make([]float64, m)
		c.state.EqJac = mat.NewDense(m, n, nil)
	}

	if err := c.update(cfg.InitialPoint, !cfg.DerivativeFree); err != nil {
		return nil, optimization.WrapError(err, optimization.KindUserFunction, "evaluation at initial point failed").
			WithComponent("evalcache").WithOperation(op)
	}
	c.logger.Debug("cache warmed",
		zap.Int("dim", n),
		zap.Int("inequalities", c.NumInequality()),
		zap.Int("equalities", c.NumEquality()),
		zap.Float64("f0", c.state.F),
	)
	return c, nil
}

// NumInequality returns the number of inequality components.
func (c *Cache) NumInequality() int { return len(c.state.Ineq) }

// NumEquality returns the number of equality components.
func (c *Cache) NumEquality() int { return len(c.state.Eq) }

// Bind attaches the context checked before every evaluation and the hook
// called once when an evaluation fails. stop is typically the ForceStop of
// the engine problem.
func (c *Cache) Bind(ctx context.Context, stop func()) {
	c.ctx = ctx
	c.stop = stop
}

// Reset invalidates the cached point, clears the recorded error and zeroes
// the counters.
func (c *Cache) Reset() {
	c.state.Valid = false
	c.state.HasGrad = false
	c.state.F = 0
	for i := range c.state.Grad {
		c.state.Grad[i] = 0
	}
	c.err = nil
	c.counter.Reset()
	c.hits, c.misses = 0, 0
}

// Err returns the first evaluation error of the run.
func (c *Cache) Err() error { return c.err }

// Evaluations returns the number of objective value computations since the
// last Reset. Cache hits do not count. It counts cache updates, not calls
// of the user function: a finite-difference gradient calls the objective
// once per stencil point (2n+1 times for central differences) within one
// update and still counts once.
func (c *Cache) Evaluations() int { return c.counter.Count() }

// Hits returns the number of callback queries served from the cache.
func (c *Cache) Hits() int { return c.hits }

// Misses returns the number of callback queries that triggered an evaluation.
func (c *Cache) Misses() int { return c.misses }

// LastPoint returns a copy of the cached point, or nil if none is valid.
func (c *Cache) LastPoint() []float64 {
	if !c.state.Valid {
		return nil
	}
	return append([]float64(nil), c.state.X...)
}

// Snapshot returns a deep copy of the current state.
func (c *Cache) Snapshot() State {
	s := State{
		X:       append([]float64(nil), c.state.X...),
		Valid:   c.state.Valid,
		HasGrad: c.state.HasGrad,
		F:       c.state.F,
		Grad:    append([]float64(nil), c.state.Grad...),
		Ineq:    append([]float64(nil), c.state.Ineq...),
		Eq:      append([]float64(nil), c.state.Eq...),
	}
	if c.state.IneqJac != nil {
		s.IneqJac = mat.DenseCopyOf(c.state.IneqJac)
	}
	if c.state.EqJac != nil {
		s.EqJac = mat.DenseCopyOf(c.state.EqJac)
	}
	return s
}

// Objective returns the objective callback.
func (c *Cache) Objective() engine.Func {
	return c.callback(func(grad []float64) float64 {
		if len(grad) > 0 {
			copy(grad, c.state.Grad)
		}
		return c.state.F
	})
}

// Inequality returns the callback of inequality component i.
func (c *Cache) Inequality(i int) engine.Func {
	return c.callback(func(grad []float64) float64 {
		if len(grad) > 0 {
			mat.Row(grad, i, c.state.IneqJac)
		}
		return c.state.Ineq[i]
	})
}

// Equality returns the callback of equality component i.
func (c *Cache) Equality(i int) engine.Func {
	return c.callback(func(grad []float64) float64 {
		if len(grad) > 0 {
			mat.Row(grad, i, c.state.EqJac)
		}
		return c.state.Eq[i]
	})
}

func (c *Cache) callback(read func(grad []float64) float64) engine.Func {
	return func(x, grad []float64) float64 {
		if c.err != nil {
			return math.NaN()
		}
		needGrad := len(grad) > 0
		if c.hit(x, needGrad) {
			c.hits++
		} else if err := c.update(x, needGrad); err != nil {
			c.fail(err)
			return math.NaN()
		}
		return read(grad)
	}
}

// hit reports whether the cached state answers a query at x. A state
// holding values only does not answer a gradient query.
func (c *Cache) hit(x []float64, needGrad bool) bool {
	return c.state.Valid && (!needGrad || c.state.HasGrad) && floats.Equal(x, c.state.X)
}

func (c *Cache) update(x []float64, needGrad bool) error {
	if c.ctx != nil {
		if err := c.ctx.Err(); err != nil {
			return err
		}
	}
	c.state.Valid = false
	c.misses++
	c.counter.Inc()

	var err error
	if needGrad {
		err = c.evalWithDerivatives(x)
	} else {
		err = c.evalValues(x)
	}
	if err != nil {
		return err
	}

	copy(c.state.X, x)
	c.state.HasGrad = needGrad
	c.state.Valid = true
	return nil
}

func (c *Cache) evalValues(x []float64) error {
	f, err := c.obj.F(x)
	if err != nil {
		return err
	}
	c.state.F = f
	if c.ineq != nil {
		if err := c.ineq.F(c.state.Ineq, x); err != nil {
			return err
		}
	}
	if c.eq != nil {
		if err := c.eq.F(c.state.Eq, x); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) evalWithDerivatives(x []float64) error {
	f, pb, err := c.ad.ScalarPullback(c.obj, x)
	if err != nil {
		return err
	}
	if err := diff.Gradient(c.state.Grad, pb); err != nil {
		return err
	}
	c.state.F = f

	if c.ineq != nil {
		if err := c.vectorWithJacobian(*c.ineq, x, c.state.Ineq, c.state.IneqJac); err != nil {
			return err
		}
	}
	if c.eq != nil {
		if err := c.vectorWithJacobian(*c.eq, x, c.state.Eq, c.state.EqJac); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) vectorWithJacobian(f diff.Vector, x, values []float64, jac *mat.Dense) error {
	v, pb, err := c.ad.VectorPullback(f, x)
	if err != nil {
		return err
	}
	copy(values, v)
	return diff.Jacobian(jac, pb)
}

func (c *Cache) fail(err error) {
	if c.err != nil {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.err = err
	} else {
		c.err = optimization.WrapError(err, optimization.KindUserFunction, "evaluation failed").
			WithComponent("evalcache").WithOperation("update")
	}
	c.logger.Warn("evaluation aborted", zap.Error(err), zap.Int("evaluations", c.counter.Count()))
	if c.stop != nil {
		c.stop()
	}
}
