// Package solver drives one optimization run end to end: it validates the
// configuration, builds the evaluation cache and the engine problem, runs
// the engine and packages the result.
package solver

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/nlpbridge/internal/metrics"
	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/diff"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
	"github.com/copyleftdev/nlpbridge/internal/optimization/evalcache"
	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
	"github.com/copyleftdev/nlpbridge/internal/optimization/problem"
)

// ErrClosed is returned by Optimize on a closed Workspace.
var ErrClosed = errors.New("solver: workspace is closed")

// Result is the outcome of one run.
type Result struct {
	// Minimizer is the best point found. When the engine failed without
	// producing a point it is the last evaluated point.
	Minimizer []float64
	// Minimum is the objective at Minimizer, NaN when the engine failed.
	Minimum   float64
	Status    engine.Status
	Algorithm algorithm.Config
	Options   *options.Set
	// Evaluations is the number of distinct points at which the objective
	// was computed. Finite-difference steps are not counted, so it is not
	// the number of calls of the user function.
	Evaluations int
	Runtime     time.Duration
	CacheHits   int
}

// Success reports whether the engine terminated successfully.
func (r *Result) Success() bool { return r.Status.OK() }

// Option configures a Workspace.
type Option func(*settings)

type settings struct {
	engine  engine.Engine
	diff    diff.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithEngine sets the optimizer engine. It is required.
func WithEngine(e engine.Engine) Option { return func(s *settings) { s.engine = e } }

// WithDiff sets the differentiation engine, diff.NewReverse(0) by default.
func WithDiff(d diff.Engine) Option { return func(s *settings) { s.diff = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *settings) { s.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(s *settings) { s.metrics = m } }

// Workspace holds everything one configured problem needs across runs. It
// is not safe for concurrent use.
type Workspace struct {
	config  algorithm.Config
	options *options.Set
	engine  engine.Engine

	cache   *evalcache.Cache
	problem engine.Problem
	x0      []float64

	logger  *zap.Logger
	metrics *metrics.Metrics
	closed  bool
}

// NewWorkspace validates m, cfg and opts and builds the engine problem.
// Every configuration error (unknown algorithm, missing local optimizer,
// unknown option, invalid model, failing user function at the initial
// point) is reported here rather than by Optimize. A nil opts means
// options.Defaults().
func NewWorkspace(m optimization.Model, cfg algorithm.Config, opts *options.Set, opt ...Option) (*Workspace, error) {
	const op = "NewWorkspace"

	s := settings{}
	for _, o := range opt {
		o(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	logger := s.logger.Named("solver")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = options.Defaults()
	}
	if err := problem.ValidateOptions(opts); err != nil {
		return nil, err
	}
	if err := optimization.ValidateModel(m); err != nil {
		return nil, err
	}
	if s.engine == nil {
		return nil, optimization.NewError(optimization.KindEngine, "no engine configured").
			WithComponent("solver").WithOperation(op)
	}
	if err := supported(s.engine, cfg); err != nil {
		return nil, err
	}

	cacheCfg := evalcache.FromModel(m)
	cacheCfg.DerivativeFree = algorithm.DerivativeFree(cfg)
	cacheCfg.Diff = s.diff
	cacheCfg.Logger = s.logger
	cache, err := evalcache.New(cacheCfg)
	if err != nil {
		return nil, err
	}

	prob, err := problem.NewBuilder(s.engine, s.logger).Build(cfg, problem.BoundsOf(m), cache, opts)
	if err != nil {
		return nil, err
	}

	logger.Info("workspace ready",
		zap.String("engine", s.engine.Name()),
		zap.Stringer("algorithm", cfg),
		zap.Int("dim", optimization.Dimension(m)),
		zap.Bool("derivative_free", cacheCfg.DerivativeFree),
	)
	return &Workspace{
		config:  cfg,
		options: opts,
		engine:  s.engine,
		cache:   cache,
		problem: prob,
		x0:      append([]float64(nil), m.InitialPoint()...),
		logger:  logger,
		metrics: s.metrics,
	}, nil
}

func validateConfig(cfg algorithm.Config) error {
	switch c := cfg.(type) {
	case algorithm.Standalone:
		return algorithm.ValidatePair(c.ID, nil)
	case algorithm.Composite:
		local := c.Local
		return algorithm.ValidatePair(c.Meta, &local)
	default:
		return optimization.NewError(optimization.KindInvalidAlgorithm, "no algorithm configured").
			WithComponent("solver").WithOperation("NewWorkspace")
	}
}

func supported(e engine.Engine, cfg algorithm.Config) error {
	for _, id := range []algorithm.ID{cfg.Top(), cfg.Concrete()} {
		if !e.Supports(id) {
			return optimization.NewErrorf(optimization.KindInvalidAlgorithm, "engine %s does not provide %s", e.Name(), id).
				WithComponent("solver").WithOperation("NewWorkspace")
		}
	}
	return nil
}

// Algorithm returns the configured algorithm.
func (w *Workspace) Algorithm() algorithm.Config { return w.config }

// Options returns the configured options.
func (w *Workspace) Options() *options.Set { return w.options }

// InitialPoint returns a copy of the starting point of the next run.
func (w *Workspace) InitialPoint() []float64 { return append([]float64(nil), w.x0...) }

// SetInitialPoint changes the starting point of later runs.
func (w *Workspace) SetInitialPoint(x []float64) error {
	if len(x) != len(w.x0) {
		return optimization.NewErrorf(optimization.KindInvalidModel, "initial point has length %d, want %d", len(x), len(w.x0)).
			WithComponent("solver").WithOperation("SetInitialPoint")
	}
	copy(w.x0, x)
	return nil
}

// Optimize runs the engine from a private copy of the initial point.
// Engine failure codes are reported in Result.Status. A failing user
// function, or a cancelled ctx, stops the engine and is returned as the
// error; user errors carry optimization.KindUserFunction and wrap the
// original error.
func (w *Workspace) Optimize(ctx context.Context) (*Result, error) {
	const op = "Optimize"

	if w.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.cache.Reset()
	w.cache.Bind(ctx, func() {
		if err := w.problem.ForceStop(); err != nil {
			w.logger.Warn("force stop failed", zap.Error(err))
		}
	})
	defer w.cache.Bind(context.Background(), nil)

	x := append([]float64(nil), w.x0...)
	start := time.Now()
	out, err := w.problem.Optimize(x)
	elapsed := time.Since(start)
	if err != nil {
		return nil, optimization.WrapError(err, optimization.KindEngine, "engine run failed").
			WithComponent("solver").WithOperation(op)
	}
	if err := w.cache.Err(); err != nil {
		w.logger.Warn("optimization aborted",
			zap.Stringer("algorithm", w.config),
			zap.Int("evaluations", w.cache.Evaluations()),
			zap.Error(err),
		)
		return nil, err
	}

	res := &Result{
		Minimizer:   out.X,
		Minimum:     out.F,
		Status:      out.Status,
		Algorithm:   w.config,
		Options:     w.options,
		Evaluations: w.cache.Evaluations(),
		Runtime:     elapsed,
		CacheHits:   w.cache.Hits(),
	}
	if res.Minimizer == nil {
		res.Minimizer = w.cache.LastPoint()
		if res.Minimizer == nil {
			res.Minimizer = append([]float64(nil), w.x0...)
		}
		res.Minimum = math.NaN()
	}

	w.metrics.ObserveRun(metrics.Run{
		Algorithm:   w.config.String(),
		Status:      res.Status.String(),
		Evaluations: res.Evaluations,
		Hits:        w.cache.Hits(),
		Misses:      w.cache.Misses(),
		Duration:    elapsed,
	})
	w.logger.Info("optimization finished",
		zap.Stringer("algorithm", w.config),
		zap.Stringer("status", res.Status),
		zap.Float64("minimum", res.Minimum),
		zap.Int("evaluations", res.Evaluations),
		zap.Int("cache_hits", res.CacheHits),
		zap.Duration("runtime", elapsed),
	)
	return res, nil
}

// Close releases the engine problem. It is safe to call more than once.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.problem.Destroy()
	return nil
}

// Optimize runs ws once. It is shorthand for ws.Optimize(ctx).
func Optimize(ctx context.Context, ws *Workspace) (*Result, error) {
	return ws.Optimize(ctx)
}

// Solve builds a Workspace, runs it once and releases it.
func Solve(ctx context.Context, m optimization.Model, cfg algorithm.Config, opts *options.Set, opt ...Option) (*Result, error) {
	ws, err := NewWorkspace(m, cfg, opts, opt...)
	if err != nil {
		return nil, err
	}
	defer ws.Close()
	return ws.Optimize(ctx)
}
