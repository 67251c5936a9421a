package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/copyleftdev/nlpbridge/internal/metrics"
	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine/gonum"
	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
	"github.com/copyleftdev/nlpbridge/internal/optimization/testproblems"
)

func tolerances(xtol float64) *options.Set {
	return options.New(options.Of(
		options.Entry{Name: options.XtolRel, Value: xtol},
		options.Entry{Name: options.MaxEval, Value: 20000},
	))
}

func TestSolveTestProblems(t *testing.T) {
	tests := []struct {
		problem string
		alg     algorithm.ID
		tol     float64
	}{
		{"sphere", algorithm.LD_LBFGS, 1e-6},
		{"sphere", algorithm.LN_NELDERMEAD, 1e-3},
		{"rosenbrock", algorithm.LD_LBFGS, 1e-4},
		{"sphere", algorithm.LD_TNEWTON, 1e-6},
		{"bounded-quadratic", algorithm.LD_LBFGS, 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.problem+"/"+string(tt.alg), func(t *testing.T) {
			m, err := testproblems.Model(tt.problem, 2)
			require.NoError(t, err)
			c, err := testproblems.Get(tt.problem, 2)
			require.NoError(t, err)

			res, err := Solve(context.Background(), m, algorithm.MustConfig(tt.alg, ""), tolerances(1e-10),
				WithEngine(gonum.New()), WithLogger(zaptest.NewLogger(t)))
			require.NoError(t, err)
			require.True(t, res.Success(), res.Status.String())
			assert.InDeltaSlice(t, c.Minimizer, res.Minimizer, tt.tol)
			assert.InDelta(t, c.Minimum, res.Minimum, tt.tol)
			assert.Greater(t, res.Evaluations, 0)
			assert.Equal(t, algorithm.Standalone{ID: tt.alg}, res.Algorithm)
		})
	}
}

func TestInfiniteBoundsKeepInteriorOptimum(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name         string
		lower, upper []float64
	}{
		{"finite", []float64{-10, -10}, []float64{10, 10}},
		{"lower", []float64{-inf, -10}, []float64{10, 10}},
		{"upper", []float64{-10, -10}, []float64{10, inf}},
		{"both", []float64{-inf, -inf}, []float64{inf, inf}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testproblems.Rosenbrock(2)
			m.Lower, m.Upper = tt.lower, tt.upper

			res, err := Solve(context.Background(), m, algorithm.MustConfig(algorithm.LD_LBFGS, ""), tolerances(1e-10),
				WithEngine(gonum.New()))
			require.NoError(t, err)
			require.True(t, res.Success(), res.Status.String())
			assert.InDeltaSlice(t, []float64{1, 1}, res.Minimizer, 1e-6)
			assert.InDelta(t, 0, res.Minimum, 1e-10)
		})
	}
}

func TestEvaluationsCountDistinctPoints(t *testing.T) {
	m := testproblems.Rosenbrock(2)
	calls := 0
	f := m.Obj.F
	m.Obj.F = func(x []float64) (float64, error) {
		calls++
		return f(x)
	}

	ws, err := NewWorkspace(m, algorithm.MustConfig(algorithm.LD_LBFGS, ""), tolerances(1e-8), WithEngine(gonum.New()))
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, 1, calls, "warm-up evaluates the initial point once")

	calls = 0
	res, err := ws.Optimize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, res.Evaluations)
	assert.Greater(t, res.CacheHits, 0)
}

func TestEvaluationsExcludeFiniteDifferenceCalls(t *testing.T) {
	m := testproblems.Sphere(2)
	m.Obj.Grad = nil
	calls := 0
	f := m.Obj.F
	m.Obj.F = func(x []float64) (float64, error) {
		calls++
		return f(x)
	}

	ws, err := NewWorkspace(m, algorithm.MustConfig(algorithm.LD_LBFGS, ""), tolerances(1e-8), WithEngine(gonum.New()))
	require.NoError(t, err)
	defer ws.Close()

	calls = 0
	res, err := ws.Optimize(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success(), res.Status.String())
	assert.Greater(t, res.Evaluations, 0)
	assert.Greater(t, calls, res.Evaluations)
}

func TestInitialPointIsNotMutated(t *testing.T) {
	m := testproblems.Sphere(3)
	x0 := append([]float64(nil), m.Initial...)

	ws, err := NewWorkspace(m, algorithm.MustConfig(algorithm.LD_LBFGS, ""), tolerances(1e-8), WithEngine(gonum.New()))
	require.NoError(t, err)
	defer ws.Close()

	_, err = ws.Optimize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, x0, m.Initial)
	assert.Equal(t, x0, ws.InitialPoint())
}

func TestRerunFromNewPoint(t *testing.T) {
	ws, err := NewWorkspace(testproblems.Sphere(2), algorithm.MustConfig(algorithm.LN_NELDERMEAD, ""),
		tolerances(1e-8), WithEngine(gonum.New()))
	require.NoError(t, err)
	defer ws.Close()

	first, err := ws.Optimize(context.Background())
	require.NoError(t, err)

	require.Error(t, ws.SetInitialPoint([]float64{1}))
	require.NoError(t, ws.SetInitialPoint([]float64{-3, 4}))
	second, err := ws.Optimize(context.Background())
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0, 0}, second.Minimizer, 1e-3)
	assert.Greater(t, first.Evaluations, 0)
	assert.Greater(t, second.Evaluations, 0)
}

func TestConfigurationErrors(t *testing.T) {
	sphere := testproblems.Sphere(2)

	tests := []struct {
		name string
		cfg  algorithm.Config
		opts *options.Set
		eng  engine.Engine
		want error
	}{
		{"meta without local", algorithm.Standalone{ID: algorithm.AUGLAG}, nil, gonum.New(), optimization.ErrMissingLocalOptimizer},
		{"unknown algorithm", algorithm.Standalone{ID: "LD_MAM"}, nil, gonum.New(), optimization.ErrInvalidAlgorithm},
		{"meta as local", algorithm.Composite{Meta: algorithm.AUGLAG, Local: algorithm.G_MLSL}, nil, gonum.New(), optimization.ErrInvalidAlgorithm},
		{"unknown option", algorithm.MustConfig(algorithm.LD_LBFGS, ""), options.Of(options.Entry{Name: "tol", Value: 1}), gonum.New(), optimization.ErrUnknownOption},
		{"unsupported by engine", algorithm.MustConfig(algorithm.LD_MMA, ""), nil, gonum.New(), optimization.ErrInvalidAlgorithm},
		{"no engine", algorithm.MustConfig(algorithm.LD_LBFGS, ""), nil, nil, optimization.ErrEngine},
		{"nil config", nil, nil, gonum.New(), optimization.ErrInvalidAlgorithm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWorkspace(sphere, tt.cfg, tt.opts, WithEngine(tt.eng))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var missing *algorithm.MissingLocalError
	_, err := NewWorkspace(sphere, algorithm.Standalone{ID: algorithm.G_MLSL_LDS}, nil, WithEngine(gonum.New()))
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, algorithm.G_MLSL_LDS, missing.Algorithm)
}

func TestInvalidModel(t *testing.T) {
	m := testproblems.Sphere(2)
	m.Lower = []float64{0}
	_, err := NewWorkspace(m, algorithm.MustConfig(algorithm.LD_LBFGS, ""), nil, WithEngine(gonum.New()))
	assert.ErrorIs(t, err, optimization.ErrInvalidModel)
}

func TestUserFunctionErrors(t *testing.T) {
	boom := errors.New("objective exploded")

	t.Run("at initial point", func(t *testing.T) {
		m := testproblems.Sphere(2)
		m.Obj.F = func([]float64) (float64, error) { return 0, boom }
		_, err := NewWorkspace(m, algorithm.MustConfig(algorithm.LN_NELDERMEAD, ""), nil, WithEngine(gonum.New()))
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, optimization.ErrUserFunction)
	})

	t.Run("during run", func(t *testing.T) {
		m := testproblems.Sphere(2)
		f := m.Obj.F
		m.Obj.F = func(x []float64) (float64, error) {
			if x[0] < 0.5 {
				return 0, boom
			}
			return f(x)
		}
		ws, err := NewWorkspace(m, algorithm.MustConfig(algorithm.LD_LBFGS, ""), tolerances(1e-10), WithEngine(gonum.New()))
		require.NoError(t, err)
		defer ws.Close()

		res, err := ws.Optimize(context.Background())
		require.Error(t, err)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, optimization.KindUserFunction, optimization.KindOf(err))
	})
}

func TestCancellation(t *testing.T) {
	ws, err := NewWorkspace(testproblems.Rosenbrock(2), algorithm.MustConfig(algorithm.LN_NELDERMEAD, ""),
		tolerances(1e-12), WithEngine(gonum.New()))
	require.NoError(t, err)
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ws.Optimize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// failing is an engine whose problems evaluate the objective at a few points
// and then report a failure status without a point.
type failing struct{ gonum.Engine }

func (failing) Supports(algorithm.ID) bool { return true }

func (f failing) NewProblem(alg algorithm.ID, dim int) (engine.Problem, error) {
	p, err := f.Engine.NewProblem(algorithm.LN_NELDERMEAD, dim)
	if err != nil {
		return nil, err
	}
	return &failingProblem{Problem: p}, nil
}

type failingProblem struct {
	engine.Problem
	objective engine.Func
}

func (p *failingProblem) SetMinObjective(f engine.Func) error {
	p.objective = f
	return nil
}

func (p *failingProblem) Optimize(x []float64) (engine.Outcome, error) {
	for i := range x {
		x[i] = 7
	}
	p.objective([]float64{1, 2}, nil)
	p.objective(x, nil)
	return engine.Outcome{F: math.NaN(), Status: engine.RoundoffLimited}, nil
}

func TestFailureStatusIsData(t *testing.T) {
	m := testproblems.Sphere(2)
	ws, err := NewWorkspace(m, algorithm.MustConfig(algorithm.LN_NELDERMEAD, ""), nil, WithEngine(failing{}))
	require.NoError(t, err)
	defer ws.Close()

	res, err := ws.Optimize(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, engine.RoundoffLimited, res.Status)
	assert.Equal(t, []float64{7, 7}, res.Minimizer)
	assert.True(t, math.IsNaN(res.Minimum))
	assert.Equal(t, 2, res.Evaluations)
	assert.Equal(t, []float64{1, 1}, m.Initial)
}

func TestMetricsAndClose(t *testing.T) {
	reg := prometheus.NewRegistry()
	ws, err := NewWorkspace(testproblems.Sphere(2), algorithm.MustConfig(algorithm.LD_LBFGS, ""), tolerances(1e-8),
		WithEngine(gonum.New()), WithMetrics(metrics.New(reg)))
	require.NoError(t, err)

	_, err = Optimize(context.Background(), ws)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "nlpbridge_solver_runs_total")

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())
	_, err = ws.Optimize(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func BenchmarkOptimizeRosenbrock(b *testing.B) {
	ws, err := NewWorkspace(testproblems.Rosenbrock(4), algorithm.MustConfig(algorithm.LD_LBFGS, ""), tolerances(1e-8),
		WithEngine(gonum.New()))
	require.NoError(b, err)
	defer ws.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ws.Optimize(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}
