package nlopt

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
	"github.com/copyleftdev/nlpbridge/internal/optimization/solver"
	"github.com/copyleftdev/nlpbridge/internal/optimization/testproblems"
)

func xtolRel(v float64) *options.Set {
	return options.New(options.Of(options.Entry{Name: options.XtolRel, Value: v}))
}

func TestSolveTutorial(t *testing.T) {
	tests := []struct {
		name   string
		model  *optimization.Problem
		xdelta float64
	}{
		{"half plane", testproblems.Tutorial(), 1e-4},
		{"box", testproblems.BoxedTutorial(), 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := solver.Solve(context.Background(), tt.model,
				algorithm.MustConfig(algorithm.LD_MMA, ""), xtolRel(1e-4), solver.WithEngine(New()))
			require.NoError(t, err)

			require.True(t, res.Success(), res.Status.String())
			assert.InDelta(t, math.Sqrt(8.0/27.0), res.Minimum, 1e-6)
			assert.InDeltaSlice(t, []float64{1.0 / 3.0, 8.0 / 27.0}, res.Minimizer, tt.xdelta)
			assert.Greater(t, res.Evaluations, 0)
			assert.Greater(t, res.CacheHits, 0)
		})
	}
}

func TestSolveTutorialDerivativeFree(t *testing.T) {
	res, err := solver.Solve(context.Background(), testproblems.Tutorial(),
		algorithm.MustConfig(algorithm.LN_COBYLA, ""), xtolRel(1e-6), solver.WithEngine(New()))
	require.NoError(t, err)
	require.True(t, res.Success(), res.Status.String())
	assert.InDelta(t, math.Sqrt(8.0/27.0), res.Minimum, 1e-4)
}

func TestSolveMetaWithLocal(t *testing.T) {
	m := testproblems.Sphere(2)
	m.Initial = []float64{1, -2}
	opts := options.New(options.Of(
		options.Entry{Name: options.XtolRel, Value: 1e-8},
		options.Entry{Name: options.MaxEval, Value: 5000},
	)).WithSuboptions(options.New(options.Of(options.Entry{Name: options.XtolRel, Value: 1e-8})))

	res, err := solver.Solve(context.Background(), m,
		algorithm.MustConfig(algorithm.AUGLAG, algorithm.LD_LBFGS), opts, solver.WithEngine(New()))
	require.NoError(t, err)
	if res.Success() {
		assert.InDelta(t, 0, res.Minimum, 1e-6)
		assert.InDeltaSlice(t, []float64{0, 0}, res.Minimizer, 1e-3)
	} else {
		assert.True(t, math.IsNaN(res.Minimum))
	}
}

func TestInfiniteBoundsChangeNothing(t *testing.T) {
	inf := math.Inf(1)
	cfg := algorithm.MustConfig(algorithm.LD_MMA, "")

	base, err := solver.Solve(context.Background(), testproblems.BoxedTutorial(), cfg, xtolRel(1e-8), solver.WithEngine(New()))
	require.NoError(t, err)
	require.True(t, base.Success(), base.Status.String())

	// x1 keeps its lower bound of zero: the objective is sqrt(x1).
	tests := []struct {
		name         string
		lower, upper []float64
	}{
		{"lower", []float64{-inf, 0}, []float64{10, 10}},
		{"upper", []float64{0, 0}, []float64{inf, inf}},
		{"both", []float64{-inf, 0}, []float64{inf, inf}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testproblems.BoxedTutorial()
			m.Lower, m.Upper = tt.lower, tt.upper

			res, err := solver.Solve(context.Background(), m, cfg, xtolRel(1e-8), solver.WithEngine(New()))
			require.NoError(t, err)
			require.True(t, res.Success(), res.Status.String())
			assert.InDelta(t, base.Minimum, res.Minimum, 1e-6)
			assert.InDeltaSlice(t, base.Minimizer, res.Minimizer, 1e-6)
		})
	}
}

func TestSolveUnknownOption(t *testing.T) {
	opts := options.New(options.Of(options.Entry{Name: "xtol", Value: 1e-4}))
	_, err := solver.NewWorkspace(testproblems.Tutorial(), algorithm.MustConfig(algorithm.LD_MMA, ""), opts,
		solver.WithEngine(New()))
	assert.ErrorIs(t, err, optimization.ErrUnknownOption)
}
