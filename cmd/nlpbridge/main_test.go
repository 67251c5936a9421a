package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/server"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NLP_ENGINE", "gonum")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSolveCommand(t *testing.T) {
	out, err := run(t, "solve", "--problem", "bounded-quadratic", "--dim", "3",
		"--algorithm", "LD_LBFGS", "--opt", "xtol_rel=1e-10", "--json")
	require.NoError(t, err, out)

	var res server.ResultView
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "LD_LBFGS", res.Algorithm)
	assert.InDeltaSlice(t, []float64{1, 1, 1}, res.Minimizer, 1e-6)
	require.NotNil(t, res.Minimum)
	assert.InDelta(t, 3.0, *res.Minimum, 1e-6)
}

func TestSolveCommandText(t *testing.T) {
	out, err := run(t, "solve", "--problem", "sphere", "--algorithm", "ln_neldermead", "--initial", "2,-1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "LN_NELDERMEAD")
	assert.Contains(t, out, "option xtol_rel")
	assert.Regexp(t, `engine\s+gonum`, out)
}

func TestSolveCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"typo", []string{"--problem", "sphere", "--algorithm", "LD_LBFSG"}, optimization.ErrInvalidAlgorithm},
		{"meta without local", []string{"--problem", "sphere", "--algorithm", "AUGLAG"}, optimization.ErrMissingLocalOptimizer},
		{"unknown option", []string{"--problem", "sphere", "--algorithm", "LD_LBFGS", "--opt", "tol=1"}, optimization.ErrUnknownOption},
		{"unknown problem", []string{"--problem", "nope", "--algorithm", "LD_LBFGS"}, optimization.ErrInvalidModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"solve"}, tt.args...)...)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := run(t, "solve", "--problem", "sphere", "--algorithm", "LD_LBFGS", "--opt", "maxeval=lots")
	assert.ErrorContains(t, err, "not a number")

	_, err = run(t, "solve", "--problem", "sphere", "--algorithm", "LD_LBFGS", "--engine", "scipy")
	assert.ErrorContains(t, err, "unknown engine")

	_, err = run(t, "solve", "--problem", "sphere", "--algorithm", "LD_LBFGS", "--initial", "1,2,3")
	assert.ErrorContains(t, err, "--initial")
}

func TestAlgorithmsCommand(t *testing.T) {
	out, err := run(t, "algorithms", "--kind", "meta")
	require.NoError(t, err)
	assert.Contains(t, out, "AUGLAG")
	assert.Contains(t, out, "G_MLSL_LDS")
	assert.NotContains(t, out, "LD_MMA")

	out, err = run(t, "algorithms", "validate", "AUGLAG", "LN_COBYLA")
	require.NoError(t, err)
	assert.Contains(t, out, "AUGLAG+LN_COBYLA is valid (derivative-free)")

	_, err = run(t, "algorithms", "validate", "LD_MAM")
	assert.ErrorContains(t, err, `did you mean "LD_MMA"`)

	_, err = run(t, "algorithms", "--kind", "second-order")
	assert.Error(t, err)
}

func TestProblemsCommand(t *testing.T) {
	out, err := run(t, "problems")
	require.NoError(t, err)
	for _, name := range []string{"tutorial", "sphere", "rosenbrock", "bounded-quadratic"} {
		assert.Contains(t, out, name)
	}
}
