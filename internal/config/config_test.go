package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 60*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, EngineNLopt, cfg.Solver.Engine)
	assert.Equal(t, 1e-8, cfg.Solver.XtolRel)
	assert.Equal(t, 8, cfg.Solver.MaxJobs)
	assert.Equal(t, time.Hour, cfg.Solver.JobRetention)
	assert.Equal(t, 1000, cfg.Solver.KeptJobs)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("NLP_ENGINE", "gonum")
	t.Setenv("NLP_FTOL_REL", "1e-6")
	t.Setenv("NLP_MAXEVAL", "500")
	t.Setenv("NLP_MAXTIME", "2.5")
	t.Setenv("NLP_MAX_JOBS", "2")
	t.Setenv("NLP_JOB_RETENTION", "10m")
	t.Setenv("NLP_KEPT_JOBS", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, EngineGonum, cfg.Solver.Engine)
	assert.Equal(t, 2, cfg.Solver.MaxJobs)
	assert.Equal(t, 10*time.Minute, cfg.Solver.JobRetention)
	assert.Equal(t, 50, cfg.Solver.KeptJobs)

	opts := cfg.DefaultOptions()
	v, ok := opts.Get(options.FtolRel)
	require.True(t, ok)
	assert.Equal(t, 1e-6, v)
	v, ok = opts.Get(options.MaxEval)
	require.True(t, ok)
	assert.Equal(t, 500.0, v)
	v, ok = opts.Get(options.MaxTime)
	require.True(t, ok)
	assert.Equal(t, 2.5, v)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown engine", "NLP_ENGINE", "scipy"},
		{"negative maxeval", "NLP_MAXEVAL", "-1"},
		{"negative maxtime", "NLP_MAXTIME", "-1"},
		{"negative fd step", "NLP_FD_STEP", "-0.1"},
		{"no jobs", "NLP_MAX_JOBS", "0"},
		{"negative retention", "NLP_JOB_RETENTION", "-1m"},
		{"no kept jobs", "NLP_KEPT_JOBS", "0"},
		{"port", "HTTP_PORT", "70000"},
		{"not a number", "NLP_XTOL_REL", "tight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDefaultOptionsLeaveLimitsUnset(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	opts := cfg.DefaultOptions()
	_, ok := opts.Get(options.MaxEval)
	assert.False(t, ok)
	_, ok = opts.Get(options.MaxTime)
	assert.False(t, ok)
	assert.Equal(t, []string{options.FtolRel, options.FtolAbs, options.XtolRel, options.XtolAbs}, opts.Names())
}
