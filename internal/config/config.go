// Package config loads the process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
)

// Engine names accepted by NLP_ENGINE.
const (
	EngineNLopt = "nlopt"
	EngineGonum = "gonum"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
		RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"60s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver struct {
		Engine  string  `env:"NLP_ENGINE" envDefault:"nlopt"`
		FtolRel float64 `env:"NLP_FTOL_REL" envDefault:"0"`
		FtolAbs float64 `env:"NLP_FTOL_ABS" envDefault:"0"`
		XtolRel float64 `env:"NLP_XTOL_REL" envDefault:"1e-8"`
		XtolAbs float64 `env:"NLP_XTOL_ABS" envDefault:"0"`
		// MaxEval and MaxTime of zero leave the run unlimited.
		MaxEval int     `env:"NLP_MAXEVAL" envDefault:"0"`
		MaxTime float64 `env:"NLP_MAXTIME" envDefault:"0"`
		// FDStep is the finite-difference step, zero for gonum's default.
		FDStep float64 `env:"NLP_FD_STEP" envDefault:"0"`
		// MaxJobs bounds the jobs the server runs at once.
		MaxJobs int `env:"NLP_MAX_JOBS" envDefault:"8"`
		// JobRetention is how long finished jobs stay queryable, zero for no
		// age limit. KeptJobs caps the number of finished jobs held.
		JobRetention time.Duration `env:"NLP_JOB_RETENTION" envDefault:"1h"`
		KeptJobs     int           `env:"NLP_KEPT_JOBS" envDefault:"1000"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env cannot check by type alone.
func (c *Config) Validate() error {
	switch c.Solver.Engine {
	case EngineNLopt, EngineGonum:
	default:
		return fmt.Errorf("config: NLP_ENGINE must be %q or %q, got %q", EngineNLopt, EngineGonum, c.Solver.Engine)
	}
	if c.Solver.MaxEval < 0 {
		return fmt.Errorf("config: NLP_MAXEVAL must not be negative, got %d", c.Solver.MaxEval)
	}
	if c.Solver.MaxTime < 0 {
		return fmt.Errorf("config: NLP_MAXTIME must not be negative, got %v", c.Solver.MaxTime)
	}
	if c.Solver.FDStep < 0 {
		return fmt.Errorf("config: NLP_FD_STEP must not be negative, got %v", c.Solver.FDStep)
	}
	if c.Solver.MaxJobs <= 0 {
		return fmt.Errorf("config: NLP_MAX_JOBS must be positive, got %d", c.Solver.MaxJobs)
	}
	if c.Solver.JobRetention < 0 {
		return fmt.Errorf("config: NLP_JOB_RETENTION must not be negative, got %v", c.Solver.JobRetention)
	}
	if c.Solver.KeptJobs <= 0 {
		return fmt.Errorf("config: NLP_KEPT_JOBS must be positive, got %d", c.Solver.KeptJobs)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: HTTP_PORT out of range: %d", c.HTTP.Port)
	}
	return nil
}

// DefaultOptions returns the option set requests start from: the
// configured tolerances, and the evaluation and time limits when set.
func (c *Config) DefaultOptions() *options.Set {
	s := options.Defaults().
		With(options.FtolRel, c.Solver.FtolRel).
		With(options.FtolAbs, c.Solver.FtolAbs).
		With(options.XtolRel, c.Solver.XtolRel).
		With(options.XtolAbs, c.Solver.XtolAbs)
	if c.Solver.MaxEval > 0 {
		s = s.With(options.MaxEval, float64(c.Solver.MaxEval))
	}
	if c.Solver.MaxTime > 0 {
		s = s.With(options.MaxTime, c.Solver.MaxTime)
	}
	return s
}
