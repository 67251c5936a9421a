package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/nlpbridge/internal/config"
	"github.com/copyleftdev/nlpbridge/internal/logging"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine/gonum"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine/nlopt"
)

// app is the state shared by all commands once the root pre-run has loaded
// the configuration.
type app struct {
	logLevel string
	cfg      *config.Config
	logger   *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "nlpbridge",
		Short: "Drive NLopt-style optimizers on nonlinear programs",
		Long: `nlpbridge adapts nonlinear programs to gradient-based and derivative-free
optimizer engines, with cached evaluations, algorithm validation and nested
options for meta algorithms. It solves built-in problems from the command line
or serves them over REST and JSON-RPC.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	cmd.AddCommand(
		newServeCmd(a),
		newSolveCmd(a),
		newAlgorithmsCmd(a),
		newProblemsCmd(),
	)
	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger.With(zap.String("service", "nlpbridge"))
	return nil
}

// engine returns the engine named by override, or by NLP_ENGINE when
// override is empty.
func (a *app) engine(override string) (engine.Engine, error) {
	name := override
	if name == "" {
		name = a.cfg.Solver.Engine
	}
	switch name {
	case config.EngineNLopt:
		return nlopt.New(), nil
	case config.EngineGonum:
		return gonum.New(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q, want %q or %q", name, config.EngineNLopt, config.EngineGonum)
	}
}
