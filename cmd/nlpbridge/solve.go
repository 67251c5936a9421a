package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/diff"
	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
	"github.com/copyleftdev/nlpbridge/internal/optimization/solver"
	"github.com/copyleftdev/nlpbridge/internal/optimization/testproblems"
	"github.com/copyleftdev/nlpbridge/internal/server"
)

type solveFlags struct {
	problem    string
	dim        int
	algorithm  string
	local      string
	engine     string
	options    map[string]string
	suboptions map[string]string
	initial    []float64
	timeout    time.Duration
	asJSON     bool
}

func newSolveCmd(a *app) *cobra.Command {
	f := &solveFlags{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a built-in test problem",
		Long: `Solves one of the built-in test problems (see "nlpbridge problems") with
the given algorithm. Meta algorithms (AUGLAG, AUGLAG_EQ, G_MLSL, G_MLSL_LDS)
need --local; --subopt options apply to the local optimizer only.`,
		Example: `  nlpbridge solve --problem tutorial --algorithm LD_MMA --opt xtol_rel=1e-4
  nlpbridge solve --problem sphere --dim 5 --algorithm AUGLAG --local LD_LBFGS --subopt xtol_rel=1e-8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.solve(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}

	cmd.Flags().StringVar(&f.problem, "problem", "", "Test problem name (required)")
	cmd.Flags().IntVar(&f.dim, "dim", 2, "Problem dimension, ignored by fixed-dimension problems")
	cmd.Flags().StringVar(&f.algorithm, "algorithm", "", "Algorithm identifier (required)")
	cmd.Flags().StringVar(&f.local, "local", "", "Local optimizer of a meta algorithm")
	cmd.Flags().StringVar(&f.engine, "engine", "", "Engine (nlopt, gonum); overrides NLP_ENGINE")
	cmd.Flags().StringToStringVar(&f.options, "opt", nil, "Option name=value, repeatable")
	cmd.Flags().StringToStringVar(&f.suboptions, "subopt", nil, "Local optimizer option name=value, repeatable")
	cmd.Flags().Float64SliceVar(&f.initial, "initial", nil, "Initial point, comma separated")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Abort the run after this duration")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the result as JSON")

	_ = cmd.MarkFlagRequired("problem")
	_ = cmd.MarkFlagRequired("algorithm")
	return cmd
}

func (a *app) solve(ctx context.Context, out io.Writer, f *solveFlags) error {
	eng, err := a.engine(f.engine)
	if err != nil {
		return err
	}

	m, err := testproblems.Model(f.problem, f.dim)
	if err != nil {
		return err
	}
	if len(f.initial) > 0 {
		if len(f.initial) != len(m.Initial) {
			return fmt.Errorf("--initial has %d values, problem %s has dimension %d", len(f.initial), f.problem, len(m.Initial))
		}
		m.Initial = f.initial
	}

	cfg, err := algorithm.NewConfig(algorithm.Parse(f.algorithm), algorithm.Parse(f.local))
	if err != nil {
		return err
	}

	top, err := parseOptions(f.options)
	if err != nil {
		return err
	}
	opts := a.cfg.DefaultOptions().Merge(options.OfMap(top))
	if len(f.suboptions) > 0 {
		sub, err := parseOptions(f.suboptions)
		if err != nil {
			return err
		}
		opts = opts.WithSuboptions(options.New(options.OfMap(sub)))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	res, err := solver.Solve(ctx, m, cfg, opts,
		solver.WithEngine(eng),
		solver.WithDiff(diff.NewReverse(a.cfg.Solver.FDStep)),
		solver.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(server.NewResultView(res))
	}
	return printResult(out, f.problem, eng.Name(), res)
}

// parseOptions converts name=value flag pairs to numbers.
func parseOptions(raw map[string]string) (map[string]float64, error) {
	parsed := make(map[string]float64, len(raw))
	for name, value := range raw {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("option %s: %q is not a number", name, value)
		}
		parsed[name] = v
	}
	return parsed, nil
}

func printResult(out io.Writer, problem, engineName string, res *solver.Result) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "problem\t%s\n", problem)
	fmt.Fprintf(w, "engine\t%s\n", engineName)
	fmt.Fprintf(w, "algorithm\t%s\n", res.Algorithm)
	fmt.Fprintf(w, "status\t%s\n", res.Status)
	fmt.Fprintf(w, "minimum\t%.10g\n", res.Minimum)
	fmt.Fprintf(w, "minimizer\t%v\n", res.Minimizer)
	fmt.Fprintf(w, "evaluations\t%d\n", res.Evaluations)
	fmt.Fprintf(w, "cache hits\t%d\n", res.CacheHits)
	fmt.Fprintf(w, "runtime\t%s\n", res.Runtime)

	names := res.Options.Names()
	sort.Strings(names)
	for _, name := range names {
		v, _ := res.Options.Get(name)
		fmt.Fprintf(w, "option %s\t%g\n", name, v)
	}
	return w.Flush()
}
