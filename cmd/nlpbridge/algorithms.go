package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
	"github.com/copyleftdev/nlpbridge/internal/optimization/testproblems"
)

func newAlgorithmsCmd(a *app) *cobra.Command {
	var engineName string
	var kind string
	cmd := &cobra.Command{
		Use:   "algorithms",
		Short: "List the algorithm catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine(engineName)
			if err != nil {
				return err
			}
			ids := algorithm.All()
			switch kind {
			case "":
			case "local":
				ids = algorithm.Locals()
			case "zero-order":
				ids = algorithm.OfKind(algorithm.ZeroOrder)
			case "first-order":
				ids = algorithm.OfKind(algorithm.FirstOrder)
			case "meta":
				ids = algorithm.OfKind(algorithm.Meta)
			default:
				return fmt.Errorf("unknown kind %q, want local, zero-order, first-order or meta", kind)
			}
			return printAlgorithms(cmd.OutOrStdout(), eng, ids)
		},
	}
	cmd.Flags().StringVar(&engineName, "engine", "", "Engine to report support for; overrides NLP_ENGINE")
	cmd.Flags().StringVar(&kind, "kind", "", "Only list local, zero-order, first-order or meta algorithms")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate ALGORITHM [LOCAL]",
		Short: "Check an algorithm and optional local optimizer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := ""
			if len(args) == 2 {
				local = args[1]
			}
			cfg, err := algorithm.NewConfig(algorithm.Parse(args[0]), algorithm.Parse(local))
			if err != nil {
				return err
			}
			mode := "gradient-based"
			if algorithm.DerivativeFree(cfg) {
				mode = "derivative-free"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%s)\n", cfg, mode)
			return nil
		},
	})
	return cmd
}

func printAlgorithms(out io.Writer, eng engine.Engine, ids []algorithm.ID) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tKIND\tGLOBAL\t%s\tDESCRIPTION\n", eng.Name())
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, id.Kind(), yesNo(id.IsGlobal()), yesNo(eng.Supports(id)), id.Describe())
	}
	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func newProblemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "problems",
		Short: "List the built-in test problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDIMENSION\tMINIMUM\tDESCRIPTION")
			for _, name := range testproblems.Names() {
				c, err := testproblems.Get(name, 0)
				if err != nil {
					return err
				}
				dim := "any"
				if c.Fixed > 0 {
					dim = fmt.Sprint(c.Fixed)
				}
				fmt.Fprintf(w, "%s\t%s\t%.6g\t%s\n", c.Name, dim, c.Minimum, c.Description)
			}
			return w.Flush()
		},
	}
}
