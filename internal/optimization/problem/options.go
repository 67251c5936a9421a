package problem

import (
	"math"
	"sort"
	"strings"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
)

type setter func(p engine.Problem, v float64) error

// setters maps every recognized option to its typed engine setter.
var setters = map[string]setter{
	options.FtolRel: func(p engine.Problem, v float64) error { return p.SetFtolRel(v) },
	options.FtolAbs: func(p engine.Problem, v float64) error { return p.SetFtolAbs(v) },
	options.XtolRel: func(p engine.Problem, v float64) error { return p.SetXtolRel(v) },
	options.XtolAbs: func(p engine.Problem, v float64) error { return p.SetXtolAbs(v) },
	options.MaxEval: func(p engine.Problem, v float64) error {
		n, err := count(options.MaxEval, v)
		if err != nil {
			return err
		}
		return p.SetMaxEval(int(n))
	},
	options.MaxTime: func(p engine.Problem, v float64) error { return p.SetMaxTime(v) },
	options.StopVal: func(p engine.Problem, v float64) error { return p.SetStopVal(v) },
	options.Population: func(p engine.Problem, v float64) error {
		n, err := count(options.Population, v)
		if err != nil {
			return err
		}
		return p.SetPopulation(n)
	},
	options.VectorStorage: func(p engine.Problem, v float64) error {
		n, err := count(options.VectorStorage, v)
		if err != nil {
			return err
		}
		return p.SetVectorStorage(n)
	},
	options.InitialStep: func(p engine.Problem, v float64) error { return p.SetInitialStep(v) },
}

// count converts an integer-valued option.
func count(name string, v float64) (uint, error) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, optimization.NewErrorf(optimization.KindInvalidModel, "option %s must be a non-negative integer, got %v", name, v).
			WithComponent("problem").WithOperation("ApplyOptions")
	}
	return uint(v), nil
}

// OptionNames returns the recognized option names in sorted order.
func OptionNames() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateOptions checks every name of set, and of its nested Set, against
// the option table without touching an engine.
func ValidateOptions(set *options.Set) error {
	if err := validateNames(set, ""); err != nil {
		return err
	}
	if sub := set.Suboptions(); sub != nil {
		return validateNames(sub, options.Suboptions+".")
	}
	return nil
}

func validateNames(set *options.Set, prefix string) error {
	for _, name := range set.Names() {
		if name == options.Suboptions {
			return scalarSuboptions(prefix+name, "ValidateOptions")
		}
		if _, ok := setters[name]; !ok {
			return optimization.NewErrorf(optimization.KindUnknownOption, "unknown option %q, valid options are: %s",
				prefix+name, strings.Join(OptionNames(), ", ")).
				WithComponent("problem").WithOperation("ValidateOptions")
		}
	}
	return nil
}

// scalarSuboptions rejects a scalar entry under the key reserved for the
// nested Set.
func scalarSuboptions(name, op string) error {
	return optimization.NewErrorf(optimization.KindUnknownOption, "option %q must be a nested option set, not a number", name).
		WithComponent("problem").WithOperation(op)
}

// ApplyOptions sets every scalar entry of set on p, in order. The nested
// Set is not applied here.
func ApplyOptions(p engine.Problem, set *options.Set) error {
	for _, e := range set.Entries() {
		if e.Name == options.Suboptions {
			return scalarSuboptions(e.Name, "ApplyOptions")
		}
		apply, ok := setters[e.Name]
		if !ok {
			return optimization.NewErrorf(optimization.KindUnknownOption, "unknown option %q", e.Name).
				WithComponent("problem").WithOperation("ApplyOptions")
		}
		if err := apply(p, e.Value); err != nil {
			return err
		}
	}
	return nil
}
