// Package algorithm holds the catalog of optimizer algorithm identifiers and
// the validation of algorithm / local-optimizer pairs.
package algorithm

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
)

// ID identifies an optimizer algorithm by its engine name.
type ID string

// Kind partitions the catalog.
type Kind int

const (
	// ZeroOrder algorithms use function values only.
	ZeroOrder Kind = iota + 1
	// FirstOrder algorithms also consume gradients and Jacobians.
	FirstOrder
	// Meta algorithms drive a subordinate local algorithm.
	Meta
)

func (k Kind) String() string {
	switch k {
	case ZeroOrder:
		return "zero-order"
	case FirstOrder:
		return "first-order"
	case Meta:
		return "meta"
	default:
		return "unknown"
	}
}

// suggestionThreshold is the exclusive upper bound on the edit distance for
// which a "did you mean" suggestion is offered.
const suggestionThreshold = 4

const (
	GN_DIRECT                  ID = "GN_DIRECT"
	GN_DIRECT_L                ID = "GN_DIRECT_L"
	GN_DIRECT_L_RAND           ID = "GN_DIRECT_L_RAND"
	GN_DIRECT_NOSCAL           ID = "GN_DIRECT_NOSCAL"
	GN_DIRECT_L_NOSCAL         ID = "GN_DIRECT_L_NOSCAL"
	GN_DIRECT_L_RAND_NOSCAL    ID = "GN_DIRECT_L_RAND_NOSCAL"
	GN_ORIG_DIRECT             ID = "GN_ORIG_DIRECT"
	GN_ORIG_DIRECT_L           ID = "GN_ORIG_DIRECT_L"
	LD_LBFGS                   ID = "LD_LBFGS"
	LN_PRAXIS                  ID = "LN_PRAXIS"
	LD_VAR1                    ID = "LD_VAR1"
	LD_VAR2                    ID = "LD_VAR2"
	LD_TNEWTON                 ID = "LD_TNEWTON"
	LD_TNEWTON_RESTART         ID = "LD_TNEWTON_RESTART"
	LD_TNEWTON_PRECOND         ID = "LD_TNEWTON_PRECOND"
	LD_TNEWTON_PRECOND_RESTART ID = "LD_TNEWTON_PRECOND_RESTART"
	GN_CRS2_LM                 ID = "GN_CRS2_LM"
	GN_MLSL                    ID = "GN_MLSL"
	GD_MLSL                    ID = "GD_MLSL"
	GN_MLSL_LDS                ID = "GN_MLSL_LDS"
	GD_MLSL_LDS                ID = "GD_MLSL_LDS"
	LD_MMA                     ID = "LD_MMA"
	LN_COBYLA                  ID = "LN_COBYLA"
	LN_NEWUOA                  ID = "LN_NEWUOA"
	LN_NEWUOA_BOUND            ID = "LN_NEWUOA_BOUND"
	LN_NELDERMEAD              ID = "LN_NELDERMEAD"
	LN_SBPLX                   ID = "LN_SBPLX"
	LN_AUGLAG                  ID = "LN_AUGLAG"
	LD_AUGLAG                  ID = "LD_AUGLAG"
	LN_AUGLAG_EQ               ID = "LN_AUGLAG_EQ"
	LD_AUGLAG_EQ               ID = "LD_AUGLAG_EQ"
	LN_BOBYQA                  ID = "LN_BOBYQA"
	GN_ISRES                   ID = "GN_ISRES"
	AUGLAG                     ID = "AUGLAG"
	AUGLAG_EQ                  ID = "AUGLAG_EQ"
	G_MLSL                     ID = "G_MLSL"
	G_MLSL_LDS                 ID = "G_MLSL_LDS"
	LD_SLSQP                   ID = "LD_SLSQP"
	LD_CCSAQ                   ID = "LD_CCSAQ"
	GN_ESCH                    ID = "GN_ESCH"
)

type entry struct {
	id     ID
	kind   Kind
	global bool
	desc   string
}

// catalog is in engine enumeration order. That order is also the tie-break
// for suggestions.
var catalog = []entry{
	{GN_DIRECT, ZeroOrder, true, "DIRECT"},
	{GN_DIRECT_L, ZeroOrder, true, "DIRECT-L"},
	{GN_DIRECT_L_RAND, ZeroOrder, true, "Randomized DIRECT-L"},
	{GN_DIRECT_NOSCAL, ZeroOrder, true, "Unscaled DIRECT"},
	{GN_DIRECT_L_NOSCAL, ZeroOrder, true, "Unscaled DIRECT-L"},
	{GN_DIRECT_L_RAND_NOSCAL, ZeroOrder, true, "Unscaled Randomized DIRECT-L"},
	{GN_ORIG_DIRECT, ZeroOrder, true, "Original DIRECT version"},
	{GN_ORIG_DIRECT_L, ZeroOrder, true, "Original DIRECT-L version"},
	{LD_LBFGS, FirstOrder, false, "Limited-memory BFGS (L-BFGS)"},
	{LN_PRAXIS, ZeroOrder, false, "Principal-axis, praxis"},
	{LD_VAR1, FirstOrder, false, "Limited-memory variable-metric, rank 1"},
	{LD_VAR2, FirstOrder, false, "Limited-memory variable-metric, rank 2"},
	{LD_TNEWTON, FirstOrder, false, "Truncated Newton"},
	{LD_TNEWTON_RESTART, FirstOrder, false, "Truncated Newton with restarting"},
	{LD_TNEWTON_PRECOND, FirstOrder, false, "Preconditioned truncated Newton"},
	{LD_TNEWTON_PRECOND_RESTART, FirstOrder, false, "Preconditioned truncated Newton with restarting"},
	{GN_CRS2_LM, ZeroOrder, true, "Controlled random search (CRS2) with local mutation"},
	{GN_MLSL, ZeroOrder, true, "Multi-level single-linkage (MLSL), random"},
	{GD_MLSL, FirstOrder, true, "Multi-level single-linkage (MLSL), random"},
	{GN_MLSL_LDS, ZeroOrder, true, "Multi-level single-linkage (MLSL), quasi-random"},
	{GD_MLSL_LDS, FirstOrder, true, "Multi-level single-linkage (MLSL), quasi-random"},
	{LD_MMA, FirstOrder, false, "Method of Moving Asymptotes (MMA)"},
	{LN_COBYLA, ZeroOrder, false, "COBYLA (Constrained Optimization BY Linear Approximations)"},
	{LN_NEWUOA, ZeroOrder, false, "NEWUOA unconstrained optimization via quadratic models"},
	{LN_NEWUOA_BOUND, ZeroOrder, false, "Bound-constrained optimization via NEWUOA-based quadratic models"},
	{LN_NELDERMEAD, ZeroOrder, false, "Nelder-Mead simplex algorithm"},
	{LN_SBPLX, ZeroOrder, false, "Sbplx variant of Nelder-Mead"},
	{LN_AUGLAG, ZeroOrder, false, "Augmented Lagrangian method"},
	{LD_AUGLAG, FirstOrder, false, "Augmented Lagrangian method"},
	{LN_AUGLAG_EQ, ZeroOrder, false, "Augmented Lagrangian method for equality constraints"},
	{LD_AUGLAG_EQ, FirstOrder, false, "Augmented Lagrangian method for equality constraints"},
	{LN_BOBYQA, ZeroOrder, false, "BOBYQA bound-constrained optimization via quadratic models"},
	{GN_ISRES, ZeroOrder, true, "ISRES evolutionary constrained optimization"},
	{AUGLAG, Meta, false, "Augmented Lagrangian method (needs sub-algorithm)"},
	{AUGLAG_EQ, Meta, false, "Augmented Lagrangian method for equality constraints (needs sub-algorithm)"},
	{G_MLSL, Meta, true, "Multi-level single-linkage (MLSL), random (needs sub-algorithm)"},
	{G_MLSL_LDS, Meta, true, "Multi-level single-linkage (MLSL), quasi-random (needs sub-algorithm)"},
	{LD_SLSQP, FirstOrder, false, "Sequential Quadratic Programming (SQP)"},
	{LD_CCSAQ, FirstOrder, false, "CCSA with simple quadratic approximations"},
	{GN_ESCH, ZeroOrder, true, "ESCH evolutionary strategy"},
}

var index = func() map[ID]int {
	m := make(map[ID]int, len(catalog))
	for i, e := range catalog {
		m[e.id] = i
	}
	return m
}()

func (id ID) String() string { return string(id) }

// Known reports whether id is in the catalog.
func (id ID) Known() bool {
	_, ok := index[id]
	return ok
}

// Kind returns the category of id, or 0 when id is unknown.
func (id ID) Kind() Kind {
	if i, ok := index[id]; ok {
		return catalog[i].kind
	}
	return 0
}

// DerivativeFree reports whether id never requests gradients.
func (id ID) DerivativeFree() bool { return id.Kind() == ZeroOrder }

// IsMeta reports whether id requires a local optimizer.
func (id ID) IsMeta() bool { return id.Kind() == Meta }

// IsGlobal reports whether id is a global search method.
func (id ID) IsGlobal() bool {
	if i, ok := index[id]; ok {
		return catalog[i].global
	}
	return false
}

// Describe returns a human readable description of id.
func (id ID) Describe() string {
	if i, ok := index[id]; ok {
		return catalog[i].desc
	}
	return ""
}

// Parse maps a case-insensitive name to an ID. The result is not validated.
func Parse(name string) ID {
	return ID(strings.ToUpper(strings.TrimSpace(name)))
}

// All returns every known identifier in catalog order.
func All() []ID {
	ids := make([]ID, len(catalog))
	for i, e := range catalog {
		ids[i] = e.id
	}
	return ids
}

// Locals returns the identifiers usable as a local optimizer, in catalog order.
func Locals() []ID {
	return filter(func(e entry) bool { return e.kind != Meta })
}

// OfKind returns the identifiers of one category, in catalog order.
func OfKind(k Kind) []ID {
	return filter(func(e entry) bool { return e.kind == k })
}

func filter(keep func(entry) bool) []ID {
	var ids []ID
	for _, e := range catalog {
		if keep(e) {
			ids = append(ids, e.id)
		}
	}
	return ids
}

// InvalidError details a rejected identifier. It is wrapped in an
// *optimization.Error of kind KindInvalidAlgorithm.
type InvalidError struct {
	Name       string
	Local      bool
	Suggestion ID
	Valid      []ID
}

func (e *InvalidError) Error() string {
	role := "algorithm"
	if e.Local {
		role = "local optimizer"
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%q is not a valid %s, did you mean %q?", e.Name, role, e.Suggestion)
	}
	return fmt.Sprintf("%q is not a valid %s, valid choices are: %s", e.Name, role, joinIDs(e.Valid))
}

// MissingLocalError details a meta algorithm configured without a local
// optimizer. It is wrapped in an *optimization.Error of kind
// KindMissingLocalOptimizer.
type MissingLocalError struct {
	Algorithm ID
	Legal     []ID
}

func (e *MissingLocalError) Error() string {
	return fmt.Sprintf("algorithm %s requires a local optimizer, choose one of: %s", e.Algorithm, joinIDs(e.Legal))
}

// Validate checks that id is in the full catalog, or in the non-meta subset
// when local is true.
func Validate(id ID, local bool) error {
	if i, ok := index[id]; ok && (!local || catalog[i].kind != Meta) {
		return nil
	}

	valid := All()
	if local {
		valid = Locals()
	}
	inv := &InvalidError{Name: string(id), Local: local, Valid: valid}
	if s, ok := closest(string(id), valid); ok {
		inv.Suggestion = s
	}
	return optimization.WrapError(inv, optimization.KindInvalidAlgorithm, "validation failed").
		WithComponent("algorithm").
		WithOperation("Validate")
}

// closest returns the first candidate with minimal edit distance to name,
// provided that distance is below suggestionThreshold.
func closest(name string, candidates []ID) (ID, bool) {
	best, bestDist := ID(""), -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, string(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist >= suggestionThreshold {
		return "", false
	}
	return best, true
}

// ValidatePair checks an algorithm together with its optional local
// optimizer. A nil local means none was supplied.
func ValidatePair(alg ID, local *ID) error {
	if local == nil && alg.IsMeta() {
		return optimization.WrapError(
			&MissingLocalError{Algorithm: alg, Legal: Locals()},
			optimization.KindMissingLocalOptimizer, "validation failed",
		).WithComponent("algorithm").WithOperation("ValidatePair")
	}
	if err := Validate(alg, false); err != nil {
		return err
	}
	if local != nil {
		return Validate(*local, true)
	}
	return nil
}

func joinIDs(ids []ID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}
