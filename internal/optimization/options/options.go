// Package options implements the nested, ordered option sets used to
// configure an optimizer and its subordinate local optimizer.
package options

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Recognized option names.
const (
	FtolRel       = "ftol_rel"
	FtolAbs       = "ftol_abs"
	XtolRel       = "xtol_rel"
	XtolAbs       = "xtol_abs"
	MaxEval       = "maxeval"
	MaxTime       = "maxtime"
	StopVal       = "stopval"
	Population    = "population"
	VectorStorage = "vector_storage"
	InitialStep   = "initial_step"

	// Suboptions is the distinguished key holding the nested Set applied to
	// the local optimizer only.
	Suboptions = "suboptions"
)

// Entry is one named scalar option.
type Entry struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Set is an immutable ordered mapping from option name to value, with an
// optional nested Set for a local optimizer. The zero value is an empty Set.
// Every method returning a Set returns a new one.
type Set struct {
	entries []Entry
	sub     *Set
}

// defaultEntries are the tolerances every Set starts from. A non-positive
// tolerance leaves the engine's own stopping rule in place.
var defaultEntries = []Entry{
	{Name: FtolRel, Value: 0},
	{Name: FtolAbs, Value: 0},
	{Name: XtolRel, Value: 0},
	{Name: XtolAbs, Value: 0},
}

// Defaults returns a Set holding only the default tolerances.
func Defaults() *Set {
	return &Set{entries: append([]Entry(nil), defaultEntries...)}
}

// Of builds a Set from entries. A repeated name keeps its first position and
// its last value. Names are not validated here; see problem.ValidateOptions.
func Of(entries ...Entry) *Set {
	s := &Set{}
	for _, e := range entries {
		s.put(e.Name, e.Value)
	}
	return s
}

// New merges overrides over the defaults. A nil overrides yields Defaults().
func New(overrides *Set) *Set {
	return Defaults().Merge(overrides)
}

// FromMap builds a Set from unordered maps, as decoded from JSON or flags.
// Keys not among the defaults are appended in sorted order so the result is
// deterministic. A non-nil sub becomes the nested Set, itself merged over the
// defaults.
func FromMap(top map[string]float64, sub map[string]float64) *Set {
	s := New(OfMap(top))
	if sub != nil {
		s.sub = New(OfMap(sub))
	}
	return s
}

// OfMap builds a Set from m with entries in sorted name order.
func OfMap(m map[string]float64) *Set {
	return Of(sortedEntries(m)...)
}

func sortedEntries(m map[string]float64) []Entry {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	entries := make([]Entry, len(names))
	for i, n := range names {
		entries[i] = Entry{Name: n, Value: m[n]}
	}
	return entries
}

func (s *Set) put(name string, value float64) {
	for i := range s.entries {
		if s.entries[i].Name == name {
			s.entries[i].Value = value
			return
		}
	}
	s.entries = append(s.entries, Entry{Name: name, Value: value})
}

func (s *Set) clone() *Set {
	if s == nil {
		return &Set{}
	}
	return &Set{entries: append([]Entry(nil), s.entries...), sub: s.sub}
}

// Merge returns a new Set with the entries of overrides layered over s.
// The nested Set of overrides, when present, replaces the one of s.
func (s *Set) Merge(overrides *Set) *Set {
	out := s.clone()
	if overrides == nil {
		return out
	}
	for _, e := range overrides.entries {
		out.put(e.Name, e.Value)
	}
	if overrides.sub != nil {
		out.sub = overrides.sub
	}
	return out
}

// With returns a copy of s with name set to value.
func (s *Set) With(name string, value float64) *Set {
	out := s.clone()
	out.put(name, value)
	return out
}

// WithSuboptions returns a copy of s carrying sub as its nested Set.
func (s *Set) WithSuboptions(sub *Set) *Set {
	out := s.clone()
	out.sub = sub
	return out
}

// Get returns the value of name.
func (s *Set) Get(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	for _, e := range s.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

// Entries returns the scalar entries in order. The nested Set is not included.
func (s *Set) Entries() []Entry {
	if s == nil {
		return nil
	}
	return append([]Entry(nil), s.entries...)
}

// Names returns the entry names in order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of scalar entries.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Suboptions returns the nested Set, or nil.
func (s *Set) Suboptions() *Set {
	if s == nil {
		return nil
	}
	return s.sub
}

// HasSuboptions reports whether a nested Set is present.
func (s *Set) HasSuboptions() bool { return s.Suboptions() != nil }

func (s *Set) String() string {
	if s == nil {
		return "{}"
	}
	parts := make([]string, 0, len(s.entries)+1)
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s=%g", e.Name, e.Value))
	}
	if s.sub != nil {
		parts = append(parts, Suboptions+"="+s.sub.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the Set as an object. Go maps do not keep order, so
// the encoding is ordered by encoding/json's key sort.
func (s *Set) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, s.Len()+1)
	for _, e := range s.Entries() {
		m[e.Name] = e.Value
	}
	if sub := s.Suboptions(); sub != nil {
		m[Suboptions] = sub
	}
	return json.Marshal(m)
}
