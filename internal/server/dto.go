package server

import (
	"math"
	"time"

	apierrors "github.com/copyleftdev/nlpbridge/internal/errors"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
	"github.com/copyleftdev/nlpbridge/internal/optimization/solver"
)

// SolveRequest asks for a named test problem to be solved.
type SolveRequest struct {
	Problem    string             `json:"problem"`
	Dim        int                `json:"dim,omitempty"`
	Algorithm  string             `json:"algorithm"`
	Local      string             `json:"local,omitempty"`
	Options    map[string]float64 `json:"options,omitempty"`
	Suboptions map[string]float64 `json:"suboptions,omitempty"`
	Initial    []float64          `json:"initial,omitempty"`
	// Wait blocks the call until the job has finished.
	Wait bool `json:"wait,omitempty"`
}

// ValidateRequest names an algorithm and an optional local optimizer.
type ValidateRequest struct {
	Algorithm string `json:"algorithm"`
	Local     string `json:"local,omitempty"`
}

// ValidateResponse reports whether a configuration is usable.
type ValidateResponse struct {
	Valid          bool            `json:"valid"`
	Config         string          `json:"config,omitempty"`
	DerivativeFree bool            `json:"derivative_free,omitempty"`
	Supported      bool            `json:"supported"`
	Error          *apierrors.Body `json:"error,omitempty"`
}

// JobRef identifies a job in status and cancel calls.
type JobRef struct {
	ID string `json:"id"`
}

// AlgorithmView describes one catalog entry.
type AlgorithmView struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Description    string `json:"description"`
	DerivativeFree bool   `json:"derivative_free"`
	Global         bool   `json:"global"`
	Meta           bool   `json:"meta"`
	Supported      bool   `json:"supported"`
}

func algorithmView(id algorithm.ID, supported bool) AlgorithmView {
	return AlgorithmView{
		ID:             string(id),
		Kind:           id.Kind().String(),
		Description:    id.Describe(),
		DerivativeFree: id.DerivativeFree(),
		Global:         id.IsGlobal(),
		Meta:           id.IsMeta(),
		Supported:      supported,
	}
}

// ResultView is the JSON form of solver.Result. Minimum is null when the
// engine failed without a value.
type ResultView struct {
	Minimizer   []float64    `json:"minimizer"`
	Minimum     *float64     `json:"minimum"`
	Status      string       `json:"status"`
	Success     bool         `json:"success"`
	Algorithm   string       `json:"algorithm"`
	Options     *options.Set `json:"options"`
	Evaluations int          `json:"evaluations"`
	CacheHits   int          `json:"cache_hits"`
	RuntimeMS   float64      `json:"runtime_ms"`
}

func NewResultView(r *solver.Result) *ResultView {
	v := &ResultView{
		Minimizer:   r.Minimizer,
		Status:      r.Status.String(),
		Success:     r.Success(),
		Algorithm:   r.Algorithm.String(),
		Options:     r.Options,
		Evaluations: r.Evaluations,
		CacheHits:   r.CacheHits,
		RuntimeMS:   float64(r.Runtime.Microseconds()) / 1000.0,
	}
	if !math.IsNaN(r.Minimum) && !math.IsInf(r.Minimum, 0) {
		m := r.Minimum
		v.Minimum = &m
	}
	return v
}

// JobView is a point-in-time copy of a Job.
type JobView struct {
	ID        string          `json:"id"`
	State     JobState        `json:"state"`
	Problem   string          `json:"problem"`
	Algorithm string          `json:"algorithm"`
	Created   time.Time       `json:"created"`
	Started   *time.Time      `json:"started,omitempty"`
	Finished  *time.Time      `json:"finished,omitempty"`
	Result    *ResultView     `json:"result,omitempty"`
	Error     *apierrors.Body `json:"error,omitempty"`
}
