// Package server exposes the solver over REST and JSON-RPC 2.0. Requests
// name one of the built-in test problems; each solve runs as a job with its
// own workspace.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/copyleftdev/nlpbridge/internal/config"
	apierrors "github.com/copyleftdev/nlpbridge/internal/errors"
	"github.com/copyleftdev/nlpbridge/internal/logging"
	"github.com/copyleftdev/nlpbridge/internal/metrics"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
	"github.com/copyleftdev/nlpbridge/internal/optimization/diff"
	"github.com/copyleftdev/nlpbridge/internal/optimization/engine"
	"github.com/copyleftdev/nlpbridge/internal/optimization/options"
	"github.com/copyleftdev/nlpbridge/internal/optimization/solver"
	"github.com/copyleftdev/nlpbridge/internal/optimization/testproblems"
)

// Server implements the HTTP and JSON-RPC server for the solver.
type Server struct {
	cfg      *config.Config
	engine   engine.Engine
	defaults *options.Set
	logger   *zap.Logger
	metrics  *metrics.Metrics
	jobs     *JobManager
}

// NewServer creates a server solving with eng. logger and m may be nil.
func NewServer(cfg *config.Config, eng engine.Engine, logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	jobs := NewJobManager(cfg.Solver.MaxJobs, logger, m)
	jobs.SetRetention(cfg.Solver.JobRetention, cfg.Solver.KeptJobs)
	return &Server{
		cfg:      cfg,
		engine:   eng,
		defaults: cfg.DefaultOptions(),
		logger:   logger.Named("server"),
		metrics:  m,
		jobs:     jobs,
	}
}

// Router builds the full handler: middleware, /healthz, /metrics from
// gatherer, and the API routes.
func (s *Server) Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.logger))
	r.Use(apierrors.RecoveryMiddleware(s.logger))
	r.Use(apierrors.ErrorHandler(s.logger))
	if s.cfg.HTTP.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.HTTP.RequestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/algorithms", s.handleAlgorithms)
		r.Post("/algorithms/validate", s.handleValidate)
		r.Get("/problems", s.handleProblems)
		r.Post("/solve", s.handleSolve)
		r.Get("/jobs", s.handleJobs)
		r.Get("/jobs/{id}", s.handleJob)
		r.Delete("/jobs/{id}", s.handleCancel)
	})

	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels running jobs and waits for them.
func (s *Server) Close() error {
	return s.jobs.Close()
}

func (s *Server) algorithms() []AlgorithmView {
	ids := algorithm.All()
	views := make([]AlgorithmView, len(ids))
	for i, id := range ids {
		views[i] = algorithmView(id, s.engine.Supports(id))
	}
	return views
}

func (s *Server) validate(req ValidateRequest) ValidateResponse {
	cfg, err := algorithm.NewConfig(algorithm.Parse(req.Algorithm), algorithm.Parse(req.Local))
	if err != nil {
		body := apierrors.Describe(err)
		return ValidateResponse{Error: &body}
	}
	return ValidateResponse{
		Valid:          true,
		Config:         cfg.String(),
		DerivativeFree: algorithm.DerivativeFree(cfg),
		Supported:      s.engine.Supports(cfg.Top()) && s.engine.Supports(cfg.Concrete()),
	}
}

// workspace turns req into a ready Workspace. Every configuration error is
// reported here.
func (s *Server) workspace(req SolveRequest) (*solver.Workspace, error) {
	if req.Problem == "" {
		return nil, apierrors.BadRequest("problem is required")
	}
	if req.Algorithm == "" {
		return nil, apierrors.BadRequest("algorithm is required")
	}

	m, err := testproblems.Model(req.Problem, req.Dim)
	if err != nil {
		return nil, err
	}
	if req.Initial != nil {
		if len(req.Initial) != len(m.Initial) {
			return nil, apierrors.BadRequest("initial point has length %d, problem %s has dimension %d",
				len(req.Initial), req.Problem, len(m.Initial))
		}
		m.Initial = append([]float64(nil), req.Initial...)
	}

	cfg, err := algorithm.NewConfig(algorithm.Parse(req.Algorithm), algorithm.Parse(req.Local))
	if err != nil {
		return nil, err
	}

	opts := s.defaults.Merge(options.OfMap(req.Options))
	if req.Suboptions != nil {
		opts = opts.WithSuboptions(options.New(options.OfMap(req.Suboptions)))
	}

	return solver.NewWorkspace(m, cfg, opts,
		solver.WithEngine(s.engine),
		solver.WithDiff(diff.NewReverse(s.cfg.Solver.FDStep)),
		solver.WithLogger(s.logger),
		solver.WithMetrics(s.metrics),
	)
}

// solve starts a job for req and, when req.Wait is set, waits for it.
func (s *Server) solve(ctx context.Context, req SolveRequest) (JobView, error) {
	ws, err := s.workspace(req)
	if err != nil {
		return JobView{}, err
	}
	job, err := s.jobs.Start(req.Problem, ws)
	if err != nil || !req.Wait {
		return job, err
	}
	return s.jobs.Wait(ctx, job.ID)
}

func (s *Server) handleAlgorithms(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.algorithms())
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decode(r, &req); err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.validate(req))
}

func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	names := testproblems.Names()
	cases := make([]testproblems.Case, 0, len(names))
	for _, name := range names {
		c, err := testproblems.Get(name, 0)
		if err != nil {
			apierrors.WriteJSON(w, err)
			return
		}
		cases = append(cases, c)
	}
	respondJSON(w, http.StatusOK, cases)
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := decode(r, &req); err != nil {
		apierrors.WriteJSON(w, err)
		return
	}

	job, err := s.solve(r.Context(), req)
	if err != nil {
		logging.FromContext(r.Context()).Info("solve rejected", zap.Error(err))
		apierrors.WriteJSON(w, err)
		return
	}

	status := http.StatusAccepted
	if job.State.Terminal() {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	respondJSON(w, status, job)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.jobs.List())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierrors.BadRequest("invalid request body: %v", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		apierrors.WriteJSON(w, fmt.Errorf("encode response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
