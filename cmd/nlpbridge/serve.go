package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/nlpbridge/internal/metrics"
	"github.com/copyleftdev/nlpbridge/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST and JSON-RPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				a.cfg.HTTP.Port = port
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Listen port; overrides HTTP_PORT")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	eng, err := a.engine("")
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	srv := server.NewServer(a.cfg, eng, a.logger, m)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.HTTP.Port),
		Handler:      srv.Router(prometheus.DefaultGatherer),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server",
			zap.String("address", httpServer.Addr),
			zap.String("engine", eng.Name()),
			zap.Int("max_jobs", a.cfg.Solver.MaxJobs),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", zap.Error(err))
		_ = srv.Close()
		return err
	}
	if err := srv.Close(); err != nil {
		a.logger.Error("error closing server resources", zap.Error(err))
	}

	a.logger.Info("server exited properly")
	return nil
}
