package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/zonewise-dev/zonewise/internal/server"
	"github.com/zonewise-dev/zonewise/pkg/agent/config"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Start the zoning assistant HTTP service.

Endpoints:
  POST /api/chat                  run one conversation turn
  GET  /api/sessions/{id}/status  poll live turn progress
  GET  /health                    liveness probe
  GET  /info                      build and model information
  GET  /metrics                   Prometheus metrics`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to configuration file (YAML)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logr.FromContextOrDiscard(ctx)

	agent, tracker, err := buildAgent(ctx, cfg, log)
	if err != nil {
		return err
	}

	srv := server.New(cfg, agent, tracker, log.WithName("http"))
	httpServer := srv.Build()

	go srv.RunSweeper(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
