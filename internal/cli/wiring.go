package cli

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/zonewise-dev/zonewise/pkg/agent/citations"
	"github.com/zonewise-dev/zonewise/pkg/agent/config"
	"github.com/zonewise-dev/zonewise/pkg/agent/executor"
	"github.com/zonewise-dev/zonewise/pkg/agent/invoker"
	"github.com/zonewise-dev/zonewise/pkg/agent/llm"
	"github.com/zonewise-dev/zonewise/pkg/agent/retrieval"
	"github.com/zonewise-dev/zonewise/pkg/agent/status"
	"github.com/zonewise-dev/zonewise/pkg/agent/tools"
)

// buildAgent wires the full runtime from configuration: model clients,
// invokers, tool registry, and the agent loop.
func buildAgent(ctx context.Context, cfg *config.Config, log logr.Logger) (*executor.Agent, *status.Tracker, error) {
	clients, err := llm.NewCandidateClients(ctx, &cfg.Models)
	if err != nil {
		return nil, nil, err
	}
	inv := invoker.New(clients, cfg.Models.MaxRetries, cfg.Models.BaseDelay,
		log.WithName("invoker"))

	grounded, err := llm.NewGeminiClient(ctx, cfg.Models.GeminiAPIKey,
		cfg.Retrieval.Model, cfg.Retrieval.StoreName)
	if err != nil {
		return nil, nil, err
	}
	groundedInv := invoker.NewGrounded(grounded, cfg.Retrieval.MaxRetries,
		cfg.Retrieval.BaseDelay, cfg.Retrieval.Timeout, log.WithName("retrieval"))

	docs := retrieval.NewService(groundedInv,
		citations.NewExtractor(cfg.Retrieval.StoreName), log.WithName("retrieval"))

	registry := tools.NewRegistry(log.WithName("tools"))
	for _, t := range []tools.Tool{
		tools.NewGeocodeTool(cfg.Geocoder.BaseURL, cfg.Geocoder.Timeout),
		tools.NewZoningTool(cfg.GIS.BaseURL, cfg.GIS.Timeout),
		tools.NewParkingTool(),
		tools.NewDocQueryTool(docs),
	} {
		if err := registry.Register(t); err != nil {
			return nil, nil, err
		}
	}

	tracker := status.NewTracker(log.WithName("status"))

	agent, err := executor.New(inv, registry, tracker,
		cfg.Agent.SystemInstruction, cfg.Agent.MaxIterations, log.WithName("agent"))
	if err != nil {
		return nil, nil, err
	}
	return agent, tracker, nil
}
