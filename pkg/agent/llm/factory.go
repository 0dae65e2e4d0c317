package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/zonewise-dev/zonewise/pkg/agent/config"
	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
)

// NewClientForModel creates the client matching a model name. Vendor is
// inferred from the model name prefix, the way the candidate list mixes
// providers in configuration.
func NewClientForModel(ctx context.Context, model string, cfg *config.ModelsConfig) (Client, error) {
	switch {
	case strings.HasPrefix(model, "gemini-"):
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, model, "")

	case strings.HasPrefix(model, "gpt-"):
		return NewOpenAIClient(cfg.OpenAIAPIKey, model)

	case strings.HasPrefix(model, "claude-"):
		return NewAnthropicClient(cfg.AnthropicAPIKey, model)

	default:
		return nil, apperrors.New(apperrors.ErrCodeAgentConfig,
			fmt.Sprintf("unsupported model: %s", model), nil)
	}
}

// NewCandidateClients builds clients for the configured candidate list,
// preserving order.
func NewCandidateClients(ctx context.Context, cfg *config.ModelsConfig) ([]Client, error) {
	clients := make([]Client, 0, len(cfg.Candidates))
	for _, model := range cfg.Candidates {
		client, err := NewClientForModel(ctx, model, cfg)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}
