package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
	"github.com/zonewise-dev/zonewise/pkg/agent/retrieval"
)

// DocumentQuerier answers a question from the planning document store.
type DocumentQuerier interface {
	Query(ctx context.Context, question, category string) (*retrieval.GroundedResponse, error)
}

// DocQueryTool exposes retrieval-grounded document search to the model.
type DocQueryTool struct {
	BaseTool
	querier DocumentQuerier
}

// NewDocQueryTool creates the document query tool.
func NewDocQueryTool(querier DocumentQuerier) *DocQueryTool {
	return &DocQueryTool{
		BaseTool: NewBaseTool("query_documents",
			"Search Milwaukee planning and zoning documents for code text, policies, and guidelines"),
		querier: querier,
	}
}

func (d *DocQueryTool) Declaration() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"question": {Type: "string", Description: "The question to answer from the documents"},
			"category": {Type: "string",
				Description: "Optional document category to narrow the search",
				Enum: []any{"home-building", "vacant-lots", "commercial",
					"overlay-zones", "design-guidelines"}},
		},
		Required: []string{"question"},
	}
}

func (d *DocQueryTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	question := stringArg(args, "question")
	if question == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "question is required", nil)
	}
	category := stringArg(args, "category")

	resp, err := d.querier.Query(ctx, question, category)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success":          true,
		"answer":           resp.Answer,
		"citations":        resp.Citations,
		"confidence":       resp.Confidence,
		"sourceIds":        resp.SourceIDs,
		"processingTimeMs": resp.ProcessingTimeMs,
	}, nil
}

// Succeeded requires an answer with substance.
func (d *DocQueryTool) Succeeded(result map[string]any) bool {
	answer, ok := result["answer"].(string)
	return ok && answer != ""
}
