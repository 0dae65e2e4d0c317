// Package retrieval answers document questions against the indexed planning
// corpus and attributes the answer to its sources.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/zonewise-dev/zonewise/pkg/agent/citations"
	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
	"github.com/zonewise-dev/zonewise/pkg/agent/llm"
)

// GroundedResponse is one retrieval-backed answer. Immutable after creation.
type GroundedResponse struct {
	Answer           string               `json:"answer"`
	Citations        []citations.Citation `json:"citations"`
	Confidence       float64              `json:"confidence"`
	SourceIDs        []string             `json:"sourceIds"`
	ProcessingTimeMs int64                `json:"processingTimeMs"`
}

// Generator runs one grounded model query.
type Generator interface {
	Generate(ctx context.Context, question string) (*llm.Response, error)
}

// Service queries the document store via a grounded model invocation and
// extracts citations from the grounding metadata.
type Service struct {
	gen       Generator
	extractor *citations.Extractor
	log       logr.Logger
}

// NewService creates a retrieval Service.
func NewService(gen Generator, extractor *citations.Extractor, log logr.Logger) *Service {
	return &Service{gen: gen, extractor: extractor, log: log}
}

// Query answers a question from the document store. A non-empty category
// narrows the search and guarantees at least one (possibly synthetic)
// citation in the result.
func (s *Service) Query(ctx context.Context, question, category string) (*GroundedResponse, error) {
	start := time.Now()

	prompt := question
	if category != "" {
		prompt = fmt.Sprintf("[Document category: %s] %s", category, question)
	}

	resp, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeRetrievalFailed, "document query failed", err)
	}

	cites := s.extractor.Extract(resp.Grounding, category)
	sourceIDs := make([]string, 0, len(cites))
	for _, c := range cites {
		sourceIDs = append(sourceIDs, c.SourceID)
	}

	result := &GroundedResponse{
		Answer:           resp.Text(),
		Citations:        cites,
		Confidence:       s.extractor.Confidence(resp.Grounding),
		SourceIDs:        sourceIDs,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}

	s.log.V(1).Info("document query answered",
		"category", category, "citations", len(cites), "confidence", result.Confidence)
	return result, nil
}
