package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonewise-dev/zonewise/pkg/agent/citations"
	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
	"github.com/zonewise-dev/zonewise/pkg/agent/llm"
)

type fakeGenerator struct {
	resp     *llm.Response
	err      error
	lastSeen string
}

func (f *fakeGenerator) Generate(_ context.Context, question string) (*llm.Response, error) {
	f.lastSeen = question
	return f.resp, f.err
}

func newService(gen Generator) *Service {
	return NewService(gen, citations.NewExtractor("planning-documents"), logr.Discard())
}

func TestQuery_ExtractsCitations(t *testing.T) {
	gen := &fakeGenerator{resp: &llm.Response{
		Content: llm.NewTextContent(llm.RoleModel, "Restaurants in LB2 need one space per 300 sq ft."),
		Grounding: &llm.GroundingMetadata{
			Chunks: []llm.GroundingChunk{
				{Text: "Parking ratios per section 295-403-2 set restaurant requirements."},
			},
			Supports: []llm.GroundingSupport{{Confidence: []float64{0.9, 0.7}}},
		},
	}}

	got, err := newService(gen).Query(context.Background(), "restaurant parking in LB2?", "")
	require.NoError(t, err)
	assert.Equal(t, "Restaurants in LB2 need one space per 300 sq ft.", got.Answer)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "zoning-code-parking", got.Citations[0].SourceID)
	assert.Equal(t, []string{"zoning-code-parking"}, got.SourceIDs)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
}

func TestQuery_CategoryPrefixesPromptAndGuaranteesCitation(t *testing.T) {
	gen := &fakeGenerator{resp: &llm.Response{
		Content: llm.NewTextContent(llm.RoleModel, "No specific guidance found."),
	}}

	got, err := newService(gen).Query(context.Background(), "setback rules?", "design-guidelines")
	require.NoError(t, err)
	assert.Contains(t, gen.lastSeen, "[Document category: design-guidelines]")
	require.Len(t, got.Citations, 1)
	assert.True(t, got.Citations[0].Synthetic)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
}

func TestQuery_GeneratorFailureIsTyped(t *testing.T) {
	inner := apperrors.New(apperrors.ErrCodeModelTimeout, "grounded query exceeded wall-clock timeout", errors.New("deadline"))
	gen := &fakeGenerator{err: inner}

	_, err := newService(gen).Query(context.Background(), "q", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeRetrievalFailed))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeModelTimeout), "inner cause must stay detectable")
}
