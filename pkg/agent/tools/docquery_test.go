package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonewise-dev/zonewise/pkg/agent/citations"
	"github.com/zonewise-dev/zonewise/pkg/agent/retrieval"
)

type fakeQuerier struct {
	resp         *retrieval.GroundedResponse
	err          error
	lastQuestion string
	lastCategory string
}

func (f *fakeQuerier) Query(_ context.Context, question, category string) (*retrieval.GroundedResponse, error) {
	f.lastQuestion = question
	f.lastCategory = category
	return f.resp, f.err
}

func TestDocQuery_ReturnsGroundedAnswer(t *testing.T) {
	q := &fakeQuerier{resp: &retrieval.GroundedResponse{
		Answer:     "Accessory structures need a 3 ft setback.",
		Citations:  []citations.Citation{{SourceID: "zoning-code-residential"}},
		Confidence: 0.8,
		SourceIDs:  []string{"zoning-code-residential"},
	}}

	tool := NewDocQueryTool(q)
	got, err := tool.Call(context.Background(), map[string]any{
		"question": "what setback applies to a garage?",
		"category": "home-building",
	})
	require.NoError(t, err)

	assert.Equal(t, "home-building", q.lastCategory)
	assert.Equal(t, true, got["success"])
	assert.Equal(t, "Accessory structures need a 3 ft setback.", got["answer"])
	assert.Equal(t, 0.8, got["confidence"])
	assert.True(t, tool.Succeeded(got))
}

func TestDocQuery_QuerierErrorPropagates(t *testing.T) {
	q := &fakeQuerier{err: errors.New("store unavailable")}

	tool := NewDocQueryTool(q)
	_, err := tool.Call(context.Background(), map[string]any{"question": "anything"})
	assert.Error(t, err)
}

func TestDocQuery_MissingQuestion(t *testing.T) {
	tool := NewDocQueryTool(&fakeQuerier{})
	_, err := tool.Call(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestDocQuery_EmptyAnswerIsNotSuccess(t *testing.T) {
	tool := NewDocQueryTool(&fakeQuerier{})
	assert.False(t, tool.Succeeded(map[string]any{"success": true, "answer": ""}))
}
