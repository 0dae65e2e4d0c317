package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
	"github.com/zonewise-dev/zonewise/pkg/agent/invoker"
	"github.com/zonewise-dev/zonewise/pkg/agent/llm"
	"github.com/zonewise-dev/zonewise/pkg/agent/status"
	"github.com/zonewise-dev/zonewise/pkg/agent/tools"
)

// scriptedGenerator returns canned model responses in order and records the
// message history it was handed on each pass.
type scriptedGenerator struct {
	responses []*llm.Response
	err       error
	histories [][]*llm.Content
}

func (g *scriptedGenerator) Generate(_ context.Context, messages []*llm.Content, _ *llm.GenerateConfig) (*invoker.Result, error) {
	g.histories = append(g.histories, append([]*llm.Content(nil), messages...))
	if g.err != nil {
		return nil, g.err
	}
	i := len(g.histories) - 1
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return &invoker.Result{Response: g.responses[i], ModelUsed: "gemini-2.5-flash"}, nil
}

// fakeTool lets tests observe tracker state at call time.
type fakeTool struct {
	tools.BaseTool
	result    map[string]any
	err       error
	onCall    func()
	succeeded func(map[string]any) bool
}

func (f *fakeTool) Declaration() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

func (f *fakeTool) Call(_ context.Context, _ map[string]any) (map[string]any, error) {
	if f.onCall != nil {
		f.onCall()
	}
	return f.result, f.err
}

func (f *fakeTool) Succeeded(result map[string]any) bool {
	if f.succeeded != nil {
		return f.succeeded(result)
	}
	ok, _ := result["success"].(bool)
	return ok
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: llm.NewTextContent(llm.RoleModel, text)}
}

func toolCallResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{
		Content:   llm.NewToolCallContent(calls),
		ToolCalls: calls,
	}
}

func newAgent(t *testing.T, gen Generator, tracker *status.Tracker, toolList ...tools.Tool) *Agent {
	t.Helper()
	registry := tools.NewRegistry(logr.Discard())
	for _, tl := range toolList {
		require.NoError(t, registry.Register(tl))
	}
	agent, err := New(gen, registry, tracker, "You are a zoning assistant.", 5, logr.Discard())
	require.NoError(t, err)
	return agent
}

func TestChat_NoToolCalls(t *testing.T) {
	gen := &scriptedGenerator{responses: []*llm.Response{textResponse("RS5 allows single-family homes.")}}
	tracker := status.NewTracker(logr.Discard())

	got, err := newAgent(t, gen, tracker).Chat(context.Background(), ChatRequest{Message: "what is RS5?"})
	require.NoError(t, err)

	assert.Equal(t, "RS5 allows single-family homes.", got.Response)
	assert.Empty(t, got.ToolsUsed)
	assert.Empty(t, got.ToolResults)
	assert.NotEmpty(t, got.SessionID, "a session id is minted when none is supplied")

	s, ok := tracker.Get(got.SessionID)
	require.True(t, ok)
	assert.Equal(t, status.StateComplete, s.Status)
	assert.Empty(t, s.ToolsCompleted)
}

func TestChat_OneToolCallThenAnswer(t *testing.T) {
	gen := &scriptedGenerator{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{ID: "call_1", Name: "geocode_address",
			Arguments: map[string]any{"address": "809 N Broadway"}}),
		textResponse("That address is zoned C9A."),
	}}
	tracker := status.NewTracker(logr.Discard())

	var duringCall status.SessionStatus
	geocode := &fakeTool{
		BaseTool: tools.NewBaseTool("geocode_address", "geocode"),
		result:   map[string]any{"success": true, "coordinates": map[string]any{"lng": -87.9, "lat": 43.0}},
		succeeded: func(r map[string]any) bool {
			_, ok := r["coordinates"]
			return ok
		},
	}

	agent := newAgent(t, gen, tracker, geocode)
	geocode.onCall = func() {
		duringCall, _ = tracker.Get("s1")
	}

	got, err := agent.Chat(context.Background(), ChatRequest{Message: "zoning at 809 N Broadway?", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, "That address is zoned C9A.", got.Response)
	assert.Equal(t, []string{"geocode_address"}, got.ToolsUsed)
	require.Len(t, got.ToolResults, 1)
	assert.True(t, got.ToolResults[0].Success)
	assert.Equal(t, "s1", got.SessionID)

	assert.Equal(t, status.StateExecutingTool, duringCall.Status)
	assert.Equal(t, "geocode_address", duringCall.CurrentTool)

	s, _ := tracker.Get("s1")
	assert.Equal(t, status.StateComplete, s.Status)
	require.Len(t, s.ToolsCompleted, 1)
	assert.True(t, s.ToolsCompleted[0].Success)
}

func TestChat_ToolFailureDoesNotAbortTurn(t *testing.T) {
	gen := &scriptedGenerator{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{ID: "call_1", Name: "geocode_address",
			Arguments: map[string]any{"address": "809 N Broadway"}}),
		textResponse("I could not resolve that address; can you double-check it?"),
	}}
	tracker := status.NewTracker(logr.Discard())

	geocode := &fakeTool{
		BaseTool: tools.NewBaseTool("geocode_address", "geocode"),
		err:      errors.New("dial tcp: connection refused"),
	}

	got, err := newAgent(t, gen, tracker, geocode).Chat(context.Background(),
		ChatRequest{Message: "zoning at 809 N Broadway?", SessionID: "s1"})
	require.NoError(t, err, "a tool failure must never abort the turn")

	require.Len(t, got.ToolResults, 1)
	assert.False(t, got.ToolResults[0].Success)
	assert.Contains(t, got.ToolResults[0].Result["error"], "connection refused")

	s, _ := tracker.Get("s1")
	assert.Equal(t, status.StateComplete, s.Status, "status never enters error from a tool failure alone")
	require.Len(t, s.ToolsCompleted, 1)
	assert.False(t, s.ToolsCompleted[0].Success)
}

func TestChat_MaxIterationsExceeded(t *testing.T) {
	// The model asks for a tool on every pass and never produces an answer.
	gen := &scriptedGenerator{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{ID: "call_1", Name: "lookup_zoning",
			Arguments: map[string]any{"lng": -87.9, "lat": 43.0}}),
	}}
	tracker := status.NewTracker(logr.Discard())

	zoning := &fakeTool{
		BaseTool: tools.NewBaseTool("lookup_zoning", "zoning"),
		result:   map[string]any{"success": true, "zoningDistrict": "C9A"},
	}

	_, err := newAgent(t, gen, tracker, zoning).Chat(context.Background(),
		ChatRequest{Message: "loop forever", SessionID: "s1"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeMaxToolCalls))
	assert.Len(t, gen.histories, 5, "exactly maxIterations model passes")

	s, _ := tracker.Get("s1")
	assert.Equal(t, status.StateError, s.Status)
	assert.NotEmpty(t, s.Error)
}

func TestChat_InvokerFailureRecordsStatusBeforeReturning(t *testing.T) {
	gen := &scriptedGenerator{err: apperrors.New(apperrors.ErrCodeModelExhausted, "all candidate models exhausted", nil)}
	tracker := status.NewTracker(logr.Discard())

	_, err := newAgent(t, gen, tracker).Chat(context.Background(),
		ChatRequest{Message: "hi", SessionID: "s1"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeModelExhausted))

	s, ok := tracker.Get("s1")
	require.True(t, ok)
	assert.Equal(t, status.StateError, s.Status)
	assert.Contains(t, s.Error, "all candidate models exhausted")
}

func TestChat_HistoryOrdering(t *testing.T) {
	gen := &scriptedGenerator{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{ID: "call_1", Name: "lookup_zoning",
			Arguments: map[string]any{"lng": -87.9, "lat": 43.0}}),
		textResponse("Zoned C9A."),
	}}
	tracker := status.NewTracker(logr.Discard())

	zoning := &fakeTool{
		BaseTool: tools.NewBaseTool("lookup_zoning", "zoning"),
		result:   map[string]any{"success": true, "zoningDistrict": "C9A"},
	}

	prior := []*llm.Content{
		llm.NewTextContent(llm.RoleUser, "earlier question"),
		llm.NewTextContent(llm.RoleModel, "earlier answer"),
	}

	_, err := newAgent(t, gen, tracker, zoning).Chat(context.Background(),
		ChatRequest{Message: "and the zoning?", SessionID: "s1", History: prior})
	require.NoError(t, err)

	// Second pass must see: prior turns, user message, model tool-call
	// message, tool-result message — in that order.
	require.Len(t, gen.histories, 2)
	final := gen.histories[1]
	require.Len(t, final, 5)
	assert.Equal(t, "earlier question", final[0].Parts[0].Text)
	assert.Equal(t, "earlier answer", final[1].Parts[0].Text)
	assert.Equal(t, "and the zoning?", final[2].Parts[0].Text)
	require.NotNil(t, final[3].Parts[0].FunctionCall)
	require.NotNil(t, final[4].Parts[0].FunctionResponse)
	assert.Equal(t, "lookup_zoning", final[4].Parts[0].FunctionResponse.Name)
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	agent := newAgent(t, &scriptedGenerator{}, status.NewTracker(logr.Discard()))
	_, err := agent.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
}

func TestChat_MultipleToolCallsRunInOrder(t *testing.T) {
	gen := &scriptedGenerator{responses: []*llm.Response{
		toolCallResponse(
			llm.ToolCall{ID: "call_1", Name: "geocode_address", Arguments: map[string]any{"address": "a"}},
			llm.ToolCall{ID: "call_2", Name: "lookup_zoning", Arguments: map[string]any{"lng": 0.0, "lat": 0.0}},
		),
		textResponse("done"),
	}}
	tracker := status.NewTracker(logr.Discard())

	var order []string
	mkTool := func(name string) *fakeTool {
		return &fakeTool{
			BaseTool: tools.NewBaseTool(name, name),
			result:   map[string]any{"success": true},
			onCall:   func() { order = append(order, name) },
		}
	}

	got, err := newAgent(t, gen, tracker, mkTool("geocode_address"), mkTool("lookup_zoning")).
		Chat(context.Background(), ChatRequest{Message: "q", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"geocode_address", "lookup_zoning"}, order)
	assert.Equal(t, []string{"geocode_address", "lookup_zoning"}, got.ToolsUsed)

	s, _ := tracker.Get("s1")
	require.Len(t, s.ToolsCompleted, 2)
	assert.Equal(t, "geocode_address", s.ToolsCompleted[0].Name)
	assert.Equal(t, "lookup_zoning", s.ToolsCompleted[1].Name)
}
