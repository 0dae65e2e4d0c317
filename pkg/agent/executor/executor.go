// Package executor runs the agent loop: model passes, tool dispatch, and
// session status reporting for one conversation turn.
package executor

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
	"github.com/zonewise-dev/zonewise/pkg/agent/invoker"
	"github.com/zonewise-dev/zonewise/pkg/agent/llm"
	"github.com/zonewise-dev/zonewise/pkg/agent/status"
	"github.com/zonewise-dev/zonewise/pkg/agent/tools"
)

// GenericFailureMessage is what end users see on a terminal failure; the
// detailed cause stays in the session status record.
const GenericFailureMessage = "Sorry, the assistant could not complete your request. Please try again."

// ChatRequest is one user turn.
type ChatRequest struct {
	Message   string
	SessionID string
	History   []*llm.Content
}

// ChatResult is the completed turn.
type ChatResult struct {
	Response    string         `json:"response"`
	ToolsUsed   []string       `json:"toolsUsed"`
	ToolResults []tools.Result `json:"toolResults"`
	SessionID   string         `json:"sessionId"`
	ModelUsed   string         `json:"modelUsed,omitempty"`
}

// Generator is the resilient model invocation entry point.
type Generator interface {
	Generate(ctx context.Context, messages []*llm.Content, cfg *llm.GenerateConfig) (*invoker.Result, error)
}

// Agent orchestrates one conversation turn at a time. Turns for distinct
// sessions may run concurrently; the status tracker is the only shared
// state between them.
type Agent struct {
	gen               Generator
	registry          *tools.Registry
	tracker           *status.Tracker
	systemInstruction string
	maxIterations     int
	log               logr.Logger
}

// New creates an Agent. The registry is validated against its own
// declarations so a wiring gap fails here, not mid-conversation.
func New(gen Generator, registry *tools.Registry, tracker *status.Tracker,
	systemInstruction string, maxIterations int, log logr.Logger) (*Agent, error) {
	if err := registry.Validate(registry.Declarations()); err != nil {
		return nil, err
	}
	return &Agent{
		gen:               gen,
		registry:          registry,
		tracker:           tracker,
		systemInstruction: systemInstruction,
		maxIterations:     maxIterations,
		log:               log,
	}, nil
}

// Chat runs one turn to completion. On a terminal failure the session
// status is set to error before the error is returned, so pollers see the
// failure even if the caller drops it.
func (a *Agent) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if req.Message == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "message is required", nil)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	a.tracker.StartSession(sessionID)

	result, err := a.run(ctx, sessionID, req)
	if err != nil {
		a.tracker.ErrorSession(sessionID, err.Error())
		return nil, err
	}

	a.tracker.CompleteSession(sessionID)
	return result, nil
}

func (a *Agent) run(ctx context.Context, sessionID string, req ChatRequest) (*ChatResult, error) {
	messages := make([]*llm.Content, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, llm.NewTextContent(llm.RoleUser, req.Message))

	cfg := &llm.GenerateConfig{
		SystemInstruction: a.systemInstruction,
		Tools:             a.registry.Declarations(),
	}

	var toolsUsed []string
	var toolResults []tools.Result

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		res, err := a.gen.Generate(ctx, messages, cfg)
		if err != nil {
			return nil, err
		}

		messages = append(messages, res.Response.Content)

		if len(res.Response.ToolCalls) == 0 {
			a.tracker.GeneratingResponse(sessionID)
			return &ChatResult{
				Response:    res.Response.Text(),
				ToolsUsed:   toolsUsed,
				ToolResults: toolResults,
				SessionID:   sessionID,
				ModelUsed:   res.ModelUsed,
			}, nil
		}

		// Tool calls run sequentially, in the order requested: later calls
		// may depend on earlier results, and the status tracker assumes at
		// most one tool in flight per session.
		for _, call := range res.Response.ToolCalls {
			a.tracker.StartTool(sessionID, call.Name, call.Arguments)
			toolRes := a.registry.Dispatch(ctx, call)
			a.tracker.CompleteTool(sessionID, call.Name, toolRes.Success)

			messages = append(messages, llm.NewToolResultContent(call.ID, call.Name, toolRes.Result))
			toolResults = append(toolResults, toolRes)
			toolsUsed = appendUnique(toolsUsed, call.Name)

			a.log.V(1).Info("tool dispatched",
				"session", sessionID, "tool", call.Name, "success", toolRes.Success)
		}

		if err := ctx.Err(); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeToolExecution, "turn cancelled", err)
		}
	}

	return nil, apperrors.New(apperrors.ErrCodeMaxToolCalls,
		fmt.Sprintf("no final answer after %d model passes", a.maxIterations), nil)
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
