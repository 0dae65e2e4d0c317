package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
	"github.com/zonewise-dev/zonewise/pkg/agent/llm"
)

// Registry is the fixed name→handler mapping behind the dispatch boundary.
// Nothing escapes Dispatch: handler errors and even panics are folded into
// a failed Result so a single bad tool call can never abort the turn.
type Registry struct {
	tools map[string]Tool
	order []string
	log   logr.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log logr.Logger) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		log:   log,
	}
}

// Register adds a tool. Registering the same name twice is a wiring bug.
func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return apperrors.New(apperrors.ErrCodeAgentConfig,
			fmt.Sprintf("tool %q registered twice", t.Name()), nil)
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Declarations returns the tool schema advertised to the model, in
// registration order.
func (r *Registry) Declarations() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Declaration(),
		})
	}
	return defs
}

// Validate checks that every declared tool name has a registered handler,
// so a wiring gap fails at startup instead of mid-conversation.
func (r *Registry) Validate(declared []llm.ToolDefinition) error {
	for _, def := range declared {
		if _, ok := r.tools[def.Name]; !ok {
			return apperrors.New(apperrors.ErrCodeAgentConfig,
				fmt.Sprintf("declared tool %q has no registered handler", def.Name), nil)
		}
	}
	return nil
}

// Dispatch executes one tool call and returns a normalized Result. It never
// returns an error and never panics past this boundary: an unknown name or
// a failing handler produces a Result with Success=false whose payload tells
// the model what went wrong.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) Result {
	res := Result{
		Name:      call.Name,
		Arguments: call.Arguments,
		Timestamp: time.Now(),
	}

	tool, ok := r.tools[call.Name]
	if !ok {
		r.log.Info("unknown tool requested", "tool", call.Name)
		res.Result = map[string]any{
			"success": false,
			"error":   fmt.Sprintf("unknown tool: %s", call.Name),
		}
		return res
	}

	payload, err := r.call(ctx, tool, call.Arguments)
	if err != nil {
		r.log.Error(err, "tool execution failed", "tool", call.Name)
		res.Result = map[string]any{
			"success": false,
			"error":   err.Error(),
		}
		return res
	}

	res.Result = payload
	res.Success = tool.Succeeded(payload)
	return res
}

func (r *Registry) call(ctx context.Context, tool Tool, args map[string]any) (payload map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperrors.New(apperrors.ErrCodeToolExecution,
				fmt.Sprintf("tool %s panicked: %v", tool.Name(), rec), nil)
		}
	}()
	return tool.Call(ctx, args)
}
