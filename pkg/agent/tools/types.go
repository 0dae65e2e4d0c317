// Package tools implements the zoning assistant's tool handlers and the
// dispatch boundary between the model and external collaborators.
package tools

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool is one callable handler exposed to the model.
type Tool interface {
	Name() string
	Description() string
	// Declaration is the argument schema advertised to the model.
	Declaration() *jsonschema.Schema
	// Call executes the handler. A returned error means the handler itself
	// failed; a logical miss (address not found, no zoning at point) is a
	// successful call whose result says so.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
	// Succeeded inspects a result's shape for logical success, which is
	// stricter than "did not error".
	Succeeded(result map[string]any) bool
}

// BaseTool provides the name/description boilerplate.
type BaseTool struct {
	name        string
	description string
}

// NewBaseTool creates a new BaseTool
func NewBaseTool(name, description string) BaseTool {
	return BaseTool{name: name, description: description}
}

// Name returns the tool name
func (b *BaseTool) Name() string {
	return b.name
}

// Description returns the tool description
func (b *BaseTool) Description() string {
	return b.description
}

// Result is the normalized outcome of one dispatched tool call. It is
// appended both to the message history (for the model) and to the turn's
// result list (for the caller); the two views must agree.
type Result struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    map[string]any `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
