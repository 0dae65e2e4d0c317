package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Roles used in the running message history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Client defines the interface for LLM clients
type Client interface {
	// Generate sends the message history and receives a response
	Generate(ctx context.Context, messages []*Content, config *GenerateConfig) (*Response, error)

	// ModelName returns the name of the model being used
	ModelName() string
}

// GroundedClient is a Client that can answer retrieval-grounded queries
// against an indexed document store.
type GroundedClient interface {
	Client

	// GenerateGrounded asks a question grounded on the named document store
	// and returns a response annotated with grounding metadata.
	GenerateGrounded(ctx context.Context, question string) (*Response, error)
}

// Content is one message in the conversation history
type Content struct {
	Role  string  `json:"role"`
	Parts []*Part `json:"parts"`
}

// Part is a single message part: text, a function call, or a function response.
// Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
}

// FunctionCall is a tool invocation requested by the model
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries a tool result back to the model
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// NewTextContent builds a single-part text message
func NewTextContent(role, text string) *Content {
	return &Content{
		Role:  role,
		Parts: []*Part{{Text: text}},
	}
}

// NewToolCallContent builds the model message echoing requested tool calls
func NewToolCallContent(calls []ToolCall) *Content {
	parts := make([]*Part, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, &Part{
			FunctionCall: &FunctionCall{ID: call.ID, Name: call.Name, Args: call.Arguments},
		})
	}
	return &Content{Role: RoleModel, Parts: parts}
}

// NewToolResultContent builds the user-role message carrying a tool result
func NewToolResultContent(id, name string, result map[string]any) *Content {
	return &Content{
		Role: RoleUser,
		Parts: []*Part{
			{FunctionResponse: &FunctionResponse{ID: id, Name: name, Response: result}},
		},
	}
}

// GenerateConfig contains configuration for a generation request
type GenerateConfig struct {
	SystemInstruction string           `json:"system_instruction,omitempty"`
	Temperature       *float64         `json:"temperature,omitempty"`
	MaxTokens         *int             `json:"max_tokens,omitempty"`
	Tools             []ToolDefinition `json:"tools,omitempty"`
}

// ToolDefinition declares a tool the model may call
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// ToolCall represents a tool call made by the LLM
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Response represents an LLM response
type Response struct {
	Content      *Content           `json:"content"`
	ToolCalls    []ToolCall         `json:"tool_calls,omitempty"`
	FinishReason string             `json:"finish_reason,omitempty"`
	Grounding    *GroundingMetadata `json:"grounding,omitempty"`
	Usage        *Usage             `json:"usage,omitempty"`
}

// Text concatenates all text parts of the response
func (r *Response) Text() string {
	if r == nil || r.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// HasContent reports whether the response carries at least one non-empty
// text part or tool call. A response without either is unusable and the
// invoker treats it as a transient empty result.
func (r *Response) HasContent() bool {
	if r == nil {
		return false
	}
	if len(r.ToolCalls) > 0 {
		return true
	}
	if r.Content == nil {
		return false
	}
	for _, part := range r.Content.Parts {
		if strings.TrimSpace(part.Text) != "" {
			return true
		}
	}
	return false
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// GroundingMetadata is the retrieval evidence attached to a grounded response
type GroundingMetadata struct {
	Chunks   []GroundingChunk   `json:"chunks,omitempty"`
	Supports []GroundingSupport `json:"supports,omitempty"`
}

// GroundingChunk is one retrieved context fragment
type GroundingChunk struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
	Title  string `json:"title,omitempty"`
}

// GroundingSupport links response spans to chunks with confidence scores
type GroundingSupport struct {
	ChunkIndices []int     `json:"chunk_indices,omitempty"`
	Confidence   []float64 `json:"confidence,omitempty"`
}

// ErrorClass partitions model invocation failures for retry decisions
type ErrorClass int

const (
	// ClassTransient covers 5xx, rate limits, and network failures;
	// retried with backoff on the same model.
	ClassTransient ErrorClass = iota
	// ClassBlocked covers content-safety refusals; retrying the same model
	// is pointless, the invoker falls through to the next candidate.
	ClassBlocked
	// ClassEmpty covers structurally valid responses with no usable parts;
	// treated like a transient condition.
	ClassEmpty
	// ClassTerminal covers everything not worth retrying.
	ClassTerminal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassBlocked:
		return "blocked"
	case ClassEmpty:
		return "empty"
	default:
		return "terminal"
	}
}

// ModelError is a classified model invocation failure
type ModelError struct {
	Class   ErrorClass
	Model   string
	Status  int
	Message string
	Cause   error
}

func (e *ModelError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("model %s: %s (%s, status %d)", e.Model, e.Message, e.Class, e.Status)
	}
	return fmt.Sprintf("model %s: %s (%s)", e.Model, e.Message, e.Class)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// Classify returns the retry class for a model invocation error. Errors the
// clients did not classify themselves are assumed to be transport-level
// failures and retried.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassTerminal
	}
	var me *ModelError
	if errors.As(err, &me) {
		return me.Class
	}
	if errors.Is(err, context.Canceled) {
		return ClassTerminal
	}
	return ClassTransient
}

// classifyStatus maps an HTTP status class to a retry class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ClassTransient
	case status >= 500:
		return ClassTransient
	default:
		return ClassTerminal
	}
}
