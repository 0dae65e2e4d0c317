package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
)

// AnthropicClient implements the Client interface for Anthropic
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, apperrors.New(apperrors.ErrCodeAgentConfig, "Anthropic API key is required", nil)
	}
	if model == "" {
		return nil, apperrors.New(apperrors.ErrCodeAgentConfig, "model name is required", nil)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicClient{
		client: &client,
		model:  model,
	}, nil
}

// ModelName returns the name of the model being used
func (c *AnthropicClient) ModelName() string {
	return c.model
}

// Generate sends the message history and receives a response
func (c *AnthropicClient) Generate(ctx context.Context, messages []*Content, genConfig *GenerateConfig) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		Messages:  c.convertMessages(messages),
	}

	if genConfig != nil {
		if genConfig.SystemInstruction != "" {
			params.System = []anthropic.TextBlockParam{{Text: genConfig.SystemInstruction}}
		}
		if genConfig.Temperature != nil {
			params.Temperature = anthropic.Float(*genConfig.Temperature)
		}
		if genConfig.MaxTokens != nil {
			params.MaxTokens = int64(*genConfig.MaxTokens)
		}
		for _, tool := range genConfig.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
			}
			if tool.Parameters != nil {
				toolParam.InputSchema = anthropic.ToolInputSchemaParam{
					Properties: tool.Parameters.Properties,
					Required:   tool.Parameters.Required,
				}
			}
			params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.classifyError(err)
	}

	return c.convertResponse(message)
}

func (c *AnthropicClient) convertMessages(messages []*Content) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	for _, msg := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		hasToolResult := false
		for _, part := range msg.Parts {
			switch {
			case part.FunctionCall != nil:
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    part.FunctionCall.ID,
						Name:  part.FunctionCall.Name,
						Input: part.FunctionCall.Args,
					},
				})
			case part.FunctionResponse != nil:
				hasToolResult = true
				result, _ := json.Marshal(part.FunctionResponse.Response)
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: part.FunctionResponse.ID,
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: string(result)}},
						},
					},
				})
			default:
				if part.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			}
		}

		if len(blocks) == 0 {
			continue
		}
		if msg.Role == RoleModel {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			continue
		}
		// The tool results for one assistant turn share a single user
		// message; back-to-back user messages carrying them are merged.
		if hasToolResult && len(out) > 0 && out[len(out)-1].Role == anthropic.MessageParamRoleUser {
			out[len(out)-1].Content = append(out[len(out)-1].Content, blocks...)
			continue
		}
		out = append(out, anthropic.NewUserMessage(blocks...))
	}

	return out
}

func (c *AnthropicClient) convertResponse(message *anthropic.Message) (*Response, error) {
	if message.StopReason == anthropic.StopReasonRefusal {
		return nil, &ModelError{
			Class:   ClassBlocked,
			Model:   c.model,
			Message: "generation refused on policy grounds",
		}
	}

	response := &Response{
		Content:      &Content{Role: RoleModel},
		FinishReason: string(message.StopReason),
		Usage: &Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}

	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			response.Content.Parts = append(response.Content.Parts, &Part{Text: variant.Text})
		case anthropic.ToolUseBlock:
			args, err := unmarshalArgs(string(variant.Input))
			if err != nil {
				return nil, &ModelError{
					Class:   ClassEmpty,
					Model:   c.model,
					Message: "tool call arguments were not valid JSON",
					Cause:   err,
				}
			}
			call := ToolCall{ID: variant.ID, Name: variant.Name, Arguments: args}
			response.ToolCalls = append(response.ToolCalls, call)
			response.Content.Parts = append(response.Content.Parts, &Part{
				FunctionCall: &FunctionCall{ID: call.ID, Name: call.Name, Args: call.Arguments},
			})
		}
	}

	if !response.HasContent() {
		return nil, &ModelError{
			Class:   ClassEmpty,
			Model:   c.model,
			Message: "response contained no usable parts",
		}
	}

	return response, nil
}

func (c *AnthropicClient) classifyError(err error) error {
	class := ClassTransient
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
		class = classifyStatus(status)
	}

	return &ModelError{
		Class:   class,
		Model:   c.model,
		Status:  status,
		Message: "Anthropic API call failed",
		Cause:   err,
	}
}
