package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
)

const (
	oaiFinishReasonStop          = "stop"
	oaiFinishReasonToolCalls     = "tool_calls"
	oaiFinishReasonContentFilter = "content_filter"
)

// OpenAIClient implements the Client interface for OpenAI
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, apperrors.New(apperrors.ErrCodeAgentConfig, "OpenAI API key is required", nil)
	}
	if model == "" {
		return nil, apperrors.New(apperrors.ErrCodeAgentConfig, "model name is required", nil)
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &OpenAIClient{
		client: &client,
		model:  model,
	}, nil
}

// ModelName returns the name of the model being used
func (c *OpenAIClient) ModelName() string {
	return c.model
}

// Generate sends the message history and receives a response
func (c *OpenAIClient) Generate(ctx context.Context, messages []*Content, genConfig *GenerateConfig) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: c.convertMessages(messages, genConfig),
	}

	if genConfig != nil {
		if genConfig.Temperature != nil {
			params.Temperature = param.NewOpt(*genConfig.Temperature)
		}
		if genConfig.MaxTokens != nil {
			params.MaxCompletionTokens = param.NewOpt(int64(*genConfig.MaxTokens))
		}
		for _, tool := range genConfig.Tools {
			fn := openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: param.NewOpt(tool.Description),
			}
			if tool.Parameters != nil {
				if b, err := json.Marshal(tool.Parameters); err == nil {
					var m openai.FunctionParameters
					if err := json.Unmarshal(b, &m); err == nil {
						fn.Parameters = m
					}
				}
			}
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{Function: fn})
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.classifyError(err)
	}

	return c.convertResponse(completion)
}

func (c *OpenAIClient) convertMessages(messages []*Content, genConfig *GenerateConfig) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion

	if genConfig != nil && genConfig.SystemInstruction != "" {
		out = append(out, openai.SystemMessage(genConfig.SystemInstruction))
	}

	for _, msg := range messages {
		var text string
		var toolCalls []openai.ChatCompletionMessageToolCallParam
		for _, part := range msg.Parts {
			switch {
			case part.FunctionCall != nil:
				args, _ := json.Marshal(part.FunctionCall.Args)
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: part.FunctionCall.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					},
				})
			case part.FunctionResponse != nil:
				result, _ := json.Marshal(part.FunctionResponse.Response)
				out = append(out, openai.ToolMessage(string(result), part.FunctionResponse.ID))
			default:
				text += part.Text
			}
		}

		// All tool calls of a turn go into one assistant message so the tool
		// responses that follow pair up with it.
		if len(toolCalls) > 0 {
			assistant := &openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text != "" {
				assistant.Content.OfString = param.NewOpt(text)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
			continue
		}

		if text == "" {
			continue
		}
		switch msg.Role {
		case RoleModel:
			out = append(out, openai.AssistantMessage(text))
		default:
			out = append(out, openai.UserMessage(text))
		}
	}

	return out
}

func (c *OpenAIClient) convertResponse(completion *openai.ChatCompletion) (*Response, error) {
	if len(completion.Choices) == 0 {
		return nil, &ModelError{
			Class:   ClassEmpty,
			Model:   c.model,
			Message: "response contained no choices",
		}
	}

	choice := completion.Choices[0]

	if choice.Message.Refusal != "" || choice.FinishReason == oaiFinishReasonContentFilter {
		return nil, &ModelError{
			Class:   ClassBlocked,
			Model:   c.model,
			Message: "generation refused: " + choice.Message.Refusal,
		}
	}

	response := &Response{
		Content:      &Content{Role: RoleModel},
		FinishReason: choice.FinishReason,
		Usage: &Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}

	if choice.Message.Content != "" {
		response.Content.Parts = append(response.Content.Parts, &Part{Text: choice.Message.Content})
	}

	for _, tc := range choice.Message.ToolCalls {
		args, err := unmarshalArgs(tc.Function.Arguments)
		if err != nil {
			return nil, &ModelError{
				Class:   ClassEmpty,
				Model:   c.model,
				Message: "tool call arguments were not valid JSON",
				Cause:   err,
			}
		}
		call := ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
		response.ToolCalls = append(response.ToolCalls, call)
		response.Content.Parts = append(response.Content.Parts, &Part{
			FunctionCall: &FunctionCall{ID: call.ID, Name: call.Name, Args: call.Arguments},
		})
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

func (c *OpenAIClient) classifyError(err error) error {
	class := ClassTransient
	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
		class = classifyStatus(status)
	}

	return &ModelError{
		Class:   class,
		Model:   c.model,
		Status:  status,
		Message: "OpenAI API call failed",
		Cause:   err,
	}
}
