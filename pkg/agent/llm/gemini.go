package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
)

// GeminiClient implements Client and GroundedClient using Google Gemini
type GeminiClient struct {
	client *genai.Client
	model  string
	store  string
}

// NewGeminiClient creates a new Gemini client. store names the FileSearch
// document store used for grounded queries; it may be empty when the client
// is only used for tool-calling generation.
func NewGeminiClient(ctx context.Context, apiKey, model, store string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, apperrors.New(apperrors.ErrCodeAgentConfig, "Gemini API key is required", nil)
	}
	if model == "" {
		return nil, apperrors.New(apperrors.ErrCodeAgentConfig, "model name is required", nil)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeAgentConfig, "failed to create Gemini client", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
		store:  store,
	}, nil
}

// ModelName returns the name of the model being used
func (c *GeminiClient) ModelName() string {
	return c.model
}

// Generate sends the message history and receives a response
func (c *GeminiClient) Generate(ctx context.Context, messages []*Content, genConfig *GenerateConfig) (*Response, error) {
	contents := c.convertMessages(messages)
	config := c.buildConfig(genConfig)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, c.classifyError(err)
	}

	return c.convertResponse(resp)
}

// GenerateGrounded asks a question grounded on the configured FileSearch
// store. Tool declarations and history are intentionally absent: the
// grounded path is a single-question retrieval query.
func (c *GeminiClient) GenerateGrounded(ctx context.Context, question string) (*Response, error) {
	if c.store == "" {
		return nil, &ModelError{
			Class:   ClassTerminal,
			Model:   c.model,
			Message: "no document store configured for grounded queries",
		}
	}

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{
				FileSearch: &genai.FileSearch{
					FileSearchStoreNames: []string{c.store},
				},
			},
		},
	}

	contents := []*genai.Content{
		{Role: RoleUser, Parts: []*genai.Part{{Text: question}}},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, c.classifyError(err)
	}

	return c.convertResponse(resp)
}

func (c *GeminiClient) convertMessages(messages []*Content) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range messages {
		var parts []*genai.Part
		for _, part := range msg.Parts {
			switch {
			case part.FunctionCall != nil:
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   part.FunctionCall.ID,
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					},
				})
			case part.FunctionResponse != nil:
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       part.FunctionResponse.ID,
						Name:     part.FunctionResponse.Name,
						Response: part.FunctionResponse.Response,
					},
				})
			default:
				parts = append(parts, &genai.Part{Text: part.Text})
			}
		}

		contents = append(contents, &genai.Content{
			Role:  msg.Role,
			Parts: parts,
		})
	}

	return contents
}

func (c *GeminiClient) buildConfig(genConfig *GenerateConfig) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if genConfig == nil {
		return config
	}

	if genConfig.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: genConfig.SystemInstruction}},
		}
	}
	if genConfig.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*genConfig.Temperature))
	}
	if genConfig.MaxTokens != nil {
		config.MaxOutputTokens = int32(*genConfig.MaxTokens)
	}

	if len(genConfig.Tools) > 0 {
		var decls []*genai.FunctionDeclaration
		for _, tool := range genConfig.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  convertSchema(tool.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return config
}

// convertSchema maps a JSON schema to the genai schema subset Gemini accepts.
func convertSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	var enums []string
	for _, v := range schema.Enum {
		if s, ok := v.(string); ok {
			enums = append(enums, s)
		}
	}

	gs := &genai.Schema{
		Description: schema.Description,
		Format:      schema.Format,
		Enum:        enums,
		Items:       convertSchema(schema.Items),
		Required:    schema.Required,
	}

	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = convertSchema(prop)
		}
	}

	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}

	return gs
}

func (c *GeminiClient) convertResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &ModelError{
			Class:   ClassBlocked,
			Model:   c.model,
			Message: "prompt blocked: " + string(resp.PromptFeedback.BlockReason),
		}
	}

	if len(resp.Candidates) == 0 {
		return nil, &ModelError{
			Class:   ClassEmpty,
			Model:   c.model,
			Message: "response contained no candidates",
		}
	}

	candidate := resp.Candidates[0]

	if candidate.FinishReason == genai.FinishReasonSafety {
		var cats []string
		for _, sr := range candidate.SafetyRatings {
			if sr.Blocked {
				cats = append(cats, string(sr.Category))
			}
		}
		return nil, &ModelError{
			Class:   ClassBlocked,
			Model:   c.model,
			Message: "generation blocked by " + strings.Join(cats, ", "),
		}
	}

	response := &Response{
		Content:      &Content{Role: RoleModel},
		FinishReason: string(candidate.FinishReason),
	}

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				response.Content.Parts = append(response.Content.Parts, &Part{Text: part.Text})
			}
			if part.FunctionCall != nil {
				call := ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				}
				if call.ID == "" {
					call.ID = "call_" + call.Name
				}
				response.ToolCalls = append(response.ToolCalls, call)
				response.Content.Parts = append(response.Content.Parts, &Part{
					FunctionCall: &FunctionCall{ID: call.ID, Name: call.Name, Args: call.Arguments},
				})
			}
		}
	}

	response.Grounding = convertGrounding(candidate.GroundingMetadata)

	if resp.UsageMetadata != nil {
		response.Usage = &Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
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

func convertGrounding(gm *genai.GroundingMetadata) *GroundingMetadata {
	if gm == nil {
		return nil
	}

	out := &GroundingMetadata{}
	for _, chunk := range gm.GroundingChunks {
		if rc := chunk.RetrievedContext; rc != nil {
			out.Chunks = append(out.Chunks, GroundingChunk{
				Text:   rc.Text,
				Source: rc.URI,
				Title:  rc.Title,
			})
		}
	}
	for _, support := range gm.GroundingSupports {
		s := GroundingSupport{}
		for _, idx := range support.GroundingChunkIndices {
			s.ChunkIndices = append(s.ChunkIndices, int(idx))
		}
		for _, score := range support.ConfidenceScores {
			s.Confidence = append(s.Confidence, float64(score))
		}
		out.Supports = append(out.Supports, s)
	}

	if len(out.Chunks) == 0 && len(out.Supports) == 0 {
		return nil
	}
	return out
}

func (c *GeminiClient) classifyError(err error) error {
	// No HTTP status means the request never completed (timeout, connection
	// reset); that is a network-level failure and retryable.
	class := ClassTransient
	status := 0
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPCode()
		class = classifyStatus(status)
	}

	return &ModelError{
		Class:   class,
		Model:   c.model,
		Status:  status,
		Message: "Gemini API call failed",
		Cause:   err,
	}
}
