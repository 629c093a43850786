package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// OpenAIConfig configures the OpenAI-compatible adapter. With BaseURL set it
// also serves local OpenAI-compatible endpoints (llama.cpp, Ollama, vLLM).
type OpenAIConfig struct {
	// APIKey authenticates against the endpoint. Local endpoints usually
	// accept any non-empty value.
	APIKey string

	// BaseURL overrides the default https://api.openai.com/v1.
	BaseURL string

	// Name overrides the provider identifier, e.g. "ollama" when pointing at
	// a local endpoint. Defaults to "openai".
	Name string
}

// OpenAIProvider adapts any chat-completions endpoint with function calling
// to the Provider interface.
type OpenAIProvider struct {
	client *openai.Client
	name   string
}

// NewOpenAIProvider creates the adapter.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), name: name}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Call implements Provider.
func (p *OpenAIProvider) Call(ctx context.Context, req models.PromptRequest) (models.RawModelResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    buildOpenAIMessages(req),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Tools:       buildOpenAITools(req.Tools),
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.RawModelResponse{}, p.wrapError(err)
	}
	return p.parseResponse(resp, req.Model)
}

// EstimateTokens implements Provider.
func (p *OpenAIProvider) EstimateTokens(req models.PromptRequest) int {
	return estimateByChars(req)
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &models.ModelRateLimitError{Provider: p.name, Reason: err.Error()}
		}
		return &models.ModelProviderError{Provider: p.name, StatusCode: apiErr.HTTPStatusCode, Reason: err.Error()}
	}
	return &models.ModelTimeoutError{Provider: p.name, Reason: err.Error()}
}

func (p *OpenAIProvider) parseResponse(resp openai.ChatCompletionResponse, model string) (models.RawModelResponse, error) {
	envelope, _ := json.Marshal(map[string]string{"model": model, "id": resp.ID})
	rawHash := models.SHA256Hex(string(envelope))
	inTok := resp.Usage.PromptTokens
	outTok := resp.Usage.CompletionTokens

	if len(resp.Choices) == 0 {
		return models.RawModelResponse{}, &models.ModelOutputValidationError{Reason: "response has no choices"}
	}
	choice := resp.Choices[0].Message

	if len(choice.ToolCalls) > 0 {
		tc := choice.ToolCalls[0]
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return models.RawModelResponse{}, &models.ModelOutputValidationError{
					Reason: "tool call arguments are not a JSON object: " + err.Error(),
				}
			}
		}
		if args == nil {
			args = map[string]any{}
		}
		return models.RawModelResponse{
			Action: models.ActionToolCall,
			ToolCall: &models.ToolCallRequest{
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
				Arguments:  args,
			},
			InputTokens:     inTok,
			OutputTokens:    outTok,
			Model:           model,
			Provider:        p.name,
			RawResponseHash: rawHash,
		}, nil
	}

	text := strings.TrimSpace(choice.Content)
	if text == "" {
		return models.RawModelResponse{}, &models.ModelOutputValidationError{
			Reason: "model returned empty response, finish reason: " + string(resp.Choices[0].FinishReason),
		}
	}

	return models.RawModelResponse{
		Action:          models.ActionFinalAnswer,
		FinalAnswer:     text,
		InputTokens:     inTok,
		OutputTokens:    outTok,
		Model:           model,
		Provider:        p.name,
		RawResponseHash: rawHash,
	}, nil
}

func buildOpenAIMessages(req models.PromptRequest) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			continue
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case models.RoleAssistant:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return out
}

func buildOpenAITools(tools []models.ToolManifest) []openai.Tool {
	var out []openai.Tool
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}
