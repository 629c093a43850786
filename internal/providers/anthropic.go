package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// anthropicCostTable maps model ids to USD per 1M tokens. Models absent from
// the table contribute zero cost; the kernel records the step regardless.
var anthropicCostTable = map[string]struct{ input, output float64 }{
	"claude-haiku-4-5-20251001": {input: 0.80, output: 4.00},
	"claude-sonnet-4-6":         {input: 3.00, output: 15.00},
	"claude-opus-4-6":           {input: 15.00, output: 75.00},
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	// APIKey authenticates against the Anthropic API. Required.
	APIKey string

	// BaseURL overrides the default API endpoint. Optional.
	BaseURL string
}

// AnthropicProvider adapts Anthropic's Messages API to the Provider
// interface. Tool-use blocks become ToolCallRequests; text blocks become the
// final answer.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates the adapter.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(options...)}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Call implements Provider.
func (p *AnthropicProvider) Call(ctx context.Context, req models.PromptRequest) (models.RawModelResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  buildAnthropicMessages(req.Messages),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if tools := buildAnthropicTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return models.RawModelResponse{}, p.wrapError(err)
	}
	return p.parseResponse(msg, req.Model)
}

// EstimateTokens implements Provider.
func (p *AnthropicProvider) EstimateTokens(req models.PromptRequest) int {
	return estimateByChars(req)
}

// CalculateCost returns the USD cost of a call at the model's per-million
// token rates. Unknown models cost zero.
func (p *AnthropicProvider) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	rates, ok := anthropicCostTable[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)*rates.input + float64(outputTokens)*rates.output) / 1_000_000
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &models.ModelRateLimitError{Provider: p.Name(), Reason: err.Error()}
		default:
			return &models.ModelProviderError{Provider: p.Name(), StatusCode: apiErr.StatusCode, Reason: err.Error()}
		}
	}
	// Connection failures and deadline expiry surface as plain errors.
	return &models.ModelTimeoutError{Provider: p.Name(), Reason: err.Error()}
}

func (p *AnthropicProvider) parseResponse(msg *anthropic.Message, model string) (models.RawModelResponse, error) {
	envelope, _ := json.Marshal(map[string]string{"model": model, "id": msg.ID})
	rawHash := models.SHA256Hex(string(envelope))
	inTok := int(msg.Usage.InputTokens)
	outTok := int(msg.Usage.OutputTokens)

	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		var args map[string]any
		if len(block.Input) > 0 {
			if err := json.Unmarshal(block.Input, &args); err != nil {
				return models.RawModelResponse{}, &models.ModelOutputValidationError{
					Reason: "tool_use input is not a JSON object: " + err.Error(),
				}
			}
		}
		if args == nil {
			args = map[string]any{}
		}
		return models.RawModelResponse{
			Action: models.ActionToolCall,
			ToolCall: &models.ToolCallRequest{
				ToolCallID: block.ID,
				ToolName:   block.Name,
				Arguments:  args,
			},
			InputTokens:     inTok,
			OutputTokens:    outTok,
			Model:           model,
			Provider:        p.Name(),
			RawResponseHash: rawHash,
		}, nil
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return models.RawModelResponse{}, &models.ModelOutputValidationError{
			Reason: "model returned empty response, stop reason: " + string(msg.StopReason),
		}
	}

	return models.RawModelResponse{
		Action:          models.ActionFinalAnswer,
		FinalAnswer:     text,
		InputTokens:     inTok,
		OutputTokens:    outTok,
		Model:           model,
		Provider:        p.Name(),
		RawResponseHash: rawHash,
	}, nil
}

// buildAnthropicMessages converts conversation history to the Messages API
// shape: tool results ride in user messages, system messages are handled via
// the dedicated parameter and skipped here.
func buildAnthropicMessages(messages []models.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			continue
		case models.RoleTool:
			id := m.ToolCallID
			if id == "" {
				id = "unknown"
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		case models.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func buildAnthropicTools(tools []models.ToolManifest) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			continue
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			continue
		}
		u := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if u.OfTool != nil {
			u.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, u)
	}
	return out
}
