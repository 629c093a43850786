// Package providers contains the model-provider adapters consumed by the
// router. Each adapter converts between the runtime's PromptRequest /
// RawModelResponse contracts and one vendor SDK, and signals failures through
// the typed provider errors so the router can decide what is retryable.
package providers

import (
	"context"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// Provider is the narrow interface the router depends on.
type Provider interface {
	// Name returns the stable lowercase provider identifier.
	Name() string

	// Call sends the prompt and returns the model's next action. Retryable
	// failures are ModelProviderError, ModelRateLimitError, or
	// ModelTimeoutError; unusable output is ModelOutputValidationError.
	Call(ctx context.Context, req models.PromptRequest) (models.RawModelResponse, error)

	// EstimateTokens returns a rough token count for budgeting before a call.
	EstimateTokens(req models.PromptRequest) int
}

// estimateByChars approximates tokens as characters divided by four, the
// conventional rough cut for English text.
func estimateByChars(req models.PromptRequest) int {
	chars := len(req.SystemPrompt)
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	return chars / 4
}
