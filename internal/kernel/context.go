package kernel

import (
	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// ExecutionContext is the immutable per-step view the kernel builds before
// each model call: a fresh trace id, a snapshot of the conversation, and the
// tool manifests visible to the model. Contexts are copied, never mutated.
type ExecutionContext struct {
	SessionID           string
	TraceID             string
	StepNumber          int
	ConversationHistory []models.Message
	AvailableTools      []models.ToolManifest
	Config              models.KernelConfig
	StartedAt           string
}

// newExecutionContext builds the step-zero context.
func newExecutionContext(sessionID string, config models.KernelConfig, tools []models.ToolManifest, history []models.Message) ExecutionContext {
	return ExecutionContext{
		SessionID:           sessionID,
		TraceID:             models.NewID(),
		StepNumber:          0,
		ConversationHistory: history,
		AvailableTools:      tools,
		Config:              config,
		StartedAt:           models.UTCNow(),
	}
}

// WithStep derives the context for the next step: new trace id, new history
// snapshot, same session, tools, and config.
func (c ExecutionContext) WithStep(stepNumber int, history []models.Message) ExecutionContext {
	return ExecutionContext{
		SessionID:           c.SessionID,
		TraceID:             models.NewID(),
		StepNumber:          stepNumber,
		ConversationHistory: history,
		AvailableTools:      c.AvailableTools,
		Config:              c.Config,
		StartedAt:           models.UTCNow(),
	}
}
