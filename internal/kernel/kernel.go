// Package kernel drives the reasoning loop: it sequences model calls and
// tool executions under the session FSM, enforces step and cost budgets,
// and emits the audit trail at every boundary crossing.
//
// Invariants:
//   - Every side effect is preceded or followed by an audit write.
//   - FSM state is ground truth for the session lifecycle.
//   - AuditWriteFailureError halts immediately and propagates to the caller.
package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivay00001/aria-runtime/internal/fsm"
	"github.com/Shivay00001/aria-runtime/internal/observability"
	"github.com/Shivay00001/aria-runtime/internal/registry"
	"github.com/Shivay00001/aria-runtime/internal/security"
	"github.com/Shivay00001/aria-runtime/internal/store"
	"github.com/Shivay00001/aria-runtime/pkg/models"
)

const systemPrompt = `You are a task execution agent. Complete the given task using the available tools.

Rules:
1. Think step by step before acting.
2. Use tools when needed to gather information or take actions.
3. When the task is complete, provide your final answer as plain text.
4. Only use tool names listed in the API tool definitions - never invent tool names.
5. Be precise and factual. Do not invent information.
`

const defaultMaxTokens = 4096

// ModelCaller is the router surface the kernel depends on.
type ModelCaller interface {
	Call(ctx context.Context, req models.PromptRequest) (models.RawModelResponse, error)
}

// ToolExecutor is the sandbox surface the kernel depends on.
type ToolExecutor interface {
	RunTool(ctx context.Context, manifest models.ToolManifest, arguments map[string]any, locator string) (models.ToolResult, error)
}

// CostCalculator is implemented by providers that carry a price table. The
// kernel asks the router's provider for step costs; providers without a
// table contribute zero.
type CostCalculator interface {
	CalculateCost(model string, inputTokens, outputTokens int) float64
}

// Storage is the kernel's combined view of the audit store.
type Storage interface {
	store.MemoryStore
	store.AuditLog
}

// Kernel executes sessions. One instance per session; not safe for
// concurrent use.
type Kernel struct {
	router   ModelCaller
	registry *registry.Registry
	storage  Storage
	sandbox  ToolExecutor
	config   models.KernelConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer

	// providerFor resolves the active provider's price table, when it has
	// one. Nil lookups cost zero.
	providerFor func(name string) CostCalculator
}

// Options carries the kernel's collaborators.
type Options struct {
	Router   ModelCaller
	Registry *registry.Registry
	Storage  Storage
	Sandbox  ToolExecutor
	Config   models.KernelConfig
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// ProviderFor resolves a CostCalculator per provider name. Optional.
	ProviderFor func(name string) CostCalculator
}

// New assembles a kernel.
func New(opts Options) *Kernel {
	logger := opts.Logger
	if logger == nil {
		logger = observability.Nop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	providerFor := opts.ProviderFor
	if providerFor == nil {
		providerFor = func(string) CostCalculator { return nil }
	}
	return &Kernel{
		router:      opts.Router,
		registry:    opts.Registry,
		storage:     opts.Storage,
		sandbox:     opts.Sandbox,
		config:      opts.Config,
		logger:      logger,
		metrics:     metrics,
		tracer:      otel.Tracer("aria/kernel"),
		providerFor: providerFor,
	}
}

// Run executes a session to a terminal state. It returns an error only for
// AuditWriteFailureError (including session creation), which is fatal; every
// other failure is folded into the SessionResult.
func (k *Kernel) Run(ctx context.Context, request models.SessionRequest) (models.SessionResult, error) {
	sessionID := request.SessionID
	machine := fsm.New(sessionID)
	started := time.Now()

	ctx, span := k.tracer.Start(ctx, "session.run", trace.WithAttributes(
		attribute.String("session_id", sessionID)))
	defer span.End()

	// Storage init failure is startup, not runtime: re-raise.
	if err := k.storage.CreateSession(sessionID, request.Task, k.config); err != nil {
		k.logger.Error("session_create_failed", "session_id", sessionID, "error", err.Error())
		return models.SessionResult{}, err
	}

	// Injection scan: warn, don't block.
	if err := security.AssertCleanInput(request.Task, "task"); err != nil {
		k.logger.Warn("injection_scan_hit", "session_id", sessionID, "warning", err.Error())
		if err := k.emit(sessionID, "", "injection_scan_warn", models.LevelWarn,
			map[string]any{"warning": err.Error()}); err != nil {
			return models.SessionResult{}, err
		}
	}

	provider := request.ProviderOverride
	if provider == "" {
		provider = k.config.PrimaryProvider
	}
	model := request.ModelOverride
	if model == "" {
		model = k.config.PrimaryModel
	}
	maxSteps := k.config.MaxSteps
	if request.MaxStepsOverride > 0 {
		maxSteps = request.MaxStepsOverride
	}

	if err := k.emit(sessionID, "", "session_start", models.LevelInfo, map[string]any{
		"task_len": len(request.Task),
		"provider": provider,
		"model":    model,
	}); err != nil {
		return models.SessionResult{}, err
	}

	run := &sessionRun{
		kernel:    k,
		request:   request,
		machine:   machine,
		provider:  provider,
		model:     model,
		maxSteps:  maxSteps,
		sessionID: sessionID,
	}

	loopErr := run.execute(ctx)

	var errorType, errorMsg string
	if loopErr != nil {
		var emitErr error
		errorType, errorMsg, emitErr = k.classify(sessionID, machine, loopErr)
		if emitErr != nil {
			loopErr = emitErr
		}
	}

	var auditFailure *models.AuditWriteFailureError
	fatal := errors.As(loopErr, &auditFailure)
	if fatal {
		// The halt event and final sync are best effort: the store is
		// already failing.
		_ = k.emit(sessionID, "", "audit_write_failure_halt", models.LevelCritical, map[string]any{})
		if !machine.IsTerminal() {
			_ = machine.Transition(models.SessionFailed)
		}
		_ = k.syncSession(sessionID, machine, run.stepCount, run.totalCost, errorType, errorMsg)
		return models.SessionResult{}, loopErr
	}

	durationMS := time.Since(started).Milliseconds()
	if err := k.emit(sessionID, "", "session_end", models.LevelInfo, map[string]any{
		"status":      string(machine.State()),
		"steps":       run.stepCount,
		"cost_usd":    round6(run.totalCost),
		"duration_ms": durationMS,
	}); err != nil {
		return models.SessionResult{}, err
	}
	if err := k.syncSession(sessionID, machine, run.stepCount, run.totalCost, errorType, errorMsg); err != nil {
		return models.SessionResult{}, err
	}

	k.metrics.SessionCounter.WithLabelValues(string(machine.State())).Inc()
	k.metrics.SessionDuration.Observe(time.Since(started).Seconds())
	k.metrics.SessionCostUSD.Observe(run.totalCost)

	return models.SessionResult{
		SessionID:    sessionID,
		Status:       machine.State(),
		Answer:       run.finalAnswer,
		StepsTaken:   run.stepCount,
		TotalCostUSD: round6(run.totalCost),
		DurationMS:   durationMS,
		ErrorType:    errorType,
		ErrorMessage: errorMsg,
	}, nil
}

// sessionRun holds the mutable state of one run so the loop body stays
// readable.
type sessionRun struct {
	kernel    *Kernel
	request   models.SessionRequest
	machine   *fsm.SessionFSM
	provider  string
	model     string
	maxSteps  int
	sessionID string

	stepCount   int
	totalCost   float64
	finalAnswer string
}

// execute runs the main loop until a terminal state or an error. Errors are
// classified by the caller.
func (r *sessionRun) execute(ctx context.Context) error {
	k := r.kernel

	if err := r.machine.Transition(models.SessionRunning); err != nil {
		return err
	}
	if err := k.syncSession(r.sessionID, r.machine, r.stepCount, r.totalCost, "", ""); err != nil {
		return err
	}

	if err := k.storage.AppendMessage(r.sessionID, models.Message{
		Role: models.RoleUser, Content: r.request.Task,
	}); err != nil {
		return err
	}

	history, err := k.storage.GetConversationHistory(r.sessionID)
	if err != nil {
		return err
	}
	ectx := newExecutionContext(r.sessionID, k.config, k.registry.AllManifests(), history)

	for !r.machine.IsTerminal() {
		r.stepCount++
		history, err := k.storage.GetConversationHistory(r.sessionID)
		if err != nil {
			return err
		}
		ectx = ectx.WithStep(r.stepCount, history)

		if r.stepCount > r.maxSteps {
			return &models.StepLimitExceededError{MaxSteps: r.maxSteps}
		}
		if r.totalCost > k.config.MaxCostUSD {
			return &models.CostBudgetExceededError{CostUSD: r.totalCost, BudgetUSD: k.config.MaxCostUSD}
		}

		if err := r.step(ctx, ectx); err != nil {
			return err
		}
	}
	return nil
}

// step performs one model call and, on tool_call, one sandboxed execution.
func (r *sessionRun) step(ctx context.Context, ectx ExecutionContext) error {
	k := r.kernel

	stepCtx, span := k.tracer.Start(ctx, "session.step", trace.WithAttributes(
		attribute.Int("step_number", r.stepCount)))
	defer span.End()

	historyJSON, _ := json.Marshal(ectx.ConversationHistory)
	st := models.NewStepTrace(r.sessionID, r.stepCount, models.StepModelCall)
	st.PromptHash = models.SHA256Hex(string(historyJSON))
	if err := k.storage.WriteStepStart(st); err != nil {
		return err
	}

	t0 := time.Now()
	response, err := k.router.Call(stepCtx, models.PromptRequest{
		Messages:     ectx.ConversationHistory,
		SystemPrompt: systemPrompt,
		Tools:        ectx.AvailableTools,
		Provider:     r.provider,
		Model:        r.model,
		SessionID:    r.sessionID,
		StepNumber:   r.stepCount,
		MaxTokens:    defaultMaxTokens,
	})
	if err != nil {
		return err
	}
	stepMS := time.Since(t0).Milliseconds()

	stepCost := k.stepCost(r.provider, r.model, response.InputTokens, response.OutputTokens)
	r.totalCost += stepCost

	st.ModelOutputHash = response.RawResponseHash
	st.InputTokens = response.InputTokens
	st.OutputTokens = response.OutputTokens
	st.CostUSD = stepCost
	st.DurationMS = stepMS
	st.FinishedAt = models.UTCNow()

	switch response.Action {
	case models.ActionFinalAnswer:
		st.StepType = models.StepFinalAnswer
		st.Status = models.StepCompleted
		if err := k.storage.WriteStepEnd(st); err != nil {
			return err
		}
		r.finalAnswer = response.FinalAnswer
		if err := k.storage.AppendMessage(r.sessionID, models.Message{
			Role: models.RoleAssistant, Content: response.FinalAnswer,
		}); err != nil {
			return err
		}
		return r.machine.Transition(models.SessionDone)

	case models.ActionToolCall:
		return r.toolStep(stepCtx, st, response.ToolCall)

	default:
		return &models.ModelOutputValidationError{Reason: "unknown action " + string(response.Action)}
	}
}

// toolStep handles the tool_call branch of one step.
func (r *sessionRun) toolStep(ctx context.Context, st *models.StepTrace, tc *models.ToolCallRequest) error {
	k := r.kernel

	if !k.registry.HasTool(tc.ToolName) {
		return &models.UnknownToolError{Tool: tc.ToolName}
	}
	manifest, err := k.registry.GetManifest(tc.ToolName)
	if err != nil {
		return err
	}
	// Dispatch-time permission re-check: a narrowed allow-set blocks
	// already-loaded tools too.
	if disallowed := manifest.DisallowedPermissions(k.config.AllowedPermissions); len(disallowed) > 0 {
		return &models.PermissionDeniedError{Tool: tc.ToolName, Permissions: disallowed}
	}

	inputJSON, _ := json.Marshal(tc.Arguments)
	st.StepType = models.StepToolCall
	st.ToolName = tc.ToolName
	st.ToolInputJSON = string(inputJSON)
	st.Status = models.StepCompleted
	if err := k.storage.WriteStepEnd(st); err != nil {
		return err
	}

	if err := k.storage.AppendMessage(r.sessionID, models.Message{
		Role:       models.RoleAssistant,
		Content:    "[Tool call: " + tc.ToolName + "]",
		ToolCallID: tc.ToolCallID,
	}); err != nil {
		return err
	}

	if err := r.machine.Transition(models.SessionWaiting); err != nil {
		return err
	}
	if err := k.syncSession(r.sessionID, r.machine, r.stepCount, r.totalCost, "", ""); err != nil {
		return err
	}

	result, err := r.executeTool(ctx, st.StepID, manifest, tc)
	if err != nil {
		return err
	}

	if err := r.machine.Transition(models.SessionRunning); err != nil {
		return err
	}
	if err := k.syncSession(r.sessionID, r.machine, r.stepCount, r.totalCost, "", ""); err != nil {
		return err
	}

	var content string
	if result.Ok {
		dataJSON, _ := json.Marshal(result.Data)
		content = string(dataJSON)
	} else {
		// The model sees the failure and decides whether to retry or
		// surrender.
		content = "ERROR: " + result.ErrorMessage
	}
	return k.storage.AppendMessage(r.sessionID, models.Message{
		Role:       models.RoleTool,
		Content:    content,
		ToolName:   tc.ToolName,
		ToolCallID: tc.ToolCallID,
	})
}

// executeTool runs the sandbox with audit events on both edges. Host-enforced
// failures (validation, traversal, timeout, crash) propagate for terminal
// classification; in-child failures come back as ok=false results.
func (r *sessionRun) executeTool(ctx context.Context, stepID string, manifest models.ToolManifest, tc *models.ToolCallRequest) (models.ToolResult, error) {
	k := r.kernel

	locator, err := k.registry.GetModulePath(manifest.Name)
	if err != nil {
		return models.ToolResult{}, err
	}

	if err := k.emit(r.sessionID, stepID, "tool_call_start", models.LevelInfo, map[string]any{
		"tool": manifest.Name, "tool_call_id": tc.ToolCallID,
	}); err != nil {
		return models.ToolResult{}, err
	}

	result, err := k.sandbox.RunTool(ctx, manifest, tc.Arguments, locator)
	if err != nil {
		k.logger.Error("tool_failed",
			"session_id", r.sessionID, "tool", manifest.Name,
			"error_type", models.ErrorTypeName(err), "error", err.Error())
		if emitErr := k.emit(r.sessionID, stepID, "tool_call_failed", models.LevelError, map[string]any{
			"tool": manifest.Name, "error_type": models.ErrorTypeName(err), "error": err.Error(),
		}); emitErr != nil {
			return models.ToolResult{}, emitErr
		}
		return models.ToolResult{}, err
	}

	result.ToolCallID = tc.ToolCallID
	if err := k.emit(r.sessionID, stepID, "tool_call_end", models.LevelInfo, map[string]any{
		"tool": manifest.Name, "ok": result.Ok, "duration_ms": result.DurationMS,
	}); err != nil {
		return models.ToolResult{}, err
	}
	return result, nil
}

// classify maps a loop error to its audit event and drives the FSM to
// FAILED. AuditWriteFailure is handled by the caller; an audit failure while
// emitting the classification event is returned so the caller halts too.
func (k *Kernel) classify(sessionID string, machine *fsm.SessionFSM, err error) (errorType, errorMsg string, emitErr error) {
	errorType = models.ErrorTypeName(err)
	errorMsg = err.Error()

	var auditErr *models.AuditWriteFailureError
	if errors.As(err, &auditErr) {
		k.logger.Error("audit_write_failure_halt", "session_id", sessionID)
		errorMsg = "Audit write failed - session terminated"
		return errorType, errorMsg, nil
	}

	var event string
	var limit models.LimitFailure
	var sec models.SecurityFailure
	var exhausted *models.ModelProviderExhaustedError
	var open *models.CircuitBreakerOpenError
	switch {
	case errors.As(err, &limit):
		event = "limit_exceeded"
	case errors.As(err, &sec):
		event = "security_error"
	case errors.As(err, &exhausted), errors.As(err, &open):
		event = "provider_failure"
	default:
		event = "unexpected_error"
	}

	k.metrics.ErrorCounter.WithLabelValues("kernel", errorType).Inc()

	if event == "unexpected_error" {
		stack := string(debug.Stack())
		k.logger.Error("unexpected_error", "session_id", sessionID, "error_type", errorType, "trace", stack)
		emitErr = k.emit(sessionID, "", event, models.LevelCritical, map[string]any{
			"error_type": errorType, "trace": stack,
		})
		errorMsg = "Unexpected error (" + errorType + "). Check audit log."
	} else {
		k.logger.Error(event, "session_id", sessionID, "error", errorMsg)
		emitErr = k.emit(sessionID, "", event, models.LevelError, map[string]any{
			"error_type": errorType, "error": errorMsg,
		})
	}

	if !machine.IsTerminal() {
		_ = machine.Transition(models.SessionFailed)
	}
	return errorType, errorMsg, emitErr
}

// stepCost consults the active provider's price table, when it has one.
func (k *Kernel) stepCost(provider, model string, inputTokens, outputTokens int) float64 {
	calc := k.providerFor(provider)
	if calc == nil {
		return 0
	}
	return calc.CalculateCost(model, inputTokens, outputTokens)
}

func (k *Kernel) syncSession(sessionID string, machine *fsm.SessionFSM, steps int, cost float64, errorType, errorMsg string) error {
	if err := k.storage.UpdateSessionStatus(sessionID, machine.State(), steps, round6(cost), errorType, errorMsg); err != nil {
		k.logger.Error("session_sync_failed", "session_id", sessionID)
		return err
	}
	return nil
}

func (k *Kernel) emit(sessionID, stepID, eventType string, level models.LogLevel, payload map[string]any) error {
	event := models.NewAuditEvent(sessionID, stepID, eventType, level, payload)
	if err := k.storage.WriteEvent(&event); err != nil {
		k.logger.Error("audit_emit_failed", "event_type", eventType, "session_id", sessionID)
		return err
	}
	return nil
}

func round6(v float64) float64 {
	return float64(int64(v*1e6+0.5)) / 1e6
}
