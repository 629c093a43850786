package models

import "fmt"

// The error taxonomy mirrors the kernel's classification boundaries. Each
// category exposes a marker method so callers can classify with errors.As
// against the category interface instead of enumerating concrete types.

// ValidationFailure marks schema, manifest, and model-output validation errors.
type ValidationFailure interface {
	error
	validationFailure()
}

// SecurityFailure marks path traversal, permission, and unknown-tool errors.
// All of them terminate the session.
type SecurityFailure interface {
	error
	securityFailure()
}

// SandboxFailure marks host-enforced sandbox errors (timeout, crash).
type SandboxFailure interface {
	error
	sandboxFailure()
}

// ProviderFailure marks model-provider errors, retryable or not.
type ProviderFailure interface {
	error
	providerFailure()
}

// LimitFailure marks budget violations (steps, cost).
type LimitFailure interface {
	error
	limitFailure()
}

// StorageFailure marks audit-store errors.
type StorageFailure interface {
	error
	storageFailure()
}

// ── Validation ───────────────────────────────────────────────────────────────

// ToolInputValidationError reports arguments that failed the manifest's
// input schema. Reason carries a human-readable path to the offending field.
type ToolInputValidationError struct {
	Tool   string
	Reason string
}

func (e *ToolInputValidationError) Error() string {
	return fmt.Sprintf("tool %q input validation failed: %s", e.Tool, e.Reason)
}
func (e *ToolInputValidationError) validationFailure() {}

// ToolOutputValidationError reports tool output that failed the manifest's
// output schema.
type ToolOutputValidationError struct {
	Tool   string
	Reason string
}

func (e *ToolOutputValidationError) Error() string {
	return fmt.Sprintf("tool %q output validation failed: %s", e.Tool, e.Reason)
}
func (e *ToolOutputValidationError) validationFailure() {}

// ModelOutputValidationError reports a provider response the adapter deemed
// unusable. Not retryable.
type ModelOutputValidationError struct {
	Reason string
}

func (e *ModelOutputValidationError) Error() string {
	return fmt.Sprintf("model output invalid: %s", e.Reason)
}
func (e *ModelOutputValidationError) validationFailure() {}

// ManifestValidationError reports a manifest that violates its invariants.
type ManifestValidationError struct {
	Reason string
}

func (e *ManifestValidationError) Error() string      { return e.Reason }
func (e *ManifestValidationError) validationFailure() {}

// ── Security ─────────────────────────────────────────────────────────────────

// PathTraversalError reports an argument path outside the manifest's
// allow-list. Raised before any subprocess spawns.
type PathTraversalError struct {
	Path   string
	Reason string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("path %q rejected: %s", e.Path, e.Reason)
}
func (e *PathTraversalError) securityFailure() {}

// PermissionDeniedError reports a tool requesting permissions outside the
// configured allow-set.
type PermissionDeniedError struct {
	Tool        string
	Permissions []ToolPermission
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("tool %q requires disallowed permissions: %v", e.Tool, e.Permissions)
}
func (e *PermissionDeniedError) securityFailure() {}

// UnknownToolError reports a tool name absent from the registry.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q not registered", e.Tool)
}
func (e *UnknownToolError) securityFailure() {}

// PromptInjectionWarning is advisory: the kernel records it and continues.
type PromptInjectionWarning struct {
	Field    string
	Patterns []string
}

func (e *PromptInjectionWarning) Error() string {
	return fmt.Sprintf("potential prompt injection in %q, patterns: %v", e.Field, e.Patterns)
}

// SecretNotFoundError reports a required secret missing from the environment.
type SecretNotFoundError struct {
	Key string
}

func (e *SecretNotFoundError) Error() string {
	return fmt.Sprintf("required env var %q not set", e.Key)
}

// SecretInvalidError reports a secret present but implausibly short.
type SecretInvalidError struct {
	Key    string
	Length int
}

func (e *SecretInvalidError) Error() string {
	return fmt.Sprintf("env var %q appears invalid (length %d)", e.Key, e.Length)
}

// ── Sandbox ──────────────────────────────────────────────────────────────────

// ToolTimeoutError reports a tool exceeding its wall-clock budget. The child
// process has been killed by the time this is returned.
type ToolTimeoutError struct {
	Tool           string
	TimeoutSeconds int
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool %q exceeded timeout of %ds", e.Tool, e.TimeoutSeconds)
}
func (e *ToolTimeoutError) sandboxFailure() {}

// ToolSandboxError reports a sandbox protocol failure: non-zero exit,
// missing or malformed output.
type ToolSandboxError struct {
	Tool   string
	Reason string
}

func (e *ToolSandboxError) Error() string {
	return fmt.Sprintf("tool %q sandbox failure: %s", e.Tool, e.Reason)
}
func (e *ToolSandboxError) sandboxFailure() {}

// ── Provider ─────────────────────────────────────────────────────────────────

// ModelProviderError is a retryable provider-side failure.
type ModelProviderError struct {
	Provider   string
	StatusCode int
	Reason     string
}

func (e *ModelProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s error (%d): %s", e.Provider, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("provider %s error: %s", e.Provider, e.Reason)
}
func (e *ModelProviderError) providerFailure() {}

// ModelRateLimitError is a retryable rate-limit response.
type ModelRateLimitError struct {
	Provider string
	Reason   string
}

func (e *ModelRateLimitError) Error() string {
	return fmt.Sprintf("provider %s rate limited: %s", e.Provider, e.Reason)
}
func (e *ModelRateLimitError) providerFailure() {}

// ModelTimeoutError is a retryable connection or deadline failure.
type ModelTimeoutError struct {
	Provider string
	Reason   string
}

func (e *ModelTimeoutError) Error() string {
	return fmt.Sprintf("provider %s timeout: %s", e.Provider, e.Reason)
}
func (e *ModelTimeoutError) providerFailure() {}

// ModelProviderExhaustedError wraps the last retryable error after the
// router's retry budget is spent.
type ModelProviderExhaustedError struct {
	Provider string
	Attempts int
	Last     error
}

func (e *ModelProviderExhaustedError) Error() string {
	return fmt.Sprintf("provider %q failed after %d attempts: %v", e.Provider, e.Attempts, e.Last)
}
func (e *ModelProviderExhaustedError) Unwrap() error    { return e.Last }
func (e *ModelProviderExhaustedError) providerFailure() {}

// CircuitBreakerOpenError reports a request rejected without reaching the
// provider because its breaker is open.
type CircuitBreakerOpenError struct {
	Provider string
}

func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker OPEN for provider %q", e.Provider)
}
func (e *CircuitBreakerOpenError) providerFailure() {}

// UnknownProviderError reports a provider name with no registered adapter.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("provider %q not registered", e.Provider)
}

// ── State ────────────────────────────────────────────────────────────────────

// InvalidStateTransitionError reports a request for an illegal FSM move.
type InvalidStateTransitionError struct {
	From SessionStatus
	To   SessionStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition: %s -> %s", e.From, e.To)
}

// ── Limits ───────────────────────────────────────────────────────────────────

// StepLimitExceededError reports the step budget spent.
type StepLimitExceededError struct {
	MaxSteps int
}

func (e *StepLimitExceededError) Error() string {
	return fmt.Sprintf("exceeded max_steps=%d", e.MaxSteps)
}
func (e *StepLimitExceededError) limitFailure() {}

// CostBudgetExceededError reports the cost budget spent.
type CostBudgetExceededError struct {
	CostUSD   float64
	BudgetUSD float64
}

func (e *CostBudgetExceededError) Error() string {
	return fmt.Sprintf("cost $%.4f exceeded budget $%.2f", e.CostUSD, e.BudgetUSD)
}
func (e *CostBudgetExceededError) limitFailure() {}

// ── Storage ──────────────────────────────────────────────────────────────────

// AuditWriteFailureError is fatal: the process must not continue with a
// broken audit trail. The kernel re-raises it to its caller.
type AuditWriteFailureError struct {
	Op    string
	Cause error
}

func (e *AuditWriteFailureError) Error() string {
	return fmt.Sprintf("audit write failed (%s): %v", e.Op, e.Cause)
}
func (e *AuditWriteFailureError) Unwrap() error   { return e.Cause }
func (e *AuditWriteFailureError) storageFailure() {}

// MemoryCorruptionError reports a failed read or integrity check.
type MemoryCorruptionError struct {
	Op    string
	Cause error
}

func (e *MemoryCorruptionError) Error() string {
	return fmt.Sprintf("storage corruption (%s): %v", e.Op, e.Cause)
}
func (e *MemoryCorruptionError) Unwrap() error   { return e.Cause }
func (e *MemoryCorruptionError) storageFailure() {}

// ErrorTypeName returns the bare type name used in session rows, audit
// payloads, and the CLI. It intentionally matches the taxonomy names in the
// design documentation rather than Go's package-qualified type syntax.
func ErrorTypeName(err error) string {
	switch err.(type) {
	case *ToolInputValidationError:
		return "ToolInputValidation"
	case *ToolOutputValidationError:
		return "ToolOutputValidation"
	case *ModelOutputValidationError:
		return "ModelOutputValidation"
	case *ManifestValidationError:
		return "ManifestValidation"
	case *PathTraversalError:
		return "PathTraversal"
	case *PermissionDeniedError:
		return "PermissionDenied"
	case *UnknownToolError:
		return "UnknownTool"
	case *PromptInjectionWarning:
		return "PromptInjectionWarning"
	case *SecretNotFoundError:
		return "SecretNotFound"
	case *SecretInvalidError:
		return "SecretInvalid"
	case *ToolTimeoutError:
		return "ToolTimeout"
	case *ToolSandboxError:
		return "ToolSandbox"
	case *ModelProviderError:
		return "ModelProviderError"
	case *ModelRateLimitError:
		return "ModelRateLimit"
	case *ModelTimeoutError:
		return "ModelTimeout"
	case *ModelProviderExhaustedError:
		return "ModelProviderExhausted"
	case *CircuitBreakerOpenError:
		return "CircuitBreakerOpen"
	case *UnknownProviderError:
		return "UnknownProvider"
	case *InvalidStateTransitionError:
		return "InvalidStateTransition"
	case *StepLimitExceededError:
		return "StepLimitExceeded"
	case *CostBudgetExceededError:
		return "CostBudgetExceeded"
	case *AuditWriteFailureError:
		return "AuditWriteFailure"
	case *MemoryCorruptionError:
		return "MemoryCorruption"
	default:
		return fmt.Sprintf("%T", err)
	}
}
