// Package models defines the shared data contracts of the ARIA runtime:
// sessions, messages, tool manifests, step traces, audit events, and the
// typed error taxonomy. Everything here is a value object — once constructed,
// records are observed by multiple subsystems without locking. The single
// exception is StepTrace, which is owned by the kernel until it is handed to
// the audit store.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a session. Transitions are
// enforced by the fsm package; see its transition table.
type SessionStatus string

const (
	SessionIdle      SessionStatus = "IDLE"
	SessionRunning   SessionStatus = "RUNNING"
	SessionWaiting   SessionStatus = "WAITING"
	SessionDone      SessionStatus = "DONE"
	SessionFailed    SessionStatus = "FAILED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionDone || s == SessionFailed || s == SessionCancelled
}

// StepType categorizes a kernel step.
type StepType string

const (
	StepModelCall   StepType = "model_call"
	StepToolCall    StepType = "tool_call"
	StepFinalAnswer StepType = "final_answer"
)

// StepStatus is the lifecycle state of a step trace.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ToolPermission is a capability a tool declares in its manifest and the
// runtime grants (or refuses) in KernelConfig.AllowedPermissions.
type ToolPermission string

const (
	PermissionNone    ToolPermission = "none"
	PermissionFSRead  ToolPermission = "fs_read"
	PermissionFSWrite ToolPermission = "fs_write"
	PermissionNetwork ToolPermission = "network"
	PermissionShell   ToolPermission = "shell"
)

// ActionType distinguishes the two possible model responses.
type ActionType string

const (
	ActionToolCall    ActionType = "tool_call"
	ActionFinalAnswer ActionType = "final_answer"
)

// MessageRole is the conversational role of a Message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// LogLevel is the severity attached to an audit event.
type LogLevel string

const (
	LevelDebug    LogLevel = "DEBUG"
	LevelInfo     LogLevel = "INFO"
	LevelWarn     LogLevel = "WARN"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// NewID returns a fresh UUID string.
func NewID() string { return uuid.NewString() }

// UTCNow returns the current time in UTC formatted as RFC3339Nano. All
// persisted timestamps use this format so lexicographic order matches
// chronological order.
func UTCNow() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// SHA256Hex returns the SHA-256 digest of s as lowercase hex.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ChainSeed is the initial value of every hash chain: 64 hex zeros.
const ChainSeed = "0000000000000000000000000000000000000000000000000000000000000000"

var (
	toolNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)
	semverRe   = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// ToolManifest is the static declaration of a tool: identity, capability
// requirements, resource limits, and I/O schemas. Manifests are validated at
// construction via Validate and are immutable afterwards.
type ToolManifest struct {
	Name           string           `json:"name"`
	Version        string           `json:"version"`
	Description    string           `json:"description"`
	Permissions    []ToolPermission `json:"permissions"`
	TimeoutSeconds int              `json:"timeout_seconds"`
	MaxMemoryMB    int              `json:"max_memory_mb"`
	InputSchema    map[string]any   `json:"input_schema"`
	OutputSchema   map[string]any   `json:"output_schema"`
	AllowedPaths   []string         `json:"allowed_paths,omitempty"`
}

// Validate checks the manifest invariants. Any violation is a
// ManifestValidationError.
func (m ToolManifest) Validate() error {
	if !toolNameRe.MatchString(m.Name) {
		return &ManifestValidationError{Reason: fmt.Sprintf("tool name %q invalid (must match [a-z][a-z0-9_]{1,63})", m.Name)}
	}
	if !semverRe.MatchString(m.Version) {
		return &ManifestValidationError{Reason: fmt.Sprintf("version %q invalid (must be semver like 1.0.0)", m.Version)}
	}
	if len(m.Description) < 10 {
		return &ManifestValidationError{Reason: "description must be at least 10 characters"}
	}
	if m.TimeoutSeconds < 1 || m.TimeoutSeconds > 300 {
		return &ManifestValidationError{Reason: "timeout_seconds must be 1-300"}
	}
	if m.MaxMemoryMB < 32 || m.MaxMemoryMB > 2048 {
		return &ManifestValidationError{Reason: "max_memory_mb must be 32-2048"}
	}
	for _, p := range m.AllowedPaths {
		if !filepath.IsAbs(p) {
			return &ManifestValidationError{Reason: fmt.Sprintf("allowed_paths must be absolute, got %q", p)}
		}
	}
	return nil
}

// HasPermission reports whether the manifest declares p.
func (m ToolManifest) HasPermission(p ToolPermission) bool {
	for _, q := range m.Permissions {
		if q == p {
			return true
		}
	}
	return false
}

// DisallowedPermissions returns the manifest permissions absent from allowed.
func (m ToolManifest) DisallowedPermissions(allowed []ToolPermission) []ToolPermission {
	set := make(map[ToolPermission]bool, len(allowed))
	for _, p := range allowed {
		set[p] = true
	}
	var out []ToolPermission
	for _, p := range m.Permissions {
		if !set[p] {
			out = append(out, p)
		}
	}
	return out
}

// KernelConfig is the immutable runtime configuration. Created at process
// start; never mutated.
type KernelConfig struct {
	PrimaryProvider    string           `json:"primary_provider" yaml:"primary_provider"`
	PrimaryModel       string           `json:"primary_model" yaml:"primary_model"`
	FallbackProvider   string           `json:"fallback_provider,omitempty" yaml:"fallback_provider"`
	FallbackModel      string           `json:"fallback_model,omitempty" yaml:"fallback_model"`
	MaxSteps           int              `json:"max_steps" yaml:"max_steps"`
	MaxCostUSD         float64          `json:"max_cost_usd" yaml:"max_cost_usd"`
	AllowedPermissions []ToolPermission `json:"allowed_permissions" yaml:"allowed_permissions"`
	PluginDirs         []string         `json:"plugin_dirs,omitempty" yaml:"plugin_dirs"`
	DBPath             string           `json:"db_path" yaml:"db_path"`
	LogPath            string           `json:"log_path" yaml:"log_path"`
	LogLevel           string           `json:"log_level" yaml:"log_level"`
	RunnerPath         string           `json:"runner_path,omitempty" yaml:"runner_path"`
	WorkspaceDir       string           `json:"workspace_dir,omitempty" yaml:"workspace_dir"`
}

// Snapshot serializes the budget-relevant fields for the session row. Secrets
// never appear in KernelConfig, so the snapshot is safe to persist verbatim.
func (c KernelConfig) Snapshot() string {
	b, _ := json.Marshal(map[string]any{
		"primary_provider": c.PrimaryProvider,
		"primary_model":    c.PrimaryModel,
		"max_steps":        c.MaxSteps,
		"max_cost_usd":     c.MaxCostUSD,
		"log_level":        c.LogLevel,
	})
	return string(b)
}

// SessionRequest describes one task submitted to the kernel.
type SessionRequest struct {
	Task             string
	SessionID        string
	ProviderOverride string
	ModelOverride    string
	MaxStepsOverride int
}

// NewSessionRequest validates the task text and assigns a session id.
// Task must be 1-4096 characters and not all whitespace.
func NewSessionRequest(task string) (SessionRequest, error) {
	if err := validateTask(task); err != nil {
		return SessionRequest{}, err
	}
	return SessionRequest{Task: task, SessionID: NewID()}, nil
}

func validateTask(task string) error {
	trimmed := false
	for _, r := range task {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			trimmed = true
			break
		}
	}
	if task == "" || !trimmed {
		return fmt.Errorf("task must not be empty")
	}
	if len(task) > 4096 {
		return fmt.Errorf("task too long (max 4096 characters)")
	}
	return nil
}

// SessionResult is returned by the kernel for every run, terminal error or
// not. Answer is set only when Status is DONE.
type SessionResult struct {
	SessionID    string        `json:"session_id"`
	Status       SessionStatus `json:"status"`
	Answer       string        `json:"answer,omitempty"`
	StepsTaken   int           `json:"steps_taken"`
	TotalCostUSD float64       `json:"total_cost_usd"`
	DurationMS   int64         `json:"duration_ms"`
	ErrorType    string        `json:"error_type,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Message is one entry in a session's conversation history. The history is
// append-only for the session's lifetime.
type Message struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	ToolName   string      `json:"tool_name,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

// ToolCallRequest is the model's request to invoke a tool.
type ToolCallRequest struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
}

// ToolResult is the outcome of one sandboxed tool execution. Ok=false with
// ErrorType/ErrorMessage set means the tool itself failed; the kernel feeds
// that back to the model rather than aborting the session.
type ToolResult struct {
	Ok           bool           `json:"ok"`
	ToolName     string         `json:"tool_name"`
	ToolCallID   string         `json:"tool_call_id"`
	Data         map[string]any `json:"data,omitempty"`
	ErrorType    string         `json:"error_type,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
}

// StepTrace records one kernel step. It is mutable until finalized by
// WriteStepEnd; the kernel is its sole owner before that point.
type StepTrace struct {
	StepID          string
	SessionID       string
	StepNumber      int
	StepType        StepType
	Status          StepStatus
	PromptHash      string
	ModelOutputHash string
	ToolName        string
	ToolInputJSON   string
	ToolOutputJSON  string
	InputTokens     int
	OutputTokens    int
	CostUSD         float64
	DurationMS      int64
	StartedAt       string
	FinishedAt      string
	AuditChainHash  string
}

// NewStepTrace creates a started trace with a fresh id and timestamp.
func NewStepTrace(sessionID string, stepNumber int, stepType StepType) *StepTrace {
	return &StepTrace{
		StepID:     NewID(),
		SessionID:  sessionID,
		StepNumber: stepNumber,
		StepType:   stepType,
		Status:     StepStarted,
		StartedAt:  UTCNow(),
	}
}

// AuditEvent is one immutable entry on the tamper-evident event chain.
type AuditEvent struct {
	EventID   string
	SessionID string
	StepID    string
	EventType string
	Level     LogLevel
	Payload   map[string]any
	ChainHash string
	Timestamp string
}

// NewAuditEvent builds an event with a fresh id and timestamp. StepID may be
// empty for session-level events.
func NewAuditEvent(sessionID, stepID, eventType string, level LogLevel, payload map[string]any) AuditEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	return AuditEvent{
		EventID:   NewID(),
		SessionID: sessionID,
		StepID:    stepID,
		EventType: eventType,
		Level:     level,
		Payload:   payload,
		Timestamp: UTCNow(),
	}
}

// Session is the persistent session row.
type Session struct {
	SessionID    string        `json:"session_id"`
	Task         string        `json:"task"`
	Status       SessionStatus `json:"status"`
	ConfigJSON   string        `json:"config_json"`
	StartedAt    string        `json:"started_at"`
	FinishedAt   string        `json:"finished_at,omitempty"`
	TotalSteps   int           `json:"total_steps"`
	TotalCostUSD float64       `json:"total_cost_usd"`
	ErrorType    string        `json:"error_type,omitempty"`
	ErrorMsg     string        `json:"error_msg,omitempty"`
}

// PromptRequest is the router's input: the full conversation, the system
// prompt, and the tool manifests visible to the model.
type PromptRequest struct {
	Messages     []Message
	SystemPrompt string
	Tools        []ToolManifest
	Provider     string
	Model        string
	SessionID    string
	StepNumber   int
	Temperature  float64
	MaxTokens    int
}

// RawModelResponse carries exactly one of a tool call or a final answer,
// plus token counts and a hash of the provider's canonical envelope.
type RawModelResponse struct {
	Action          ActionType
	ToolCall        *ToolCallRequest
	FinalAnswer     string
	InputTokens     int
	OutputTokens    int
	Model           string
	Provider        string
	RawResponseHash string
}

// Validate enforces the action/payload pairing.
func (r RawModelResponse) Validate() error {
	switch r.Action {
	case ActionToolCall:
		if r.ToolCall == nil {
			return fmt.Errorf("action=tool_call requires tool_call to be set")
		}
	case ActionFinalAnswer:
		if r.FinalAnswer == "" {
			return fmt.Errorf("action=final_answer requires final_answer to be non-empty")
		}
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}
