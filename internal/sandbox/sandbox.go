package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Shivay00001/aria-runtime/internal/observability"
	"github.com/Shivay00001/aria-runtime/pkg/models"
	"github.com/Shivay00001/aria-runtime/pkg/toolsdk"
)

// maxStderrBytes bounds captured child stderr in error messages.
const maxStderrBytes = 500

// Runner executes tools in the aria-tool-runner child process. The spawn
// never goes through a shell: the command is an argv list and the payload
// travels over stdin.
type Runner struct {
	// RunnerPath is the aria-tool-runner binary.
	RunnerPath string

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewRunner creates a sandbox runner.
func NewRunner(runnerPath string, logger *observability.Logger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = observability.Nop()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Runner{RunnerPath: runnerPath, Logger: logger, Metrics: metrics}
}

// RunTool validates arguments and executes the tool. In-child failures come
// back as ToolResult{Ok: false}; host-enforced failures (validation,
// traversal, timeout, sandbox crash) are returned as errors for the kernel
// to classify.
func (r *Runner) RunTool(ctx context.Context, manifest models.ToolManifest, arguments map[string]any, locator string) (models.ToolResult, error) {
	started := time.Now()

	if err := ValidateInput(arguments, manifest); err != nil {
		return models.ToolResult{}, err
	}
	if err := ValidatePaths(arguments, manifest); err != nil {
		return models.ToolResult{}, err
	}

	payload, err := json.Marshal(toolsdk.RunnerPayload{
		Locator:     locator,
		Input:       arguments,
		MaxMemoryMB: manifest.MaxMemoryMB,
	})
	if err != nil {
		return models.ToolResult{}, &models.ToolSandboxError{Tool: manifest.Name, Reason: fmt.Sprintf("payload encode: %v", err)}
	}

	timeout := time.Duration(manifest.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.Logger.Debug("sandbox spawn", "tool", manifest.Name, "timeout_s", manifest.TimeoutSeconds)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.RunnerPath)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	elapsed := time.Since(started)
	durationMS := elapsed.Milliseconds()
	r.Metrics.ToolExecutionDuration.WithLabelValues(manifest.Name).Observe(elapsed.Seconds())

	if runCtx.Err() == context.DeadlineExceeded {
		r.Metrics.ToolExecutionCounter.WithLabelValues(manifest.Name, "error").Inc()
		r.Logger.Error("sandbox timeout", "tool", manifest.Name, "elapsed_ms", durationMS)
		return models.ToolResult{}, &models.ToolTimeoutError{Tool: manifest.Name, TimeoutSeconds: manifest.TimeoutSeconds}
	}
	if runErr != nil {
		r.Metrics.ToolExecutionCounter.WithLabelValues(manifest.Name, "error").Inc()
		r.Logger.Error("sandbox crash", "tool", manifest.Name, "error", runErr.Error())
		return models.ToolResult{}, &models.ToolSandboxError{
			Tool:   manifest.Name,
			Reason: fmt.Sprintf("child failed (%v), stderr: %s", runErr, truncate(stderr.String(), maxStderrBytes)),
		}
	}

	line := strings.TrimSpace(stdout.String())
	if line == "" {
		return models.ToolResult{}, &models.ToolSandboxError{Tool: manifest.Name, Reason: "produced no output"}
	}

	var result toolsdk.RunnerResult
	if err := json.Unmarshal([]byte(line), &result); err != nil {
		return models.ToolResult{}, &models.ToolSandboxError{Tool: manifest.Name, Reason: fmt.Sprintf("malformed JSON output: %v", err)}
	}

	if !result.Ok {
		r.Metrics.ToolExecutionCounter.WithLabelValues(manifest.Name, "error").Inc()
		msg := result.Error
		if msg == "" {
			msg = "unknown error"
		}
		return models.ToolResult{
			Ok:           false,
			ToolName:     manifest.Name,
			ErrorType:    "ToolExecutionError",
			ErrorMessage: msg,
			DurationMS:   durationMS,
		}, nil
	}

	data := result.Data
	if data == nil {
		data = map[string]any{}
	}
	if err := ValidateOutput(data, manifest); err != nil {
		r.Metrics.ToolExecutionCounter.WithLabelValues(manifest.Name, "error").Inc()
		return models.ToolResult{}, err
	}

	r.Metrics.ToolExecutionCounter.WithLabelValues(manifest.Name, "success").Inc()
	return models.ToolResult{
		Ok:         true,
		ToolName:   manifest.Name,
		Data:       data,
		DurationMS: durationMS,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
