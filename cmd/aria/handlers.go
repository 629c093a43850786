// handlers.go implements the command handlers: kernel assembly for run, and
// the audit/tools/config inspection paths.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Shivay00001/aria-runtime/internal/config"
	"github.com/Shivay00001/aria-runtime/internal/kernel"
	"github.com/Shivay00001/aria-runtime/internal/observability"
	"github.com/Shivay00001/aria-runtime/internal/providers"
	"github.com/Shivay00001/aria-runtime/internal/registry"
	"github.com/Shivay00001/aria-runtime/internal/router"
	"github.com/Shivay00001/aria-runtime/internal/sandbox"
	"github.com/Shivay00001/aria-runtime/internal/security"
	"github.com/Shivay00001/aria-runtime/internal/store"
	"github.com/Shivay00001/aria-runtime/pkg/models"
)

type runOptions struct {
	Task       string
	ConfigPath string
	Provider   string
	Model      string
	MaxSteps   int
	JSON       bool
}

// runTask assembles the kernel and executes one session.
func runTask(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	reg, err := registry.Build(cfg, logger)
	if err != nil {
		return err
	}

	provs, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	rt, err := router.New(provs, logger, metrics)
	if err != nil {
		return err
	}

	runnerPath, err := resolveRunnerPath(cfg)
	if err != nil {
		return err
	}
	box := sandbox.NewRunner(runnerPath, logger, metrics)

	k := kernel.New(kernel.Options{
		Router:   rt,
		Registry: reg,
		Storage:  st,
		Sandbox:  box,
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		ProviderFor: func(name string) kernel.CostCalculator {
			p, ok := rt.Provider(name)
			if !ok {
				return nil
			}
			calc, ok := p.(kernel.CostCalculator)
			if !ok {
				return nil
			}
			return calc
		},
	})

	request, err := models.NewSessionRequest(opts.Task)
	if err != nil {
		return err
	}
	request.ProviderOverride = opts.Provider
	request.ModelOverride = opts.Model
	request.MaxStepsOverride = opts.MaxSteps

	result, err := k.Run(ctx, request)
	if err != nil {
		// Only audit-write failures propagate; nothing can be trusted after
		// one, so report and bail.
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return err
	}

	if opts.JSON {
		encoded, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(encoded))
	} else {
		printResult(result)
	}

	if result.Status != models.SessionDone {
		return fmt.Errorf("session %s: %s", result.SessionID, result.Status)
	}
	return nil
}

func printResult(result models.SessionResult) {
	fmt.Printf("session:  %s\n", result.SessionID)
	fmt.Printf("status:   %s\n", result.Status)
	fmt.Printf("steps:    %d\n", result.StepsTaken)
	fmt.Printf("cost:     $%.6f\n", result.TotalCostUSD)
	fmt.Printf("duration: %dms\n", result.DurationMS)
	if result.Answer != "" {
		fmt.Printf("\n%s\n", result.Answer)
	}
	if result.ErrorType != "" {
		fmt.Printf("\nerror: %s: %s\n", result.ErrorType, result.ErrorMessage)
		fmt.Printf("export the audit trail with: aria audit export --session-id %s\n", result.SessionID)
	}
}

// buildProviders wires every provider the configuration has credentials for.
// The primary provider must be among them.
func buildProviders(cfg models.KernelConfig) ([]providers.Provider, error) {
	var out []providers.Provider
	secrets := security.Secrets()

	if key, err := secrets.Require("ANTHROPIC_API_KEY", 8); err == nil {
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: key})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	if key, err := secrets.Require("OPENAI_API_KEY", 8); err == nil {
		p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:  key,
			BaseURL: secrets.Optional(config.EnvOpenAIBaseURL, ""),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	// The local endpoint needs no real key.
	ollama, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
		APIKey:  "ollama",
		BaseURL: secrets.Optional(config.EnvOllamaBaseURL, config.DefaultOllamaBaseURL),
		Name:    "ollama",
	})
	if err != nil {
		return nil, err
	}
	out = append(out, ollama)

	found := false
	for _, p := range out {
		if p.Name() == cfg.PrimaryProvider {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("no credentials for primary provider %q (set the provider API key or choose another with ARIA_PROVIDER)", cfg.PrimaryProvider)
	}
	return out, nil
}

// resolveRunnerPath finds the aria-tool-runner binary: explicit config wins,
// then a sibling of the current executable, then PATH.
func resolveRunnerPath(cfg models.KernelConfig) (string, error) {
	if cfg.RunnerPath != "" {
		return cfg.RunnerPath, nil
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "aria-tool-runner")
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	if found, err := exec.LookPath("aria-tool-runner"); err == nil {
		return found, nil
	}
	return "", fmt.Errorf("aria-tool-runner binary not found; install it next to aria or set runner_path")
}

func newLogger(cfg models.KernelConfig) *observability.Logger {
	output := os.Stderr
	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o750); err == nil {
			if f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640); err == nil {
				output = f
			}
		}
	}
	return observability.NewLogger(observability.LogConfig{
		Level:        cfg.LogLevel,
		Format:       "json",
		Output:       output,
		KnownSecrets: security.Secrets().KnownValues(),
	})
}

func openStore(configPath string) (*store.Store, models.KernelConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, models.KernelConfig{}, err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, models.KernelConfig{}, err
	}
	return st, cfg, nil
}

func auditList(configPath string, limit int) error {
	st, _, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}
	for _, s := range sessions {
		line := fmt.Sprintf("%s  %-9s  steps=%-3d  cost=$%.4f  %s",
			s.SessionID, s.Status, s.TotalSteps, s.TotalCostUSD, s.StartedAt)
		if s.ErrorType != "" {
			line += "  error=" + s.ErrorType
		}
		fmt.Println(line)
	}
	return nil
}

func auditExport(configPath, sessionID string) error {
	st, _, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.GetSessionEvents(sessionID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range events {
		if err := enc.Encode(map[string]any{
			"event_id":   e.EventID,
			"session_id": e.SessionID,
			"step_id":    e.StepID,
			"event_type": e.EventType,
			"level":      e.Level,
			"payload":    e.Payload,
			"chain_hash": e.ChainHash,
			"timestamp":  e.Timestamp,
		}); err != nil {
			return err
		}
	}
	return nil
}

func auditVerify(configPath, sessionID string) error {
	st, _, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.VerifyChain(sessionID) {
		fmt.Printf("session %s: chain intact\n", sessionID)
		return nil
	}
	return fmt.Errorf("session %s: CHAIN BROKEN - audit trail has been tampered with or corrupted", sessionID)
}

func toolsList(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	reg, err := registry.Build(cfg, observability.Nop())
	if err != nil {
		return err
	}
	for _, m := range reg.AllManifests() {
		perms := make([]string, 0, len(m.Permissions))
		for _, p := range m.Permissions {
			perms = append(perms, string(p))
		}
		fmt.Printf("%s v%s  timeout=%ds mem=%dMB perms=%v\n    %s\n",
			m.Name, m.Version, m.TimeoutSeconds, m.MaxMemoryMB, perms, m.Description)
	}
	return nil
}

func showConfig(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	var asMap map[string]any
	if err := json.Unmarshal(encoded, &asMap); err != nil {
		return err
	}
	scrubbed := security.ScrubRecord(asMap, security.Secrets().KnownValues())
	out, err := json.MarshalIndent(scrubbed, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
