// Package config builds the immutable KernelConfig from defaults, an
// optional YAML file, and ARIA_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// Environment variable names recognized by Load.
const (
	EnvConfigPath    = "ARIA_CONFIG"
	EnvProvider      = "ARIA_PROVIDER"
	EnvModel         = "ARIA_MODEL"
	EnvFallbackProv  = "ARIA_FALLBACK_PROVIDER"
	EnvFallbackModel = "ARIA_FALLBACK_MODEL"
	EnvMaxSteps      = "ARIA_MAX_STEPS"
	EnvMaxCostUSD    = "ARIA_MAX_COST_USD"
	EnvPermissions   = "ARIA_ALLOWED_PERMISSIONS"
	EnvPluginDirs    = "ARIA_PLUGIN_DIRS"
	EnvDBPath        = "ARIA_DB_PATH"
	EnvLogPath       = "ARIA_LOG_PATH"
	EnvLogLevel      = "ARIA_LOG_LEVEL"
	EnvRunnerPath    = "ARIA_RUNNER_PATH"
	EnvWorkspaceDir  = "ARIA_WORKSPACE_DIR"
	EnvOllamaBaseURL = "ARIA_OLLAMA_BASE_URL"
	EnvOpenAIBaseURL = "ARIA_OPENAI_BASE_URL"
)

// DefaultOllamaBaseURL is the conventional local endpoint, spoken through
// the OpenAI-compatible adapter.
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// Default returns the local-first defaults: a local model endpoint, modest
// budgets, and filesystem-only tool permissions.
func Default() models.KernelConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".aria")
	return models.KernelConfig{
		PrimaryProvider: "ollama",
		PrimaryModel:    "llama3.1",
		MaxSteps:        20,
		MaxCostUSD:      1.0,
		AllowedPermissions: []models.ToolPermission{
			models.PermissionNone,
			models.PermissionFSRead,
			models.PermissionFSWrite,
		},
		DBPath:       filepath.Join(base, "aria.db"),
		LogPath:      filepath.Join(base, "logs", "aria.jsonl"),
		LogLevel:     "INFO",
		WorkspaceDir: filepath.Join(base, "workspace"),
	}
}

// Load builds the runtime configuration. A YAML file named by ARIA_CONFIG
// (or the explicit path argument, which wins) is merged over the defaults,
// then environment variables override individual fields.
func Load(configPath string) (models.KernelConfig, error) {
	cfg := Default()

	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return models.KernelConfig{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return models.KernelConfig{}, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		return models.KernelConfig{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *models.KernelConfig) {
	if v := os.Getenv(EnvProvider); v != "" {
		cfg.PrimaryProvider = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.PrimaryModel = v
	}
	if v := os.Getenv(EnvFallbackProv); v != "" {
		cfg.FallbackProvider = v
	}
	if v := os.Getenv(EnvFallbackModel); v != "" {
		cfg.FallbackModel = v
	}
	if v := os.Getenv(EnvMaxSteps); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSteps = n
		}
	}
	if v := os.Getenv(EnvMaxCostUSD); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxCostUSD = f
		}
	}
	if v := os.Getenv(EnvPermissions); v != "" {
		var perms []models.ToolPermission
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				perms = append(perms, models.ToolPermission(p))
			}
		}
		cfg.AllowedPermissions = perms
	}
	if v := os.Getenv(EnvPluginDirs); v != "" {
		cfg.PluginDirs = filepath.SplitList(v)
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvLogPath); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvRunnerPath); v != "" {
		cfg.RunnerPath = v
	}
	if v := os.Getenv(EnvWorkspaceDir); v != "" {
		cfg.WorkspaceDir = v
	}
}

func validate(cfg models.KernelConfig) error {
	if cfg.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", cfg.MaxSteps)
	}
	if cfg.MaxCostUSD < 0 {
		return fmt.Errorf("max_cost_usd must be non-negative, got %f", cfg.MaxCostUSD)
	}
	for _, dir := range cfg.PluginDirs {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("plugin dir must be absolute, got %q", dir)
		}
	}
	return nil
}
