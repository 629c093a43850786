// Package main provides the CLI entry point for the ARIA agent runtime.
//
// ARIA runs one task at a time through a reasoning loop between a language
// model and a registry of sandboxed tools, recording a hash-chained audit
// trail of every decision.
//
// # Basic Usage
//
// Run a task:
//
//	aria run --task "Summarize the README in the workspace"
//
// Inspect the audit trail:
//
//	aria audit list
//	aria audit export --session-id <uuid>
//	aria audit verify --session-id <uuid>
//
// # Environment Variables
//
//   - ARIA_CONFIG: path to a YAML configuration file
//   - ARIA_PROVIDER / ARIA_MODEL: default provider and model
//   - ARIA_MAX_STEPS / ARIA_MAX_COST_USD: session budgets
//   - ARIA_DB_PATH / ARIA_LOG_PATH: storage locations
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: provider credentials
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// A .env next to the binary is a convenience for local runs; absence is
	// not an error.
	_ = godotenv.Load()

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aria",
		Short:         "Local-first agent runtime with a tamper-evident audit trail",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		buildRunCmd(),
		buildAuditCmd(),
		buildToolsCmd(),
		buildConfigCmd(),
	)
	return root
}
