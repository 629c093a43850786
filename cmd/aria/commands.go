// commands.go contains the cobra command definitions and their flag wiring.
// Each builder creates a command and delegates to its handler.
package main

import (
	"github.com/spf13/cobra"
)

func buildRunCmd() *cobra.Command {
	var (
		task       string
		configPath string
		provider   string
		model      string
		maxSteps   int
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a task through the agent kernel",
		Example: `  # Run against the configured default provider
  aria run --task "List the files in the workspace and summarize them"

  # Override provider and model for this run
  aria run --task "..." --provider anthropic --model claude-sonnet-4-6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), runOptions{
				Task:       task,
				ConfigPath: configPath,
				Provider:   provider,
				Model:      model,
				MaxSteps:   maxSteps,
				JSON:       jsonOut,
			})
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "Task text (required, 1-4096 characters)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider override for this run")
	cmd.Flags().StringVar(&model, "model", "", "Model override for this run")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Step budget override for this run")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the session result as JSON")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func buildAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and verify the audit trail",
	}
	cmd.AddCommand(buildAuditListCmd(), buildAuditExportCmd(), buildAuditVerifyCmd())
	return cmd
}

func buildAuditListCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return auditList(configPath, limit)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list")
	return cmd
}

func buildAuditExportCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a session's audit events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return auditExport(configPath, sessionID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session to export (required)")
	_ = cmd.MarkFlagRequired("session-id")
	return cmd
}

func buildAuditVerifyCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute a session's hash chain and report tampering",
		RunE: func(cmd *cobra.Command, args []string) error {
			return auditVerify(configPath, sessionID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session to verify (required)")
	_ = cmd.MarkFlagRequired("session-id")
	return cmd
}

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage the tool registry",
	}

	var configPath string
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered tools and their manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return toolsList(configPath)
		},
	}
	list.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.AddCommand(list)
	return cmd
}

func buildConfigCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration (secrets scrubbed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
