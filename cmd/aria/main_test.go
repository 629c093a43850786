package main

import (
	"testing"
)

func TestRootCommandTree(t *testing.T) {
	root := buildRootCmd()

	want := map[string]bool{"run": false, "audit": false, "tools": false, "config": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q missing", name)
		}
	}
}

func TestAuditSubcommands(t *testing.T) {
	audit := buildAuditCmd()
	want := map[string]bool{"list": false, "export": false, "verify": false}
	for _, cmd := range audit.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("audit subcommand %q missing", name)
		}
	}
}

func TestRunRequiresTask(t *testing.T) {
	root := buildRootCmd()
	root.SetArgs([]string{"run"})
	if err := root.Execute(); err == nil {
		t.Fatal("run without --task must fail")
	}
}

func TestResolveRunnerPathExplicit(t *testing.T) {
	cfg := testKernelConfig()
	cfg.RunnerPath = "/opt/aria/aria-tool-runner"
	got, err := resolveRunnerPath(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got != cfg.RunnerPath {
		t.Fatalf("runner path = %s", got)
	}
}
