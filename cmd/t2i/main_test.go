package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"login", "models", "select", "probe", "find-models", "generate", "cors-check"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestModelsCommandListsCatalog(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("T2I_STORE_PATH", dir+"/state.yaml")
	t.Setenv("T2I_TOKEN", "")
	t.Setenv("HF_TOKEN", "")

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"models", "--log-level", "error"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "dataautogpt3/ProteusV0.2") {
		t.Fatalf("output=%q", out.String())
	}
}

func TestSelectPersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("T2I_STORE_PATH", dir+"/state.yaml")

	run := func(args ...string) string {
		t.Helper()
		cmd := buildRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--log-level", "error"))
		if err := cmd.Execute(); err != nil {
			t.Fatal(err)
		}
		return out.String()
	}

	run("select", "2")
	out := run("models")
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "*") && !strings.Contains(line, "dreamlike-art/dreamlike-photoreal-2.0") {
			t.Fatalf("wrong selection: %q", line)
		}
	}
	if !strings.Contains(out, "*") {
		t.Fatalf("no selection marked: %q", out)
	}
}

func TestProbeRequiresToken(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("T2I_STORE_PATH", dir+"/state.yaml")
	t.Setenv("T2I_TOKEN", "")
	t.Setenv("HF_TOKEN", "")

	cmd := buildRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"probe", "--log-level", "error"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "no API token") {
		t.Fatalf("err=%v", err)
	}
}
