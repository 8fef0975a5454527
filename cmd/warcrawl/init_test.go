package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/warcrawl/internal/config"
)

func runInit(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewInitCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// TestNewInitCmd tests the init command creation.
func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()
	if cmd.Use != "init" {
		t.Errorf("expected use 'init', got %q", cmd.Use)
	}
	for _, name := range []string{"output", "force", "plan"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

func TestInitWritesConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", configFileName)
	out, err := runInit(t, "-o", path)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, "Created "+path) {
		t.Errorf("unexpected output: %s", out)
	}

	// The template must load and validate as-is.
	cfg, err := config.Load(config.NewViper(), path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("template does not validate: %v", err)
	}
	if cfg.BatchSize != config.DefaultBatchSize {
		t.Errorf("expected batch size %d, got %d", config.DefaultBatchSize, cfg.BatchSize)
	}
	if len(cfg.BlockedCIDRs) == 0 {
		t.Error("expected the template to block private networks")
	}
}

func TestInitWritesPlan(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), planFileName)
	if _, err := runInit(t, "--plan", "-o", path); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	plan, err := config.LoadPlan(path)
	if err != nil {
		t.Fatalf("plan template does not load: %v", err)
	}
	specs, err := plan.Specs(config.DefaultDepth)
	if err != nil {
		t.Fatalf("plan template is invalid: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 domains, got %d", len(specs))
	}
	if specs[1].Depth != 500 {
		t.Errorf("expected depth override 500, got %d", specs[1].Depth)
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte("depth: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := runInit(t, "-o", path); err == nil {
		t.Fatal("expected an error for an existing file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "depth: 1\n" {
		t.Error("existing file was modified")
	}

	if _, err := runInit(t, "-f", "-o", path); err != nil {
		t.Fatalf("forced init failed: %v", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "warcrawl configuration file") {
		t.Error("file was not overwritten with the template")
	}
}
