package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

//go:embed templates/warcrawl.yaml templates/plan.yaml
var templates embed.FS

// Default file names written by init.
const (
	configFileName = "warcrawl.yaml"
	planFileName   = "plan.yaml"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a warcrawl configuration file or crawl plan",
		Long: `Init writes a commented warcrawl.yaml with every setting at its default.
With --plan it writes an example crawl plan instead.

Examples:
  # Create warcrawl.yaml in the current directory
  warcrawl init

  # Create a crawl plan
  warcrawl init --plan

  # Create the configuration at a specific path
  warcrawl init -o ~/.config/warcrawl/warcrawl.yaml

  # Force overwrite an existing file
  warcrawl init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", "",
		"Output file path (default: warcrawl.yaml, or plan.yaml with --plan)")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite an existing file")
	cmd.Flags().Bool("plan", false,
		"Write an example crawl plan instead of a configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	plan, err := cmd.Flags().GetBool("plan")
	if err != nil {
		return err
	}

	template, hint := "templates/"+configFileName, configHint
	if plan {
		template, hint = "templates/"+planFileName, planHint
	}
	if outputPath == "" {
		outputPath = filepath.Base(template)
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := templates.ReadFile(template)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n\n", outputPath)
	fmt.Fprintln(out, hint)
	return nil
}

const configHint = `Edit this file to set:
  - the archive directory and crawl plan
  - politeness delays and per-attempt limits
  - blocked networks, domains and paths`

const planHint = `List one entry per domain, then run:
  warcrawl crawl --plan plan.yaml`
