package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nao1215/warcrawl/internal/config"
)

// NewRootCmd creates the root command for warcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warcrawl",
		Short: "Polite, resumable per-domain web crawler writing WARC archives",
		Long: `warcrawl crawls each domain of a plan on its own, one request at a time,
honoring robots.txt and crawl delays, and records every exchange in a
WARC archive under the archive directory.

An interrupted attempt leaves a partial archive that the next attempt
resumes from. A completed attempt leaves final.warc.gz, which later
attempts revisit, asking the server only for what changed.

Settings are read from warcrawl.yaml, WARCRAWL_* environment variables
and flags, in increasing order of precedence.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file (default: ./warcrawl.yaml, then the XDG config directory)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "Log format: text or json")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewInspectCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlagKeys maps configuration keys to the persistent flags that set them.
var globalFlagKeys = map[string]string{
	"verbose":    "verbose",
	"log_format": "log-format",
}

// loadConfig binds the given flags (configuration key to flag name) and the
// global flags, then loads the configuration file named by --config.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string) (*config.Config, error) {
	v := config.NewViper()
	if err := bindFlags(v, cmd, globalFlagKeys); err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd, flagKeys); err != nil {
		return nil, err
	}

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path = ""
	}
	return config.Load(v, path)
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, flagKeys map[string]string) error {
	for key, name := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}
