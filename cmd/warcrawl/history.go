package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/warcrawl/internal/database"
	"github.com/nao1215/warcrawl/internal/model"
)

// defaultHistoryLimit is the number of attempts listed per domain.
const defaultHistoryLimit = 10

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "Show recorded crawl attempts",
		Long: `History lists the attempts stored in the database. Without a domain it
lists every crawled domain with its number of attempts; with a domain it
lists that domain's newest attempts.

Examples:
  # List crawled domains
  warcrawl history

  # Show the last 10 attempts of a domain
  warcrawl history example.com

  # Show every attempt as JSON
  warcrawl history --limit 0 --json example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Number of attempts to show (0 for all)")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"db_dir": "db-dir"})
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(cfg.DBDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		domains, err := db.ListCrawledDomains(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, domains)
		}
		return writeDomainList(out, domains)
	}

	domain := model.NormalizeDomain(args[0])
	records, err := db.AttemptHistory(ctx, domain, limit)
	if err != nil {
		return err
	}
	reports := make([]model.AttemptReport, 0, len(records))
	for _, rec := range records {
		reports = append(reports, rec.Report)
	}
	if asJSON {
		return writeJSON(out, reports)
	}
	return writeAttemptList(out, domain, reports)
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeDomainList(out io.Writer, domains []database.DomainSummary) error {
	if len(domains) == 0 {
		fmt.Fprintln(out, "No crawl attempts recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tATTEMPTS\tLAST STARTED")
	for _, d := range domains {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", d.Domain, d.Attempts, formatTime(d.LastStarted))
	}
	return tw.Flush()
}

func writeAttemptList(out io.Writer, domain string, reports []model.AttemptReport) error {
	if len(reports) == 0 {
		fmt.Fprintf(out, "No crawl attempts recorded for %s.\n", domain)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tTERMINATION\tFETCHED\tREVISITED\tERRORS\tARCHIVE")
	for _, r := range reports {
		archive := r.ArchivePath
		if archive == "" {
			archive = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			formatTime(r.StartedAt), r.Duration().Round(time.Second), r.Termination,
			r.Fetched, r.Revisited, r.Errors, archive)
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
