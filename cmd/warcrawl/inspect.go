package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/warcrawl/internal/config"
	"github.com/nao1215/warcrawl/internal/crawler"
	"github.com/nao1215/warcrawl/internal/model"
	"github.com/nao1215/warcrawl/internal/warc"
)

// ErrDigestFailures is returned by inspect when records fail verification.
var ErrDigestFailures = errors.New("archive has records with mismatched digests")

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <archive | domain>",
		Short: "List and verify the records of an archive",
		Long: `Inspect reads a WARC archive and lists its records with their digests
verified. The argument is a path to an archive, or a domain whose final
archive (or partial archive, if the last attempt stopped) is looked up
in the archive directory.

An archive that ends inside a record is reported as truncated; the
complete records before it are still listed.

Examples:
  # Inspect the archive of a domain
  warcrawl inspect example.com

  # Inspect an archive file
  warcrawl inspect ./archives/example.com/partial.warc.gz

  # Only print the totals
  warcrawl inspect --summary example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runInspectCmd,
	}

	cmd.Flags().String("archive-dir", "", "Archive root directory (default: XDG data directory)")
	cmd.Flags().BoolP("summary", "s", false, "Only print record counts")

	return cmd
}

// runInspectCmd executes the inspect command.
func runInspectCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"archive_dir": "archive-dir"})
	if err != nil {
		return err
	}
	summaryOnly, err := cmd.Flags().GetBool("summary")
	if err != nil {
		return err
	}

	path, err := resolveArchive(cfg, args[0])
	if err != nil {
		return err
	}
	return inspectArchive(cmd.OutOrStdout(), path, summaryOnly)
}

// resolveArchive returns target when it is a file, otherwise the newest
// archive of the domain target.
func resolveArchive(cfg *config.Config, target string) (string, error) {
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		return target, nil
	}

	domain := model.NormalizeDomain(target)
	if domain == "" {
		return "", fmt.Errorf("%s is neither an archive nor a domain", target)
	}
	paths := crawler.PathsFor(cfg.ArchiveDir, domain)
	for _, candidate := range []string{paths.Final, paths.Partial, paths.Live, paths.ProbeFailed} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no archive for %s in %s", domain, filepath.Dir(paths.Final))
}

// inspectStats are the totals printed after the record list.
type inspectStats struct {
	byType    map[warc.RecordType]int
	truncated map[warc.Truncation]int
	refusals  map[string]int
	failed    int
}

// inspectArchive lists the records of the archive at path.
func inspectArchive(out io.Writer, path string, summaryOnly bool) error {
	r, err := warc.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	stats := inspectStats{
		byType:    make(map[warc.RecordType]int),
		truncated: make(map[warc.Truncation]int),
		refusals:  make(map[string]int),
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if !summaryOnly {
		fmt.Fprintln(tw, "TYPE\tDATE\tDIGEST\tTARGET")
	}
	total := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		total++

		check := "ok"
		if err := warc.Verify(rec); err != nil {
			check = "MISMATCH"
			stats.failed++
		}
		stats.byType[rec.Type]++
		if rec.Truncated != warc.NotTruncated {
			stats.truncated[rec.Truncated]++
		}
		if rec.Type == warc.TypeRefusal {
			stats.refusals[rec.RefusalReason.Short()]++
		}

		if !summaryOnly {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				rec.Type, rec.Date.Format(time.RFC3339), check, describeTarget(rec))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	writeInspectSummary(out, path, total, r.Truncated(), stats)
	if stats.failed > 0 {
		return fmt.Errorf("%w: %d", ErrDigestFailures, stats.failed)
	}
	return nil
}

// describeTarget returns the target URI with any refusal or truncation noted.
func describeTarget(rec *warc.Record) string {
	target := rec.TargetURI
	if target == "" {
		target = "-"
	}
	if rec.Type == warc.TypeRefusal {
		target += " (" + rec.RefusalReason.Short() + ")"
	}
	if rec.Truncated != warc.NotTruncated {
		target += " [truncated: " + rec.Truncated.String() + "]"
	}
	return target
}

func writeInspectSummary(out io.Writer, path string, total int, truncated bool, stats inspectStats) {
	fmt.Fprintf(out, "\nArchive:  %s\n", path)
	fmt.Fprintf(out, "Records:  %d\n", total)
	for _, t := range []warc.RecordType{
		warc.TypeInfo, warc.TypeRequest, warc.TypeResponse, warc.TypeReferenceResponse, warc.TypeRefusal,
	} {
		if n := stats.byType[t]; n > 0 {
			fmt.Fprintf(out, "  %-20s %d\n", t, n)
		}
	}
	for _, reason := range slices.Sorted(maps.Keys(stats.refusals)) {
		fmt.Fprintf(out, "  refused %-12s %d\n", reason, stats.refusals[reason])
	}
	for _, reason := range slices.Sorted(maps.Keys(stats.truncated)) {
		fmt.Fprintf(out, "  truncated %-10s %d\n", reason, stats.truncated[reason])
	}
	if stats.failed > 0 {
		fmt.Fprintf(out, "Digests:  %d mismatched\n", stats.failed)
	} else {
		fmt.Fprintln(out, "Digests:  all verified")
	}
	if truncated {
		fmt.Fprintln(out, "Status:   truncated (ends inside a record)")
	} else {
		fmt.Fprintln(out, "Status:   complete")
	}
}
