package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/warcrawl/internal/config"
	"github.com/nao1215/warcrawl/internal/crawler"
	"github.com/nao1215/warcrawl/internal/warc"
)

const testResponseBlock = "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<html>hello</html>"

// writeTestArchive writes a small archive and returns its path.
func writeTestArchive(t *testing.T, path string, records ...*warc.Record) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	w, err := warc.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("failed to write record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func sampleRecords() []*warc.Record {
	return []*warc.Record{
		{Type: warc.TypeInfo, ContentType: warc.ContentTypeWARCFields, Block: []byte("software: warcrawl\r\n")},
		{
			Type:        warc.TypeResponse,
			TargetURI:   "https://example.com/",
			ContentType: warc.ContentTypeHTTPResponse,
			Block:       []byte(testResponseBlock),
		},
		{
			Type:          warc.TypeRefusal,
			TargetURI:     "https://example.com/private",
			RefusalReason: warc.RefusalRobotsDisallowed,
		},
	}
}

// TestNewInspectCmd tests the inspect command creation.
func TestNewInspectCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInspectCmd()
	if !strings.HasPrefix(cmd.Use, "inspect") {
		t.Errorf("unexpected use %q", cmd.Use)
	}
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("expected an argument to be required")
	}
	flag := cmd.Flags().Lookup("summary")
	if flag == nil || flag.Shorthand != "s" {
		t.Error("expected summary flag with shorthand 's'")
	}
}

func TestInspectArchive(t *testing.T) {
	t.Parallel()

	path := writeTestArchive(t, filepath.Join(t.TempDir(), "a.warc.gz"), sampleRecords()...)

	t.Run("lists records", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := inspectArchive(&buf, path, false); err != nil {
			t.Fatalf("inspect failed: %v", err)
		}
		out := buf.String()
		for _, want := range []string{
			"TYPE", "warcinfo", "https://example.com/",
			"https://example.com/private (robots-disallowed)",
			"Records:  3", "refused robots-disallowed", "Digests:  all verified", "Status:   complete",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output should contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("summary only", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := inspectArchive(&buf, path, true); err != nil {
			t.Fatalf("inspect failed: %v", err)
		}
		if strings.Contains(buf.String(), "TYPE") {
			t.Error("summary should not list records")
		}
		if !strings.Contains(buf.String(), "Records:  3") {
			t.Errorf("unexpected summary:\n%s", buf.String())
		}
	})
}

func TestInspectDigestMismatch(t *testing.T) {
	t.Parallel()

	rec := &warc.Record{
		Type:        warc.TypeResponse,
		TargetURI:   "https://example.com/",
		ContentType: warc.ContentTypeHTTPResponse,
		Block:       []byte(testResponseBlock),
		BlockDigest: warc.Digest(warc.SHA256, []byte("something else")),
	}
	path := writeTestArchive(t, filepath.Join(t.TempDir(), "bad.warc.gz"), rec)

	var buf bytes.Buffer
	err := inspectArchive(&buf, path, false)
	if !errors.Is(err, ErrDigestFailures) {
		t.Fatalf("expected ErrDigestFailures, got %v", err)
	}
	if !strings.Contains(buf.String(), "MISMATCH") {
		t.Errorf("output should flag the record, got:\n%s", buf.String())
	}
}

func TestInspectNotAnArchive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("just text\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := inspectArchive(&bytes.Buffer{}, path, false); !errors.Is(err, warc.ErrNotWARC) {
		t.Errorf("expected ErrNotWARC, got %v", err)
	}
}

func TestResolveArchive(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.ArchiveDir = t.TempDir()
	paths := crawler.PathsFor(cfg.ArchiveDir, "example.com")

	if _, err := resolveArchive(cfg, "example.com"); err == nil {
		t.Error("expected an error without archives")
	}

	writeTestArchive(t, paths.Partial, sampleRecords()[0])
	got, err := resolveArchive(cfg, "https://Example.com/")
	if err != nil {
		t.Fatalf("resolveArchive failed: %v", err)
	}
	if got != paths.Partial {
		t.Errorf("expected partial archive, got %s", got)
	}

	writeTestArchive(t, paths.Final, sampleRecords()[0])
	got, err = resolveArchive(cfg, "example.com")
	if err != nil {
		t.Fatalf("resolveArchive failed: %v", err)
	}
	if got != paths.Final {
		t.Errorf("expected final archive to win, got %s", got)
	}

	got, err = resolveArchive(cfg, paths.Partial)
	if err != nil || got != paths.Partial {
		t.Errorf("a file path should be used as-is, got %s, %v", got, err)
	}
}
