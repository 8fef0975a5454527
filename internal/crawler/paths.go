package crawler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Archive file names inside a domain directory.
const (
	LiveArchive        = "live.warc.gz"
	PartialArchive     = "partial.warc.gz"
	FinalArchive       = "final.warc.gz"
	ProbeFailedArchive = "probe-failed.warc.gz"
)

// ArchivePaths is the archive layout of one domain.
type ArchivePaths struct {
	// Dir is the domain directory.
	Dir string
	// Live is the archive being written by the running attempt.
	Live string
	// Partial is the archive of an attempt that stopped uncleanly.
	Partial string
	// Final is the archive of the last completed attempt.
	Final string
	// ProbeFailed holds the archive of an attempt the probe rejected.
	ProbeFailed string
}

// PathsFor returns the archive layout of domain under archiveDir.
func PathsFor(archiveDir, domain string) ArchivePaths {
	dir := filepath.Join(archiveDir, domain)
	return ArchivePaths{
		Dir:         dir,
		Live:        filepath.Join(dir, LiveArchive),
		Partial:     filepath.Join(dir, PartialArchive),
		Final:       filepath.Join(dir, FinalArchive),
		ProbeFailed: filepath.Join(dir, ProbeFailedArchive),
	}
}

// Prepare creates the domain directory and moves a live archive left by a
// crashed attempt to the partial slot. When a partial archive already
// exists the older one wins and the stray live file is dropped, since its
// records were already replayed from that partial.
func (p ArchivePaths) Prepare() error {
	if err := os.MkdirAll(p.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	if !exists(p.Live) {
		return nil
	}
	if exists(p.Partial) {
		if err := os.Remove(p.Live); err != nil {
			return fmt.Errorf("failed to remove stale live archive: %w", err)
		}
		return nil
	}
	if err := os.Rename(p.Live, p.Partial); err != nil {
		return fmt.Errorf("failed to keep interrupted archive: %w", err)
	}
	return nil
}

// HasPartial reports whether an interrupted archive waits to be replayed.
func (p ArchivePaths) HasPartial() bool {
	return exists(p.Partial)
}

// Promote makes the live archive the final one, replacing the previous
// final archive.
func (p ArchivePaths) Promote() (string, error) {
	return p.Final, p.moveLive(p.Final)
}

// Discard keeps the live archive of a probe-rejected attempt aside so the
// last good final archive survives.
func (p ArchivePaths) Discard() (string, error) {
	return p.ProbeFailed, p.moveLive(p.ProbeFailed)
}

// RemovePartial deletes the interrupted archive once it has been replayed.
func (p ArchivePaths) RemovePartial() error {
	if err := os.Remove(p.Partial); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove partial archive: %w", err)
	}
	return nil
}

func (p ArchivePaths) moveLive(dst string) error {
	if err := os.Rename(p.Live, dst); err != nil {
		return fmt.Errorf("failed to promote archive: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
