package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/warcrawl/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "warcrawl.db"

// ErrNotFound is returned when a database file is required but missing.
var ErrNotFound = errors.New("database not found")

// CrawlDB provides SQLite-based storage for crawl specifications, attempt
// reports and the links known for each domain.
//
// A single database serves every domain so that history and link queries
// need no cross-file joins.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, ErrNotFound
// is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Crawl specifications: what to crawl and how deep
	CREATE TABLE IF NOT EXISTS crawl_specs (
		domain TEXT PRIMARY KEY,
		seeds TEXT NOT NULL DEFAULT '[]',
		depth INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- One row per crawl attempt
	CREATE TABLE IF NOT EXISTS crawl_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		termination TEXT NOT NULL,
		fetched INTEGER NOT NULL DEFAULT 0,
		revisited INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		refusals INTEGER NOT NULL DEFAULT 0,
		probe_outcome TEXT,
		archive_path TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_domain ON crawl_attempts(domain);
	CREATE INDEX IF NOT EXISTS idx_attempts_started ON crawl_attempts(started_at);

	-- Links discovered for a domain, fed back into later attempts
	CREATE TABLE IF NOT EXISTS known_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		url TEXT NOT NULL,
		first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(domain, url)
	);

	CREATE INDEX IF NOT EXISTS idx_links_domain ON known_links(domain);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveCrawlSpec inserts or replaces the specification of a domain.
func (cdb *CrawlDB) SaveCrawlSpec(ctx context.Context, spec model.CrawlSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	seeds := spec.Seeds
	if seeds == nil {
		seeds = []string{}
	}
	seedsJSON, err := json.Marshal(seeds)
	if err != nil {
		return fmt.Errorf("failed to serialize seeds: %w", err)
	}

	query := `
	INSERT INTO crawl_specs (domain, seeds, depth)
	VALUES (?, ?, ?)
	ON CONFLICT(domain) DO UPDATE SET
		seeds = excluded.seeds,
		depth = excluded.depth,
		updated_at = CURRENT_TIMESTAMP
	`
	if _, err := cdb.db.ExecContext(ctx, query, spec.Domain, string(seedsJSON), spec.Depth); err != nil {
		return fmt.Errorf("failed to save crawl spec: %w", err)
	}
	return nil
}

// GetCrawlSpec returns the specification of domain, or nil when none is
// stored.
func (cdb *CrawlDB) GetCrawlSpec(ctx context.Context, domain string) (*model.CrawlSpec, error) {
	var (
		spec      model.CrawlSpec
		seedsJSON string
	)
	err := cdb.db.QueryRowContext(ctx,
		`SELECT domain, seeds, depth FROM crawl_specs WHERE domain = ?`, domain,
	).Scan(&spec.Domain, &seedsJSON, &spec.Depth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl spec: %w", err)
	}
	if err := json.Unmarshal([]byte(seedsJSON), &spec.Seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seeds: %w", err)
	}
	return &spec, nil
}

// ListCrawlSpecs returns every stored specification ordered by domain.
func (cdb *CrawlDB) ListCrawlSpecs(ctx context.Context) ([]model.CrawlSpec, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT domain, seeds, depth FROM crawl_specs ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl specs: %w", err)
	}
	defer rows.Close()

	var specs []model.CrawlSpec
	for rows.Next() {
		var (
			spec      model.CrawlSpec
			seedsJSON string
		)
		if err := rows.Scan(&spec.Domain, &seedsJSON, &spec.Depth); err != nil {
			return nil, fmt.Errorf("failed to scan crawl spec: %w", err)
		}
		if err := json.Unmarshal([]byte(seedsJSON), &spec.Seeds); err != nil {
			continue // Skip malformed rows
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// AttemptRecord is a stored attempt report with its row id.
type AttemptRecord struct {
	// ID is the unique identifier of the attempt in the database.
	ID int64

	// Report is the attempt report as it was saved.
	Report model.AttemptReport
}

// RecordAttempt stores an attempt report and returns its id.
func (cdb *CrawlDB) RecordAttempt(ctx context.Context, report *model.AttemptReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	INSERT INTO crawl_attempts (domain, started_at, finished_at, termination, fetched,
		revisited, errors, refusals, probe_outcome, archive_path, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := cdb.db.ExecContext(ctx, query,
		report.Domain,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		string(report.Termination),
		report.Fetched,
		report.Revisited,
		report.Errors,
		report.Refusals,
		report.ProbeOutcome,
		report.ArchivePath,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	return result.LastInsertId()
}

// AttemptHistory returns the attempts of domain, newest first. An empty
// domain lists every domain. A non-positive limit returns all rows.
func (cdb *CrawlDB) AttemptHistory(ctx context.Context, domain string, limit int) ([]AttemptRecord, error) {
	query := `SELECT id, report_json FROM crawl_attempts WHERE 1=1`
	args := make([]any, 0, 2)

	if domain != "" {
		query += " AND domain = ?"
		args = append(args, domain)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt history: %w", err)
	}
	defer rows.Close()

	var results []AttemptRecord
	for rows.Next() {
		var (
			rec        AttemptRecord
			reportJSON string
		)
		if err := rows.Scan(&rec.ID, &reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if err := json.Unmarshal([]byte(reportJSON), &rec.Report); err != nil {
			continue // Skip malformed reports
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// LatestAttempt returns the newest attempt of domain, or nil.
func (cdb *CrawlDB) LatestAttempt(ctx context.Context, domain string) (*AttemptRecord, error) {
	history, err := cdb.AttemptHistory(ctx, domain, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	return &history[0], nil
}

// DomainSummary aggregates the attempts of one domain.
type DomainSummary struct {
	// Domain is the crawled domain.
	Domain string

	// Attempts is the number of stored attempts.
	Attempts int

	// LastStarted is the start time of the newest attempt.
	LastStarted time.Time
}

// ListCrawledDomains returns every domain with at least one attempt.
func (cdb *CrawlDB) ListCrawledDomains(ctx context.Context) ([]DomainSummary, error) {
	query := `
	SELECT domain, COUNT(*), MAX(started_at)
	FROM crawl_attempts
	GROUP BY domain
	ORDER BY domain
	`
	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var summaries []DomainSummary
	for rows.Next() {
		var (
			summary DomainSummary
			last    sql.NullString
		)
		if err := rows.Scan(&summary.Domain, &summary.Attempts, &last); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		if last.Valid {
			summary.LastStarted = parseTimestamp(last.String)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// KnownLinks returns the links stored for domain in discovery order.
func (cdb *CrawlDB) KnownLinks(ctx context.Context, domain string) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT url FROM known_links WHERE domain = ? ORDER BY id`, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to get known links: %w", err)
	}
	defer rows.Close()

	var links []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// AddKnownLinks stores links for domain, ignoring those already known.
func (cdb *CrawlDB) AddKnownLinks(ctx context.Context, domain string, links []string) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO known_links (domain, url) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, link := range links {
		if _, err := stmt.ExecContext(ctx, domain, link); err != nil {
			return fmt.Errorf("failed to add known link: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit known links: %w", err)
	}
	return nil
}

// CountKnownLinks returns how many links are stored for domain.
func (cdb *CrawlDB) CountKnownLinks(ctx context.Context, domain string) (int, error) {
	var n int
	if err := cdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM known_links WHERE domain = ?`, domain).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count known links: %w", err)
	}
	return n, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
