package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/warcrawl/internal/crawler"
	"github.com/nao1215/warcrawl/internal/politeness"
	"github.com/nao1215/warcrawl/internal/warc"
)

// Default configuration values.
// Crawl tunables default to the values of the packages that consume them
// so that a zero configuration file behaves like the library defaults.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "warcrawl"

	// DefaultDepth is the visit budget for domains named without one.
	DefaultDepth = 100

	// DefaultBatchSize is the number of domains crawled concurrently.
	// Each domain is crawled by exactly one worker at a time, so this is
	// also the number of domains in flight.
	DefaultBatchSize = 4

	// DefaultLaunchInterval spaces out attempt launches across workers.
	DefaultLaunchInterval = politeness.DefaultLaunchInterval

	// DefaultTimeout bounds a single connection. The per-fetch budget is
	// MaxFetchTime.
	DefaultTimeout = 60 * time.Second

	// DefaultLogFormat selects colored console output.
	DefaultLogFormat = LogFormatText

	// DefaultServiceName names the metric resource.
	DefaultServiceName = AppName
)

// Log formats.
const (
	// LogFormatText writes colored, human-readable lines.
	LogFormatText = "text"
	// LogFormatJSON writes one JSON object per line.
	LogFormatJSON = "json"
)

// Config holds all configuration options for warcrawl.
// It is populated from the configuration file, WARCRAWL_* environment
// variables and CLI flags, and passed through the application rather than
// kept in global state.
type Config struct {
	// ArchiveDir is the root directory of the per-domain archives.
	// Defaults to the XDG data directory.
	ArchiveDir string `mapstructure:"archive_dir"`

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory.
	DBDir string `mapstructure:"db_dir"`

	// NoDB disables the database: no history, no known links.
	NoDB bool `mapstructure:"no_db"`

	// PlanFile is the crawl plan listing domains, seeds and depths.
	PlanFile string `mapstructure:"plan"`

	// Depth is the visit budget of domains given without one.
	Depth int `mapstructure:"depth"`

	// Proxy is an optional SOCKS5 proxy address in "host:port" format.
	Proxy string `mapstructure:"proxy"`

	// Timeout bounds connection establishment.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are added to every request that does not set them.
	Headers map[string]string `mapstructure:"headers"`

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string `mapstructure:"user_agent"`

	// RobotsAgent is the token looked up in robots.txt.
	RobotsAgent string `mapstructure:"robots_agent"`

	// BatchSize is the number of domains crawled concurrently.
	BatchSize int `mapstructure:"batch_size"`

	// LaunchInterval is the minimum spacing between attempt launches.
	// Zero disables the throttle.
	LaunchInterval time.Duration `mapstructure:"launch_interval"`

	MaxErrors           int `mapstructure:"max_errors"`
	MaxPathLength       int `mapstructure:"max_path_length"`
	MaxRateLimitRetries int `mapstructure:"max_rate_limit_retries"`
	MaxSitemapURLs      int `mapstructure:"max_sitemap_urls"`
	MaxDiscoveredLinks  int `mapstructure:"max_discovered_links"`
	FrontierSlack       int `mapstructure:"frontier_slack"`

	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
	RetryMin time.Duration `mapstructure:"retry_min"`
	RetryMax time.Duration `mapstructure:"retry_max"`

	// MaxBodySize is the largest response body kept in full.
	MaxBodySize int `mapstructure:"max_body_size"`

	// MaxFetchTime is the wall-clock budget of a single fetch.
	MaxFetchTime time.Duration `mapstructure:"max_fetch_time"`

	// Responses slower than TrapMinDuration and smaller than
	// TrapMaxBodySize are treated as crawler traps.
	TrapMinDuration time.Duration `mapstructure:"trap_min_duration"`
	TrapMaxBodySize int           `mapstructure:"trap_max_body_size"`

	// ProbeTimeout bounds the probe of a domain.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`

	// DigestAlgorithm is "sha256" or "blake2b-256".
	DigestAlgorithm string `mapstructure:"digest_algorithm"`

	// SameContentThreshold is the largest fingerprint distance at which
	// two documents count as the same content.
	SameContentThreshold int `mapstructure:"same_content_threshold"`

	RevisitGrowthFactor float64 `mapstructure:"revisit_growth_factor"`
	RevisitGrowthLimit  int     `mapstructure:"revisit_growth_limit"`
	SkipAfterRecrawls   int     `mapstructure:"skip_after_recrawls"`
	SkipRetainedRatio   float64 `mapstructure:"skip_retained_ratio"`
	SkipProbability     float64 `mapstructure:"skip_probability"`

	// BlockedCIDRs are networks that are never contacted.
	BlockedCIDRs []string `mapstructure:"blocked_cidrs"`

	// BlockedDomains are domains, and their subdomains, that are never crawled.
	BlockedDomains []string `mapstructure:"blocked_domains"`

	// BlockedPaths are path glob patterns that are never fetched.
	BlockedPaths []string `mapstructure:"blocked_paths"`

	// Verbose enables debug logging.
	Verbose bool `mapstructure:"verbose"`

	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"log_format"`

	// JSONReport and MarkdownReport select the report format.
	// They are mutually exclusive; neither means the simple format.
	JSONReport     bool `mapstructure:"json"`
	MarkdownReport bool `mapstructure:"markdown"`

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string `mapstructure:"output"`

	// TelemetryEnabled exports crawl metrics over OTLP/HTTP.
	TelemetryEnabled bool `mapstructure:"telemetry_enabled"`

	// CollectorURL is the OTLP/HTTP metrics endpoint.
	CollectorURL string `mapstructure:"collector_url"`

	// ServiceName names the metric resource.
	ServiceName string `mapstructure:"service_name"`

	// ConfigFilePath is the configuration file that was read, if any.
	ConfigFilePath string `mapstructure:"-"`

	// Targets are domains named on the command line.
	Targets []string `mapstructure:"-"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	s := crawler.DefaultSettings()
	return &Config{
		ArchiveDir:           XDGArchiveDir(),
		DBDir:                XDGDataDir(),
		Depth:                DefaultDepth,
		Timeout:              DefaultTimeout,
		UserAgent:            s.UserAgent,
		RobotsAgent:          s.RobotsAgent,
		BatchSize:            DefaultBatchSize,
		LaunchInterval:       DefaultLaunchInterval,
		MaxErrors:            s.MaxErrors,
		MaxPathLength:        s.MaxPathLength,
		MaxRateLimitRetries:  s.MaxRateLimitRetries,
		MaxSitemapURLs:       s.MaxSitemapURLs,
		MaxDiscoveredLinks:   s.MaxDiscoveredLinks,
		FrontierSlack:        s.FrontierSlack,
		MinDelay:             s.MinDelay,
		MaxDelay:             s.MaxDelay,
		RetryMin:             s.RetryMin,
		RetryMax:             s.RetryMax,
		MaxBodySize:          s.MaxBodySize,
		MaxFetchTime:         s.MaxFetchTime,
		TrapMinDuration:      s.TrapMinDuration,
		TrapMaxBodySize:      s.TrapMaxBodySize,
		ProbeTimeout:         s.ProbeTimeout,
		DigestAlgorithm:      string(s.DigestAlgorithm),
		SameContentThreshold: s.SameContentThreshold,
		RevisitGrowthFactor:  s.RevisitGrowthFactor,
		RevisitGrowthLimit:   s.RevisitGrowthLimit,
		SkipAfterRecrawls:    s.SkipAfterRecrawls,
		SkipRetainedRatio:    s.SkipRetainedRatio,
		SkipProbability:      s.SkipProbability,
		LogFormat:            DefaultLogFormat,
		ServiceName:          DefaultServiceName,
	}
}

// XDGDataDir returns the XDG data directory for warcrawl.
// On Linux: ~/.local/share/warcrawl
// On macOS: ~/Library/Application Support/warcrawl
// On Windows: %LOCALAPPDATA%\warcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGArchiveDir returns the default archive root inside the data directory.
func XDGArchiveDir() string {
	return filepath.Join(XDGDataDir(), "archives")
}

// XDGConfigDir returns the XDG config directory for warcrawl.
// On Linux: ~/.config/warcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.ArchiveDir == "" {
		return ErrNoArchiveDir
	}
	if c.Depth <= 0 {
		return ErrInvalidDepth
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.LaunchInterval < 0 || c.MinDelay < 0 || c.RetryMin < 0 {
		return ErrInvalidDelay
	}
	if c.MaxDelay < c.MinDelay || c.RetryMax < c.RetryMin {
		return ErrInvalidDelay
	}
	if c.MaxErrors <= 0 {
		return ErrInvalidMaxErrors
	}
	if c.MaxBodySize < 0 || c.TrapMaxBodySize < 0 || c.MaxBodySize >= warc.MaxBlockSize {
		return ErrInvalidMaxBodySize
	}
	if _, err := warc.ParseAlgorithm(c.DigestAlgorithm); err != nil {
		return ErrInvalidDigestAlgorithm
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return ErrInvalidLogFormat
	}
	if c.SkipRetainedRatio < 0 || c.SkipRetainedRatio > 1 || c.SkipProbability < 0 || c.SkipProbability > 1 {
		return ErrInvalidRatio
	}
	if c.TelemetryEnabled && c.CollectorURL == "" {
		return ErrNoCollectorURL
	}
	return nil
}

// Settings converts the crawl tunables into crawler settings.
// Validate must have succeeded.
func (c *Config) Settings() crawler.Settings {
	s := crawler.DefaultSettings()
	s.ArchiveDir = c.ArchiveDir
	s.UserAgent = c.UserAgent
	s.RobotsAgent = c.RobotsAgent
	s.MaxErrors = c.MaxErrors
	s.MaxPathLength = c.MaxPathLength
	s.MaxRateLimitRetries = c.MaxRateLimitRetries
	s.MaxSitemapURLs = c.MaxSitemapURLs
	s.MaxDiscoveredLinks = c.MaxDiscoveredLinks
	s.FrontierSlack = c.FrontierSlack
	s.MinDelay = c.MinDelay
	s.MaxDelay = c.MaxDelay
	s.RetryMin = c.RetryMin
	s.RetryMax = c.RetryMax
	s.MaxBodySize = c.MaxBodySize
	s.MaxFetchTime = c.MaxFetchTime
	s.TrapMinDuration = c.TrapMinDuration
	s.TrapMaxBodySize = c.TrapMaxBodySize
	s.ProbeTimeout = c.ProbeTimeout
	if algo, err := warc.ParseAlgorithm(c.DigestAlgorithm); err == nil {
		s.DigestAlgorithm = algo
	}
	s.SameContentThreshold = c.SameContentThreshold
	s.RevisitGrowthFactor = c.RevisitGrowthFactor
	s.RevisitGrowthLimit = c.RevisitGrowthLimit
	s.SkipAfterRecrawls = c.SkipAfterRecrawls
	s.SkipRetainedRatio = c.SkipRetainedRatio
	s.SkipProbability = c.SkipProbability
	return s
}
