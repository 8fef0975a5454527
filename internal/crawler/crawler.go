package crawler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/nao1215/warcrawl/internal/frontier"
	"github.com/nao1215/warcrawl/internal/model"
	"github.com/nao1215/warcrawl/internal/pipeline"
	"github.com/nao1215/warcrawl/internal/politeness"
	"github.com/nao1215/warcrawl/internal/prober"
	"github.com/nao1215/warcrawl/internal/recorder"
	"github.com/nao1215/warcrawl/internal/revisit"
	"github.com/nao1215/warcrawl/internal/robots"
	"github.com/nao1215/warcrawl/internal/warc"
)

// Default crawl limits.
const (
	// DefaultMaxErrors is the number of fetch exceptions that ends an attempt.
	DefaultMaxErrors = 20

	// DefaultMaxPathLength is the longest URL path that is fetched.
	DefaultMaxPathLength = 255

	// DefaultMaxRateLimitRetries is how often a 429 is retried.
	DefaultMaxRateLimitRetries = 1

	// DefaultMaxDiscoveredLinks caps the links handed to the known-link sink.
	DefaultMaxDiscoveredLinks = 10_000

	// DefaultRevisitGrowthFactor and DefaultRevisitGrowthLimit grow the
	// depth budget after a successful revisit pass.
	DefaultRevisitGrowthFactor = 1.5
	DefaultRevisitGrowthLimit  = 2500

	// A revisit pass that recrawled at least DefaultSkipAfterRecrawls
	// documents, more than DefaultSkipRetainedRatio of them unchanged,
	// copies DefaultSkipProbability of the rest without a network call.
	DefaultSkipAfterRecrawls = 5
	DefaultSkipRetainedRatio = 0.9
	DefaultSkipProbability   = 0.9

	// DefaultRobotsAgent is the token matched against robots.txt groups.
	DefaultRobotsAgent = "warcrawl"
)

// Settings holds the tunables of a crawl attempt.
type Settings struct {
	// ArchiveDir is the root directory of the per-domain archives.
	ArchiveDir string

	// UserAgent is sent with every request.
	UserAgent string

	// RobotsAgent is the token looked up in robots.txt.
	RobotsAgent string

	// Software names the crawler in warcinfo records.
	Software string

	MaxErrors           int
	MaxPathLength       int
	MaxRateLimitRetries int
	MaxSitemapURLs      int
	MaxDiscoveredLinks  int
	FrontierSlack       int

	MinDelay   time.Duration
	MaxDelay   time.Duration
	RetryMin   time.Duration
	RetryMax   time.Duration
	SleepChunk time.Duration

	MaxBodySize     int
	MaxFetchTime    time.Duration
	TrapMinDuration time.Duration
	TrapMaxBodySize int
	ProbeTimeout    time.Duration

	DigestAlgorithm      warc.Algorithm
	SameContentThreshold int

	RevisitGrowthFactor float64
	RevisitGrowthLimit  int
	SkipAfterRecrawls   int
	SkipRetainedRatio   float64
	SkipProbability     float64
}

// DefaultSettings returns settings with every default applied.
func DefaultSettings() Settings {
	return Settings{
		ArchiveDir:           "archives",
		UserAgent:            recorder.DefaultUserAgent,
		RobotsAgent:          DefaultRobotsAgent,
		Software:             "warcrawl",
		MaxErrors:            DefaultMaxErrors,
		MaxPathLength:        DefaultMaxPathLength,
		MaxRateLimitRetries:  DefaultMaxRateLimitRetries,
		MaxSitemapURLs:       DefaultMaxSitemapURLs,
		MaxDiscoveredLinks:   DefaultMaxDiscoveredLinks,
		FrontierSlack:        frontier.DefaultSlack,
		MinDelay:             politeness.DefaultMinDelay,
		MaxDelay:             politeness.DefaultMaxDelay,
		RetryMin:             politeness.DefaultRetryMin,
		RetryMax:             politeness.DefaultRetryMax,
		SleepChunk:           politeness.DefaultSleepChunk,
		MaxBodySize:          recorder.DefaultMaxBodySize,
		MaxFetchTime:         recorder.DefaultMaxFetchTime,
		TrapMinDuration:      recorder.DefaultTrapMinDuration,
		TrapMaxBodySize:      recorder.DefaultTrapMaxBodySize,
		ProbeTimeout:         prober.DefaultTimeout,
		DigestAlgorithm:      warc.DefaultAlgorithm,
		SameContentThreshold: revisit.DefaultThreshold,
		RevisitGrowthFactor:  DefaultRevisitGrowthFactor,
		RevisitGrowthLimit:   DefaultRevisitGrowthLimit,
		SkipAfterRecrawls:    DefaultSkipAfterRecrawls,
		SkipRetainedRatio:    DefaultSkipRetainedRatio,
		SkipProbability:      DefaultSkipProbability,
	}
}

// Prober checks that a domain is worth crawling.
type Prober interface {
	Probe(ctx context.Context, domain string, candidate *model.URL) prober.Result
}

// KnownLinkSource supplies links remembered from earlier attempts.
type KnownLinkSource interface {
	KnownLinks(ctx context.Context, domain string) ([]string, error)
}

// KnownLinkSink stores links discovered during an attempt.
type KnownLinkSink interface {
	AddKnownLinks(ctx context.Context, domain string, links []string) error
}

// Observer is notified of crawl progress. Implementations must be safe for
// concurrent use.
type Observer interface {
	AttemptStarted(ctx context.Context, domain string)
	FetchCompleted(ctx context.Context, domain, outcome string, elapsed time.Duration)
	AttemptFinished(ctx context.Context, report *model.AttemptReport)
}

type noopObserver struct{}

func (noopObserver) AttemptStarted(context.Context, string)                        {}
func (noopObserver) FetchCompleted(context.Context, string, string, time.Duration) {}
func (noopObserver) AttemptFinished(context.Context, *model.AttemptReport)         {}

// DomainCrawler runs crawl attempts. One DomainCrawler serves every worker
// of a process; each call to Crawl owns its own frontier, timer and
// archive.
type DomainCrawler struct {
	settings   Settings
	client     *http.Client
	prober     Prober
	throttle   *politeness.LaunchThrottle
	locks      *DomainLocks
	urlBlocks  frontier.Blocklist
	ipBlocks   prober.IPBlocklist
	linkSource KnownLinkSource
	linkSink   KnownLinkSink
	observer   Observer
	sleeper    politeness.Sleeper
	random     func() float64
	now        func() time.Time
	logger     *slog.Logger
	comparator *revisit.Comparator
	sitemapper *SitemapFetcher
}

// Option configures a DomainCrawler.
type Option func(*DomainCrawler)

// WithHTTPClient sets the client used for every request.
func WithHTTPClient(client *http.Client) Option {
	return func(c *DomainCrawler) {
		if client != nil {
			c.client = client
		}
	}
}

// WithProber replaces the default domain prober.
func WithProber(p Prober) Option {
	return func(c *DomainCrawler) {
		c.prober = p
	}
}

// WithThrottle sets the process-wide launch throttle.
func WithThrottle(t *politeness.LaunchThrottle) Option {
	return func(c *DomainCrawler) {
		if t != nil {
			c.throttle = t
		}
	}
}

// WithLocks sets the process-wide domain lock registry.
func WithLocks(l *DomainLocks) Option {
	return func(c *DomainCrawler) {
		if l != nil {
			c.locks = l
		}
	}
}

// WithURLBlocklist sets the blocklist consulted before every fetch.
func WithURLBlocklist(b frontier.Blocklist) Option {
	return func(c *DomainCrawler) {
		c.urlBlocks = b
	}
}

// WithIPBlocklist sets the address blocklist used by the default prober.
func WithIPBlocklist(b prober.IPBlocklist) Option {
	return func(c *DomainCrawler) {
		c.ipBlocks = b
	}
}

// WithKnownLinkSource sets where links from earlier attempts come from.
func WithKnownLinkSource(s KnownLinkSource) Option {
	return func(c *DomainCrawler) {
		c.linkSource = s
	}
}

// WithKnownLinkSink sets where discovered links are stored.
func WithKnownLinkSink(s KnownLinkSink) Option {
	return func(c *DomainCrawler) {
		c.linkSink = s
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(c *DomainCrawler) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithSleeper replaces the sleep used by crawl-delay timers.
func WithSleeper(s politeness.Sleeper) Option {
	return func(c *DomainCrawler) {
		c.sleeper = s
	}
}

// WithRand sets the random source of the revisit skip rule.
func WithRand(random func() float64) Option {
	return func(c *DomainCrawler) {
		if random != nil {
			c.random = random
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *DomainCrawler) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *DomainCrawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a DomainCrawler.
func New(settings Settings, opts ...Option) *DomainCrawler {
	c := &DomainCrawler{
		settings: settings,
		client:   &http.Client{},
		throttle: politeness.NewLaunchThrottle(politeness.DefaultLaunchInterval),
		locks:    NewDomainLocks(),
		observer: noopObserver{},
		random:   rand.Float64,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.prober == nil {
		c.prober = prober.New(c.client,
			prober.WithIPBlocklist(c.ipBlocks),
			prober.WithUserAgent(settings.UserAgent),
			prober.WithTimeout(settings.ProbeTimeout),
			prober.WithLogger(c.logger),
		)
	}
	c.comparator = revisit.NewComparator(revisit.WithThreshold(settings.SameContentThreshold))
	c.sitemapper = NewSitemapFetcher(c.client, settings.UserAgent, settings.MaxSitemapURLs, c.logger)
	return c
}

// Settings returns the crawl settings.
func (c *DomainCrawler) Settings() Settings {
	return c.settings
}

// attempt is the state of one crawl attempt, threaded through the steps.
type attempt struct {
	spec     model.CrawlSpec
	paths    ArchivePaths
	report   *model.AttemptReport
	logger   *slog.Logger
	unlock   func()
	writer   *warc.Writer
	rec      *recorder.Recorder
	frontier *frontier.Frontier
	timer    *politeness.CrawlDelayTimer
	rules    *robots.Rules

	// sitemaps are the sitemap and feed locations gathered so far.
	sitemaps []model.URL

	// discovered holds links found in fetched pages, for the sink.
	discovered     []string
	discoveredSeen map[uint64]bool

	probeFailed bool

	// fatal is the archive I/O error that ended the attempt, if any.
	fatal error
}

// fail records an archive error as fatal and returns it.
func (a *attempt) fail(err error) error {
	if a.fatal == nil {
		a.fatal = err
	}
	return err
}

// Crawl runs one attempt against spec.Domain. The returned error is non-nil
// only when the archive could not be written; every other failure is part
// of the report.
func (c *DomainCrawler) Crawl(ctx context.Context, spec model.CrawlSpec) (*model.AttemptReport, error) {
	spec.Domain = model.NormalizeDomain(spec.Domain)
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	a := &attempt{
		spec:           spec,
		paths:          PathsFor(c.settings.ArchiveDir, spec.Domain),
		report:         &model.AttemptReport{Domain: spec.Domain, StartedAt: c.now()},
		logger:         c.logger.With(slog.String("domain", spec.Domain)),
		rules:          robots.AllowAll(),
		discoveredSeen: make(map[uint64]bool),
	}
	c.observer.AttemptStarted(ctx, spec.Domain)
	a.logger.Info("crawl attempt started", slog.Int("depth", spec.Depth))

	p := pipeline.New[*attempt](pipeline.WithLogger(a.logger))
	p.AddSteps(
		pipeline.NewStep("prepare", c.prepare),
		pipeline.NewStep("probe", c.probe),
		pipeline.NewStep("resync", c.resync),
		pipeline.NewStep("fetch-robots", c.fetchRobots),
		pipeline.NewStep("sniff-root", c.sniffRoot),
		pipeline.NewStep("revisit", c.revisitPass),
		pipeline.NewStep("expand-frontier", c.expandFrontier),
		pipeline.NewStep("drain-frontier", c.drainFrontier),
	)
	p.Finally(pipeline.NewStep("terminal", func(tctx context.Context, a *attempt) error {
		return c.terminal(tctx, ctx.Err(), a)
	}))

	if err := p.Execute(ctx, a); err != nil && a.fatal == nil && ctx.Err() == nil {
		a.logger.Warn("crawl attempt ended early", slog.String("error", err.Error()))
	}

	c.observer.AttemptFinished(context.WithoutCancel(ctx), a.report)
	a.logger.Info("crawl attempt finished",
		slog.String("termination", a.report.Termination.String()),
		slog.Int("fetched", a.report.Fetched),
		slog.Int("revisited", a.report.Revisited),
		slog.Int("errors", a.report.Errors),
		slog.Duration("duration", a.report.Duration()))

	return a.report, a.fatal
}

// fetch performs a fetch, retrying rate-limited requests after the
// server's Retry-After. It returns the result and the wall-clock time
// spent, waits included.
func (c *DomainCrawler) fetch(ctx context.Context, a *attempt, req recorder.Request) (recorder.Result, time.Duration, error) {
	start := c.now()
	for try := 0; ; try++ {
		res, err := a.rec.Fetch(ctx, req)
		if err != nil {
			return nil, c.now().Sub(start), a.fail(err)
		}

		exc, ok := res.(recorder.Exception)
		if !ok || try >= c.settings.MaxRateLimitRetries {
			return res, c.now().Sub(start), nil
		}
		rl, limited := recorder.IsRateLimited(exc.Cause)
		if !limited {
			return res, c.now().Sub(start), nil
		}

		a.logger.Info("rate limited",
			slog.String("url", req.URL.String()),
			slog.Duration("retry_after", rl.RetryAfter))
		if err := a.timer.WaitRetryDelay(ctx, rl.RetryAfter); err != nil {
			return res, c.now().Sub(start), nil
		}
	}
}

// handleResult updates counters and the frontier from a fetch result.
func (c *DomainCrawler) handleResult(ctx context.Context, a *attempt, res recorder.Result, elapsed time.Duration) {
	switch r := res.(type) {
	case recorder.OK:
		if r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices {
			a.report.Fetched++
			if revisit.IsHTML(r.ContentType) {
				c.enqueueLinks(a, ExtractLinks(r.URL, r.Body, r.Header.Get("Content-Type")))
			}
		}
	case recorder.Redirect:
		if !r.Location.SameDomain(r.URL) {
			break
		}
		if r.URL.Scheme == "http" && r.Location.Scheme == "https" && r.Location.PathAndQuery() == r.URL.PathAndQuery() {
			a.frontier.SetPreferredScheme("https")
		}
		c.enqueueLinks(a, []model.URL{r.Location})
	case recorder.NotModified:
		a.report.Fetched++
	case recorder.Exception:
		if ctx.Err() != nil {
			return
		}
		a.report.Errors++
		if wroteRefusal(r.Cause) {
			a.report.Refusals++
		}
		a.logger.Debug("fetch failed",
			slog.String("url", r.URL.String()),
			slog.String("error", r.Cause.Error()))
	case recorder.None:
		a.report.Refusals++
	}
	c.observer.FetchCompleted(ctx, a.spec.Domain, outcomeOf(res), elapsed)
}

// wroteRefusal reports whether the recorder archived a refusal for cause.
func wroteRefusal(cause error) bool {
	if errors.Is(cause, recorder.ErrCrawlerTrap) || errors.Is(cause, recorder.ErrBadRedirect) {
		return false
	}
	_, limited := recorder.IsRateLimited(cause)
	return !limited
}

func outcomeOf(res recorder.Result) string {
	switch res.(type) {
	case recorder.OK:
		return "ok"
	case recorder.Redirect:
		return "redirect"
	case recorder.NotModified:
		return "not-modified"
	case recorder.Exception:
		return "exception"
	case recorder.None:
		return "refused"
	default:
		return "unknown"
	}
}

// enqueueLinks queues links and remembers them for the known-link sink.
func (c *DomainCrawler) enqueueLinks(a *attempt, links []model.URL) {
	for _, u := range links {
		a.frontier.Enqueue(u)

		h := u.Hash()
		if a.discoveredSeen[h] || len(a.discovered) >= c.settings.MaxDiscoveredLinks {
			continue
		}
		a.discoveredSeen[h] = true
		a.discovered = append(a.discovered, a.frontier.CorrectScheme(u).String())
	}
}

func (c *DomainCrawler) newTimer(declared time.Duration) *politeness.CrawlDelayTimer {
	opts := []politeness.TimerOption{
		politeness.WithDefaultBounds(c.settings.MinDelay, c.settings.MaxDelay),
		politeness.WithRetryBounds(c.settings.RetryMin, c.settings.RetryMax),
		politeness.WithSleepChunk(c.settings.SleepChunk),
	}
	if c.sleeper != nil {
		opts = append(opts, politeness.WithSleeper(c.sleeper))
	}
	return politeness.NewCrawlDelayTimer(declared, opts...)
}
