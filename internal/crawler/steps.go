package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/nao1215/warcrawl/internal/frontier"
	"github.com/nao1215/warcrawl/internal/model"
	"github.com/nao1215/warcrawl/internal/pipeline"
	"github.com/nao1215/warcrawl/internal/prober"
	"github.com/nao1215/warcrawl/internal/recorder"
	"github.com/nao1215/warcrawl/internal/revisit"
	"github.com/nao1215/warcrawl/internal/robots"
	"github.com/nao1215/warcrawl/internal/warc"
)

// robotsAcceptTypes lets robots.txt through whatever type the server claims.
var robotsAcceptTypes = []string{"text/plain", "*/*"}

// prepare waits for a launch slot, takes the domain lock and opens the
// live archive.
func (c *DomainCrawler) prepare(ctx context.Context, a *attempt) error {
	if err := c.throttle.AwaitPermission(ctx); err != nil {
		return err
	}

	unlock, err := c.locks.Lock(ctx, a.spec.Domain)
	if err != nil {
		return err
	}
	a.unlock = unlock

	if err := a.paths.Prepare(); err != nil {
		return a.fail(err)
	}

	w, err := warc.Create(a.paths.Live,
		warc.WithDigestAlgorithm(c.settings.DigestAlgorithm),
		warc.WithClock(c.now),
	)
	if err != nil {
		return a.fail(fmt.Errorf("failed to open archive: %w", err))
	}
	a.writer = w
	a.rec = recorder.New(c.client, w,
		recorder.WithUserAgent(c.settings.UserAgent),
		recorder.WithSoftware(c.settings.Software),
		recorder.WithMaxBodySize(c.settings.MaxBodySize),
		recorder.WithMaxFetchTime(c.settings.MaxFetchTime),
		recorder.WithTrapThresholds(c.settings.TrapMinDuration, c.settings.TrapMaxBodySize),
		recorder.WithClock(c.now),
		recorder.WithLogger(a.logger),
	)
	a.timer = c.newTimer(0)
	return nil
}

// probe checks the domain and seeds the frontier from the probed root.
// Any outcome but Ok ends the attempt after the warcinfo record.
func (c *DomainCrawler) probe(ctx context.Context, a *attempt) error {
	seeds := a.spec.SeedURLs()
	candidate := c.probeCandidate(ctx, a, seeds)

	res := c.prober.Probe(ctx, a.spec.Domain, candidate)
	a.report.ProbeOutcome = res.String()
	a.report.IP = prober.IPOf(res)

	if err := a.rec.RecordInfo(a.report.IP, a.spec.Domain, a.report.ProbeOutcome); err != nil {
		return a.fail(err)
	}

	ok, isOK := res.(prober.Ok)
	if !isOK {
		a.logger.Info("probe rejected domain", slog.String("outcome", a.report.ProbeOutcome))
		a.report.Fetched = 1
		a.report.Termination = model.TerminationProbe
		a.probeFailed = true
		return pipeline.ErrStop
	}

	a.report.RootURL = ok.URL.String()
	opts := []frontier.Option{frontier.WithSlack(c.settings.FrontierSlack)}
	if c.urlBlocks != nil {
		opts = append(opts, frontier.WithBlocklist(c.urlBlocks))
	}
	a.frontier = frontier.New(ok.URL, opts...)
	a.frontier.Seed(seeds, a.spec.Depth)
	return nil
}

// probeCandidate picks the URL the probe starts from: the first seed,
// else the first link remembered for the domain.
func (c *DomainCrawler) probeCandidate(ctx context.Context, a *attempt, seeds []model.URL) *model.URL {
	if len(seeds) > 0 {
		return &seeds[0]
	}
	if c.linkSource == nil {
		return nil
	}
	links, err := c.linkSource.KnownLinks(ctx, a.spec.Domain)
	if err != nil {
		a.logger.Warn("failed to load known links", slog.String("error", err.Error()))
		return nil
	}
	for _, raw := range links {
		if u, err := model.ParseURL(raw); err == nil && u.Domain == a.spec.Domain {
			return &u
		}
	}
	return nil
}

// resync replays the archive of an interrupted attempt, if any.
func (c *DomainCrawler) resync(_ context.Context, a *attempt) error {
	if !a.paths.HasPartial() {
		return nil
	}

	stats, err := Resync(a.paths.Partial, a.rec, a.frontier)
	switch {
	case errors.Is(err, ErrUnreadablePartial):
		a.logger.Warn("skipping unreadable partial archive", slog.String("error", err.Error()))
	case err != nil:
		return a.fail(err)
	default:
		a.report.Fetched += stats.Fetched
		a.report.Resynced = stats.Fetched
		c.enqueueLinks(a, stats.Links)
		a.logger.Info("resumed from partial archive",
			slog.Int("records", stats.Records),
			slog.Int("fetched", stats.Fetched),
			slog.Bool("truncated", stats.Truncated))
	}

	if err := a.paths.RemovePartial(); err != nil {
		return a.fail(err)
	}
	return nil
}

// fetchRobots loads robots.txt, preferring the root's scheme and falling
// back to http, and sets up the crawl-delay timer.
func (c *DomainCrawler) fetchRobots(ctx context.Context, a *attempt) error {
	root := a.frontier.Root()
	candidates := []model.URL{root.WithPath(robots.Path)}
	if root.Scheme == "https" {
		candidates = append(candidates, root.WithScheme("http").WithPath(robots.Path))
	}

	start := c.now()
	for _, u := range candidates {
		rules, found, err := c.loadRobots(ctx, a, u)
		if err != nil {
			return err
		}
		if found {
			a.rules = rules
			break
		}
	}
	a.frontier.MarkVisited(candidates[0])

	a.timer = c.newTimer(a.rules.CrawlDelay())
	for _, raw := range a.rules.Sitemaps() {
		if u, err := root.Resolve(raw); err == nil {
			a.sitemaps = append(a.sitemaps, u)
		}
	}
	a.logger.Debug("robots.txt loaded",
		slog.Duration("crawl_delay", a.rules.CrawlDelay()),
		slog.Int("sitemaps", len(a.sitemaps)))

	return a.timer.WaitFetchDelay(ctx, c.now().Sub(start))
}

// loadRobots fetches one robots.txt location, following a single
// same-domain redirect. found is false when the location gave no answer
// worth trusting and the next one should be tried.
func (c *DomainCrawler) loadRobots(ctx context.Context, a *attempt, u model.URL) (*robots.Rules, bool, error) {
	for hop := 0; hop < 2; hop++ {
		res, err := a.rec.Fetch(ctx, recorder.Request{URL: u, AcceptTypes: robotsAcceptTypes})
		if err != nil {
			return nil, false, a.fail(err)
		}

		switch r := res.(type) {
		case recorder.OK:
			rules, err := robots.FromResponse(r.StatusCode, r.Body, c.settings.RobotsAgent)
			if err != nil {
				a.logger.Warn("unparseable robots.txt, allowing all", slog.String("error", err.Error()))
				return robots.AllowAll(), true, nil
			}
			return rules, true, nil
		case recorder.Redirect:
			if !r.Location.SameDomain(u) {
				return robots.AllowAll(), true, nil
			}
			u = r.Location
		default:
			return nil, false, nil
		}
	}
	return robots.AllowAll(), true, nil
}

// sniffRoot fetches the root document, picks the link filter for the site
// engine and collects announced feeds. The root is marked visited whatever
// the outcome.
func (c *DomainCrawler) sniffRoot(ctx context.Context, a *attempt) error {
	root := a.frontier.Root()
	defer a.frontier.MarkVisited(root)

	if a.frontier.IsVisited(root) {
		return nil
	}
	if !a.rules.Allowed(root) {
		return c.refuseDisallowed(a, root)
	}

	res, elapsed, err := c.fetch(ctx, a, recorder.Request{URL: root})
	if err != nil {
		return err
	}
	if ok, isOK := res.(recorder.OK); isOK && revisit.IsHTML(ok.ContentType) {
		sniffed := Sniff(ok.URL, ok.Body)
		a.frontier.SetLinkFilter(sniffed.Filter)
		a.sitemaps = append(a.sitemaps, sniffed.Feeds...)
		a.logger.Debug("root sniffed",
			slog.String("engine", sniffed.Engine.String()),
			slog.Int("feeds", len(sniffed.Feeds)))
	}
	c.handleResult(ctx, a, res, elapsed)

	return a.timer.WaitFetchDelay(ctx, elapsed)
}

// revisitPass re-fetches the documents of the previous completed attempt
// with conditional requests, copying unchanged ones from the old archive.
func (c *DomainCrawler) revisitPass(ctx context.Context, a *attempt) error {
	refs, err := revisit.OpenReference(a.paths.Final)
	if err != nil {
		a.logger.Warn("skipping revisit pass", slog.String("error", err.Error()))
		return nil
	}
	defer refs.Close()

	var recrawled, retained int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.report.Errors >= c.settings.MaxErrors {
			break
		}
		doc, err := refs.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			a.logger.Warn("stopping revisit pass", slog.String("error", err.Error()))
			break
		}

		u := a.frontier.CorrectScheme(doc.URL)
		if !u.SameDomain(a.frontier.Root()) || a.frontier.IsVisited(u) ||
			a.frontier.IsBlocked(u) || !a.rules.Allowed(u) {
			continue
		}
		a.frontier.MarkVisited(u)

		if c.skipRevisit(recrawled, retained) {
			if err := a.rec.RecordReferenceCopy(u, doc.ContentType, doc.Status, doc.Body, doc.Header, doc.Tags); err != nil {
				return a.fail(err)
			}
			a.report.Fetched++
			a.report.Revisited++
			c.enqueueLinks(a, ExtractLinks(u, doc.Body, doc.Header.Get("Content-Type")))
			continue
		}

		res, elapsed, err := c.fetch(ctx, a, recorder.Request{URL: u, Tags: doc.Tags})
		if err != nil {
			return err
		}

		switch r := res.(type) {
		case recorder.NotModified:
			if err := a.rec.RecordReferenceCopy(u, doc.ContentType, doc.Status, doc.Body, doc.Header, doc.Tags.Merge(r.Tags)); err != nil {
				return a.fail(err)
			}
			recrawled++
			retained++
			a.report.Fetched++
			a.report.Revisited++
			a.report.Retained++
			c.enqueueLinks(a, ExtractLinks(u, doc.Body, doc.Header.Get("Content-Type")))
			c.observer.FetchCompleted(ctx, a.spec.Domain, outcomeOf(res), elapsed)
		case recorder.OK:
			if r.StatusCode == http.StatusOK {
				recrawled++
				a.report.Revisited++
				if c.comparator.IsSameContent(doc.Body, r.Body) {
					retained++
					a.report.Retained++
				}
			}
			c.handleResult(ctx, a, res, elapsed)
		default:
			c.handleResult(ctx, a, res, elapsed)
		}

		if err := a.timer.WaitFetchDelay(ctx, elapsed); err != nil {
			return err
		}
	}

	if a.report.Revisited > 0 {
		depth := a.frontier.GrowDepth(c.settings.RevisitGrowthFactor, c.settings.RevisitGrowthLimit)
		a.logger.Info("revisit pass done",
			slog.Int("revisited", a.report.Revisited),
			slog.Int("retained", a.report.Retained),
			slog.Int("depth", depth))
	}
	return nil
}

// skipRevisit decides whether a document is copied without asking the
// server, once the site has proven stable.
func (c *DomainCrawler) skipRevisit(recrawled, retained int) bool {
	if recrawled < c.settings.SkipAfterRecrawls {
		return false
	}
	if float64(retained) <= c.settings.SkipRetainedRatio*float64(recrawled) {
		return false
	}
	return c.random() < c.settings.SkipProbability
}

// expandFrontier adds remembered links and sitemap entries.
func (c *DomainCrawler) expandFrontier(ctx context.Context, a *attempt) error {
	root := a.frontier.Root()

	if c.linkSource != nil {
		links, err := c.linkSource.KnownLinks(ctx, a.spec.Domain)
		if err != nil {
			a.logger.Warn("failed to load known links", slog.String("error", err.Error()))
		}
		for _, raw := range links {
			if u, err := model.ParseURL(raw); err == nil {
				a.frontier.Enqueue(u)
			}
		}
	}

	locations := append(slices.Clone(a.sitemaps), root.WithPath("/sitemap.xml"))
	urls := c.sitemapper.Collect(ctx, root, locations, a.timer.WaitFetchDelay)
	added := a.frontier.EnqueueAll(urls)
	a.logger.Debug("frontier expanded",
		slog.Int("sitemap_urls", len(urls)),
		slog.Int("queued", added))

	return ctx.Err()
}

// drainFrontier fetches queued URLs until the queue is empty, the budget
// is spent, the error ceiling is hit or ctx is cancelled.
func (c *DomainCrawler) drainFrontier(ctx context.Context, a *attempt) error {
	f := a.frontier
	for {
		switch {
		case ctx.Err() != nil:
			a.report.Termination = model.TerminationCancelled
			return nil
		case f.IsEmpty():
			a.report.Termination = model.TerminationExhausted
			return nil
		case f.IsExhausted():
			a.report.Termination = model.TerminationDepth
			return nil
		case a.report.Errors >= c.settings.MaxErrors:
			a.report.Termination = model.TerminationErrors
			return nil
		}

		u := f.CorrectScheme(f.TakeNext())
		if f.IsVisited(u) || len(u.Path) > c.settings.MaxPathLength ||
			f.IsBlocked(u) || !f.Filter(u) {
			continue
		}
		if !a.rules.Allowed(u) {
			if err := c.refuseDisallowed(a, u); err != nil {
				return err
			}
			continue
		}
		f.MarkVisited(u)

		res, elapsed, err := c.fetch(ctx, a, recorder.Request{URL: u})
		if err != nil {
			return err
		}
		c.handleResult(ctx, a, res, elapsed)

		if err := a.timer.WaitFetchDelay(ctx, elapsed); err != nil {
			a.report.Termination = model.TerminationCancelled
			return nil
		}
	}
}

// refuseDisallowed archives a robots refusal for u.
func (c *DomainCrawler) refuseDisallowed(a *attempt, u model.URL) error {
	a.frontier.MarkVisited(u)
	if err := a.rec.RecordRefusal(u, warc.RefusalRobotsDisallowed, nil); err != nil {
		return a.fail(err)
	}
	a.report.Refusals++
	return nil
}

// terminal closes and files the archive, fills the report and hands the
// discovered links to the sink. cause is the error of the attempt's
// context, if it was cancelled.
func (c *DomainCrawler) terminal(ctx context.Context, cause error, a *attempt) error {
	defer func() {
		if a.unlock != nil {
			a.unlock()
		}
	}()

	var errs []error
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			errs = append(errs, a.fail(fmt.Errorf("failed to close archive: %w", err)))
		} else {
			move := a.paths.Promote
			if a.probeFailed {
				move = a.paths.Discard
			}
			path, err := move()
			if err != nil {
				errs = append(errs, a.fail(err))
			} else {
				a.report.ArchivePath = path
			}
		}
	}

	if f := a.frontier; f != nil {
		a.report.Visited = f.VisitedCount()
		a.report.Queued = f.QueueSize()
		a.report.DepthBudget = f.Depth()
	}

	switch {
	case a.fatal != nil:
		a.report.Termination = model.TerminationFailed
		a.report.Error = a.fatal.Error()
	case a.report.Termination != model.TerminationUnknown:
	case cause != nil:
		a.report.Termination = model.TerminationCancelled
	default:
		a.report.Termination = model.TerminationExhausted
	}

	if c.linkSink != nil && len(a.discovered) > 0 {
		if err := c.linkSink.AddKnownLinks(ctx, a.spec.Domain, a.discovered); err != nil {
			a.logger.Warn("failed to store discovered links", slog.String("error", err.Error()))
		}
	}

	a.report.FinishedAt = c.now()
	return errors.Join(errs...)
}
