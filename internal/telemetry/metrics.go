package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/nao1215/warcrawl/internal/model"
)

// meterName is the instrumentation scope of the crawl metrics.
const meterName = "github.com/nao1215/warcrawl"

// ErrNoCollector is returned when metrics are enabled without an endpoint.
var ErrNoCollector = errors.New("no collector endpoint configured")

// Options configures metric export.
type Options struct {
	// Enabled turns on OTLP/HTTP export. When false, every instrument is
	// a no-op.
	Enabled bool

	// CollectorURL is the collector endpoint in "host:port" form.
	CollectorURL string

	// ServiceName and ServiceVersion describe the resource.
	ServiceName    string
	ServiceVersion string

	// Interval is the export period. Zero uses the SDK default.
	Interval time.Duration
}

// Provider owns the meter provider and the crawl instruments.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider

	// Metrics receives crawl progress.
	Metrics *CrawlMetrics
}

// Setup creates the crawl metrics. With export disabled the instruments
// come from a no-op meter and Shutdown does nothing.
func Setup(ctx context.Context, opts Options) (*Provider, error) {
	if !opts.Enabled {
		metrics, err := NewCrawlMetrics(noop.NewMeterProvider().Meter(meterName))
		if err != nil {
			return nil, err
		}
		return &Provider{Metrics: metrics}, nil
	}
	if opts.CollectorURL == "" {
		return nil, ErrNoCollector
	}

	res, err := newResource(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}
	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(opts.CollectorURL),
		otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if opts.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(opts.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	metrics, err := NewCrawlMetrics(mp.Meter(meterName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	return &Provider{meterProvider: mp, Metrics: metrics}, nil
}

// Shutdown flushes pending metrics and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}

func newResource(opts Options) (*resource.Resource, error) {
	// Schemaless so that the merge never conflicts with the SDK default schema.
	return resource.Merge(resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
			semconv.ServiceInstanceID(uuid.New().String()),
		))
}

// CrawlMetrics records crawl progress as OpenTelemetry instruments.
// It is safe for concurrent use.
type CrawlMetrics struct {
	attemptsStarted  metric.Int64Counter
	attemptsFinished metric.Int64Counter
	activeAttempts   metric.Int64UpDownCounter
	fetches          metric.Int64Counter
	fetchDuration    metric.Float64Histogram
	documents        metric.Int64Counter
}

// NewCrawlMetrics creates the crawl instruments on meter.
func NewCrawlMetrics(meter metric.Meter) (*CrawlMetrics, error) {
	var (
		m    CrawlMetrics
		err  error
		errs []error
	)

	m.attemptsStarted, err = meter.Int64Counter("warcrawl.attempts.started",
		metric.WithDescription("The number of crawl attempts started."),
		metric.WithUnit("{attempts}"))
	errs = append(errs, err)

	m.attemptsFinished, err = meter.Int64Counter("warcrawl.attempts.finished",
		metric.WithDescription("The number of crawl attempts finished, by termination."),
		metric.WithUnit("{attempts}"))
	errs = append(errs, err)

	m.activeAttempts, err = meter.Int64UpDownCounter("warcrawl.attempts.active",
		metric.WithDescription("The number of crawl attempts in progress."),
		metric.WithUnit("{attempts}"))
	errs = append(errs, err)

	m.fetches, err = meter.Int64Counter("warcrawl.fetches",
		metric.WithDescription("The number of fetches, by outcome."),
		metric.WithUnit("{requests}"))
	errs = append(errs, err)

	m.fetchDuration, err = meter.Float64Histogram("warcrawl.fetch.duration",
		metric.WithDescription("The duration of fetches, by outcome."),
		metric.WithUnit("s"))
	errs = append(errs, err)

	m.documents, err = meter.Int64Counter("warcrawl.documents",
		metric.WithDescription("The number of archived documents, by kind."),
		metric.WithUnit("{documents}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to create crawl instruments: %w", err)
	}
	return &m, nil
}

// AttemptStarted records the start of an attempt.
func (m *CrawlMetrics) AttemptStarted(ctx context.Context, _ string) {
	m.attemptsStarted.Add(ctx, 1)
	m.activeAttempts.Add(ctx, 1)
}

// FetchCompleted records one fetch.
func (m *CrawlMetrics) FetchCompleted(ctx context.Context, _ string, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.fetches.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// AttemptFinished records the end of an attempt and its document counts.
func (m *CrawlMetrics) AttemptFinished(ctx context.Context, report *model.AttemptReport) {
	m.activeAttempts.Add(ctx, -1)
	m.attemptsFinished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("termination", report.Termination.String())))

	for kind, n := range map[string]int{
		"fetched":   report.Fetched,
		"revisited": report.Revisited,
		"retained":  report.Retained,
		"resynced":  report.Resynced,
	} {
		if n > 0 {
			m.documents.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
		}
	}
}
