package telemetry

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nao1215/warcrawl/internal/crawler"
	"github.com/nao1215/warcrawl/internal/model"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestCrawlMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := NewCrawlMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.AttemptStarted(ctx, "a.example")
	metrics.AttemptStarted(ctx, "b.example")
	metrics.FetchCompleted(ctx, "a.example", "ok", 120*time.Millisecond)
	metrics.FetchCompleted(ctx, "a.example", "ok", 80*time.Millisecond)
	metrics.FetchCompleted(ctx, "a.example", "exception", time.Second)
	metrics.AttemptFinished(ctx, &model.AttemptReport{
		Domain:      "a.example",
		Fetched:     2,
		Revisited:   1,
		Termination: model.TerminationExhausted,
	})

	got := collect(t, reader)

	assert.Equal(t, int64(2), sumFor(t, got["warcrawl.attempts.started"], "", ""))
	assert.Equal(t, int64(1), sumFor(t, got["warcrawl.attempts.active"], "", ""))
	assert.Equal(t, int64(1), sumFor(t, got["warcrawl.attempts.finished"], "termination", "exhausted"))
	assert.Equal(t, int64(2), sumFor(t, got["warcrawl.fetches"], "outcome", "ok"))
	assert.Equal(t, int64(1), sumFor(t, got["warcrawl.fetches"], "outcome", "exception"))
	assert.Equal(t, int64(2), sumFor(t, got["warcrawl.documents"], "kind", "fetched"))
	assert.Equal(t, int64(1), sumFor(t, got["warcrawl.documents"], "kind", "revisited"))
	assert.Equal(t, int64(0), sumFor(t, got["warcrawl.documents"], "kind", "retained"))

	hist, ok := got["warcrawl.fetch.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestSetupDisabled(t *testing.T) {
	t.Parallel()

	p, err := Setup(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, p.Metrics)

	// No-op instruments accept calls.
	p.Metrics.AttemptStarted(context.Background(), "a.example")
	p.Metrics.AttemptFinished(context.Background(), &model.AttemptReport{Domain: "a.example"})
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetupRequiresCollector(t *testing.T) {
	t.Parallel()

	_, err := Setup(context.Background(), Options{Enabled: true})
	assert.ErrorIs(t, err, ErrNoCollector)
}

func TestSetupExportsOnShutdown(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/metrics" {
			requests.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(collector.Close)

	endpoint := collector.Listener.Addr().(*net.TCPAddr).String()
	p, err := Setup(context.Background(), Options{
		Enabled:        true,
		CollectorURL:   endpoint,
		ServiceName:    "warcrawl-test",
		ServiceVersion: "test",
		Interval:       time.Hour,
	})
	require.NoError(t, err)

	p.Metrics.AttemptStarted(context.Background(), "a.example")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.GreaterOrEqual(t, requests.Load(), int32(1))
}

var _ crawler.Observer = (*CrawlMetrics)(nil)
