// Package observe provides application-wide observability primitives for
// cribwatch: OpenTelemetry metrics, tracing helpers, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. Tests should use [NewMetrics]
// with a private [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all cribwatch metrics.
const meterName = "github.com/haneul-dev/cribwatch"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// UploadDuration tracks object-store upload latency.
	UploadDuration metric.Float64Histogram

	// AnalysisDuration tracks vision-model analysis latency.
	AnalysisDuration metric.Float64Histogram

	// SynthesisDuration tracks speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// PlaybackDuration tracks how long a single alert takes to play.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// PipelineRuns counts processed videos. Use with attribute:
	//   attribute.String("outcome", "ok"|"no_alarm"|"unparsable"|"rejected"|"error")
	PipelineRuns metric.Int64Counter

	// AlertsPlayed counts alerts played to completion.
	AlertsPlayed metric.Int64Counter

	// AlertsDropped counts alerts dropped before playback completed
	// (synthesis failure, playback failure, queue shutdown). Use with
	// attribute: attribute.String("reason", ...)
	AlertsDropped metric.Int64Counter

	// ProviderErrors counts provider API failures. Use with attribute:
	//   attribute.String("provider", "objectstore"|"vision"|"speech"|"player")
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of alerts waiting or playing in the
	// playback queue.
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Remote
// video analysis runs for tens of seconds, so the upper buckets reach well
// past typical request latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.UploadDuration, "cribwatch.upload.duration", "Latency of object-store uploads."},
		{&met.AnalysisDuration, "cribwatch.analysis.duration", "Latency of vision-model analysis."},
		{&met.SynthesisDuration, "cribwatch.synthesis.duration", "Latency of speech synthesis."},
		{&met.PlaybackDuration, "cribwatch.playback.duration", "Duration of a single alert playback."},
		{&met.HTTPRequestDuration, "cribwatch.http.request.duration", "HTTP request processing time."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.PipelineRuns, err = m.Int64Counter("cribwatch.pipeline.runs",
		metric.WithDescription("Number of processed videos by outcome."),
	); err != nil {
		return nil, err
	}
	if met.AlertsPlayed, err = m.Int64Counter("cribwatch.alerts.played",
		metric.WithDescription("Number of alerts played to completion."),
	); err != nil {
		return nil, err
	}
	if met.AlertsDropped, err = m.Int64Counter("cribwatch.alerts.dropped",
		metric.WithDescription("Number of alerts dropped before playback completed."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cribwatch.provider.errors",
		metric.WithDescription("Number of provider API failures."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("cribwatch.queue.depth",
		metric.WithDescription("Number of alerts waiting or playing in the playback queue."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderError records a provider failure with the standard
// attribute set.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}
