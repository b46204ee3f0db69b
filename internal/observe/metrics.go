// Package observe records pipeline metrics through the OpenTelemetry Metrics
// API. The service exposes them for Prometheus scraping via [InitProvider]
// and [Handler]; tests should use [NewMetrics] with their own
// [metric.MeterProvider].
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/book-expert/voice-outreach"

// Stage names used with StageDuration.
const (
	StageCompose    = "compose"
	StageSynthesize = "synthesize"
	StageArchive    = "archive"
	StagePublish    = "publish"
)

// Metrics holds the metric instruments of the pipeline. The underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// RowsComposed counts composed messages. Attribute: mode.
	RowsComposed metric.Int64Counter

	// ArtifactsAccepted counts audio artifacts that passed the size check.
	ArtifactsAccepted metric.Int64Counter

	// ArtifactsPublished counts artifacts pushed to the hosting repository.
	ArtifactsPublished metric.Int64Counter

	// RowFailures counts row warnings. Attribute: kind.
	RowFailures metric.Int64Counter

	// StageDuration tracks the wall time of a whole stage. Attribute: stage.
	StageDuration metric.Float64Histogram
}

// stageBuckets are histogram boundaries (seconds) for batch stages that call
// remote APIs once per row.
var stageBuckets = []float64{
	0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates every instrument on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)

	var err error

	met := &Metrics{}

	if met.RowsComposed, err = m.Int64Counter("outreach.rows.composed",
		metric.WithDescription("Total messages composed by mode."),
	); err != nil {
		return nil, err
	}

	if met.ArtifactsAccepted, err = m.Int64Counter("outreach.artifacts.accepted",
		metric.WithDescription("Total audio artifacts accepted."),
	); err != nil {
		return nil, err
	}

	if met.ArtifactsPublished, err = m.Int64Counter("outreach.artifacts.published",
		metric.WithDescription("Total audio artifacts published."),
	); err != nil {
		return nil, err
	}

	if met.RowFailures, err = m.Int64Counter("outreach.row.failures",
		metric.WithDescription("Total row warnings by kind."),
	); err != nil {
		return nil, err
	}

	if met.StageDuration, err = m.Float64Histogram("outreach.stage.duration",
		metric.WithDescription("Wall time of a pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Noop returns Metrics backed by the no-op provider.
func Noop() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: failed to create no-op metrics: " + err.Error())
	}

	return met
}

// RecordRowComposed records one composed message.
func (m *Metrics) RecordRowComposed(ctx context.Context, mode string) {
	m.RowsComposed.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordArtifactAccepted records one accepted artifact.
func (m *Metrics) RecordArtifactAccepted(ctx context.Context) {
	m.ArtifactsAccepted.Add(ctx, 1)
}

// RecordArtifactPublished records one published artifact.
func (m *Metrics) RecordArtifactPublished(ctx context.Context) {
	m.ArtifactsPublished.Add(ctx, 1)
}

// RecordRowFailure records one row warning.
func (m *Metrics) RecordRowFailure(ctx context.Context, kind string) {
	m.RowFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordStageDuration records the time elapsed since start for a stage.
func (m *Metrics) RecordStageDuration(ctx context.Context, stage string, start time.Time) {
	m.StageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
