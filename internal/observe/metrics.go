// Package observe wires metrics and tracing. Instruments are registered on
// an OpenTelemetry meter and exposed through the Prometheus exporter set up
// by [InitProvider].
package observe

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Glasswing
// metrics.
const meterName = "github.com/nivara-ai/glasswing"

// Metrics bundles the pipeline instruments. A nil *Metrics is valid and
// records nothing, so callers never need to guard instrumentation sites.
type Metrics struct {
	transcriptionLatency metric.Float64Histogram
	chatLatency          metric.Float64Histogram
	providerErrors       metric.Int64Counter
	segmentsFlushed      metric.Int64Counter
	segmentsDiscarded    metric.Int64Counter
	activeSessions       metric.Int64UpDownCounter
	licenseChecks        metric.Int64Counter
}

// NewMetrics registers all instruments on a meter from mp. Tests should
// pass a provider with a manual reader to avoid cross-test pollution.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.transcriptionLatency, err = meter.Float64Histogram(
		"glasswing.transcription.duration",
		metric.WithDescription("Wall time of one transcription request including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transcription histogram: %w", err)
	}

	m.chatLatency, err = meter.Float64Histogram(
		"glasswing.chat.duration",
		metric.WithDescription("Wall time from chat request start to stream end"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chat histogram: %w", err)
	}

	m.providerErrors, err = meter.Int64Counter(
		"glasswing.provider.errors",
		metric.WithDescription("Failed provider calls by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("create provider error counter: %w", err)
	}

	m.segmentsFlushed, err = meter.Int64Counter(
		"glasswing.segments.flushed",
		metric.WithDescription("Audio segments handed to the pipeline"),
	)
	if err != nil {
		return nil, fmt.Errorf("create flushed counter: %w", err)
	}

	m.segmentsDiscarded, err = meter.Int64Counter(
		"glasswing.segments.discarded",
		metric.WithDescription("Audio segments dropped without speech"),
	)
	if err != nil {
		return nil, fmt.Errorf("create discarded counter: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"glasswing.sessions.active",
		metric.WithDescription("Currently connected sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("create session counter: %w", err)
	}

	m.licenseChecks, err = meter.Int64Counter(
		"glasswing.license.checks",
		metric.WithDescription("License verifications by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create license counter: %w", err)
	}

	return m, nil
}

// TranscriptionObserved records one transcription attempt.
func (m *Metrics) TranscriptionObserved(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.transcriptionLatency.Record(ctx, d.Seconds())
	if err != nil {
		m.providerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "stt")))
	}
}

// ChatObserved records one chat completion attempt.
func (m *Metrics) ChatObserved(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.chatLatency.Record(ctx, d.Seconds())
	if err != nil {
		m.providerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "llm")))
	}
}

// SegmentFlushed counts a segment accepted by the pipeline.
func (m *Metrics) SegmentFlushed(ctx context.Context) {
	if m == nil {
		return
	}
	m.segmentsFlushed.Add(ctx, 1)
}

// SegmentDiscarded counts a segment dropped without speech.
func (m *Metrics) SegmentDiscarded(ctx context.Context) {
	if m == nil {
		return
	}
	m.segmentsDiscarded.Add(ctx, 1)
}

// SessionOpened marks a session as active.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// SessionClosed marks a session as gone.
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}

// LicenseChecked records one license verification.
func (m *Metrics) LicenseChecked(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	m.licenseChecks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", valid)))
}
