package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	// Must not panic.
	m.TranscriptionObserved(ctx, time.Second, nil)
	m.ChatObserved(ctx, time.Second, errors.New("boom"))
	m.SegmentFlushed(ctx)
	m.SegmentDiscarded(ctx)
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)
	m.LicenseChecked(ctx, true)
}

func TestTranscriptionObservedRecordsHistogramAndErrors(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.TranscriptionObserved(ctx, 250*time.Millisecond, nil)
	m.TranscriptionObserved(ctx, 100*time.Millisecond, errors.New("timeout"))

	rm := collectMetrics(t, reader)

	hist := findMetric(rm, "glasswing.transcription.duration")
	if hist == nil {
		t.Fatal("transcription histogram not found")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", hist.Data)
	}
	if len(data.DataPoints) != 1 || data.DataPoints[0].Count != 2 {
		t.Errorf("got %d histogram points, want 1 with count 2", len(data.DataPoints))
	}

	errCounter := findMetric(rm, "glasswing.provider.errors")
	if errCounter == nil {
		t.Fatal("provider error counter not found")
	}
	sum, ok := errCounter.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", errCounter.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("got %d provider errors, want 1", total)
	}
}

func TestSessionGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionOpened(ctx)
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)

	rm := collectMetrics(t, reader)
	active := findMetric(rm, "glasswing.sessions.active")
	if active == nil {
		t.Fatal("active sessions metric not found")
	}
	sum, ok := active.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", active.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("got %d active sessions, want 1", total)
	}
}
