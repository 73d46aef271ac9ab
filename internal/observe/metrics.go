// Package observe provides observability primitives for the Aria voice
// agent: OpenTelemetry metrics and tracing setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via a standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Aria metrics.
const meterName = "github.com/ariavoice/aria"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture path ---

	// CaptureFrames counts encoded frames sent upstream.
	CaptureFrames metric.Int64Counter

	// CaptureSendErrors counts frames dropped because the send failed.
	CaptureSendErrors metric.Int64Counter

	// --- Playback path ---

	// UnitsScheduled counts playback units enqueued.
	UnitsScheduled metric.Int64Counter

	// ScheduleGap tracks the gap between a unit's arrival and its computed
	// start time. Zero means the unit played immediately; positive values
	// mean the pipeline was ahead of real time.
	ScheduleGap metric.Float64Histogram

	// Interrupts counts barge-in interruptions.
	Interrupts metric.Int64Counter

	// ActiveUnits tracks playback units currently in flight.
	ActiveUnits metric.Int64UpDownCounter

	// --- Session ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// SessionErrors counts fatal session failures by provider.
	SessionErrors metric.Int64Counter

	// StateTransitions counts lifecycle transitions. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter
}

// gapBuckets defines histogram bucket boundaries (in seconds) for schedule
// gaps; sub-second resolution matters far more than the long tail.
var gapBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.CaptureFrames, err = m.Int64Counter("aria.capture.frames",
		metric.WithDescription("Total encoded capture frames sent upstream."),
	); err != nil {
		return nil, err
	}
	if met.CaptureSendErrors, err = m.Int64Counter("aria.capture.send_errors",
		metric.WithDescription("Total capture frames dropped due to send failures."),
	); err != nil {
		return nil, err
	}
	if met.UnitsScheduled, err = m.Int64Counter("aria.playback.units_scheduled",
		metric.WithDescription("Total playback units enqueued."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("aria.playback.interrupts",
		metric.WithDescription("Total barge-in interruptions."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("aria.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("aria.session.errors",
		metric.WithDescription("Total fatal session failures by provider."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("aria.state.transitions",
		metric.WithDescription("Total lifecycle state transitions by from and to state."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ScheduleGap, err = m.Float64Histogram("aria.playback.schedule_gap",
		metric.WithDescription("Gap between unit arrival and scheduled start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(gapBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveUnits, err = m.Int64UpDownCounter("aria.playback.active_units",
		metric.WithDescription("Playback units currently scheduled or playing."),
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

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordSessionError records a fatal session failure for the given provider.
func (m *Metrics) RecordSessionError(ctx context.Context, provider string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordStateTransition records one lifecycle transition.
func (m *Metrics) RecordStateTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}
