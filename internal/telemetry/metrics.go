// Package telemetry holds the OpenTelemetry metric instruments the policy
// core publishes: CQRS dispatch counts/latency and enforcer reload
// counts/latency. HTTP-layer metrics are out of scope since there is no
// HTTP transport in this repository.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusMetrics holds metric instruments for CQRS command/query dispatch.
type BusMetrics struct {
	DispatchCounter  metric.Int64Counter
	DispatchDuration metric.Float64Histogram
	DispatchErrors   metric.Int64Counter
}

// NewBusMetrics creates metric instruments for cqrs.Bus dispatch.
func NewBusMetrics() (*BusMetrics, error) {
	meter := otel.Meter("iamcore/cqrs")

	dispatchCounter, err := meter.Int64Counter(
		"cqrs.dispatch.count",
		metric.WithDescription("Total number of command/query dispatches"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram(
		"cqrs.dispatch.duration",
		metric.WithDescription("Command/query dispatch duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return nil, err
	}

	dispatchErrors, err := meter.Int64Counter(
		"cqrs.dispatch.error.count",
		metric.WithDescription("Total number of failed command/query dispatches"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &BusMetrics{
		DispatchCounter:  dispatchCounter,
		DispatchDuration: dispatchDuration,
		DispatchErrors:   dispatchErrors,
	}, nil
}

// RecordDispatch records one command or query dispatch.
func (m *BusMetrics) RecordDispatch(ctx context.Context, kind, messageType string, durationMs float64, err error) {
	attrs := metric.WithAttributes(
		attribute.String("cqrs.kind", kind), // "command" or "query"
		attribute.String("cqrs.message_type", messageType),
	)

	m.DispatchCounter.Add(ctx, 1, attrs)
	m.DispatchDuration.Record(ctx, durationMs, attrs)

	if err != nil {
		m.DispatchErrors.Add(ctx, 1, attrs)
	}
}

// EnforcerMetrics holds metric instruments for enforcer reload cycles.
type EnforcerMetrics struct {
	ReloadCounter  metric.Int64Counter
	ReloadDuration metric.Float64Histogram
	ReloadFailures metric.Int64Counter
}

// NewEnforcerMetrics creates metric instruments for enforcer.Coordinator.Reload.
func NewEnforcerMetrics() (*EnforcerMetrics, error) {
	meter := otel.Meter("iamcore/enforcer")

	reloadCounter, err := meter.Int64Counter(
		"enforcer.reload.count",
		metric.WithDescription("Total number of enforcer reload attempts"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, err
	}

	reloadDuration, err := meter.Float64Histogram(
		"enforcer.reload.duration",
		metric.WithDescription("Enforcer reload duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500),
	)
	if err != nil {
		return nil, err
	}

	reloadFailures, err := meter.Int64Counter(
		"enforcer.reload.failure.count",
		metric.WithDescription("Total number of enforcer reloads that left the previous model/policy set in place"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &EnforcerMetrics{
		ReloadCounter:  reloadCounter,
		ReloadDuration: reloadDuration,
		ReloadFailures: reloadFailures,
	}, nil
}

// RecordReload records one Reload call outcome.
func (m *EnforcerMetrics) RecordReload(ctx context.Context, durationMs float64, ok bool) {
	m.ReloadCounter.Add(ctx, 1)
	m.ReloadDuration.Record(ctx, durationMs)

	if !ok {
		m.ReloadFailures.Add(ctx, 1)
	}
}
