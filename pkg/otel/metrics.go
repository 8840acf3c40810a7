package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/erain9/crossmatch/pkg/otel"
)

var (
	matchingMetrics     *MatchingMetrics
	matchingMetricsOnce sync.Once
)

// MatchingMetrics holds the instruments for the matching path: inbound
// order traffic, fills, trigger activations and per-message processing
// latency.
type MatchingMetrics struct {
	ordersInTotal     metric.Int64Counter
	fillsTotal        metric.Int64Counter
	triggerFiredTotal metric.Int64Counter
	processLatency    metric.Float64Histogram
}

// GetMatchingMetrics returns the MatchingMetrics singleton. Instruments
// that fail to initialize stay nil and their record calls become no-ops.
func GetMatchingMetrics() *MatchingMetrics {
	matchingMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(instrumentationName)
		m := &MatchingMetrics{}

		if c, err := meter.Int64Counter(
			"matching.orders_in.total",
			metric.WithDescription("Total number of inbound order messages"),
			metric.WithUnit("{order}"),
		); err == nil {
			m.ordersInTotal = c
		}

		if c, err := meter.Int64Counter(
			"matching.fills.total",
			metric.WithDescription("Total number of fill events published"),
			metric.WithUnit("{fill}"),
		); err == nil {
			m.fillsTotal = c
		}

		if c, err := meter.Int64Counter(
			"matching.triggers_fired.total",
			metric.WithDescription("Total number of trigger orders released to the engine"),
			metric.WithUnit("{order}"),
		); err == nil {
			m.triggerFiredTotal = c
		}

		if h, err := meter.Float64Histogram(
			"matching.process.duration",
			metric.WithDescription("Processing latency (seconds) of one inbound message"),
			metric.WithUnit("s"),
		); err == nil {
			m.processLatency = h
		}

		matchingMetrics = m
	})
	return matchingMetrics
}

// RecordOrderIn counts one inbound order message by action.
func (m *MatchingMetrics) RecordOrderIn(ctx context.Context, action string) {
	if m == nil || m.ordersInTotal == nil {
		return
	}
	m.ordersInTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("order.action", action),
	))
}

// RecordFills counts published fill events for a market.
func (m *MatchingMetrics) RecordFills(ctx context.Context, marketCode string, count int64) {
	if m == nil || m.fillsTotal == nil {
		return
	}
	m.fillsTotal.Add(ctx, count, metric.WithAttributes(
		attribute.String("market", marketCode),
	))
}

// RecordTriggerFired counts trigger orders released to the engine.
func (m *MatchingMetrics) RecordTriggerFired(ctx context.Context, marketCode string, count int64) {
	if m == nil || m.triggerFiredTotal == nil {
		return
	}
	m.triggerFiredTotal.Add(ctx, count, metric.WithAttributes(
		attribute.String("market", marketCode),
	))
}

// RecordProcessLatency records the handling duration of one inbound message.
func (m *MatchingMetrics) RecordProcessLatency(ctx context.Context, marketCode string, duration time.Duration) {
	if m == nil || m.processLatency == nil {
		return
	}
	m.processLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("market", marketCode),
	))
}
