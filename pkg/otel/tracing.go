package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Span names
	SpanConsumeOrder  = "consume_order"
	SpanProcessOrder  = "process_order"
	SpanMatchOrder    = "match_order"
	SpanPublishEvents = "publish_events"

	// Attribute keys
	AttributeOrderID       = "order.id"
	AttributeOrderAction   = "order.action"
	AttributeOrderSide     = "order.side"
	AttributeOrderType     = "order.type"
	AttributeOrderQuantity = "order.quantity"
	AttributeOrderPrice    = "order.price"
	AttributeOrderStatus   = "order.status"
	AttributeMarketCode    = "market.code"
	AttributeFillCount     = "fill.count"
)

// StartOrderSpan starts a new span for order processing
func StartOrderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var tracer trace.Tracer

	// The consume span belongs to the ingress service, everything after the
	// inbox boundary to the matching engine.
	switch name {
	case SpanConsumeOrder:
		tracer = GetIngressTracer()
	case SpanProcessOrder, SpanMatchOrder, SpanPublishEvents:
		tracer = GetMatchingEngineTracer()
	default:
		tracer = GetIngressTracer()
	}

	if tracer == nil {
		return ctx, nil
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
