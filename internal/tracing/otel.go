// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tombee/mcpcore/pkg/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelProvider implements observability.TracerProvider on the
// OpenTelemetry SDK, with a Prometheus-backed meter provider alongside.
type OTelProvider struct {
	tp               *sdktrace.TracerProvider
	mp               *metric.MeterProvider
	promExporter     *prometheus.Exporter
	metricsCollector *MetricsCollector
}

// NewOTelProviderWithConfig builds a provider whose sampler comes from
// cfg.Sampling; any extra opts (span processors, syncers) are appended
// after the sampler option.
func NewOTelProviderWithConfig(cfg Config, opts ...sdktrace.TracerProviderOption) (*OTelProvider, error) {
	sampler := NewSampler(SamplerConfig{
		Enabled:            cfg.Sampling.Enabled,
		Rate:               cfg.Sampling.Rate,
		AlwaysSampleErrors: cfg.Sampling.AlwaysSampleErrors,
	})
	allOpts := append([]sdktrace.TracerProviderOption{sdktrace.WithSampler(sampler)}, opts...)
	return NewOTelProvider(cfg.ServiceName, cfg.ServiceVersion, allOpts...)
}

// NewOTelProvider builds a provider identifying itself as
// serviceName/version. It installs itself as the global otel tracer
// provider and installs the W3C propagator, so ExtractHTTPHeaders and
// InjectHTTPHeaders operate on the same context format.
func NewOTelProvider(serviceName, version string, opts ...sdktrace.TracerProviderOption) (*OTelProvider, error) {
	// Empty schema URL: merging two resources with different schema URLs
	// is an error in the SDK, and resource.Default carries its own.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	allOpts := append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	tp := sdktrace.NewTracerProvider(allOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(W3CPropagator())

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)
	metricsCollector, err := NewMetricsCollector(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	return &OTelProvider{
		tp:               tp,
		mp:               mp,
		promExporter:     promExporter,
		metricsCollector: metricsCollector,
	}, nil
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *OTelProvider) Tracer(name string) observability.Tracer {
	return &otelTracer{tracer: p.tp.Tracer(name)}
}

// Shutdown flushes pending spans and metrics and releases resources.
func (p *OTelProvider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	if p.mp != nil {
		return p.mp.Shutdown(ctx)
	}
	return nil
}

// ForceFlush exports all pending spans synchronously.
func (p *OTelProvider) ForceFlush(ctx context.Context) error {
	if err := p.tp.ForceFlush(ctx); err != nil {
		return err
	}
	if p.mp != nil {
		return p.mp.ForceFlush(ctx)
	}
	return nil
}

// MetricsCollector returns the collector for recording JSON-RPC dispatch
// and task-lifecycle metrics.
func (p *OTelProvider) MetricsCollector() *MetricsCollector {
	return p.metricsCollector
}

// MetricsHandler exposes the Prometheus scrape endpoint. The otel
// prometheus exporter registers against the default registry, which is
// what promhttp.Handler serves.
func (p *OTelProvider) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// spanDepthKey carries the current span's depth through the context so a
// child span can report Depth in its TraceContext. The OTel span context
// itself has no notion of depth or parent id, but the sink contract wants
// both.
type spanDepthKey struct{}

var spanKinds = map[observability.SpanKind]trace.SpanKind{
	observability.SpanKindClient:   trace.SpanKindClient,
	observability.SpanKindServer:   trace.SpanKindServer,
	observability.SpanKindProducer: trace.SpanKindProducer,
	observability.SpanKindConsumer: trace.SpanKindConsumer,
	observability.SpanKindInternal: trace.SpanKindInternal,
}

type otelTracer struct {
	tracer trace.Tracer
}

// Start begins a span, capturing the parent's span id and depth before
// the SDK replaces the context's current span.
func (t *otelTracer) Start(ctx context.Context, name string, opts ...observability.SpanOption) (context.Context, observability.SpanHandle) {
	cfg := &observability.SpanConfig{}
	for _, opt := range opts {
		opt.ApplySpanOption(cfg)
	}

	kind, ok := spanKinds[cfg.SpanKind]
	if !ok {
		kind = trace.SpanKindInternal
	}
	otelOpts := []trace.SpanStartOption{trace.WithSpanKind(kind)}
	if len(cfg.Attributes) > 0 {
		otelOpts = append(otelOpts, trace.WithAttributes(toAttributes(cfg.Attributes)...))
	}

	parent := trace.SpanContextFromContext(ctx)
	depth := 0
	if d, ok := ctx.Value(spanDepthKey{}).(int); ok {
		depth = d + 1
	}

	ctx, span := t.tracer.Start(ctx, name, otelOpts...)
	ctx = context.WithValue(ctx, spanDepthKey{}, depth)

	handle := &otelSpan{span: span, depth: depth}
	if parent.HasSpanID() {
		handle.parentSpanID = parent.SpanID().String()
	}
	return ctx, handle
}

type otelSpan struct {
	span         trace.Span
	parentSpanID string
	depth        int
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetStatus(code observability.StatusCode, message string) {
	var otelCode codes.Code
	switch code {
	case observability.StatusCodeOK:
		otelCode = codes.Ok
	case observability.StatusCodeError:
		otelCode = codes.Error
	default:
		otelCode = codes.Unset
	}
	s.span.SetStatus(otelCode, message)
}

func (s *otelSpan) SetAttributes(attrs map[string]any) {
	s.span.SetAttributes(toAttributes(attrs)...)
}

func (s *otelSpan) AddEvent(name string, attrs map[string]any) {
	s.span.AddEvent(name, trace.WithAttributes(toAttributes(attrs)...))
}

// SpanContext fills the full sink-contract shape, including the parent
// span id and depth captured at Start.
func (s *otelSpan) SpanContext() observability.TraceContext {
	sc := s.span.SpanContext()
	return observability.TraceContext{
		TraceID:      sc.TraceID().String(),
		SpanID:       sc.SpanID().String(),
		ParentSpanID: s.parentSpanID,
		Depth:        s.depth,
		TraceFlags:   byte(sc.TraceFlags()),
		TraceState:   sc.TraceState().String(),
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// toAttributes converts a loosely-typed attribute map to OTel key-values,
// stringifying anything outside the small set of natively supported types.
func toAttributes(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch t := v.(type) {
		case string:
			out = append(out, attribute.String(k, t))
		case bool:
			out = append(out, attribute.Bool(k, t))
		case int:
			out = append(out, attribute.Int(k, t))
		case int64:
			out = append(out, attribute.Int64(k, t))
		case float64:
			out = append(out, attribute.Float64(k, t))
		default:
			out = append(out, attribute.String(k, fmt.Sprintf("%v", t)))
		}
	}
	return out
}
