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

/*
Package tracing is the OpenTelemetry-backed implementation of the
pkg/observability contracts: span tracing for JSON-RPC dispatch and tool
invocations, Prometheus metrics, W3C trace-context propagation over HTTP,
and configurable span export.

# Quick Start

Create a provider and hand it to the server core:

	cfg := tracing.DefaultConfig()
	cfg.Enabled = true
	cfg.ServiceName = "mcpcore"

	provider, err := tracing.NewOTelProviderWithConfig(cfg)

Get a tracer and create spans:

	tracer := provider.Tracer("mcpcore.dispatch")

	ctx, span := tracer.Start(ctx, "tools/call",
	    observability.WithSpanKind(observability.SpanKindServer),
	    observability.WithAttributes(map[string]any{"mcp.tool_name": toolName}),
	)
	defer span.End()

Each SpanHandle's SpanContext() carries the full sink-contract shape,
including the parent span id and depth, so sinks can reconstruct the call
tree without the OTel SDK.

# Propagation

W3CPropagator, InjectHTTPHeaders, and ExtractHTTPHeaders carry
traceparent/tracestate across the HTTP transport, so an inbound request's
span parents under the caller's trace instead of starting a new root.

# Metrics

MetricsCollector records dispatch and tool-call metrics through the OTel
metric API, exported via the Prometheus reader and served by
OTelProvider.MetricsHandler:

	collector := provider.MetricsCollector()
	collector.RecordRequestStart(ctx, requestID, method)
	collector.RecordRequestComplete(ctx, requestID, method, "ok", duration)

MetricsSink adapts the collector onto the observability.Sink contract so
the server core can fan events out to it fire-and-forget.

# Export

CreateExporter builds a span exporter from an ExporterConfig ("otlp" over
gRPC, "otlp_http", or "console"); CreateExportersFromConfig wraps each in
a batch processor, skipping destinations that fail to construct rather
than aborting startup.
*/
package tracing
