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

// Package observability defines the backend-agnostic event model sinks
// consume: trace context, request/response events, and the metric shape.
// It carries no exporter of its own; internal/tracing adapts these types
// onto the OpenTelemetry SDK.
package observability

// SpanKind categorizes the role a span plays in the trace.
type SpanKind string

const (
	// SpanKindInternal is work happening within the process.
	SpanKindInternal SpanKind = "internal"

	// SpanKindClient is an outbound synchronous call.
	SpanKindClient SpanKind = "client"

	// SpanKindServer is handling of an inbound request — the kind every
	// JSON-RPC dispatch span uses.
	SpanKindServer SpanKind = "server"

	// SpanKindProducer and SpanKindConsumer are the two halves of an
	// asynchronous handoff, e.g. a task handed to an external worker.
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
)

// StatusCode is a span's outcome.
type StatusCode int

const (
	StatusCodeUnset StatusCode = 0
	StatusCodeOK    StatusCode = 1
	StatusCodeError StatusCode = 2
)

// TraceContext is the propagation state attached to every sink event:
// W3C trace-context identity plus ParentSpanID and Depth, which give a
// sink the call-tree shape it cannot recover from TraceID/SpanID alone.
type TraceContext struct {
	// TraceID identifies the whole trace.
	TraceID string

	// SpanID identifies the current span.
	SpanID string

	// ParentSpanID is the span that caused this one; empty at the root.
	ParentSpanID string

	// Depth is the distance from the root span (0 for the root).
	Depth int

	// TraceFlags carries the W3C trace flags byte (sampled, etc).
	TraceFlags byte

	// TraceState holds vendor-specific list members, verbatim.
	TraceState string
}

// IsRoot reports whether this context belongs to the trace's root span.
func (tc TraceContext) IsRoot() bool {
	return tc.ParentSpanID == "" && tc.Depth == 0
}

// Sampled reports whether the W3C sampled flag is set.
func (tc TraceContext) Sampled() bool {
	return tc.TraceFlags&0x01 != 0
}
