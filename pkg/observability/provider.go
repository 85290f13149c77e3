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

package observability

import "context"

// TracerProvider creates tracers and owns their export pipeline. The
// server core only ever talks to this interface; the OTel-backed
// implementation lives in internal/tracing.
type TracerProvider interface {
	// Tracer returns a tracer scoped to the instrumenting package
	// (e.g. "mcpcore.dispatch").
	Tracer(name string) Tracer

	// Shutdown flushes pending spans and releases resources. Safe to
	// call more than once.
	Shutdown(ctx context.Context) error

	// ForceFlush exports pending spans synchronously.
	ForceFlush(ctx context.Context) error
}

// Tracer starts spans within one instrumentation scope.
type Tracer interface {
	// Start begins a span as a child of the context's current span, or a
	// root span if the context carries none. The returned context carries
	// the new span for propagation.
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanHandle)
}

// SpanHandle is an in-flight span. Handles are not safe for concurrent
// mutation; a handler owns its span until End.
type SpanHandle interface {
	// End completes the span. Repeated calls are no-ops.
	End()

	// SetStatus records the span's final outcome.
	SetStatus(code StatusCode, message string)

	// SetAttributes attaches key-value metadata; later writes to a key
	// overwrite earlier ones.
	SetAttributes(attrs map[string]any)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs map[string]any)

	// SpanContext returns the span's TraceContext, the value sink events
	// embed.
	SpanContext() TraceContext

	// RecordError records err on the span and marks its status Error.
	RecordError(err error)
}

// SpanOption configures span creation.
type SpanOption interface {
	ApplySpanOption(*SpanConfig)
}

// SpanConfig accumulates span creation options. Exported so
// implementations outside this package can read it.
type SpanConfig struct {
	SpanKind   SpanKind
	Attributes map[string]any
}

// WithSpanKind sets the span kind; unset defaults to SpanKindInternal.
func WithSpanKind(kind SpanKind) SpanOption {
	return spanKindOption(kind)
}

type spanKindOption SpanKind

func (o spanKindOption) ApplySpanOption(c *SpanConfig) {
	c.SpanKind = SpanKind(o)
}

// WithAttributes sets initial span attributes, merging over any set by
// an earlier option.
func WithAttributes(attrs map[string]any) SpanOption {
	return spanAttributesOption(attrs)
}

type spanAttributesOption map[string]any

func (o spanAttributesOption) ApplySpanOption(c *SpanConfig) {
	if c.Attributes == nil {
		c.Attributes = make(map[string]any, len(o))
	}
	for k, v := range o {
		c.Attributes[k] = v
	}
}
