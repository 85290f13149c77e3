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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/mcpcore/pkg/observability"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*OTelProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider, err := NewOTelProvider("test-service", "1.0.0", sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, exporter
}

func TestOTelProviderExportsSpan(t *testing.T) {
	provider, exporter := newTestProvider(t)
	tracer := provider.Tracer("test")

	_, span := tracer.Start(context.Background(), "dispatch",
		observability.WithSpanKind(observability.SpanKindServer),
		observability.WithAttributes(map[string]any{
			"rpc.method": "tools/call",
			"rpc.count":  42,
		}),
	)
	span.AddEvent("tool-invoked", map[string]any{"tool": "fetch_data"})
	span.SetStatus(observability.StatusCodeOK, "")
	span.End()

	require.NoError(t, provider.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	got := spans[0]
	assert.Equal(t, "dispatch", got.Name)

	attrs := map[string]any{}
	for _, attr := range got.Attributes {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}
	assert.Equal(t, "tools/call", attrs["rpc.method"])
	assert.Equal(t, int64(42), attrs["rpc.count"])

	require.Len(t, got.Events, 1)
	assert.Equal(t, "tool-invoked", got.Events[0].Name)
}

func TestOTelProviderNestedSpans(t *testing.T) {
	provider, exporter := newTestProvider(t)
	tracer := provider.Tracer("test")

	ctx, parentSpan := tracer.Start(context.Background(), "parent")
	_, childSpan := tracer.Start(ctx, "child")
	childSpan.End()
	parentSpan.End()

	require.NoError(t, provider.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	var parent, child *tracetest.SpanStub
	for i := range spans {
		switch spans[i].Name {
		case "parent":
			parent = &spans[i]
		case "child":
			child = &spans[i]
		}
	}
	require.NotNil(t, parent)
	require.NotNil(t, child)
	assert.Equal(t, parent.SpanContext.SpanID(), child.Parent.SpanID())
	assert.Equal(t, parent.SpanContext.TraceID(), child.Parent.TraceID())
}

func TestOTelProviderTraceContextDepth(t *testing.T) {
	provider, _ := newTestProvider(t)
	tracer := provider.Tracer("test")

	ctx, root := tracer.Start(context.Background(), "root")
	rootTC := root.SpanContext()
	assert.Equal(t, 0, rootTC.Depth)
	assert.Empty(t, rootTC.ParentSpanID)
	assert.True(t, rootTC.IsRoot())

	ctx, mid := tracer.Start(ctx, "mid")
	midTC := mid.SpanContext()
	assert.Equal(t, 1, midTC.Depth)
	assert.Equal(t, rootTC.SpanID, midTC.ParentSpanID)
	assert.Equal(t, rootTC.TraceID, midTC.TraceID)

	_, leaf := tracer.Start(ctx, "leaf")
	leafTC := leaf.SpanContext()
	assert.Equal(t, 2, leafTC.Depth)
	assert.Equal(t, midTC.SpanID, leafTC.ParentSpanID)

	leaf.End()
	mid.End()
	root.End()
}

func TestOTelProviderRecordError(t *testing.T) {
	provider, exporter := newTestProvider(t)
	tracer := provider.Tracer("test")

	_, span := tracer.Start(context.Background(), "failing-dispatch")
	span.RecordError(assert.AnError)
	span.End()

	require.NoError(t, provider.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.NotEmpty(t, spans[0].Events)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
}
