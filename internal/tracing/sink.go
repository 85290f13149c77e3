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

	"github.com/tombee/mcpcore/pkg/observability"
)

// MetricsSink adapts a MetricsCollector to observability.Sink, so the
// backend-agnostic sink contract can drive this package's OTel-backed
// Prometheus metrics without mcpserver importing OTel directly.
type MetricsSink struct {
	collector *MetricsCollector
}

// NewMetricsSink wraps collector as an observability.Sink.
func NewMetricsSink(collector *MetricsCollector) *MetricsSink {
	return &MetricsSink{collector: collector}
}

func (s *MetricsSink) OnRequest(ctx context.Context, ev observability.RequestEvent) {
	if s.collector == nil {
		return
	}
	s.collector.RecordRequestStart(ctx, ev.Operation.RequestID, ev.Operation.Method)
}

func (s *MetricsSink) OnResponse(ctx context.Context, ev observability.ResponseEvent) {
	if s.collector == nil {
		return
	}
	status := "ok"
	if !ev.Success {
		status = "error"
	}
	s.collector.RecordRequestComplete(ctx, ev.Operation.RequestID, ev.Operation.Method, status, ev.Duration)
	if ev.Operation.Method == "tools/call" && ev.Operation.ToolName != "" {
		s.collector.RecordToolCall(ctx, ev.Operation.ToolName, status, ev.Duration)
	}
}

func (s *MetricsSink) OnMetric(ctx context.Context, m observability.Metric) {
	// MetricsCollector's counters/histograms are pre-declared for the
	// method/tool events above; arbitrary caller-supplied metric names
	// have no fixed OTel instrument to record against here.
}

func (s *MetricsSink) Flush(ctx context.Context) error {
	return nil
}
