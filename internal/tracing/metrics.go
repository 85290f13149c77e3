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
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SessionCounter provides streamable-HTTP session count metrics.
type SessionCounter interface {
	TotalSubscriberCount() int
	SubscriberMapKeyCount() int
}

// TaskCounter provides task-store occupancy metrics.
type TaskCounter interface {
	RunCount() int
}

// MetricsCollector collects Prometheus-compatible metrics for JSON-RPC
// dispatch and task lifecycle, as a concrete OTel-backed implementation
// of the backend-agnostic metric shape (m.Observe/m.Inc).
type MetricsCollector struct {
	meter metric.Meter

	// Counters
	requestsTotal metric.Int64Counter
	toolCallsTotal metric.Int64Counter

	// Histograms
	requestDuration metric.Float64Histogram
	toolCallDuration metric.Float64Histogram

	// Gauges (using observable gauges)
	activeRequests   map[string]bool // Track in-flight request IDs
	activeRequestsMu sync.RWMutex
	taskQueueDepth   int64 // Track pending/working tasks
	taskQueueDepthMu sync.RWMutex

	// Memory metrics sources
	sessionCounter SessionCounter
	taskCounter    TaskCounter
	sessionMu      sync.RWMutex
	taskMu         sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector using the given meter provider
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("mcpcore")

	mc := &MetricsCollector{
		meter:          meter,
		activeRequests: make(map[string]bool),
	}

	var err error

	// Initialize counters
	mc.requestsTotal, err = meter.Int64Counter(
		"mcpcore_requests_total",
		metric.WithDescription("Total number of JSON-RPC requests dispatched"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	mc.toolCallsTotal, err = meter.Int64Counter(
		"mcpcore_tool_calls_total",
		metric.WithDescription("Total number of tools/call invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	// Initialize histograms
	mc.requestDuration, err = meter.Float64Histogram(
		"mcpcore_request_duration_seconds",
		metric.WithDescription("JSON-RPC request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.toolCallDuration, err = meter.Float64Histogram(
		"mcpcore_tool_call_duration_seconds",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	// Initialize observable gauges
	_, err = meter.Int64ObservableGauge(
		"mcpcore_active_requests",
		metric.WithDescription("Number of currently in-flight JSON-RPC requests"),
		metric.WithUnit("{request}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.activeRequestsMu.RLock()
			count := len(mc.activeRequests)
			mc.activeRequestsMu.RUnlock()
			observer.Observe(int64(count))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"mcpcore_task_queue_depth",
		metric.WithDescription("Number of tasks in Working or queued state"),
		metric.WithUnit("{task}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.taskQueueDepthMu.RLock()
			depth := mc.taskQueueDepth
			mc.taskQueueDepthMu.RUnlock()
			observer.Observe(depth)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	// Memory metrics
	_, err = meter.Int64ObservableGauge(
		"mcpcore_sse_subscribers",
		metric.WithDescription("Number of active SSE subscribers across all streamable HTTP sessions"),
		metric.WithUnit("{subscriber}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.sessionMu.RLock()
			counter := mc.sessionCounter
			mc.sessionMu.RUnlock()
			if counter != nil {
				observer.Observe(int64(counter.TotalSubscriberCount()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"mcpcore_sessions_with_subscribers",
		metric.WithDescription("Number of session keys with at least one subscriber"),
		metric.WithUnit("{session}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.sessionMu.RLock()
			counter := mc.sessionCounter
			mc.sessionMu.RUnlock()
			if counter != nil {
				observer.Observe(int64(counter.SubscriberMapKeyCount()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"mcpcore_goroutines",
		metric.WithDescription("Number of active goroutines"),
		metric.WithUnit("{goroutine}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(runtime.NumGoroutine()))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"mcpcore_tasks_in_memory",
		metric.WithDescription("Number of task records in the in-memory store"),
		metric.WithUnit("{task}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.taskMu.RLock()
			counter := mc.taskCounter
			mc.taskMu.RUnlock()
			if counter != nil {
				observer.Observe(int64(counter.RunCount()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"mcpcore_heap_bytes",
		metric.WithDescription("Current heap allocation in bytes"),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			observer.Observe(int64(m.HeapAlloc))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordRequestStart records the start of a JSON-RPC request dispatch.
func (mc *MetricsCollector) RecordRequestStart(ctx context.Context, requestID, method string) {
	mc.activeRequestsMu.Lock()
	mc.activeRequests[requestID] = true
	mc.activeRequestsMu.Unlock()
}

// RecordRequestComplete records the completion of a JSON-RPC request dispatch.
func (mc *MetricsCollector) RecordRequestComplete(ctx context.Context, requestID, method, status string, duration time.Duration) {
	mc.activeRequestsMu.Lock()
	delete(mc.activeRequests, requestID)
	mc.activeRequestsMu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("status", status),
	}

	mc.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolCall records the completion of a tools/call invocation.
func (mc *MetricsCollector) RecordToolCall(ctx context.Context, toolName, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("tool", toolName),
		attribute.String("status", status),
	}

	mc.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.toolCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementTaskQueueDepth increments the pending/working task count.
func (mc *MetricsCollector) IncrementTaskQueueDepth() {
	mc.taskQueueDepthMu.Lock()
	mc.taskQueueDepth++
	mc.taskQueueDepthMu.Unlock()
}

// DecrementTaskQueueDepth decrements the pending/working task count.
func (mc *MetricsCollector) DecrementTaskQueueDepth() {
	mc.taskQueueDepthMu.Lock()
	if mc.taskQueueDepth > 0 {
		mc.taskQueueDepth--
	}
	mc.taskQueueDepthMu.Unlock()
}

// SetSessionCounter sets the session/subscriber counter for memory metrics.
func (mc *MetricsCollector) SetSessionCounter(counter SessionCounter) {
	mc.sessionMu.Lock()
	mc.sessionCounter = counter
	mc.sessionMu.Unlock()
}

// SetTaskCounter sets the task-store counter for memory metrics.
func (mc *MetricsCollector) SetTaskCounter(counter TaskCounter) {
	mc.taskMu.Lock()
	mc.taskCounter = counter
	mc.taskMu.Unlock()
}
