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
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMetricsCollector(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	if mc == nil {
		t.Fatal("Expected non-nil MetricsCollector")
	}

	if mc.meter == nil {
		t.Error("Expected meter to be set")
	}

	if mc.activeRequests == nil {
		t.Error("Expected activeRequests map to be initialized")
	}
}

func TestMetricsCollector_RecordRequestStart(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()
	mc.RecordRequestStart(ctx, "req-123", "tools/call")

	mc.activeRequestsMu.RLock()
	_, exists := mc.activeRequests["req-123"]
	mc.activeRequestsMu.RUnlock()

	if !exists {
		t.Error("Expected request to be tracked as active")
	}
}

func TestMetricsCollector_RecordRequestComplete(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()
	reqID := "req-456"

	mc.RecordRequestStart(ctx, reqID, "tools/call")

	mc.activeRequestsMu.RLock()
	_, exists := mc.activeRequests[reqID]
	mc.activeRequestsMu.RUnlock()
	if !exists {
		t.Fatal("Expected request to be tracked")
	}

	mc.RecordRequestComplete(ctx, reqID, "tools/call", "ok", 5*time.Millisecond)

	mc.activeRequestsMu.RLock()
	_, stillExists := mc.activeRequests[reqID]
	mc.activeRequestsMu.RUnlock()
	if stillExists {
		t.Error("Expected request to be removed from active requests after completion")
	}
}

func TestMetricsCollector_RecordToolCall(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()

	// Should not panic with valid inputs
	mc.RecordToolCall(ctx, "search", "ok", 100*time.Millisecond)
	mc.RecordToolCall(ctx, "search", "error", 50*time.Millisecond)
	mc.RecordToolCall(ctx, "fetch", "ok", 0)
}

func TestMetricsCollector_TaskQueueDepth(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	mc.taskQueueDepthMu.RLock()
	initial := mc.taskQueueDepth
	mc.taskQueueDepthMu.RUnlock()
	if initial != 0 {
		t.Errorf("Expected initial task queue depth 0, got %d", initial)
	}

	mc.IncrementTaskQueueDepth()
	mc.IncrementTaskQueueDepth()

	mc.taskQueueDepthMu.RLock()
	afterIncrement := mc.taskQueueDepth
	mc.taskQueueDepthMu.RUnlock()
	if afterIncrement != 2 {
		t.Errorf("Expected task queue depth 2 after increments, got %d", afterIncrement)
	}

	mc.DecrementTaskQueueDepth()

	mc.taskQueueDepthMu.RLock()
	afterDecrement := mc.taskQueueDepth
	mc.taskQueueDepthMu.RUnlock()
	if afterDecrement != 1 {
		t.Errorf("Expected task queue depth 1 after decrement, got %d", afterDecrement)
	}
}

func TestMetricsCollector_TaskQueueDepthNeverNegative(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	mc.DecrementTaskQueueDepth()

	mc.taskQueueDepthMu.RLock()
	depth := mc.taskQueueDepth
	mc.taskQueueDepthMu.RUnlock()
	if depth != 0 {
		t.Errorf("Expected task queue depth to stay at 0, got %d", depth)
	}
}

func TestMetricsCollector_ConcurrentAccess(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(4)

		go func(id int) {
			defer wg.Done()
			mc.IncrementTaskQueueDepth()
		}(i)

		go func(id int) {
			defer wg.Done()
			mc.DecrementTaskQueueDepth()
		}(i)

		go func(id int) {
			defer wg.Done()
			reqID := "req-" + string(rune(id+'0'))
			mc.RecordRequestStart(ctx, reqID, "tools/call")
			mc.RecordRequestComplete(ctx, reqID, "tools/call", "ok", time.Millisecond)
		}(i)

		go func(id int) {
			defer wg.Done()
			mc.RecordToolCall(ctx, "search", "ok", time.Millisecond)
		}(i)
	}

	wg.Wait()

	// Should complete without panics or races
}
