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

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects every event delivered to it, for assertions on
// FanOut's delivery semantics.
type recordingSink struct {
	mu        sync.Mutex
	requests  []RequestEvent
	responses []ResponseEvent
	metrics   []Metric
	flushed   bool
	onRequest func()
}

func (s *recordingSink) OnRequest(ctx context.Context, ev RequestEvent) {
	if s.onRequest != nil {
		s.onRequest()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, ev)
}

func (s *recordingSink) OnResponse(ctx context.Context, ev ResponseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, ev)
}

func (s *recordingSink) OnMetric(ctx context.Context, m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func (s *recordingSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = true
	return nil
}

func (s *recordingSink) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *recordingSink) responseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

func TestNoopSinkDiscardsEverything(t *testing.T) {
	var s NoopSink
	s.OnRequest(context.Background(), RequestEvent{})
	s.OnResponse(context.Background(), ResponseEvent{})
	s.OnMetric(context.Background(), Metric{})
	require.NoError(t, s.Flush(context.Background()))
}

func TestFanOutDeliversToEverySink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	fo := FanOut{Sinks: []Sink{a, b}}

	fo.OnRequest(context.Background(), RequestEvent{Operation: McpOperationDetails{Method: "tools/call"}})
	fo.OnResponse(context.Background(), ResponseEvent{Success: true})

	require.Eventually(t, func() bool {
		return a.requestCount() == 1 && b.requestCount() == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return a.responseCount() == 1 && b.responseCount() == 1
	}, time.Second, time.Millisecond)
}

func TestFanOutSurvivesPanickingSink(t *testing.T) {
	panicky := sinkFunc{onRequest: func(context.Context, RequestEvent) { panic("boom") }}
	ok := &recordingSink{}
	fo := FanOut{Sinks: []Sink{panicky, ok}}

	fo.OnRequest(context.Background(), RequestEvent{})

	require.Eventually(t, func() bool { return ok.requestCount() == 1 }, time.Second, time.Millisecond)
}

func TestFanOutDoesNotBlockOnCancelledContext(t *testing.T) {
	started := make(chan struct{})
	slow := &recordingSink{onRequest: func() { close(started) }}
	fo := FanOut{Sinks: []Sink{slow}, Timeout: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled before the sink is even invoked

	fo.OnRequest(ctx, RequestEvent{})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("expected sink to still be invoked despite a cancelled caller context")
	}
}

func TestFanOutFlushAggregatesAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	fo := FanOut{Sinks: []Sink{a, b}}

	err := fo.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, a.flushed)
	assert.True(t, b.flushed)
}

// sinkFunc adapts a set of optional callbacks to Sink, for exercising
// specific failure modes without a full recordingSink.
type sinkFunc struct {
	onRequest func(context.Context, RequestEvent)
}

func (f sinkFunc) OnRequest(ctx context.Context, ev RequestEvent) {
	if f.onRequest != nil {
		f.onRequest(ctx, ev)
	}
}
func (sinkFunc) OnResponse(context.Context, ResponseEvent) {}
func (sinkFunc) OnMetric(context.Context, Metric)          {}
func (sinkFunc) Flush(context.Context) error               { return nil }
