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
	"time"
)

// McpOperationDetails describes the JSON-RPC operation a sink event is
// about: the method name plus whichever of the method-specific identifiers
// apply (a tools/call carries ToolName, a tasks/* call carries TaskID, and
// so on). Fields irrelevant to a given method are left zero.
type McpOperationDetails struct {
	// Method is the JSON-RPC method name, e.g. "tools/call".
	Method string

	// RequestID is the JSON-RPC request id, stringified.
	RequestID string

	// SessionID is the streamable HTTP session this request arrived on,
	// if any.
	SessionID string

	// ToolName, PromptName, ResourceURI identify the target of a
	// tools/call, prompts/get, or resources/read, respectively.
	ToolName    string
	PromptName  string
	ResourceURI string

	// TaskID and Owner identify the task a tasks/* method or a
	// task-backed tools/call operated on.
	TaskID string
	Owner  string
}

// Identity describes the caller a sink event is attributed to.
type Identity struct {
	Subject string
	Scopes  []string
}

// RequestEvent is delivered to Sink.OnRequest when a JSON-RPC request
// begins dispatch.
type RequestEvent struct {
	Trace     TraceContext
	Operation McpOperationDetails
	Identity  Identity
	StartedAt time.Time
}

// ResponseEvent is delivered to Sink.OnResponse when a JSON-RPC request
// finishes dispatch.
type ResponseEvent struct {
	Trace     TraceContext
	Operation McpOperationDetails
	Identity  Identity
	StartedAt time.Time
	Duration  time.Duration

	// Success is false when the response carries a JSON-RPC error.
	Success bool

	// ErrorMessage is the sanitized error text, if Success is false.
	ErrorMessage string
}

// MetricKind classifies a Metric for backends that distinguish counters,
// gauges, and histograms.
type MetricKind int

const (
	MetricKindCounter MetricKind = iota
	MetricKindGauge
	MetricKindHistogram
)

// Metric is the backend-agnostic shape a Sink.OnMetric receives: just
// enough to forward into Prometheus, CloudWatch EMF, or any other metrics
// backend without this package importing any of them.
type Metric struct {
	Name       string
	Kind       MetricKind
	Value      float64
	Attributes map[string]string
}

// Sink receives fire-and-forget notifications about request lifecycle and
// metrics. Implementations MUST NOT block the request path for more than a
// small bounded time; the server core invokes sinks without waiting for
// completion (see FanOut).
type Sink interface {
	OnRequest(ctx context.Context, ev RequestEvent)
	OnResponse(ctx context.Context, ev ResponseEvent)
	OnMetric(ctx context.Context, m Metric)
	Flush(ctx context.Context) error
}

// NoopSink discards every event. It is the zero-value default when no sink
// is configured, so callers never need a nil check.
type NoopSink struct{}

func (NoopSink) OnRequest(context.Context, RequestEvent)   {}
func (NoopSink) OnResponse(context.Context, ResponseEvent) {}
func (NoopSink) OnMetric(context.Context, Metric)          {}
func (NoopSink) Flush(context.Context) error               { return nil }

// FanOut invokes every sink's hook for the given event with a bounded
// timeout, concurrently and detached from ctx's cancellation — a request
// whose own context is cancelled (client disconnect) still gets its
// on_response notification delivered, and a slow sink never holds up the
// request path.
type FanOut struct {
	Sinks   []Sink
	Timeout time.Duration
}

const defaultSinkTimeout = 2 * time.Second

func (f FanOut) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return defaultSinkTimeout
}

func (f FanOut) OnRequest(ctx context.Context, ev RequestEvent) {
	for _, s := range f.Sinks {
		s := s
		go func() {
			defer recoverSink()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout())
			defer cancel()
			s.OnRequest(sctx, ev)
		}()
	}
}

func (f FanOut) OnResponse(ctx context.Context, ev ResponseEvent) {
	for _, s := range f.Sinks {
		s := s
		go func() {
			defer recoverSink()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout())
			defer cancel()
			s.OnResponse(sctx, ev)
		}()
	}
}

func (f FanOut) OnMetric(ctx context.Context, m Metric) {
	for _, s := range f.Sinks {
		s := s
		go func() {
			defer recoverSink()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout())
			defer cancel()
			s.OnMetric(sctx, m)
		}()
	}
}

// Flush waits for every sink to flush, up to Timeout each; callers use this
// at shutdown, not on the request path.
func (f FanOut) Flush(ctx context.Context) error {
	var firstErr error
	for _, s := range f.Sinks {
		sctx, cancel := context.WithTimeout(ctx, f.timeout())
		err := s.Flush(sctx)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// recoverSink prevents a panicking sink from taking down the dispatching
// goroutine's caller; sinks run detached, so there is nothing useful to do
// with the recovered value besides dropping it.
func recoverSink() {
	_ = recover()
}
