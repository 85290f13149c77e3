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
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// SamplerConfig configures trace sampling behavior.
type SamplerConfig struct {
	// Enabled controls whether sampling is active; false samples every span.
	Enabled bool

	// Rate is the sampling rate (0.0 - 1.0). 1.0 samples every trace,
	// 0.1 samples roughly one in ten.
	Rate float64

	// AlwaysSampleErrors ensures spans tagged as errors are always kept,
	// even when the base rate would otherwise drop them.
	AlwaysSampleErrors bool
}

// NewSampler builds an sdktrace.Sampler from cfg for
// NewOTelProviderWithConfig to attach to its TracerProvider.
func NewSampler(cfg SamplerConfig) sdktrace.Sampler {
	if !cfg.Enabled || cfg.Rate >= 1.0 {
		return sdktrace.AlwaysSample()
	}

	if cfg.Rate <= 0.0 {
		if cfg.AlwaysSampleErrors {
			return &errorAwareSampler{baseSampler: sdktrace.NeverSample()}
		}
		return sdktrace.NeverSample()
	}

	baseSampler := sdktrace.TraceIDRatioBased(cfg.Rate)
	if cfg.AlwaysSampleErrors {
		return &errorAwareSampler{baseSampler: baseSampler}
	}
	return baseSampler
}

// errorAwareSampler wraps a base sampler so any span started with an
// "error" attribute (or an mcpcore.status attribute of "error") is always
// recorded and sampled, regardless of the base sampler's rate. Request
// dispatch only knows a call failed after the handler returns, so this
// only catches error attributes a caller sets at span-start time (e.g. a
// retried operation's second attempt); it cannot see SetStatus calls made
// after the span begins.
type errorAwareSampler struct {
	baseSampler sdktrace.Sampler
}

func (s *errorAwareSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, attr := range params.Attributes {
		if attr.Key == "error" && attr.Value.AsBool() {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: trace.SpanContextFromContext(params.ParentContext).TraceState(),
			}
		}
		if attr.Key == "mcpcore.status" && attr.Value.AsString() == "error" {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: trace.SpanContextFromContext(params.ParentContext).TraceState(),
			}
		}
	}
	return s.baseSampler.ShouldSample(params)
}

func (s *errorAwareSampler) Description() string {
	return "ErrorAwareSampler{base=" + s.baseSampler.Description() + "}"
}
