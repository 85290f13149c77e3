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
	"time"
)

// Config holds the tracing layer's configuration: service identity,
// sampling, and export destinations.
type Config struct {
	// Enabled controls whether tracing is active at all.
	Enabled bool

	// ServiceName identifies this server in exported traces.
	ServiceName string

	// ServiceVersion is the build version attached to the trace resource.
	ServiceVersion string

	// Sampling configures head sampling.
	Sampling SamplingConfig

	// Exporters lists export destinations; empty means spans are
	// recorded but never leave the process.
	Exporters []ExporterConfig

	// BatchSize caps spans per export batch.
	BatchSize int

	// BatchInterval is how often batched spans are flushed.
	BatchInterval time.Duration
}

// SamplingConfig controls which traces are recorded.
type SamplingConfig struct {
	// Enabled activates rate-based sampling; disabled means every trace
	// is recorded.
	Enabled bool

	// Rate is the fraction of traces to sample, 0.0 through 1.0.
	Rate float64

	// AlwaysSampleErrors records error traces even when the rate would
	// have dropped them.
	AlwaysSampleErrors bool
}

// ExporterConfig defines one export destination.
type ExporterConfig struct {
	// Type selects the exporter: "otlp" (gRPC), "otlp_http", or "console".
	Type string

	// Endpoint is the OTLP receiver address; unused for console.
	Endpoint string

	// Headers are extra headers sent with each export, typically auth.
	Headers map[string]string

	// TLS configures transport security for OTLP exporters.
	TLS TLSConfig

	// Timeout bounds each export call.
	Timeout time.Duration
}

// TLSConfig configures exporter transport security.
type TLSConfig struct {
	// Enabled activates TLS.
	Enabled bool

	// VerifyCertificate controls certificate validation; false permits
	// self-signed collector endpoints.
	VerifyCertificate bool

	// CACertPath points at a PEM CA bundle for private roots.
	CACertPath string
}

// DefaultConfig returns the opt-in defaults: tracing off, full sampling
// when enabled, OTLP-standard batch settings, no exporters.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "mcpcore",
		ServiceVersion: "unknown",
		Sampling: SamplingConfig{
			Enabled:            false,
			Rate:               1.0,
			AlwaysSampleErrors: true,
		},
		Exporters:     nil,
		BatchSize:     512,
		BatchInterval: 5 * time.Second,
	}
}
