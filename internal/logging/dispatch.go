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

package logging

import (
	"log/slog"
	"time"
)

// DispatchRequest describes a single JSON-RPC call for logging purposes.
type DispatchRequest struct {
	// Method is the JSON-RPC method name (e.g. "tools/call").
	Method string

	// SessionID is the streamable HTTP session id, if any.
	SessionID string

	// RequestID is the JSON-RPC request id, rendered as a string.
	RequestID string

	// RemoteAddr is the remote address of the caller.
	RemoteAddr string

	// Metadata carries additional request fields (e.g. tool name).
	Metadata map[string]any
}

// DispatchResponse describes a completed JSON-RPC call's outcome.
type DispatchResponse struct {
	Success    bool
	Error      string
	DurationMs int64
	Metadata   map[string]any
}

// LogDispatchRequest logs an incoming JSON-RPC call.
func LogDispatchRequest(logger *slog.Logger, req *DispatchRequest) {
	attrs := []any{
		EventKey, "dispatch_request",
		MethodKey, req.Method,
		"remote", req.RemoteAddr,
	}
	if req.SessionID != "" {
		attrs = append(attrs, SessionIDKey, req.SessionID)
	}
	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}
	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}
	logger.Info("dispatch request received", attrs...)
}

// LogDispatchResponse logs a completed JSON-RPC call.
func LogDispatchResponse(logger *slog.Logger, req *DispatchRequest, resp *DispatchResponse) {
	attrs := []any{
		EventKey, "dispatch_response",
		MethodKey, req.Method,
		"success", resp.Success,
		DurationKey, resp.DurationMs,
		"remote", req.RemoteAddr,
	}
	if req.SessionID != "" {
		attrs = append(attrs, SessionIDKey, req.SessionID)
	}
	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}
	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}
	for k, v := range resp.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "dispatch request completed"
	if !resp.Success {
		level = slog.LevelError
		message = "dispatch request failed"
	}
	logger.Log(nil, level, message, attrs...)
}

// DispatchLogger wraps a JSON-RPC handler with request/response logging.
type DispatchLogger struct {
	logger *slog.Logger
}

// NewDispatchLogger builds a DispatchLogger writing through logger.
func NewDispatchLogger(logger *slog.Logger) *DispatchLogger {
	return &DispatchLogger{logger: logger}
}

// Handler wraps handler, logging the request on entry and the
// response (including duration) on exit.
func (d *DispatchLogger) Handler(req *DispatchRequest, handler func() error) error {
	start := time.Now()
	LogDispatchRequest(d.logger, req)

	err := handler()

	resp := &DispatchResponse{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	LogDispatchResponse(d.logger, req, resp)
	return err
}
