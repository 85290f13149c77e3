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

// Package jsonrpc defines the wire envelopes of the JSON-RPC 2.0 transport
// used by the Model Context Protocol: requests, responses, notifications,
// and the reserved error codes, plus capability negotiation types.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC version this codec emits. Decode does not check
// an incoming frame's "jsonrpc" field and stamps every decoded message
// with Version.
const Version = "2.0"

// ID is a JSON-RPC request identifier: either a JSON number or a JSON
// string. nil marks a notification (the caller does not expect a response).
type ID struct {
	value any // nil, float64, or string
}

// NewID wraps a string or numeric id. Passing a type other than string,
// int, int64, or float64 panics, since it indicates a programming error at
// the call site rather than malformed wire data.
func NewID(v any) ID {
	switch v.(type) {
	case nil, string, float64:
		return ID{value: v}
	case int:
		return ID{value: float64(v.(int))}
	case int64:
		return ID{value: float64(v.(int64))}
	default:
		panic(fmt.Sprintf("jsonrpc: unsupported id type %T", v))
	}
}

// IsZero reports whether the ID was never set (i.e. this is a notification).
func (id ID) IsZero() bool {
	return id.value == nil
}

// String renders the id for logging; numeric ids render without a decimal
// point when they are integral.
func (id ID) String() string {
	switch v := id.value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Value returns the raw id value (nil, string, or float64) for equality
// comparisons and re-serialization.
func (id ID) Value() any {
	return id.value
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler, accepting either a JSON string
// or a JSON number.
func (id *ID) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.(type) {
	case nil, string, float64:
		id.value = raw
		return nil
	default:
		return fmt.Errorf("jsonrpc: id must be a string or number, got %T", raw)
	}
}

// Request is an inbound JSON-RPC call that expects a Response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a one-way JSON-RPC message with no id and no response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error is the JSON-RPC error object, carried inside a Response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface so an *Error can be returned and
// inspected like any other Go error.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Response is an outbound JSON-RPC reply: exactly one of Result or Error is
// set, never both.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResultResponse builds a successful Response, marshaling result into
// the wire's result field.
func NewResultResponse(id ID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds a failed Response.
func NewErrorResponse(id ID, code int, message string, data any) *Response {
	resp := &Response{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			resp.Error.Data = raw
		}
	}
	return resp
}

// Reserved error codes per the JSON-RPC 2.0 spec plus the MCP-specific and
// framework extension codes this module reserves.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeNotInitialized is returned when a stateful server receives a
	// method other than "initialize" before initialization completes.
	CodeNotInitialized = -32002

	// Framework extension range (outside the JSON-RPC reserved
	// -32768..-32000 band is available; these sit inside the MCP
	// application-defined range below -32000).
	CodeAuthenticationRequired = -32001
	CodeAuthorizationDenied    = -32003
	CodeRateLimited            = -32004
	CodeTaskConflict           = -32005
	CodeTaskExpired            = -32006
	CodeTaskNotReady           = -32007
)
