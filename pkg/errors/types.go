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

package errors

import (
	"fmt"
	"time"
)

// Kind classifies a domain error independently of the Go type that carries
// it, so a caller at a protocol boundary can switch on Kind without
// importing every package that might produce one.
type Kind string

const (
	KindProtocol          Kind = "protocol"
	KindAuthentication    Kind = "authentication"
	KindAuthorization     Kind = "authorization"
	KindNotFound          Kind = "not_found"
	KindExpired           Kind = "expired"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindNotReady          Kind = "not_ready"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindOversizedPayload  Kind = "oversized_payload"
	KindTransport         Kind = "transport"
	KindInternal          Kind = "internal"
)

// DomainError is the concrete error type produced by the task store, the
// router, the workflow engine, the JWT validator, and the transport layer.
// Field is optional extra context (a variable name, a task id, a header
// name) useful in logs but never required for callers that only switch on
// Kind.
type DomainError struct {
	Kind    Kind
	Message string
	Field   string
	Cause   error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// New builds a *DomainError of the given kind.
func New(kind Kind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

// Newf builds a *DomainError of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithField attaches contextual field information and returns the receiver.
func (e *DomainError) WithField(field string) *DomainError {
	e.Field = field
	return e
}

// WithCause attaches an underlying cause and returns the receiver.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// KindOf extracts the Kind carried by err, walking the Unwrap chain. It
// returns KindInternal if err is nil or carries no *DomainError — a
// protocol boundary should treat an un-kinded error as internal rather
// than guess at a more specific code.
func KindOf(err error) Kind {
	var domainErr *DomainError
	if As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err's Kind (after unwrapping) matches kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// TimeoutError represents an operation that exceeded its configured
// deadline. Retryable treats any error wrapping one as retryable.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "jwks fetch", "tool call").
	Operation string

	// Duration is how long the operation ran before timing out.
	Duration time.Duration

	// Cause is the underlying error (if any).
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}
