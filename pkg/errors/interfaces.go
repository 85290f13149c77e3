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

import "strings"

// Classifier is the first-class alternative to keyword-matching on an
// error's message: a handler return value or tool error can implement this
// to tell the workflow engine and pkg/recovery directly whether retrying is
// worthwhile, instead of making them guess from Error() text.
//
// Errors that don't implement Classifier fall back to the heuristic in
// Retryable.
type Classifier interface {
	error

	// IsRetryable reports whether the operation that produced this error is
	// likely to succeed if attempted again unchanged.
	IsRetryable() bool
}

// Retryable reports whether err should be retried. If err implements
// Classifier, its IsRetryable method is authoritative. Otherwise this falls
// back to a keyword heuristic over the Kind and message: transient I/O,
// timeout, and rate-limit style failures are retryable; schema, auth, and
// not-found failures are not. This heuristic is a known rough edge — see
// DESIGN.md's open-question note on first-class error classification.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var classifier Classifier
	if As(err, &classifier) {
		return classifier.IsRetryable()
	}
	switch KindOf(err) {
	case KindNotFound, KindAuthentication, KindAuthorization, KindInvalidTransition,
		KindOversizedPayload, KindProtocol:
		return false
	case KindTransport, KindConflict:
		return true
	}
	var timeoutErr *TimeoutError
	if As(err, &timeoutErr) {
		return true
	}
	return containsAny(err.Error(), retryableKeywords) && !containsAny(err.Error(), nonRetryableKeywords)
}

var retryableKeywords = []string{"timeout", "timed out", "rate limit", "too many requests", "temporarily unavailable", "connection reset", "connection refused", "transient"}

var nonRetryableKeywords = []string{"unauthorized", "forbidden", "not found", "invalid", "schema"}

func containsAny(s string, substrs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
