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

package recovery

import (
	"encoding/json"

	"github.com/sony/gobreaker/v2"
)

// newBreaker builds a gobreaker circuit breaker for operationID from a
// CircuitBreaker Strategy. The desired state machine (Closed -> Open on
// failure_threshold consecutive failures -> HalfOpen after timeout ->
// Closed on success_threshold consecutive successes, or back to Open on
// any half-open failure) is exactly gobreaker's default state machine
// once ReadyToTrip and MaxRequests are set from the strategy's
// thresholds.
func newBreaker(operationID string, s Strategy) *gobreaker.CircuitBreaker[json.RawMessage] {
	settings := gobreaker.Settings{
		Name:        operationID,
		MaxRequests: s.SuccessThreshold,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
	}
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	return gobreaker.NewCircuitBreaker[json.RawMessage](settings)
}

// BreakerState reports the current state of the named circuit breaker, for
// observability; it is exposed so callers can surface it without reaching
// into the Executor's internals.
type BreakerState = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)
