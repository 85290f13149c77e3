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

// Package recovery implements error-recovery strategies: per error kind, a
// chosen way to recover from a failed operation — fixed or exponential
// retry, a fallback handler, a circuit breaker, or fail-fast.
package recovery

import "time"

// Kind discriminates which recovery strategy a Strategy value carries. Go
// has no tagged union, so Strategy is a flat struct and Kind says which of
// its fields are meaningful, mirroring the Kind+fields shape already used
// by pkg/workflow's PauseReason.
type Kind string

const (
	KindRetryFixed       Kind = "retryFixed"
	KindRetryExponential Kind = "retryExponential"
	KindFallback         Kind = "fallback"
	KindCircuitBreaker   Kind = "circuitBreaker"
	KindFailFast         Kind = "failFast"
)

// Strategy is one recovery strategy. Only the fields relevant to Kind are
// populated; construct via the helpers below rather than a literal.
type Strategy struct {
	Kind Kind

	// RetryFixed
	Attempts uint32
	Delay    time.Duration

	// RetryExponential
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// CircuitBreaker
	FailureThreshold uint32
	SuccessThreshold uint32
	Timeout          time.Duration
}

// RetryFixed retries the operation up to attempts times, sleeping delay
// between each attempt.
func RetryFixed(attempts uint32, delay time.Duration) Strategy {
	return Strategy{Kind: KindRetryFixed, Attempts: attempts, Delay: delay}
}

// RetryExponential retries up to attempts times with a delay that starts
// at initialDelay and doubles (scaled by multiplier) each attempt, capped
// at maxDelay.
func RetryExponential(attempts uint32, initialDelay, maxDelay time.Duration, multiplier float64) Strategy {
	return Strategy{
		Kind:         KindRetryExponential,
		Attempts:     attempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   multiplier,
	}
}

// Fallback recovers by invoking the FallbackHandler registered for the
// failing operation, instead of retrying it.
func Fallback() Strategy {
	return Strategy{Kind: KindFallback}
}

// CircuitBreaker gates the operation behind a circuit breaker keyed by
// operation ID: failureThreshold consecutive failures opens the circuit,
// timeout is how long it stays open before allowing a half-open probe,
// and successThreshold consecutive successes in half-open closes it again.
func CircuitBreaker(failureThreshold, successThreshold uint32, timeout time.Duration) Strategy {
	return Strategy{
		Kind:             KindCircuitBreaker,
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		Timeout:          timeout,
	}
}

// FailFast returns the operation's error immediately with no recovery
// attempt.
func FailFast() Strategy {
	return Strategy{Kind: KindFailFast}
}
