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
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
)

// Operation is a unit of work an Executor can recover from. It is free to
// consult ctx for cancellation; operations that never return are not
// retried in time, they simply hang, same as any other goroutine work.
type Operation func(ctx context.Context) (json.RawMessage, error)

// Executor runs operations under a Policy, applying whatever RecoveryStrategy
// the policy selects for the error kind an attempt fails with.
type Executor struct {
	policy *Policy

	mu        sync.Mutex
	fallbacks map[string]FallbackHandler
	breakers  map[string]*gobreaker.CircuitBreaker[json.RawMessage]
}

// NewExecutor returns an Executor governed by policy.
func NewExecutor(policy *Policy) *Executor {
	return &Executor{
		policy:    policy,
		fallbacks: make(map[string]FallbackHandler),
		breakers:  make(map[string]*gobreaker.CircuitBreaker[json.RawMessage]),
	}
}

// RegisterFallback associates a FallbackHandler with operationID, used
// when the policy selects the Fallback strategy for a failure of that
// operation.
func (e *Executor) RegisterFallback(operationID string, h FallbackHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallbacks[operationID] = h
}

// BreakerState returns the current state of operationID's circuit breaker,
// or StateClosed if no CircuitBreaker strategy has run for it yet.
func (e *Executor) BreakerState(operationID string) BreakerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[operationID]; ok {
		return cb.State()
	}
	return StateClosed
}

// Execute runs op once. If it fails, the policy's strategy for the
// resulting error's Kind decides how (or whether) to recover. While
// operationID's circuit breaker is open or half-open, op runs only through
// that breaker, so an open breaker rejects the call without running op.
func (e *Executor) Execute(ctx context.Context, operationID string, op Operation) (json.RawMessage, error) {
	e.mu.Lock()
	cb, gated := e.breakers[operationID]
	e.mu.Unlock()
	if gated && cb.State() != StateClosed {
		return cb.Execute(func() (json.RawMessage, error) {
			return op(ctx)
		})
	}

	result, err := op(ctx)
	if err == nil {
		return result, nil
	}

	strategy := e.policy.StrategyFor(mcperrors.KindOf(err))
	switch strategy.Kind {
	case KindRetryFixed:
		return e.retryFixed(ctx, err, strategy, op)
	case KindRetryExponential:
		return e.retryExponential(ctx, err, strategy, op)
	case KindFallback:
		return e.fallback(ctx, operationID, err)
	case KindCircuitBreaker:
		return e.circuitBreaker(ctx, operationID, strategy, op)
	default: // KindFailFast and any unrecognized kind
		return nil, err
	}
}

func (e *Executor) retryFixed(ctx context.Context, firstErr error, s Strategy, op Operation) (json.RawMessage, error) {
	lastErr := firstErr
	for attempt := uint32(0); attempt < s.Attempts; attempt++ {
		if err := sleepCtx(ctx, s.Delay); err != nil {
			return nil, err
		}
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (e *Executor) retryExponential(ctx context.Context, firstErr error, s Strategy, op Operation) (json.RawMessage, error) {
	lastErr := firstErr
	delay := s.InitialDelay
	for attempt := uint32(0); attempt < s.Attempts; attempt++ {
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		next := time.Duration(float64(delay) * s.Multiplier)
		if next > s.MaxDelay {
			next = s.MaxDelay
		}
		delay = next
	}
	return nil, lastErr
}

func (e *Executor) fallback(ctx context.Context, operationID string, cause error) (json.RawMessage, error) {
	e.mu.Lock()
	h, ok := e.fallbacks[operationID]
	e.mu.Unlock()
	if !ok {
		return nil, mcperrors.Wrapf(cause, "no fallback registered for operation %q", operationID)
	}
	return h.Recover(ctx, operationID, cause)
}

func (e *Executor) circuitBreaker(ctx context.Context, operationID string, s Strategy, op Operation) (json.RawMessage, error) {
	e.mu.Lock()
	cb, ok := e.breakers[operationID]
	if !ok {
		cb = newBreaker(operationID, s)
		e.breakers[operationID] = cb
	}
	e.mu.Unlock()

	return cb.Execute(func() (json.RawMessage, error) {
		return op(ctx)
	})
}

// sleepCtx sleeps for d or returns ctx.Err() if ctx is cancelled first. A
// non-positive d returns immediately.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
