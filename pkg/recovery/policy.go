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
	"sync"
	"time"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
)

// Policy maps an error kind to the Strategy used to recover from it,
// falling back to a default strategy for any kind with no explicit entry.
type Policy struct {
	mu              sync.RWMutex
	strategies      map[mcperrors.Kind]Strategy
	defaultStrategy Strategy
}

// NewPolicy returns a Policy with no per-kind overrides.
func NewPolicy(defaultStrategy Strategy) *Policy {
	return &Policy{
		strategies:      make(map[mcperrors.Kind]Strategy),
		defaultStrategy: defaultStrategy,
	}
}

// AddStrategy registers the strategy to use when an operation fails with
// the given error kind.
func (p *Policy) AddStrategy(kind mcperrors.Kind, s Strategy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strategies[kind] = s
}

// StrategyFor returns the strategy registered for kind, or the policy's
// default if none was registered.
func (p *Policy) StrategyFor(kind mcperrors.Kind) Strategy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.strategies[kind]; ok {
		return s
	}
	return p.defaultStrategy
}

// DefaultPolicy is a sensible default recovery policy: transient-looking
// failures (Internal, Transport) retry with
// backoff, protocol hiccups retry twice at a fixed 500ms delay, and
// everything else fails fast rather than risk masking a real error.
func DefaultPolicy() *Policy {
	p := NewPolicy(FailFast())
	p.AddStrategy(mcperrors.KindInternal, RetryExponential(3, 100*time.Millisecond, 5*time.Second, 2.0))
	p.AddStrategy(mcperrors.KindTransport, RetryExponential(3, 100*time.Millisecond, 5*time.Second, 2.0))
	p.AddStrategy(mcperrors.KindProtocol, RetryFixed(2, 500*time.Millisecond))
	return p
}
