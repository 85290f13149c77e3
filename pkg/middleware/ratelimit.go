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

package middleware

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/time/rate"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
)

// RateLimitMiddleware throttles tools/call traffic with token buckets:
// one bucket shared by every tool, plus optional per-tool buckets for
// tools whose backends need a tighter cap. A call that finds its bucket
// empty fails with a QuotaExceeded domain error, which the dispatcher
// surfaces as the framework's rate-limited JSON-RPC code.
type RateLimitMiddleware struct {
	priority int
	calls    *rate.Limiter

	mu      sync.Mutex
	perTool map[string]*rate.Limiter
}

// NewRateLimitMiddleware allows callsPerMinute tool calls across all
// tools, refilled continuously, with a burst of the full minute's budget.
func NewRateLimitMiddleware(priority, callsPerMinute int) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		priority: priority,
		calls:    minuteLimiter(callsPerMinute),
		perTool:  make(map[string]*rate.Limiter),
	}
}

// WithToolLimit caps one tool at perMinute calls, checked before the
// shared bucket so a denied call does not spend a shared token. Chainable.
func (m *RateLimitMiddleware) WithToolLimit(tool string, perMinute int) *RateLimitMiddleware {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perTool[tool] = minuteLimiter(perMinute)
	return m
}

func minuteLimiter(perMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
}

func (m *RateLimitMiddleware) Priority() int { return m.priority }

func (m *RateLimitMiddleware) ShouldExecute(ctx context.Context, mctx *Context) bool { return true }

func (m *RateLimitMiddleware) OnRequest(ctx context.Context, tool string, args *json.RawMessage, extra *ToolExtra, mctx *Context) error {
	m.mu.Lock()
	toolLimiter := m.perTool[tool]
	m.mu.Unlock()

	if toolLimiter != nil && !toolLimiter.Allow() {
		return mcperrors.New(mcperrors.KindQuotaExceeded, "tool call rate exceeded").WithField(tool)
	}
	if !m.calls.Allow() {
		return mcperrors.New(mcperrors.KindQuotaExceeded, "call rate exceeded").WithField(tool)
	}
	return nil
}

func (m *RateLimitMiddleware) OnResponse(ctx context.Context, tool string, result *ToolResult, mctx *Context) error {
	return nil
}

func (m *RateLimitMiddleware) OnError(ctx context.Context, tool string, err error, mctx *Context) {}
