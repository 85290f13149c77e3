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
	"fmt"
	"sort"
)

// ToolExtra is the extra, non-argument state a tool call carries through
// the middleware chain: arbitrary metadata set by earlier middleware (auth
// context, request id, ...) plus a cancellation flag middleware and the
// tool handler itself must poll during long-running work.
type ToolExtra struct {
	Metadata  map[string]any
	cancelled bool
}

// NewToolExtra returns an empty ToolExtra.
func NewToolExtra() *ToolExtra {
	return &ToolExtra{Metadata: make(map[string]any)}
}

// IsCancelled reports whether the request this ToolExtra belongs to has
// been cancelled; middleware and tool handlers should check this in any
// loop that may run long.
func (e *ToolExtra) IsCancelled() bool { return e.cancelled }

// Cancel marks the extra as cancelled.
func (e *ToolExtra) Cancel() { e.cancelled = true }

// String implements fmt.Stringer with sensitive-key redaction: any
// metadata key containing "token", "key", "secret", or "password"
// (case-insensitively) is masked before rendering.
func (e *ToolExtra) String() string {
	return fmt.Sprintf("ToolExtra{metadata:%v, cancelled:%v}", RedactedMetadata(e.Metadata), e.cancelled)
}

// GoString implements fmt.GoStringer so %#v formatting also redacts.
func (e *ToolExtra) GoString() string { return e.String() }

// ToolResult is the tool-call response passed through OnResponse; IsError
// distinguishes a handler-reported tool failure (content carries the
// error) from a JSON-RPC-level error the dispatcher raises itself.
type ToolResult struct {
	Content json.RawMessage
	IsError bool
}

// ToolMiddleware observes and may rewrite a single "tools/call" in flight:
// its arguments before invocation, its result or error after. Unlike
// ProtocolMiddleware, each instance may opt out of a given call via
// ShouldExecute, letting middleware restrict themselves to particular
// tools or conditions without the chain needing to know why.
type ToolMiddleware interface {
	Priority() int

	// ShouldExecute reports whether this middleware participates in the
	// current call. A false return skips all of this middleware's hooks
	// for the call, including OnError.
	ShouldExecute(ctx context.Context, mctx *Context) bool

	// OnRequest may rewrite args or extra.Metadata before the tool runs.
	// An error aborts the chain exactly as ProtocolChain.Request does.
	OnRequest(ctx context.Context, tool string, args *json.RawMessage, extra *ToolExtra, mctx *Context) error

	// OnResponse may rewrite result after the tool runs, in reverse
	// priority order.
	OnResponse(ctx context.Context, tool string, result *ToolResult, mctx *Context) error

	// OnError is invoked on every participating middleware when any
	// participant's OnRequest fails. A failure of the tool handler itself
	// does not reach it.
	OnError(ctx context.Context, tool string, err error, mctx *Context)
}

// ToolChain holds an ordered, priority-sorted set of ToolMiddleware.
type ToolChain struct {
	items []ToolMiddleware
}

// NewToolChain returns an empty chain.
func NewToolChain() *ToolChain {
	return &ToolChain{}
}

// Add registers m and re-sorts the chain stably by ascending Priority.
func (c *ToolChain) Add(m ToolMiddleware) {
	c.items = append(c.items, m)
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Priority() < c.items[j].Priority()
	})
}

// Len reports how many middleware are registered.
func (c *ToolChain) Len() int { return len(c.items) }

// participants returns the subset of the chain whose ShouldExecute
// returns true for this call, preserving priority order.
func (c *ToolChain) participants(ctx context.Context, mctx *Context) []ToolMiddleware {
	out := make([]ToolMiddleware, 0, len(c.items))
	for _, m := range c.items {
		if m.ShouldExecute(ctx, mctx) {
			out = append(out, m)
		}
	}
	return out
}

// Request runs OnRequest over every participating middleware in priority
// order. On the first error, it invokes OnError on every participating
// middleware and returns that error.
func (c *ToolChain) Request(ctx context.Context, tool string, args *json.RawMessage, extra *ToolExtra, mctx *Context) error {
	participants := c.participants(ctx, mctx)
	for _, m := range participants {
		if err := m.OnRequest(ctx, tool, args, extra, mctx); err != nil {
			for _, all := range participants {
				all.OnError(ctx, tool, err, mctx)
			}
			return err
		}
	}
	return nil
}

// Response runs OnResponse over every participating middleware in reverse
// priority order.
func (c *ToolChain) Response(ctx context.Context, tool string, result *ToolResult, mctx *Context) []error {
	participants := c.participants(ctx, mctx)
	var errs []error
	for i := len(participants) - 1; i >= 0; i-- {
		if err := participants[i].OnResponse(ctx, tool, result, mctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
