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
	"sort"

	"github.com/tombee/mcpcore/pkg/jsonrpc"
)

// ProtocolMiddleware observes and may rewrite the JSON-RPC envelope of
// every request the server core dispatches. Priority orders the chain (lower runs first on the request path, last on the
// response path); ties preserve registration order (Add uses a stable
// sort).
type ProtocolMiddleware interface {
	Priority() int

	// OnRequest may mutate req in place before dispatch. Returning a
	// non-nil error aborts the chain: no later middleware's OnRequest
	// runs, dispatch itself never happens, and OnError is invoked on
	// every registered middleware (not only those that already ran).
	OnRequest(ctx context.Context, req *jsonrpc.Request, mctx *Context) error

	// OnResponse may mutate resp in place after dispatch, in reverse
	// priority order. An error here does not replace the response;
	// mcpserver's Dispatch discards it without logging it.
	OnResponse(ctx context.Context, resp *jsonrpc.Response, mctx *Context) error

	// OnNotification observes (and may mutate) an inbound notification.
	OnNotification(ctx context.Context, notif *jsonrpc.Notification, mctx *Context) error

	// OnError is invoked for every registered middleware when any
	// middleware's OnRequest fails, regardless of whether this particular
	// middleware's OnRequest ran. Method handler failures do not reach it.
	OnError(ctx context.Context, err error, mctx *Context)
}

// ProtocolChain holds an ordered, priority-sorted set of ProtocolMiddleware.
type ProtocolChain struct {
	items []ProtocolMiddleware
}

// NewProtocolChain returns an empty chain.
func NewProtocolChain() *ProtocolChain {
	return &ProtocolChain{}
}

// Add registers m and re-sorts the chain stably by ascending Priority.
func (c *ProtocolChain) Add(m ProtocolMiddleware) {
	c.items = append(c.items, m)
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Priority() < c.items[j].Priority()
	})
}

// Len reports how many middleware are registered.
func (c *ProtocolChain) Len() int { return len(c.items) }

// Request runs OnRequest over every middleware in priority order. On the
// first error, it stops running further OnRequest hooks, invokes OnError
// on every registered middleware, and returns that error.
func (c *ProtocolChain) Request(ctx context.Context, req *jsonrpc.Request, mctx *Context) error {
	for _, m := range c.items {
		if err := m.OnRequest(ctx, req, mctx); err != nil {
			for _, all := range c.items {
				all.OnError(ctx, err, mctx)
			}
			return err
		}
	}
	return nil
}

// Response runs OnResponse over every middleware in reverse priority
// order. Errors are collected and returned as a slice; they never replace
// resp.
func (c *ProtocolChain) Response(ctx context.Context, resp *jsonrpc.Response, mctx *Context) []error {
	var errs []error
	for i := len(c.items) - 1; i >= 0; i-- {
		if err := c.items[i].OnResponse(ctx, resp, mctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Notification runs OnNotification over every middleware in priority
// order.
func (c *ProtocolChain) Notification(ctx context.Context, notif *jsonrpc.Notification, mctx *Context) []error {
	var errs []error
	for _, m := range c.items {
		if err := m.OnNotification(ctx, notif, mctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
