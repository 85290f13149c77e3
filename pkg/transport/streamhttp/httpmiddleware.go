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

package streamhttp

import (
	"context"
	"sort"
	"strings"

	"github.com/tombee/mcpcore/pkg/middleware"
)

// HTTPRequest is the raw HTTP request an HTTPMiddleware sees, before any
// JSON-RPC decoding happens. Header keys are normalized to lowercase on
// write.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Header returns the value for name, case-insensitively.
func (r *HTTPRequest) Header(name string) (string, bool) {
	v, ok := r.Headers[strings.ToLower(name)]
	return v, ok
}

// SetHeader sets a header, normalizing the key to lowercase.
func (r *HTTPRequest) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[strings.ToLower(name)] = value
}

// HTTPResponse is the raw HTTP response an HTTPMiddleware may inspect or
// rewrite after the handler ran, before it is written to the wire.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

func (r *HTTPResponse) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[strings.ToLower(name)] = value
}

// HTTPMiddleware mirrors pkg/middleware.ProtocolMiddleware's contract
// (priority, request/response/error hooks, short-circuit-then-OnError-
// on-all discipline) but operates on raw HTTP request/response instead
// of the JSON-RPC envelope.
type HTTPMiddleware interface {
	Priority() int
	OnRequest(ctx context.Context, req *HTTPRequest, mctx *middleware.Context) error
	OnResponse(ctx context.Context, resp *HTTPResponse, mctx *middleware.Context) error
	OnError(ctx context.Context, err error, mctx *middleware.Context)
}

// HTTPChain holds an ordered, priority-sorted set of HTTPMiddleware.
type HTTPChain struct {
	items []HTTPMiddleware
}

// NewHTTPChain returns an empty chain.
func NewHTTPChain() *HTTPChain {
	return &HTTPChain{}
}

// Add registers m and re-sorts the chain stably by ascending Priority.
func (c *HTTPChain) Add(m HTTPMiddleware) {
	c.items = append(c.items, m)
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Priority() < c.items[j].Priority()
	})
}

// Len reports how many middleware are registered.
func (c *HTTPChain) Len() int { return len(c.items) }

// Request runs OnRequest over every middleware in priority order. On the
// first error it stops, invokes OnError on every registered middleware
// (not only those that ran), and returns that error.
func (c *HTTPChain) Request(ctx context.Context, req *HTTPRequest, mctx *middleware.Context) error {
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
// order. Errors are collected, never replacing resp.
func (c *HTTPChain) Response(ctx context.Context, resp *HTTPResponse, mctx *middleware.Context) []error {
	var errs []error
	for i := len(c.items) - 1; i >= 0; i-- {
		if err := c.items[i].OnResponse(ctx, resp, mctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
