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

// Package middleware implements the protocol and tool middleware chains
// every inbound request passes through: priority-ordered hooks that may
// inspect or rewrite a request/response, short-circuit on error, and share
// a per-request metadata bag across hook invocations (the coordination
// mechanism the HTTP OAuth retry middleware in pkg/transport/streamhttp
// relies on).
package middleware

import "sync"

// Context is the per-request value shared across every middleware hook
// invoked for a single inbound message: a small mutable key-value bag
// threaded through on_request/on_response/on_error, rather than a
// context.Context, since the values it carries (auth_already_set,
// oauth.retry_used, auth_failure, status_code, ...) are middleware
// coordination state, not request cancellation/deadline plumbing.
type Context struct {
	mu       sync.Mutex
	metadata map[string]any
}

// NewContext returns an empty middleware Context.
func NewContext() *Context {
	return &Context{metadata: make(map[string]any)}
}

// Set stores a metadata value, overwriting any existing entry under key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Get returns the metadata value stored under key, if any.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.metadata[key]
	return v, ok
}

// GetString returns the metadata value under key as a string; ok is false
// if the key is absent or its value is not a string.
func (c *Context) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool reports whether the metadata value under key is the boolean true,
// or the string "true". The HTTP middleware in pkg/transport/streamhttp
// stores its coordination flags as booleans.
func (c *Context) Bool(key string) bool {
	v, ok := c.Get(key)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	default:
		return false
	}
}

// Snapshot returns a shallow copy of the metadata map, safe for a caller
// to range over without holding the Context's lock.
func (c *Context) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}
