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

package mcpserver

import (
	"context"
	"sync"
)

// cancellationRegistry maps an in-flight request's JSON-RPC id (rendered
// via jsonrpc.ID.String) to the context.CancelFunc that stops it, the Go
// analog of a per-request cancellation token.
// A "cancelled" notification carrying a request id looks the id up here
// and cancels its context; a handler that already returned is simply a
// no-op lookup miss.
type cancellationRegistry struct {
	mu     sync.Mutex
	cancel map[string]context.CancelFunc
}

func newCancellationRegistry() *cancellationRegistry {
	return &cancellationRegistry{cancel: make(map[string]context.CancelFunc)}
}

// track registers a request id's cancel func and returns a release
// function the caller must run (typically deferred) once the request
// completes, so the map never grows unbounded.
func (c *cancellationRegistry) track(id string, cancel context.CancelFunc) (release func()) {
	if id == "" {
		return func() {}
	}
	c.mu.Lock()
	c.cancel[id] = cancel
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.cancel, id)
		c.mu.Unlock()
	}
}

// cancelRequest cancels the context registered for id, if any is still in flight.
func (c *cancellationRegistry) cancelRequest(id string) {
	c.mu.Lock()
	cancel, ok := c.cancel[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}
