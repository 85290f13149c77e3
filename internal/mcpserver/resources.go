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

// ResourceRegistration is one static or dynamic resource exposed under
// "resources/list"/"resources/read".
type ResourceRegistration struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Fetch       func(ctx context.Context, uri string) (string, error)
}

// ResourceRegistry is a concurrency-safe, URI-keyed set of resources. A
// server with no resources configured simply never registers this
// registry; "resources/list" then reports an empty list and
// "resources/read" a not-found error, treating an absent registry as
// "none" rather than "unsupported".
type ResourceRegistry struct {
	mu        sync.RWMutex
	resources map[string]*ResourceRegistration
	order     []string
}

// NewResourceRegistry returns an empty registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{resources: make(map[string]*ResourceRegistration)}
}

// Register adds a resource.
func (r *ResourceRegistry) Register(reg *ResourceRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[reg.URI]; !exists {
		r.order = append(r.order, reg.URI)
	}
	r.resources[reg.URI] = reg
}

// Get looks up a resource by URI.
func (r *ResourceRegistry) Get(uri string) (*ResourceRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.resources[uri]
	return reg, ok
}

// List returns every registered resource in registration order.
func (r *ResourceRegistry) List() []*ResourceRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ResourceRegistration, 0, len(r.order))
	for _, uri := range r.order {
		out = append(out, r.resources[uri])
	}
	return out
}

// FetchResource implements engine.ResourceFetcher by delegating to the
// matching registration's Fetch function.
func (r *ResourceRegistry) FetchResource(ctx context.Context, uri string) (string, error) {
	reg, ok := r.Get(uri)
	if !ok {
		return "", errUnknownResource(uri)
	}
	return reg.Fetch(ctx, uri)
}
