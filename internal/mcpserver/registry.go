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
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/tombee/mcpcore/pkg/middleware"
)

// ToolHandler executes a registered tool against already-validated
// arguments.
type ToolHandler func(ctx context.Context, args json.RawMessage, extra *middleware.ToolExtra) (json.RawMessage, error)

// ToolRegistration is one entry in a ToolRegistry: a tool's identity,
// derived input schema, execution metadata (task-augmentation support),
// and handler.
type ToolRegistration struct {
	Name          string
	Description   string
	InputSchema   json.RawMessage
	ExecutionMeta json.RawMessage
	Handler       ToolHandler
}

// ToolRegistry is a concurrency-safe, name-keyed set of tools with
// reflection-derived input schemas.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolRegistration
	order []string
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*ToolRegistration)}
}

// Register adds reg, replacing any existing tool of the same name in
// place (registration order is preserved for an updated tool).
func (r *ToolRegistry) Register(reg *ToolRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[reg.Name]; !exists {
		r.order = append(r.order, reg.Name)
	}
	r.tools[reg.Name] = reg
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (*ToolRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// List returns every registered tool in registration order.
func (r *ToolRegistry) List() []*ToolRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolRegistration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// schemaReflector derives JSON Schema input schemas from Go argument
// types. ExpandedStruct inlines the top-level struct's own properties
// instead of emitting a "$ref" to a "$defs" entry, since MCP tool input
// schemas are expected to stand alone.
var schemaReflector = &jsonschema.Reflector{
	ExpandedStruct:             true,
	DoNotReference:             true,
	AllowAdditionalProperties:  false,
	RequiredFromJSONSchemaTags: false,
}

// ReflectInputSchema derives a tool's JSON Schema input schema from the Go
// type of args (typically a pointer to a zero-value struct), deriving tool
// schemas reflectively rather than hand-writing a Schema literal per tool.
func ReflectInputSchema(args any) (json.RawMessage, error) {
	schema := schemaReflector.Reflect(args)
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: reflect input schema: %w", err)
	}
	return raw, nil
}
