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
	"sync"

	"github.com/tombee/mcpcore/pkg/workflow"
)

// PromptRegistration is a workflow registered as a "prompts/get"-able
// prompt: workflows register themselves as prompts.
type PromptRegistration struct {
	Name       string
	Definition *workflow.WorkflowDefinition
}

// PromptRegistry is a concurrency-safe, name-keyed set of prompts.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]*PromptRegistration
	order   []string
}

// NewPromptRegistry returns an empty registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]*PromptRegistration)}
}

// RegisterWorkflow registers def under its own name as a prompt.
func (r *PromptRegistry) RegisterWorkflow(def *workflow.WorkflowDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := def.Name()
	if _, exists := r.prompts[name]; !exists {
		r.order = append(r.order, name)
	}
	r.prompts[name] = &PromptRegistration{Name: name, Definition: def}
}

// Get looks up a prompt by name.
func (r *PromptRegistry) Get(name string) (*PromptRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.prompts[name]
	return reg, ok
}

// List returns every registered prompt in registration order.
func (r *PromptRegistry) List() []*PromptRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PromptRegistration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.prompts[name])
	}
	return out
}
