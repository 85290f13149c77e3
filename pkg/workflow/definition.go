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

// Package workflow defines the sequential, partially-executable workflow
// plans the engine in pkg/workflow/engine runs: a WorkflowDefinition names
// its prompt arguments and its ordered WorkflowSteps; a WorkflowStep either
// invokes a tool or fetches resources; DataSource values describe where a
// step's arguments come from.
package workflow

import "fmt"

// PromptArgument declares one argument a workflow's prompt accepts.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// WorkflowDefinition is a named, ordered sequence of steps registered as an
// MCP prompt. TaskSupport controls whether invoking it creates a
// task-backed execution (enabling pause/handoff/continuation) or runs to
// completion (or first failure) as a single request.
type WorkflowDefinition struct {
	name        string
	description string
	arguments   []PromptArgument
	steps       []*WorkflowStep
	taskSupport bool
}

// New starts a workflow definition with the given prompt name and
// description.
func New(name, description string) *WorkflowDefinition {
	return &WorkflowDefinition{name: name, description: description}
}

// Argument declares a prompt argument. Chainable.
func (w *WorkflowDefinition) Argument(name, description string, required bool) *WorkflowDefinition {
	w.arguments = append(w.arguments, PromptArgument{Name: name, Description: description, Required: required})
	return w
}

// Step appends a step to the workflow. Chainable.
func (w *WorkflowDefinition) Step(step *WorkflowStep) *WorkflowDefinition {
	w.steps = append(w.steps, step)
	return w
}

// WithTaskSupport enables or disables task-backed execution. Chainable.
func (w *WorkflowDefinition) WithTaskSupport(enabled bool) *WorkflowDefinition {
	w.taskSupport = enabled
	return w
}

// Name returns the workflow's prompt name.
func (w *WorkflowDefinition) Name() string { return w.name }

// Description returns the workflow's prompt description.
func (w *WorkflowDefinition) Description() string { return w.description }

// Arguments returns the workflow's declared prompt arguments.
func (w *WorkflowDefinition) Arguments() []PromptArgument { return w.arguments }

// Steps returns the workflow's steps in execution order.
func (w *WorkflowDefinition) Steps() []*WorkflowStep { return w.steps }

// TaskSupport reports whether this workflow executes task-backed.
func (w *WorkflowDefinition) TaskSupport() bool { return w.taskSupport }

// Validate checks every step in order, accumulating each step's binding
// name (if it produces one) into the set available to later steps.
func (w *WorkflowDefinition) Validate() error {
	var available []string
	for _, step := range w.steps {
		if err := step.Validate(available); err != nil {
			return err
		}
		if step.Binding() != "" {
			available = append(available, step.Binding())
		} else if !step.IsResourceOnly() {
			available = append(available, step.Name())
		}
	}
	if len(w.steps) == 0 {
		return fmt.Errorf("workflow %q declares no steps", w.name)
	}
	return nil
}
