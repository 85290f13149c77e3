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

package workflow

import "fmt"

// StepValidationError reports a structurally invalid WorkflowStep.
type StepValidationError struct {
	Step   string
	Reason string
}

func (e *StepValidationError) Error() string {
	return fmt.Sprintf("workflow step %q: %s", e.Step, e.Reason)
}

// UnknownBindingError reports a step argument or template binding
// referencing an output binding no earlier step produces.
type UnknownBindingError struct {
	Step    string
	Binding string
}

func (e *UnknownBindingError) Error() string {
	return fmt.Sprintf("workflow step %q: unknown binding %q", e.Step, e.Binding)
}

// ArgBinding pairs a tool argument name with the DataSource it resolves
// from.
type ArgBinding struct {
	Name   string
	Source DataSource
}

// TemplateBinding pairs a resource URI template variable with the
// DataSource it resolves from.
type TemplateBinding struct {
	VarName string
	Source  DataSource
}

// WorkflowStep is one step of a WorkflowDefinition: either a tool
// invocation (with argument mappings and an optional output binding) or a
// resource-only fetch. Built via chainable methods, a functional-options
// style adapted to a value-returning builder.
type WorkflowStep struct {
	name      string
	tool      *ToolHandle
	arguments []ArgBinding
	binding   string
	guidance  string
	resources []ResourceHandle
	// templateBindings preserves insertion order for deterministic rendering,
	// same rationale as arguments using a slice instead of a map.
	templateBindings []TemplateBinding
}

// NewStep creates a step that invokes tool. For a resource-only step (no
// tool execution), use NewResourceStep instead.
func NewStep(name string, tool ToolHandle) *WorkflowStep {
	return &WorkflowStep{name: name, tool: &tool}
}

// NewResourceStep creates a step that fetches resources and embeds their
// content without executing any tool.
func NewResourceStep(name string) *WorkflowStep {
	return &WorkflowStep{name: name}
}

// Arg adds a tool argument mapping. Chainable.
func (s *WorkflowStep) Arg(name string, source DataSource) *WorkflowStep {
	s.arguments = append(s.arguments, ArgBinding{Name: name, Source: source})
	return s
}

// Bind sets the name under which this step's tool result is registered for
// later DataSource lookups. Chainable.
func (s *WorkflowStep) Bind(binding string) *WorkflowStep {
	s.binding = binding
	return s
}

// WithGuidance attaches guidance text rendered as an assistant message,
// helping the client LLM understand the step's intent when the server
// cannot resolve it deterministically. Supports {arg} substitution at
// render time. Chainable.
func (s *WorkflowStep) WithGuidance(guidance string) *WorkflowStep {
	s.guidance = guidance
	return s
}

// WithResource adds a resource URI (possibly templated) to fetch and embed
// before this step executes. Chainable.
func (s *WorkflowStep) WithResource(uri string) *WorkflowStep {
	s.resources = append(s.resources, NewResourceHandle(uri))
	return s
}

// WithTemplateBinding binds a {var} placeholder in a resource URI to a
// DataSource, resolved the same way as tool arguments. Chainable.
func (s *WorkflowStep) WithTemplateBinding(varName string, source DataSource) *WorkflowStep {
	s.templateBindings = append(s.templateBindings, TemplateBinding{VarName: varName, Source: source})
	return s
}

// Name returns the step's identifier.
func (s *WorkflowStep) Name() string { return s.name }

// Tool returns the step's tool handle, or nil for a resource-only step.
func (s *WorkflowStep) Tool() *ToolHandle { return s.tool }

// IsResourceOnly reports whether this step performs no tool invocation.
func (s *WorkflowStep) IsResourceOnly() bool { return s.tool == nil }

// Binding returns the step's output binding name, or "" if unset.
func (s *WorkflowStep) Binding() string { return s.binding }

// Guidance returns the step's guidance text, or "" if unset.
func (s *WorkflowStep) Guidance() string { return s.guidance }

// Resources returns the resources to fetch for this step.
func (s *WorkflowStep) Resources() []ResourceHandle { return s.resources }

// Arguments returns the step's argument mappings in declaration order.
func (s *WorkflowStep) Arguments() []ArgBinding { return s.arguments }

// TemplateBindings returns the step's template variable bindings in
// declaration order.
func (s *WorkflowStep) TemplateBindings() []TemplateBinding { return s.templateBindings }

// Validate checks structural constraints that don't require runtime data:
// resource-only steps must declare at least one resource and may not
// declare arguments or a binding; every StepOutput reference (in arguments
// or template bindings) must name a binding already available earlier in
// the workflow.
func (s *WorkflowStep) Validate(availableBindings []string) error {
	if s.IsResourceOnly() {
		if len(s.resources) == 0 {
			return &StepValidationError{Step: s.name, Reason: "resource-only steps must have at least one resource; use WithResource to add one"}
		}
		if len(s.arguments) != 0 {
			return &StepValidationError{Step: s.name, Reason: "resource-only steps cannot have tool arguments; remove Arg calls or use NewStep instead"}
		}
		if s.binding != "" {
			return &StepValidationError{Step: s.name, Reason: "resource-only steps cannot have output bindings; remove the Bind call"}
		}
	}

	available := make(map[string]bool, len(availableBindings))
	for _, b := range availableBindings {
		available[b] = true
	}

	for _, a := range s.arguments {
		if a.Source.Kind == DataSourceStepOutput && !available[a.Source.Step] {
			return &UnknownBindingError{Step: s.name, Binding: a.Source.Step}
		}
	}
	for _, b := range s.templateBindings {
		if b.Source.Kind == DataSourceStepOutput && !available[b.Source.Step] {
			return &UnknownBindingError{Step: s.name, Binding: b.Source.Step}
		}
	}
	return nil
}
