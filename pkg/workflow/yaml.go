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

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlDefinition is the on-disk shape of a workflow definition. Args and
// template bindings are lists, not maps, so declaration order survives
// the round trip the way the builder preserves it.
type yamlDefinition struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	TaskSupport bool                 `yaml:"task_support"`
	Arguments   []yamlPromptArgument `yaml:"arguments"`
	Steps       []yamlStep           `yaml:"steps"`
}

type yamlPromptArgument struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

type yamlStep struct {
	Name             string                `yaml:"name"`
	Tool             string                `yaml:"tool"`
	Bind             string                `yaml:"bind"`
	Guidance         string                `yaml:"guidance"`
	Args             []yamlArg             `yaml:"args"`
	Resources        []string              `yaml:"resources"`
	TemplateBindings []yamlTemplateBinding `yaml:"template_bindings"`
}

type yamlArg struct {
	Name   string     `yaml:"name"`
	Source yamlSource `yaml:",inline"`
}

type yamlTemplateBinding struct {
	Var    string     `yaml:"var"`
	Source yamlSource `yaml:",inline"`
}

// yamlSource is the serialized DataSource: exactly one of prompt_arg,
// constant, or from_step must be set; field only combines with from_step.
type yamlSource struct {
	PromptArg string    `yaml:"prompt_arg"`
	Constant  yaml.Node `yaml:"constant"`
	FromStep  string    `yaml:"from_step"`
	Field     string    `yaml:"field"`
}

func (s *yamlSource) dataSource(step, target string) (DataSource, error) {
	set := 0
	if s.PromptArg != "" {
		set++
	}
	if s.Constant.Kind != 0 {
		set++
	}
	if s.FromStep != "" {
		set++
	}
	if set != 1 {
		return DataSource{}, fmt.Errorf("step %q, %s: exactly one of prompt_arg, constant, from_step must be set", step, target)
	}

	switch {
	case s.PromptArg != "":
		if s.Field != "" {
			return DataSource{}, fmt.Errorf("step %q, %s: field only applies to from_step sources", step, target)
		}
		return PromptArg(s.PromptArg), nil
	case s.Constant.Kind != 0:
		var v any
		if err := s.Constant.Decode(&v); err != nil {
			return DataSource{}, fmt.Errorf("step %q, %s: decode constant: %w", step, target, err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return DataSource{}, fmt.Errorf("step %q, %s: constant is not JSON-representable: %w", step, target, err)
		}
		return Constant(raw), nil
	default:
		if s.Field != "" {
			return FromStepField(s.FromStep, s.Field), nil
		}
		return FromStep(s.FromStep), nil
	}
}

// ParseDefinition parses a workflow definition from YAML bytes and
// validates it, so a definition that loads is a definition the engine can
// run.
func ParseDefinition(data []byte) (*WorkflowDefinition, error) {
	var raw yamlDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("workflow definition has no name")
	}

	def := New(raw.Name, raw.Description).WithTaskSupport(raw.TaskSupport)
	for _, a := range raw.Arguments {
		def.Argument(a.Name, a.Description, a.Required)
	}

	for _, ys := range raw.Steps {
		step, err := buildStep(ys)
		if err != nil {
			return nil, err
		}
		def.Step(step)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow definition: %w", err)
	}
	return def, nil
}

func buildStep(ys yamlStep) (*WorkflowStep, error) {
	var step *WorkflowStep
	if ys.Tool != "" {
		step = NewStep(ys.Name, NewToolHandle(ys.Tool))
	} else {
		step = NewResourceStep(ys.Name)
	}

	for _, a := range ys.Args {
		src, err := a.Source.dataSource(ys.Name, fmt.Sprintf("arg %q", a.Name))
		if err != nil {
			return nil, err
		}
		step.Arg(a.Name, src)
	}
	if ys.Bind != "" {
		step.Bind(ys.Bind)
	}
	if ys.Guidance != "" {
		step.WithGuidance(ys.Guidance)
	}
	for _, uri := range ys.Resources {
		step.WithResource(uri)
	}
	for _, tb := range ys.TemplateBindings {
		src, err := tb.Source.dataSource(ys.Name, fmt.Sprintf("template var %q", tb.Var))
		if err != nil {
			return nil, err
		}
		step.WithTemplateBinding(tb.Var, src)
	}
	return step, nil
}
