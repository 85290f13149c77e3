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

import "encoding/json"

// DataSourceKind discriminates the closed set of places a step argument or
// template binding value can come from.
type DataSourceKind string

const (
	DataSourcePromptArg  DataSourceKind = "promptArg"
	DataSourceConstant   DataSourceKind = "constant"
	DataSourceStepOutput DataSourceKind = "stepOutput"
)

// DataSource names where a workflow step argument or resource template
// variable resolves its value from: a prompt argument supplied by the
// caller, a literal constant, or a previously completed step's output
// (optionally drilling into a top-level field by name).
type DataSource struct {
	Kind DataSourceKind

	// PromptArgName is set when Kind == DataSourcePromptArg.
	PromptArgName string

	// ConstantValue is set when Kind == DataSourceConstant.
	ConstantValue json.RawMessage

	// Step is the producing step's binding name, set when
	// Kind == DataSourceStepOutput.
	Step string

	// Field, when non-empty, extracts a single top-level key from the
	// step's result object rather than using the whole value.
	Field string
}

// PromptArg resolves from the named prompt argument.
func PromptArg(name string) DataSource {
	return DataSource{Kind: DataSourcePromptArg, PromptArgName: name}
}

// Constant resolves to a fixed literal value.
func Constant(v json.RawMessage) DataSource {
	return DataSource{Kind: DataSourceConstant, ConstantValue: v}
}

// FromStep resolves to the whole result of a previously completed step.
func FromStep(step string) DataSource {
	return DataSource{Kind: DataSourceStepOutput, Step: step}
}

// FromStepField resolves to a single top-level field of a previously
// completed step's result.
func FromStepField(step, field string) DataSource {
	return DataSource{Kind: DataSourceStepOutput, Step: step, Field: field}
}
