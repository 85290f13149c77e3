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

// ToolHandle names a tool to invoke for a workflow step.
type ToolHandle struct {
	name string
}

// NewToolHandle names a tool by its registry name.
func NewToolHandle(name string) ToolHandle {
	return ToolHandle{name: name}
}

// Name returns the tool's registry name.
func (h ToolHandle) Name() string {
	return h.name
}

// ResourceHandle names a resource URI, possibly templated with {var}
// placeholders, to fetch and embed before a step executes.
type ResourceHandle struct {
	uri string
}

// NewResourceHandle wraps a resource URI template.
func NewResourceHandle(uri string) ResourceHandle {
	return ResourceHandle{uri: uri}
}

// URI returns the (possibly templated) resource URI.
func (h ResourceHandle) URI() string {
	return h.uri
}
