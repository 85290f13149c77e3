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
	"encoding/json"

	"github.com/tombee/mcpcore/pkg/jsonrpc"
)

// initializeParams is the "initialize" request payload.
type initializeParams struct {
	ProtocolVersion string                     `json:"protocolVersion"`
	Capabilities    jsonrpc.ClientCapabilities `json:"capabilities"`
	ClientInfo      jsonrpc.Implementation     `json:"clientInfo"`
}

// initializeResult is the "initialize" response payload.
type initializeResult struct {
	ProtocolVersion string                     `json:"protocolVersion"`
	Capabilities    jsonrpc.ServerCapabilities `json:"capabilities"`
	ServerInfo      jsonrpc.Implementation     `json:"serverInfo"`
}

// taskAugmentation is the optional "task" object on a task-augmented
// "tools/call" request.
type taskAugmentation struct {
	TTL          *uint64 `json:"ttl,omitempty"`
	PollInterval *uint64 `json:"pollInterval,omitempty"`
}

// toolsCallParams is the "tools/call" request payload.
type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Task      json.RawMessage `json:"task,omitempty"`
	Meta      struct {
		ProgressToken json.RawMessage `json:"progressToken,omitempty"`
		// TaskID is the client-continuation hook: when set to
		// the id of a working workflow task, the call's result is
		// recorded against that task's parked step instead of just being
		// returned to the caller.
		TaskID string `json:"_task_id,omitempty"`
	} `json:"_meta,omitempty"`
}

// wireTool is the "tools/list" entry shape.
type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// toolsListResult is the "tools/list" response payload.
type toolsListResult struct {
	Tools []wireTool `json:"tools"`
}

// promptsGetParams is the "prompts/get" request payload.
type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// wirePrompt is the "prompts/list" entry shape.
type wirePrompt struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Arguments   []promptArgumentWireEntry `json:"arguments,omitempty"`
}

type promptArgumentWireEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// promptsListResult is the "prompts/list" response payload.
type promptsListResult struct {
	Prompts []wirePrompt `json:"prompts"`
}

// resourcesReadParams is the "resources/read" request payload.
type resourcesReadParams struct {
	URI string `json:"uri"`
}

// wireResource is the "resources/list" entry shape.
type wireResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// resourcesListResult is the "resources/list" response payload.
type resourcesListResult struct {
	Resources []wireResource `json:"resources"`
}

// resourcesReadResult is the "resources/read" response payload.
type resourcesReadResult struct {
	Contents []resourceContent `json:"contents"`
}

type resourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// resourceTemplate is the "resources/templates/list" entry shape.
type resourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// resourceTemplatesListResult is the "resources/templates/list" response
// payload.
type resourceTemplatesListResult struct {
	ResourceTemplates []resourceTemplate `json:"resourceTemplates"`
}

// cancelledParams is the "cancelled" notification payload.
type cancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitempty"`
}
