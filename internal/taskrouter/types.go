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

package taskrouter

import (
	"encoding/json"

	"github.com/tombee/mcpcore/pkg/tasks"
)

// TaskSupport declares how a tool relates to task augmentation.
type TaskSupport string

const (
	TaskSupportForbidden TaskSupport = "forbidden"
	TaskSupportOptional  TaskSupport = "optional"
	TaskSupportRequired  TaskSupport = "required"
)

// ToolExecution is the subset of a tool's declared execution metadata this
// router inspects.
type ToolExecution struct {
	TaskSupport TaskSupport `json:"taskSupport"`
}

// TaskParams are the task-augmentation fields a client attaches to a
// task-backed "tools/call" request, alongside the tool's own arguments.
type TaskParams struct {
	TTL          *uint64 `json:"ttl,omitempty"`
	PollInterval *uint64 `json:"pollInterval,omitempty"`
}

// TaskGetParams is the payload of a "tasks/get" request.
type TaskGetParams struct {
	TaskID string `json:"taskId"`
}

// TaskResultParams is the payload of a "tasks/result" request.
type TaskResultParams struct {
	TaskID string `json:"taskId"`
}

// TaskListParams is the payload of a "tasks/list" request. Limit is a
// page-size request, capped by the store at its configured maximum.
type TaskListParams struct {
	Cursor *string `json:"cursor,omitempty"`
	Limit  *int    `json:"limit,omitempty"`
}

// TaskCancelParams is the payload of a "tasks/cancel" request. A non-nil
// Result carries the client-finalized flow: the task completes with this
// result instead of transitioning to Cancelled.
type TaskCancelParams struct {
	TaskID string          `json:"taskId"`
	Result json.RawMessage `json:"result,omitempty"`
}

// CreateTaskResult is returned from both handle_task_call and
// create_workflow_task.
type CreateTaskResult struct {
	Task *tasks.TaskRecord `json:"task"`
	Meta map[string]any    `json:"_meta,omitempty"`
}

// relatedTaskMeta builds the "_meta" object tasks/result attaches, pointing
// back to the task that produced the result.
func relatedTaskMeta(taskID string) map[string]any {
	return map[string]any{
		"io.modelcontextprotocol/related-task": map[string]any{
			"taskId": taskID,
		},
	}
}

// ServerTaskCapabilities is advertised under "experimental.tasks" during
// capability negotiation.
type ServerTaskCapabilities struct {
	Create bool `json:"create"`
	Cancel bool `json:"cancel"`
	List   bool `json:"list"`
}

// FullTaskCapabilities returns the capability set this router supports.
func FullTaskCapabilities() ServerTaskCapabilities {
	return ServerTaskCapabilities{Create: true, Cancel: true, List: true}
}

