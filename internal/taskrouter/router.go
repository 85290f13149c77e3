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

// Package taskrouter bridges the JSON-RPC task method space
// ("tasks/get", "tasks/result", "tasks/list", "tasks/cancel", and
// task-augmented "tools/call") to pkg/tasks.Store operations.
//
// The router never executes tools itself: handle_task_call stores the tool
// name, arguments, and progress token as task variables and returns
// immediately, so an external worker (or, for workflow-backed tasks, the
// workflow engine) can pick up the work asynchronously.
package taskrouter

import (
	"context"
	"encoding/json"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/tasks"
	"github.com/tombee/mcpcore/pkg/workflow"
)

// Router implements task lifecycle operations over a tasks.Store.
type Router struct {
	store *tasks.Store
}

// New builds a Router over store.
func New(store *tasks.Store) *Router {
	return &Router{store: store}
}

// errorCodeForKind maps a domain error Kind to a JSON-RPC error code.
// Client-supplied-argument-shaped errors map into the invalid-params family;
// everything else maps to a more specific framework code where one exists,
// or the generic internal-error code as a catch-all.
func errorCodeForKind(k mcperrors.Kind) int {
	switch k {
	case mcperrors.KindProtocol, mcperrors.KindNotFound, mcperrors.KindOversizedPayload:
		return jsonrpc.CodeInvalidParams
	case mcperrors.KindAuthentication:
		return jsonrpc.CodeAuthenticationRequired
	case mcperrors.KindAuthorization:
		return jsonrpc.CodeAuthorizationDenied
	case mcperrors.KindExpired:
		return jsonrpc.CodeTaskExpired
	case mcperrors.KindInvalidTransition, mcperrors.KindConflict:
		return jsonrpc.CodeTaskConflict
	case mcperrors.KindNotReady:
		return jsonrpc.CodeTaskNotReady
	case mcperrors.KindQuotaExceeded:
		return jsonrpc.CodeRateLimited
	default:
		return jsonrpc.CodeInternalError
	}
}

// taskErrorToRPC converts a domain error into a *jsonrpc.Error.
func taskErrorToRPC(err error) *jsonrpc.Error {
	return &jsonrpc.Error{
		Code:    errorCodeForKind(mcperrors.KindOf(err)),
		Message: err.Error(),
	}
}

// HandleTaskCall handles a task-augmented "tools/call": it creates a task
// with origin "tools/call", stashes the tool name, arguments, and optional
// progress token as task variables, and returns a CreateTaskResult without
// executing the tool.
func (r *Router) HandleTaskCall(ctx context.Context, toolName string, arguments json.RawMessage, taskParams json.RawMessage, owner string, progressToken json.RawMessage) (*CreateTaskResult, *jsonrpc.Error) {
	var params TaskParams
	if len(taskParams) > 0 {
		if err := json.Unmarshal(taskParams, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "invalid task params: " + err.Error()}
		}
	}

	rec, err := r.store.Create(ctx, owner, "tools/call", params.TTL)
	if err != nil {
		return nil, taskErrorToRPC(err)
	}

	vars := map[string]json.RawMessage{"tool_name": mustMarshal(toolName)}
	if len(arguments) > 0 {
		vars["arguments"] = arguments
	} else {
		vars["arguments"] = json.RawMessage(`{}`)
	}
	if len(progressToken) > 0 {
		vars["progress_token"] = progressToken
	}

	rec, err = r.store.SetVariables(ctx, rec.TaskID, owner, vars)
	if err != nil {
		return nil, taskErrorToRPC(err)
	}

	if params.PollInterval != nil {
		rec.PollIntervalMs = params.PollInterval
	}

	return &CreateTaskResult{Task: rec}, nil
}

// HandleTasksGet handles "tasks/get".
func (r *Router) HandleTasksGet(ctx context.Context, params json.RawMessage, owner string) (*tasks.TaskRecord, *jsonrpc.Error) {
	var p TaskGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "invalid tasks/get params: " + err.Error()}
	}
	rec, err := r.store.Get(ctx, p.TaskID, owner)
	if err != nil {
		return nil, taskErrorToRPC(err)
	}
	return rec, nil
}

// tasksResultResponse is the "tasks/result" wire shape: the stored result
// plus a "_meta" block pointing back at the originating task.
type tasksResultResponse struct {
	Result json.RawMessage `json:"result"`
	Meta   map[string]any  `json:"_meta"`
}

// HandleTasksResult handles "tasks/result".
func (r *Router) HandleTasksResult(ctx context.Context, params json.RawMessage, owner string) (*tasksResultResponse, *jsonrpc.Error) {
	var p TaskResultParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "invalid tasks/result params: " + err.Error()}
	}
	result, err := r.store.GetResult(ctx, p.TaskID, owner)
	if err != nil {
		return nil, taskErrorToRPC(err)
	}
	return &tasksResultResponse{Result: result, Meta: relatedTaskMeta(p.TaskID)}, nil
}

// HandleTasksList handles "tasks/list".
func (r *Router) HandleTasksList(ctx context.Context, params json.RawMessage, owner string) (*tasks.TaskPage, *jsonrpc.Error) {
	var p TaskListParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "invalid tasks/list params: " + err.Error()}
		}
	}
	page, err := r.store.List(ctx, tasks.ListParams{Owner: owner, Cursor: p.Cursor, Limit: p.Limit})
	if err != nil {
		return nil, taskErrorToRPC(err)
	}
	return page, nil
}

// HandleTasksCancel handles "tasks/cancel". When params.Result is set, the
// client is finalizing the task itself: the task completes with that
// result rather than transitioning to Cancelled. Cancelling an
// already-terminal task (with no result) is rejected as InvalidTransition.
func (r *Router) HandleTasksCancel(ctx context.Context, params json.RawMessage, owner string) (*tasks.TaskRecord, *jsonrpc.Error) {
	var p TaskCancelParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "invalid tasks/cancel params: " + err.Error()}
	}

	if len(p.Result) > 0 && !isJSONNull(p.Result) {
		rec, err := r.store.CompleteWithResult(ctx, p.TaskID, owner, tasks.StatusCompleted, nil, p.Result)
		if err != nil {
			return nil, taskErrorToRPC(err)
		}
		return rec, nil
	}

	rec, err := r.store.Cancel(ctx, p.TaskID, owner)
	if err != nil {
		return nil, taskErrorToRPC(err)
	}
	return rec, nil
}

// ResolveOwner derives an owner identity from authentication context
// fields, preferring subject, then client ID, then session ID. If all are
// absent, it applies the store's anonymous-access policy itself: "local"
// when the store allows anonymous owners, or the empty string otherwise
// (Store.Create then reports Authentication). Every caller must use the
// value this returns for every subsequent store call on the same
// request — passing the raw "" through instead would create a task under
// "local:<id>" while later reads key on ":<id>" and never find it.
func (r *Router) ResolveOwner(subject, clientID, sessionID *string) string {
	if subject != nil && *subject != "" {
		return *subject
	}
	if clientID != nil && *clientID != "" {
		return *clientID
	}
	if sessionID != nil && *sessionID != "" {
		return *sessionID
	}
	if r.store.AllowAnonymous() {
		return "local"
	}
	return ""
}

// ToolRequiresTask reports whether a tool's declared execution metadata
// marks task augmentation as Required.
func ToolRequiresTask(executionMeta json.RawMessage) bool {
	if len(executionMeta) == 0 {
		return false
	}
	var exec ToolExecution
	if err := json.Unmarshal(executionMeta, &exec); err != nil {
		return false
	}
	return exec.TaskSupport == TaskSupportRequired
}

// TaskCapabilities returns the "experimental.tasks" capability object.
func (r *Router) TaskCapabilities() ServerTaskCapabilities {
	return FullTaskCapabilities()
}

// CreateWorkflowTask creates a task whose origin method is the workflow
// name and whose initial variables hold the serialized workflow progress
// under the workflow-progress key.
func (r *Router) CreateWorkflowTask(ctx context.Context, workflowName, owner string, progress json.RawMessage) (*CreateTaskResult, *jsonrpc.Error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(progress, &probe); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "workflow progress must be a JSON object"}
	}

	rec, err := r.store.Create(ctx, owner, workflowName, nil)
	if err != nil {
		return nil, taskErrorToRPC(err)
	}

	rec, err = r.store.SetVariables(ctx, rec.TaskID, owner, map[string]json.RawMessage{
		workflow.ProgressVariableKey: progress,
	})
	if err != nil {
		return nil, taskErrorToRPC(err)
	}

	return &CreateTaskResult{Task: rec}, nil
}

// SetTaskVariables updates task variables with workflow step results; a
// thin delegation used by the workflow execution engine.
func (r *Router) SetTaskVariables(ctx context.Context, taskID, owner string, variables map[string]json.RawMessage) *jsonrpc.Error {
	_, err := r.store.SetVariables(ctx, taskID, owner, variables)
	if err != nil {
		return taskErrorToRPC(err)
	}
	return nil
}

// CompleteWorkflowTask transitions a workflow-backed task to Completed with
// its final result.
func (r *Router) CompleteWorkflowTask(ctx context.Context, taskID, owner string, result json.RawMessage) (*tasks.TaskRecord, *jsonrpc.Error) {
	rec, err := r.store.CompleteWithResult(ctx, taskID, owner, tasks.StatusCompleted, nil, result)
	if err != nil {
		return nil, taskErrorToRPC(err)
	}
	return rec, nil
}

// AdvanceWorkflowContinuation implements client continuation: a
// "tools/call" whose `_meta` carries the task id of a
// working workflow records the call's result as the output of whichever
// step was parked on that tool and flips it to Completed in
// _workflow.progress. It is fire-and-forget from the caller's perspective —
// the tool's own response already went back to the client on its own
// return path; this only updates the task record so the next "tasks/get"
// or "prompts/get" sees the step resolved. A task that isn't Working, has
// no workflow progress, or has no step parked on toolName is left
// untouched rather than erroring, since an unrelated tool call legitimately
// carries a stale or unrelated task id.
func (r *Router) AdvanceWorkflowContinuation(ctx context.Context, taskID, owner, toolName string, result json.RawMessage) *jsonrpc.Error {
	rec, err := r.store.Get(ctx, taskID, owner)
	if err != nil {
		return nil
	}
	if rec.Status != tasks.StatusWorking {
		return nil
	}

	raw, ok := rec.Variables[workflow.ProgressVariableKey]
	if !ok {
		return nil
	}
	var progress workflow.WorkflowProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil
	}

	blocked := -1
	for i, step := range progress.Steps {
		if step.Tool == toolName && (step.Status == workflow.StepFailed || step.Status == workflow.StepPending) {
			blocked = i
			break
		}
	}
	if blocked < 0 {
		return nil
	}
	progress.Steps[blocked].Status = workflow.StepCompleted

	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return nil
	}

	vars := map[string]json.RawMessage{
		workflow.ProgressVariableKey: progressJSON,
		workflow.ProgressVariableKey + ".result." + progress.Steps[blocked].Name: result,
		workflow.ProgressVariableKey + ".pause_reason":                           json.RawMessage("null"),
	}
	return r.SetTaskVariables(ctx, taskID, owner, vars)
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		trimmed = append(trimmed, b)
	}
	return string(trimmed) == "null"
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return raw
}
