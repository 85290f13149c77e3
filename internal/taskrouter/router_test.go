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

package taskrouter_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcpcore/internal/taskrouter"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/tasks"
	"github.com/tombee/mcpcore/pkg/tasks/memory"
	"github.com/tombee/mcpcore/pkg/workflow"
)

func newTestRouter(t *testing.T) *taskrouter.Router {
	t.Helper()
	store := tasks.NewStore(memory.New())
	return taskrouter.New(store)
}

func TestHandleTaskCallCreatesTaskWithVariables(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.HandleTaskCall(ctx, "search", json.RawMessage(`{"q":"go"}`), nil, "alice", json.RawMessage(`"tok-1"`))
	require.Nil(t, rpcErr)
	require.NotNil(t, result.Task)
	assert.Equal(t, tasks.StatusWorking, result.Task.Status)
	assert.Equal(t, "tools/call", result.Task.OriginMethod)

	rec, rpcErr := r.HandleTasksGet(ctx, mustJSON(taskrouter.TaskGetParams{TaskID: result.Task.TaskID}), "alice")
	require.Nil(t, rpcErr)
	assert.JSONEq(t, `{"q":"go"}`, string(rec.Variables["arguments"]))
	assert.JSONEq(t, `"search"`, string(rec.Variables["tool_name"]))
	assert.JSONEq(t, `"tok-1"`, string(rec.Variables["progress_token"]))
}

func TestHandleTaskCallDefaultsEmptyArguments(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.HandleTaskCall(ctx, "ping", nil, nil, "alice", nil)
	require.Nil(t, rpcErr)

	rec, rpcErr := r.HandleTasksGet(ctx, mustJSON(taskrouter.TaskGetParams{TaskID: result.Task.TaskID}), "alice")
	require.Nil(t, rpcErr)
	assert.JSONEq(t, `{}`, string(rec.Variables["arguments"]))
	_, hasToken := rec.Variables["progress_token"]
	assert.False(t, hasToken)
}

func TestHandleTasksGetOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.HandleTaskCall(ctx, "search", json.RawMessage(`{}`), nil, "alice", nil)
	require.Nil(t, rpcErr)

	_, rpcErr = r.HandleTasksGet(ctx, mustJSON(taskrouter.TaskGetParams{TaskID: result.Task.TaskID}), "bob")
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidParams, rpcErr.Code)
}

func TestHandleTasksResultNotReadyUntilTerminal(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.HandleTaskCall(ctx, "search", json.RawMessage(`{}`), nil, "alice", nil)
	require.Nil(t, rpcErr)

	_, rpcErr = r.HandleTasksResult(ctx, mustJSON(taskrouter.TaskResultParams{TaskID: result.Task.TaskID}), "alice")
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeTaskNotReady, rpcErr.Code)
}

func TestHandleTasksResultAttachesRelatedTaskMeta(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.HandleTaskCall(ctx, "search", json.RawMessage(`{}`), nil, "alice", nil)
	require.Nil(t, rpcErr)

	_, rpcErr = r.CompleteWorkflowTask(ctx, result.Task.TaskID, "alice", json.RawMessage(`{"hits":3}`))
	require.Nil(t, rpcErr)

	resp, rpcErr := r.HandleTasksResult(ctx, mustJSON(taskrouter.TaskResultParams{TaskID: result.Task.TaskID}), "alice")
	require.Nil(t, rpcErr)
	assert.JSONEq(t, `{"hits":3}`, string(resp.Result))
	related, ok := resp.Meta["io.modelcontextprotocol/related-task"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, result.Task.TaskID, related["taskId"])
}

func TestHandleTasksListReturnsOwnerTasks(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	_, rpcErr := r.HandleTaskCall(ctx, "a", json.RawMessage(`{}`), nil, "alice", nil)
	require.Nil(t, rpcErr)
	_, rpcErr = r.HandleTaskCall(ctx, "b", json.RawMessage(`{}`), nil, "alice", nil)
	require.Nil(t, rpcErr)
	_, rpcErr = r.HandleTaskCall(ctx, "c", json.RawMessage(`{}`), nil, "bob", nil)
	require.Nil(t, rpcErr)

	page, rpcErr := r.HandleTasksList(ctx, nil, "alice")
	require.Nil(t, rpcErr)
	assert.Len(t, page.Records, 2)
}

func TestHandleTasksListHonorsLimit(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	for _, tool := range []string{"a", "b", "c"} {
		_, rpcErr := r.HandleTaskCall(ctx, tool, json.RawMessage(`{}`), nil, "alice", nil)
		require.Nil(t, rpcErr)
	}

	limit := 2
	page, rpcErr := r.HandleTasksList(ctx, mustJSON(taskrouter.TaskListParams{Limit: &limit}), "alice")
	require.Nil(t, rpcErr)
	assert.Len(t, page.Records, 2)
	require.NotNil(t, page.NextCursor)

	rest, rpcErr := r.HandleTasksList(ctx, mustJSON(taskrouter.TaskListParams{Cursor: page.NextCursor, Limit: &limit}), "alice")
	require.Nil(t, rpcErr)
	assert.Len(t, rest.Records, 1)
}

func TestHandleTasksCancelWithoutResultCancels(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.HandleTaskCall(ctx, "a", json.RawMessage(`{}`), nil, "alice", nil)
	require.Nil(t, rpcErr)

	rec, rpcErr := r.HandleTasksCancel(ctx, mustJSON(taskrouter.TaskCancelParams{TaskID: result.Task.TaskID}), "alice")
	require.Nil(t, rpcErr)
	assert.Equal(t, tasks.StatusCancelled, rec.Status)
}

func TestHandleTasksCancelWithResultCompletes(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.HandleTaskCall(ctx, "a", json.RawMessage(`{}`), nil, "alice", nil)
	require.Nil(t, rpcErr)

	rec, rpcErr := r.HandleTasksCancel(ctx, mustJSON(taskrouter.TaskCancelParams{
		TaskID: result.Task.TaskID,
		Result: json.RawMessage(`{"partial":true}`),
	}), "alice")
	require.Nil(t, rpcErr)
	assert.Equal(t, tasks.StatusCompleted, rec.Status)
	assert.JSONEq(t, `{"partial":true}`, string(rec.Result))
}

func TestHandleTasksCancelAlreadyTerminalConflicts(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.HandleTaskCall(ctx, "a", json.RawMessage(`{}`), nil, "alice", nil)
	require.Nil(t, rpcErr)

	_, rpcErr = r.HandleTasksCancel(ctx, mustJSON(taskrouter.TaskCancelParams{TaskID: result.Task.TaskID}), "alice")
	require.Nil(t, rpcErr)

	_, rpcErr = r.HandleTasksCancel(ctx, mustJSON(taskrouter.TaskCancelParams{TaskID: result.Task.TaskID}), "alice")
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeTaskConflict, rpcErr.Code)
}

func TestResolveOwnerPrecedence(t *testing.T) {
	r := newTestRouter(t)
	subject, clientID, sessionID := "sub-1", "client-1", "sess-1"

	assert.Equal(t, "sub-1", r.ResolveOwner(&subject, &clientID, &sessionID))
	assert.Equal(t, "client-1", r.ResolveOwner(nil, &clientID, &sessionID))
	assert.Equal(t, "sess-1", r.ResolveOwner(nil, nil, &sessionID))
	assert.Equal(t, "", r.ResolveOwner(nil, nil, nil))
}

func TestResolveOwnerAnonymousFallsBackToLocal(t *testing.T) {
	store := tasks.NewStore(memory.New(), tasks.WithSecurityConfig(tasks.SecurityConfig{AllowAnonymous: true}))
	r := taskrouter.New(store)

	assert.Equal(t, "local", r.ResolveOwner(nil, nil, nil))
}

// TestHandleTaskCallAnonymousOwnerIsConsistent guards against ResolveOwner
// returning "" while Store.Create substitutes "local" internally: if
// HandleTaskCall's SetVariables call used a different owner than Create
// did, this Get (keyed on the same resolved owner) would come back
// NotFound instead of returning the variables just set.
func TestHandleTaskCallAnonymousOwnerIsConsistent(t *testing.T) {
	ctx := context.Background()
	store := tasks.NewStore(memory.New(), tasks.WithSecurityConfig(tasks.SecurityConfig{AllowAnonymous: true}))
	r := taskrouter.New(store)

	owner := r.ResolveOwner(nil, nil, nil)
	require.Equal(t, "local", owner)

	result, rpcErr := r.HandleTaskCall(ctx, "search", json.RawMessage(`{"q":"go"}`), nil, owner, nil)
	require.Nil(t, rpcErr)
	require.NotNil(t, result.Task)

	rec, rpcErr := r.HandleTasksGet(ctx, mustJSON(taskrouter.TaskGetParams{TaskID: result.Task.TaskID}), owner)
	require.Nil(t, rpcErr)
	assert.JSONEq(t, `{"q":"go"}`, string(rec.Variables["arguments"]))
}

func TestToolRequiresTask(t *testing.T) {
	assert.True(t, taskrouter.ToolRequiresTask(json.RawMessage(`{"taskSupport":"required"}`)))
	assert.False(t, taskrouter.ToolRequiresTask(json.RawMessage(`{"taskSupport":"optional"}`)))
	assert.False(t, taskrouter.ToolRequiresTask(json.RawMessage(`{"taskSupport":"forbidden"}`)))
	assert.False(t, taskrouter.ToolRequiresTask(nil))
}

func TestTaskCapabilitiesReportsFullSupport(t *testing.T) {
	r := newTestRouter(t)
	caps := r.TaskCapabilities()
	assert.True(t, caps.Create)
	assert.True(t, caps.Cancel)
	assert.True(t, caps.List)
}

func TestCreateWorkflowTaskStoresProgress(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.CreateWorkflowTask(ctx, "onboarding", "alice", json.RawMessage(`{"step":0}`))
	require.Nil(t, rpcErr)
	assert.Equal(t, "onboarding", result.Task.OriginMethod)

	rec, rpcErr := r.HandleTasksGet(ctx, mustJSON(taskrouter.TaskGetParams{TaskID: result.Task.TaskID}), "alice")
	require.Nil(t, rpcErr)
	assert.JSONEq(t, `{"step":0}`, string(rec.Variables["_workflow.progress"]))
}

func TestCreateWorkflowTaskRejectsNonObjectProgress(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	_, rpcErr := r.CreateWorkflowTask(ctx, "onboarding", "alice", json.RawMessage(`"not-an-object"`))
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidParams, rpcErr.Code)
}

func TestSetTaskVariablesAndCompleteWorkflowTask(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	result, rpcErr := r.CreateWorkflowTask(ctx, "onboarding", "alice", json.RawMessage(`{"step":0}`))
	require.Nil(t, rpcErr)

	rpcErr = r.SetTaskVariables(ctx, result.Task.TaskID, "alice", map[string]json.RawMessage{
		"_workflow.progress": json.RawMessage(`{"step":1}`),
	})
	require.Nil(t, rpcErr)

	rec, rpcErr := r.CompleteWorkflowTask(ctx, result.Task.TaskID, "alice", json.RawMessage(`{"done":true}`))
	require.Nil(t, rpcErr)
	assert.Equal(t, tasks.StatusCompleted, rec.Status)
	assert.JSONEq(t, `{"step":1}`, string(rec.Variables["_workflow.progress"]))
}

func TestAdvanceWorkflowContinuationCompletesParkedStep(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	progress := workflow.WorkflowProgress{
		SchemaVersion: workflow.SchemaVersion,
		Goal:          "fetch then store",
		Steps: []workflow.StepProgress{
			{Name: "fetch", Tool: "fetch_data", Status: workflow.StepFailed},
			{Name: "store", Tool: "store_data", Status: workflow.StepPending},
		},
	}
	progressJSON := mustJSON(progress)

	created, rpcErr := r.CreateWorkflowTask(ctx, "data_pipeline", "alice", progressJSON)
	require.Nil(t, rpcErr)
	rpcErr = r.SetTaskVariables(ctx, created.Task.TaskID, "alice", map[string]json.RawMessage{
		"_workflow.pause_reason": json.RawMessage(`{"type":"toolError","failedStep":"fetch","retryable":true,"suggestedTool":"fetch_data"}`),
	})
	require.Nil(t, rpcErr)

	rpcErr = r.AdvanceWorkflowContinuation(ctx, created.Task.TaskID, "alice", "fetch_data", json.RawMessage(`{"objects":["a.json"]}`))
	require.Nil(t, rpcErr)

	rec, rpcErr := r.HandleTasksGet(ctx, mustJSON(taskrouter.TaskGetParams{TaskID: created.Task.TaskID}), "alice")
	require.Nil(t, rpcErr)

	var updated workflow.WorkflowProgress
	require.NoError(t, json.Unmarshal(rec.Variables["_workflow.progress"], &updated))
	require.Len(t, updated.Steps, 2)
	assert.Equal(t, workflow.StepCompleted, updated.Steps[0].Status)
	assert.Equal(t, workflow.StepPending, updated.Steps[1].Status)

	assert.JSONEq(t, `{"objects":["a.json"]}`, string(rec.Variables["_workflow.result.fetch"]))
	assert.True(t, isJSONNullVar(rec.Variables["_workflow.pause_reason"]))
}

func TestAdvanceWorkflowContinuationIgnoresUnrelatedToolOrTask(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	progress := workflow.WorkflowProgress{
		Steps: []workflow.StepProgress{{Name: "fetch", Tool: "fetch_data", Status: workflow.StepFailed}},
	}
	created, rpcErr := r.CreateWorkflowTask(ctx, "data_pipeline", "alice", mustJSON(progress))
	require.Nil(t, rpcErr)

	// A tool call carrying this task id but not naming the parked step's
	// tool is a no-op: no matching step, nothing advances.
	rpcErr = r.AdvanceWorkflowContinuation(ctx, created.Task.TaskID, "alice", "unrelated_tool", json.RawMessage(`{}`))
	require.Nil(t, rpcErr)

	rec, rpcErr := r.HandleTasksGet(ctx, mustJSON(taskrouter.TaskGetParams{TaskID: created.Task.TaskID}), "alice")
	require.Nil(t, rpcErr)
	var unchanged workflow.WorkflowProgress
	require.NoError(t, json.Unmarshal(rec.Variables["_workflow.progress"], &unchanged))
	assert.Equal(t, workflow.StepFailed, unchanged.Steps[0].Status)

	// An unknown task id is also a no-op rather than an error.
	rpcErr = r.AdvanceWorkflowContinuation(ctx, "no-such-task", "alice", "fetch_data", json.RawMessage(`{}`))
	assert.Nil(t, rpcErr)
}

func isJSONNullVar(raw json.RawMessage) bool {
	return string(raw) == "null" || len(raw) == 0
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
