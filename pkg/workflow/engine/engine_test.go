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

package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/workflow"
	"github.com/tombee/mcpcore/pkg/workflow/engine"
)

// dataPipeline mirrors the three-step fetch/transform/store workflow from
// the reference test suite: fetch binds its result as "raw_data", transform
// consumes it and binds "transformed", store consumes that.
func dataPipeline() *workflow.WorkflowDefinition {
	return workflow.New("data_pipeline", "Fetch, transform, and store data").
		Argument("source", "Data source identifier", true).
		Step(workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
			Arg("source", workflow.PromptArg("source")).
			Bind("raw_data")).
		Step(workflow.NewStep("transform", workflow.NewToolHandle("transform_data")).
			Arg("input", workflow.FromStep("raw_data")).
			Bind("transformed")).
		Step(workflow.NewStep("store", workflow.NewToolHandle("store_data")).
			Arg("data", workflow.FromStep("transformed"))).
		WithTaskSupport(true)
}

// stubInvoker dispatches to per-tool handler functions, recording every
// call for assertions.
type stubInvoker struct {
	handlers map[string]func(json.RawMessage) (json.RawMessage, error)
	calls    []string
}

func (s *stubInvoker) InvokeTool(_ context.Context, tool string, args json.RawMessage) (json.RawMessage, error) {
	s.calls = append(s.calls, tool)
	h, ok := s.handlers[tool]
	if !ok {
		return nil, errors.New("no handler registered for " + tool)
	}
	return h(args)
}

func fetchDataTool(args json.RawMessage) (json.RawMessage, error) {
	var parsed struct {
		Source string `json:"source"`
	}
	_ = json.Unmarshal(args, &parsed)
	return json.Marshal(map[string]any{"data": "raw_content", "source": parsed.Source})
}

func failingFetchDataTool(json.RawMessage) (json.RawMessage, error) {
	return nil, mcperrors.New(mcperrors.KindTransport, "connection refused: source unreachable")
}

func transformDataTool(args json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"transformed": true})
}

func storeDataTool(json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"stored": true, "location": "db://output"})
}

// fakePersister records the task variables and completion result it's
// handed, standing in for internal/taskrouter.Router in tests.
type fakePersister struct {
	vars       map[string]json.RawMessage
	completed  bool
	result     json.RawMessage
	taskID     string
	owner      string
}

func (p *fakePersister) SetTaskVariables(_ context.Context, taskID, owner string, variables map[string]json.RawMessage) error {
	p.taskID, p.owner = taskID, owner
	if p.vars == nil {
		p.vars = map[string]json.RawMessage{}
	}
	for k, v := range variables {
		p.vars[k] = v
	}
	return nil
}

func (p *fakePersister) CompleteWorkflowTask(_ context.Context, taskID, owner string, result json.RawMessage) error {
	p.taskID, p.owner = taskID, owner
	p.completed = true
	p.result = result
	return nil
}

func TestEngineHappyPathCompletesAllSteps(t *testing.T) {
	invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
		"fetch_data":     fetchDataTool,
		"transform_data": transformDataTool,
		"store_data":     storeDataTool,
	}}
	e := engine.New(invoker)
	persister := &fakePersister{}

	result, err := e.Run(context.Background(), dataPipeline(), map[string]string{"source": "s3://bucket"}, "task-1", "owner-1", persister)
	require.NoError(t, err)

	require.NotNil(t, result.Meta)
	assert.Equal(t, "completed", result.Meta.TaskStatus)
	require.Len(t, result.Meta.Steps, 3)
	for _, s := range result.Meta.Steps {
		assert.Equal(t, workflow.StepCompleted, s.Status)
	}
	assert.Nil(t, result.Meta.PauseReason)
	assert.Equal(t, []string{"fetch_data", "transform_data", "store_data"}, invoker.calls)

	assert.True(t, persister.completed)
	assert.JSONEq(t, `{"stored":true,"location":"db://output"}`, string(persister.result))
}

func TestEngineNonTaskBackedHasNoMeta(t *testing.T) {
	invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
		"fetch_data":     fetchDataTool,
		"transform_data": transformDataTool,
		"store_data":     storeDataTool,
	}}
	e := engine.New(invoker)

	result, err := e.Run(context.Background(), dataPipeline(), map[string]string{"source": "s3://bucket"}, "", "", nil)
	require.NoError(t, err)
	assert.Nil(t, result.Meta)
}

func TestEngineHandoffOnToolError(t *testing.T) {
	invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
		"fetch_data": failingFetchDataTool,
	}}
	e := engine.New(invoker)
	persister := &fakePersister{}

	result, err := e.Run(context.Background(), dataPipeline(), map[string]string{"source": "s3://bucket"}, "task-2", "owner-1", persister)
	require.NoError(t, err)

	require.NotNil(t, result.Meta)
	assert.Equal(t, "working", result.Meta.TaskStatus)
	require.NotNil(t, result.Meta.PauseReason)
	assert.Equal(t, workflow.PauseToolError, result.Meta.PauseReason.Type)
	assert.Equal(t, "fetch", result.Meta.PauseReason.FailedStep)
	assert.True(t, result.Meta.PauseReason.Retryable)

	require.Len(t, result.Meta.Steps, 3)
	assert.Equal(t, workflow.StepFailed, result.Meta.Steps[0].Status)
	assert.Equal(t, workflow.StepPending, result.Meta.Steps[1].Status)
	assert.Equal(t, workflow.StepPending, result.Meta.Steps[2].Status)

	var handoffText string
	for _, m := range result.Messages {
		if m.Role == workflow.RoleAssistant {
			handoffText = m.Content.Text
		}
	}
	assert.Contains(t, handoffText, "fetch")
	assert.Contains(t, handoffText, "To continue the workflow")

	assert.False(t, persister.completed)
	require.Contains(t, persister.vars, workflow.ProgressVariableKey)
}

// stepResultVars extracts the set of step names with a persisted
// _workflow.result.<name> variable, for invariant 7 assertions.
func stepResultVars(vars map[string]json.RawMessage) map[string]bool {
	names := map[string]bool{}
	const prefix = workflow.ProgressVariableKey + ".result."
	for k := range vars {
		if name, ok := strings.CutPrefix(k, prefix); ok {
			names[name] = true
		}
	}
	return names
}

// TestEngineInvariant7ResultVariablesMatchCompletedSteps asserts that the
// set of steps marked Completed in a persisted _workflow.progress equals
// the set of step names with a matching _workflow.result.<name> variable.
// Results are persisted under the step's own name even when the step
// declares an output binding (fetch binds raw_data, transform binds
// transformed); the binding only names the in-memory reference later
// steps resolve against. The handoff path exercises the same check on a
// partially-completed, paused run.
func TestEngineInvariant7ResultVariablesMatchCompletedSteps(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
			"fetch_data":     fetchDataTool,
			"transform_data": transformDataTool,
			"store_data":     storeDataTool,
		}}
		e := engine.New(invoker)
		persister := &fakePersister{}

		result, err := e.Run(context.Background(), dataPipeline(), map[string]string{"source": "s3://bucket"}, "task-5", "owner-1", persister)
		require.NoError(t, err)

		completed := map[string]bool{}
		for _, s := range result.Meta.Steps {
			if s.Status == workflow.StepCompleted {
				completed[s.Name] = true
			}
		}
		assert.Equal(t, map[string]bool{"fetch": true, "transform": true, "store": true}, completed)
		assert.Equal(t, completed, stepResultVars(persister.vars))
	})

	t.Run("handoff", func(t *testing.T) {
		invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
			"fetch_data": failingFetchDataTool,
		}}
		e := engine.New(invoker)
		persister := &fakePersister{}

		result, err := e.Run(context.Background(), dataPipeline(), map[string]string{"source": "s3://bucket"}, "task-6", "owner-1", persister)
		require.NoError(t, err)

		completed := map[string]bool{}
		for _, s := range result.Meta.Steps {
			if s.Status == workflow.StepCompleted {
				completed[s.Name] = true
			}
		}
		assert.Equal(t, completed, stepResultVars(persister.vars))
	})
}

func TestEngineUnresolvableParamsPausesBeforeInvokingTool(t *testing.T) {
	invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
		"fetch_data": fetchDataTool,
	}}
	e := engine.New(invoker)

	result, err := e.Run(context.Background(), dataPipeline(), map[string]string{}, "task-3", "owner-1", &fakePersister{})
	require.NoError(t, err)

	require.NotNil(t, result.Meta.PauseReason)
	assert.Equal(t, workflow.PauseUnresolvableParams, result.Meta.PauseReason.Type)
	assert.Equal(t, "fetch", result.Meta.PauseReason.FailedStep)
	assert.Equal(t, "source", result.Meta.PauseReason.Param)
	assert.Empty(t, invoker.calls)
}

// optionalArgPipeline declares "source" required and "limit" optional,
// both mapped into the fetch tool's arguments.
func optionalArgPipeline() *workflow.WorkflowDefinition {
	return workflow.New("optional_fetch", "Fetch with an optional limit").
		Argument("source", "Data source identifier", true).
		Argument("limit", "Max records to fetch", false).
		Step(workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
			Arg("source", workflow.PromptArg("source")).
			Arg("limit", workflow.PromptArg("limit"))).
		WithTaskSupport(true)
}

func TestEngineOmitsAbsentOptionalPromptArg(t *testing.T) {
	var gotArgs json.RawMessage
	invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
		"fetch_data": func(args json.RawMessage) (json.RawMessage, error) {
			gotArgs = args
			return fetchDataTool(args)
		},
	}}
	e := engine.New(invoker)

	result, err := e.Run(context.Background(), optionalArgPipeline(), map[string]string{"source": "s3://bucket"}, "task-7", "owner-1", &fakePersister{})
	require.NoError(t, err)

	assert.Nil(t, result.Meta.PauseReason)
	assert.Equal(t, "completed", result.Meta.TaskStatus)
	assert.JSONEq(t, `{"source":"s3://bucket"}`, string(gotArgs))
}

func TestEngineOmittedOptionalArgStillFailsSchemaCheck(t *testing.T) {
	invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
		"fetch_data": fetchDataTool,
	}}
	e := engine.New(invoker, engine.WithSchemaLookup(engine.SchemaLookupFunc(func(tool string) []string {
		return []string{"source", "limit"}
	})))

	result, err := e.Run(context.Background(), optionalArgPipeline(), map[string]string{"source": "s3://bucket"}, "task-8", "owner-1", &fakePersister{})
	require.NoError(t, err)

	require.NotNil(t, result.Meta.PauseReason)
	assert.Equal(t, workflow.PauseSchemaMismatch, result.Meta.PauseReason.Type)
	assert.Equal(t, []string{"limit"}, result.Meta.PauseReason.MissingFields)
	assert.Empty(t, invoker.calls)
}

func TestEngineToolFailureSkipsLaterSteps(t *testing.T) {
	invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
		"fetch_data": failingFetchDataTool,
	}}
	e := engine.New(invoker)

	result, err := e.Run(context.Background(), dataPipeline(), map[string]string{"source": "s3://bucket"}, "task-4", "owner-1", &fakePersister{})
	require.NoError(t, err)

	// Only the failing step is attempted; transform/store are never invoked.
	assert.Equal(t, []string{"fetch_data"}, invoker.calls)
	assert.Equal(t, workflow.PauseToolError, result.Meta.PauseReason.Type)
}

func TestEngineRejectsInvalidWorkflow(t *testing.T) {
	invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){}}
	e := engine.New(invoker)

	invalid := workflow.New("broken", "").
		Step(workflow.NewStep("a", workflow.NewToolHandle("t")).Arg("x", workflow.FromStep("nonexistent")))

	_, err := e.Run(context.Background(), invalid, nil, "", "", nil)
	require.Error(t, err)
	var unknown *workflow.UnknownBindingError
	require.ErrorAs(t, err, &unknown)
}

func TestEngineResourceOnlyStepEmbedsContent(t *testing.T) {
	invoker := &stubInvoker{handlers: map[string]func(json.RawMessage) (json.RawMessage, error){
		"transform_data": transformDataTool,
	}}
	def := workflow.New("with_docs", "loads docs then transforms").
		Argument("source", "", true).
		Step(workflow.NewResourceStep("load_docs").
			WithResource("docs://{source}").
			WithTemplateBinding("source", workflow.PromptArg("source"))).
		Step(workflow.NewStep("transform", workflow.NewToolHandle("transform_data")).
			Arg("input", workflow.Constant(json.RawMessage(`"x"`))))

	fetcher := engine.ResourceFetcherFunc(func(_ context.Context, uri string) (string, error) {
		return "schema for " + uri, nil
	})
	e := engine.New(invoker, engine.WithResourceFetcher(fetcher))

	result, err := e.Run(context.Background(), def, map[string]string{"source": "catalog"}, "", "", nil)
	require.NoError(t, err)

	var found bool
	for _, m := range result.Messages {
		if m.Content.Text == "schema for docs://catalog" {
			found = true
		}
	}
	assert.True(t, found, "expected resource content with substituted URI in message trace")
}
