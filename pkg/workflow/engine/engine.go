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

// Package engine executes a pkg/workflow.WorkflowDefinition as a
// best-effort, partially-executable plan: it runs steps in order and stops
// at the first step it cannot resolve or whose tool fails, persisting
// enough state (when task-backed) for a client to pick up where the
// engine left off. See pkg/workflow for the step/data-source vocabulary
// this package consumes.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/workflow"
)

// templatePlaceholder matches a single {name} placeholder in guidance text
// and resource URI templates; the captured name is evaluated as an
// expr-lang expression against the step's resolved bindings, so a
// placeholder is never more than a plain top-level identifier lookup (same
// "plain key only" constraint as StepOutput field extraction below).
var templatePlaceholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ToolInvoker executes a tool by name, the same path a live "tools/call"
// request uses (including the host's middleware chain).
type ToolInvoker interface {
	InvokeTool(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error)
}

// ToolInvokerFunc adapts a function to ToolInvoker.
type ToolInvokerFunc func(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error)

func (f ToolInvokerFunc) InvokeTool(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error) {
	return f(ctx, tool, args)
}

// ResourceFetcher fetches the text content of a resource URI.
type ResourceFetcher interface {
	FetchResource(ctx context.Context, uri string) (string, error)
}

// ResourceFetcherFunc adapts a function to ResourceFetcher.
type ResourceFetcherFunc func(ctx context.Context, uri string) (string, error)

func (f ResourceFetcherFunc) FetchResource(ctx context.Context, uri string) (string, error) {
	return f(ctx, uri)
}

// SchemaLookup reports a tool's required argument names, used for the
// post-resolution schema-mismatch check. A tool with no registered
// schema is treated as having no required arguments.
type SchemaLookup interface {
	RequiredArguments(tool string) []string
}

// SchemaLookupFunc adapts a function to SchemaLookup.
type SchemaLookupFunc func(tool string) []string

func (f SchemaLookupFunc) RequiredArguments(tool string) []string { return f(tool) }

// noRequiredArguments is the zero-value SchemaLookup used when the caller
// supplies none: every tool is treated as schema-free.
type noRequiredArguments struct{}

func (noRequiredArguments) RequiredArguments(string) []string { return nil }

// TaskPersister is the subset of internal/taskrouter.Router the engine
// needs to persist progress for task-backed workflows. Depending on this
// narrow interface (rather than importing taskrouter directly) keeps the
// engine testable without a live task store.
type TaskPersister interface {
	SetTaskVariables(ctx context.Context, taskID, owner string, variables map[string]json.RawMessage) error
	CompleteWorkflowTask(ctx context.Context, taskID, owner string, result json.RawMessage) error
}

// Engine runs WorkflowDefinitions.
type Engine struct {
	tools     ToolInvoker
	resources ResourceFetcher
	schemas   SchemaLookup
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithResourceFetcher overrides resource fetching; omit for workflows with
// no resource-bearing steps.
func WithResourceFetcher(f ResourceFetcher) Option {
	return func(e *Engine) { e.resources = f }
}

// WithSchemaLookup overrides the required-arguments lookup used for the
// post-resolution schema check.
func WithSchemaLookup(s SchemaLookup) Option {
	return func(e *Engine) { e.schemas = s }
}

// New builds an Engine that invokes tools via invoker.
func New(invoker ToolInvoker, opts ...Option) *Engine {
	e := &Engine{tools: invoker, schemas: noRequiredArguments{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runState accumulates results as steps complete. results and status are
// keyed by the step's effective reference name (its binding if set, else
// its own name — see WorkflowDefinition.Validate for the same convention)
// and back DataSource resolution; resultsByStep is keyed by the raw step
// name and backs persistence, since per-step results are stored under
// _workflow.result.<step name> regardless of binding.
type runState struct {
	promptArgs    map[string]string
	required      map[string]bool
	results       map[string]json.RawMessage
	resultsByStep map[string]json.RawMessage
	status        map[string]workflow.StepStatus
}

// Run executes def against promptArgs and returns the rendered prompt
// result. taskID/owner are empty for non-task-backed execution; when
// taskID is non-empty, persister must be non-nil and receives the
// workflow's progress (and, on completion, its final result).
func (e *Engine) Run(ctx context.Context, def *workflow.WorkflowDefinition, promptArgs map[string]string, taskID, owner string, persister TaskPersister) (*workflow.GetPromptResult, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	required := make(map[string]bool, len(def.Arguments()))
	for _, arg := range def.Arguments() {
		if arg.Required {
			required[arg.Name] = true
		}
	}
	state := &runState{
		promptArgs:    promptArgs,
		required:      required,
		results:       map[string]json.RawMessage{},
		resultsByStep: map[string]json.RawMessage{},
		status:        map[string]workflow.StepStatus{},
	}

	goal := renderGoal(def, promptArgs)
	messages := []workflow.PromptMessage{userMessage(goal)}
	progress := make([]workflow.StepProgress, len(def.Steps()))
	var pause *workflow.PauseReason
	var lastResult json.RawMessage

	for i, step := range def.Steps() {
		toolName := ""
		if step.Tool() != nil {
			toolName = step.Tool().Name()
		}
		progress[i] = workflow.StepProgress{Name: step.Name(), Tool: toolName, Status: workflow.StepPending}

		if pause != nil {
			// A previous step blocked execution; every later step stays
			// Pending and is not attempted.
			continue
		}

		resourceMessages, err := e.renderResources(ctx, step, state)
		if err != nil {
			pause = err
			progress[i].Status = workflow.StepPending
			continue
		}
		messages = append(messages, resourceMessages...)

		if step.IsResourceOnly() {
			progress[i].Status = workflow.StepCompleted
			// A resource-only step produces no tool result, but every
			// Completed step must have a matching _workflow.result.<name>
			// entry regardless of kind, so it's recorded as an explicit
			// JSON null rather than left absent. It registers no reference
			// name: resource-only steps are not addressable by StepOutput.
			state.resultsByStep[step.Name()] = json.RawMessage("null")
			continue
		}

		args, schemaErr := e.resolveArguments(step, state)
		if schemaErr != nil {
			pause = schemaErr
			continue
		}

		messages = append(messages, assistantMessage(fmt.Sprintf("Executing step %q via tool %q.", step.Name(), toolName)))

		result, toolErr := e.tools.InvokeTool(ctx, toolName, args)
		if toolErr != nil {
			progress[i].Status = workflow.StepFailed
			pause = &workflow.PauseReason{
				Type:          workflow.PauseToolError,
				FailedStep:    step.Name(),
				Retryable:     mcperrors.Retryable(toolErr),
				SuggestedTool: suggestedTool(toolName),
				Message:       toolErr.Error(),
			}
			continue
		}

		ref := step.Binding()
		if ref == "" {
			ref = step.Name()
		}
		state.results[ref] = result
		state.status[ref] = workflow.StepCompleted
		state.resultsByStep[step.Name()] = result
		progress[i].Status = workflow.StepCompleted
		lastResult = result
		messages = append(messages, userMessage(renderToolResult(toolName, result)))
	}

	taskBacked := taskID != ""

	if pause == nil {
		if taskBacked {
			final := lastResult
			if final == nil {
				final = json.RawMessage(`{}`)
			}
			if err := e.persist(ctx, persister, taskID, owner, def, progress, state.resultsByStep, nil); err != nil {
				return nil, err
			}
			if err := persister.CompleteWorkflowTask(ctx, taskID, owner, final); err != nil {
				return nil, err
			}
			return &workflow.GetPromptResult{
				Description: def.Description(),
				Messages:    messages,
				Meta: &workflow.GetPromptResultMeta{
					TaskID:     taskID,
					TaskStatus: "completed",
					Steps:      progress,
				},
			}, nil
		}
		return &workflow.GetPromptResult{Description: def.Description(), Messages: messages}, nil
	}

	handoff := renderHandoff(def, pause, state)
	messages = append(messages, assistantMessage(handoff))

	if !taskBacked {
		return &workflow.GetPromptResult{Description: def.Description(), Messages: messages}, nil
	}

	if err := e.persist(ctx, persister, taskID, owner, def, progress, state.resultsByStep, pause); err != nil {
		return nil, err
	}

	return &workflow.GetPromptResult{
		Description: def.Description(),
		Messages:    messages,
		Meta: &workflow.GetPromptResultMeta{
			TaskID:      taskID,
			TaskStatus:  "working",
			Steps:       progress,
			PauseReason: pause,
		},
	}, nil
}

func (e *Engine) persist(ctx context.Context, persister TaskPersister, taskID, owner string, def *workflow.WorkflowDefinition, steps []workflow.StepProgress, results map[string]json.RawMessage, pause *workflow.PauseReason) error {
	progress := workflow.WorkflowProgress{
		SchemaVersion: workflow.SchemaVersion,
		Goal:          def.Description(),
		Steps:         steps,
	}
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal workflow progress: %w", err)
	}
	vars := map[string]json.RawMessage{workflow.ProgressVariableKey: progressJSON}
	for name, result := range results {
		vars[workflow.ProgressVariableKey+".result."+name] = result
	}
	if pause != nil {
		pauseJSON, err := json.Marshal(pause)
		if err != nil {
			return fmt.Errorf("marshal pause reason: %w", err)
		}
		vars[workflow.ProgressVariableKey+".pause_reason"] = pauseJSON
	}
	return persister.SetTaskVariables(ctx, taskID, owner, vars)
}

// resolveArguments resolves every declared argument for a tool step,
// returning a JSON object suitable to pass to InvokeTool, or a
// non-retryable pause reason on the first unresolvable/mismatched value.
func (e *Engine) resolveArguments(step *workflow.WorkflowStep, state *runState) (json.RawMessage, *workflow.PauseReason) {
	resolved := make(map[string]json.RawMessage, len(step.Arguments()))
	for _, binding := range step.Arguments() {
		value, pause := e.resolveDataSource(step.Name(), binding.Name, binding.Source, state)
		if pause != nil {
			return nil, pause
		}
		if value != nil {
			resolved[binding.Name] = value
		}
	}

	var missing []string
	for _, required := range e.schemas.RequiredArguments(step.Tool().Name()) {
		if _, ok := resolved[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, &workflow.PauseReason{
			Type:          workflow.PauseSchemaMismatch,
			FailedStep:    step.Name(),
			MissingFields: missing,
		}
	}

	data, err := json.Marshal(resolved)
	if err != nil {
		return nil, &workflow.PauseReason{Type: workflow.PauseSchemaMismatch, FailedStep: step.Name(), Message: err.Error()}
	}
	return data, nil
}

// resolveDataSource resolves a single DataSource, returning nil (no pause,
// no value) when a non-required prompt argument is simply absent.
func (e *Engine) resolveDataSource(stepName, argName string, source workflow.DataSource, state *runState) (json.RawMessage, *workflow.PauseReason) {
	switch source.Kind {
	case workflow.DataSourcePromptArg:
		v, ok := state.promptArgs[source.PromptArgName]
		if !ok {
			if state.required[source.PromptArgName] {
				return nil, &workflow.PauseReason{Type: workflow.PauseUnresolvableParams, FailedStep: stepName, Param: source.PromptArgName}
			}
			// Optional and absent: the argument is omitted. If the tool's
			// schema requires it anyway, the schema check reports it.
			return nil, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, &workflow.PauseReason{Type: workflow.PauseUnresolvableParams, FailedStep: stepName, Param: argName}
		}
		return data, nil

	case workflow.DataSourceConstant:
		return source.ConstantValue, nil

	case workflow.DataSourceStepOutput:
		status, known := state.status[source.Step]
		if !known {
			return nil, &workflow.PauseReason{Type: workflow.PauseUnresolvedDependency, FailedStep: stepName, ProducingStep: source.Step}
		}
		if status == workflow.StepFailed || status == workflow.StepSkipped {
			return nil, &workflow.PauseReason{Type: workflow.PauseUnresolvedDependency, FailedStep: stepName, ProducingStep: source.Step}
		}
		result := state.results[source.Step]
		if source.Field == "" {
			return result, nil
		}
		extracted, ok := extractTopLevelField(result, source.Field)
		if !ok {
			return nil, &workflow.PauseReason{Type: workflow.PauseUnresolvableParams, FailedStep: stepName, Param: argName}
		}
		return extracted, nil

	default:
		return nil, &workflow.PauseReason{Type: workflow.PauseUnresolvableParams, FailedStep: stepName, Param: argName}
	}
}

// extractTopLevelField pulls a single top-level key out of a step result
// using expr-lang rather than a hand-rolled map lookup, so the same
// evaluator backs both this and guidance-template substitution below.
// Field is always a plain top-level key, never a dotted path, so the
// expression is always a bare identifier.
func extractTopLevelField(result json.RawMessage, field string) (json.RawMessage, bool) {
	var env map[string]any
	if err := json.Unmarshal(result, &env); err != nil {
		return nil, false
	}
	v, err := expr.Eval(field, env)
	if err != nil || v == nil {
		return nil, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// renderResources fetches and renders every resource of step (after
// template substitution), returning the synthetic messages to append to
// the trace.
func (e *Engine) renderResources(ctx context.Context, step *workflow.WorkflowStep, state *runState) ([]workflow.PromptMessage, *workflow.PauseReason) {
	if len(step.Resources()) == 0 {
		return nil, nil
	}
	if e.resources == nil {
		return nil, &workflow.PauseReason{Type: workflow.PauseUnresolvableParams, FailedStep: step.Name(), Message: "no resource fetcher configured"}
	}

	bindings := map[string]string{}
	for _, tb := range step.TemplateBindings() {
		value, pause := e.resolveDataSource(step.Name(), tb.VarName, tb.Source, state)
		if pause != nil {
			return nil, pause
		}
		if value == nil {
			// An omitted optional prompt arg leaves its {var} placeholder
			// unsubstituted rather than substituting an empty string.
			continue
		}
		bindings[tb.VarName] = rawToPlainString(value)
	}

	var out []workflow.PromptMessage
	for _, res := range step.Resources() {
		uri := substituteTemplate(res.URI(), bindings)
		content, err := e.resources.FetchResource(ctx, uri)
		if err != nil {
			return nil, &workflow.PauseReason{Type: workflow.PauseUnresolvableParams, FailedStep: step.Name(), Message: err.Error()}
		}
		out = append(out, userMessage(content))
	}
	return out, nil
}

// suggestedTool names the tool a client should retry against. The engine
// has no alternative-tool registry, so this is always the failed step's
// own tool; retryability (carried separately on PauseReason) is what tells
// the client whether retrying is worthwhile.
func suggestedTool(tool string) string {
	return tool
}

func renderGoal(def *workflow.WorkflowDefinition, promptArgs map[string]string) string {
	var b strings.Builder
	b.WriteString(def.Description())
	for _, arg := range def.Arguments() {
		if v, ok := promptArgs[arg.Name]; ok {
			fmt.Fprintf(&b, " %s=%s", arg.Name, v)
		}
	}
	return b.String()
}

func renderToolResult(tool string, result json.RawMessage) string {
	return fmt.Sprintf("Result of %s: %s", tool, string(result))
}

func renderHandoff(def *workflow.WorkflowDefinition, pause *workflow.PauseReason, state *runState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I was unable to continue the workflow at step %q: ", pause.FailedStep)
	switch pause.Type {
	case workflow.PauseToolError:
		fmt.Fprintf(&b, "the tool reported an error (%s).", pause.Message)
	case workflow.PauseUnresolvableParams:
		fmt.Fprintf(&b, "the parameter %q could not be resolved.", pause.Param)
	case workflow.PauseSchemaMismatch:
		fmt.Fprintf(&b, "required arguments were missing: %s.", strings.Join(pause.MissingFields, ", "))
	case workflow.PauseUnresolvedDependency:
		fmt.Fprintf(&b, "it depends on step %q, which did not complete.", pause.ProducingStep)
	}
	b.WriteString(" To continue the workflow, please provide the missing information or retry the failed step.")

	for _, step := range def.Steps() {
		if step.Name() != pause.FailedStep || step.Guidance() == "" {
			continue
		}
		bindings := map[string]string{}
		for _, a := range step.Arguments() {
			if v, ok := state.promptArgs[a.Source.PromptArgName]; ok && a.Source.Kind == workflow.DataSourcePromptArg {
				bindings[a.Name] = v
			}
		}
		b.WriteString(" ")
		b.WriteString(substituteTemplate(step.Guidance(), bindings))
	}

	if pause.SuggestedTool != "" {
		fmt.Fprintf(&b, " Suggested tool: %s.", pause.SuggestedTool)
	}
	return b.String()
}

// substituteTemplate replaces every {name} placeholder in tmpl by
// evaluating name as an expr-lang expression against bindings, rather than
// hand-rolling a second template mini-language alongside extractTopLevelField.
// A placeholder whose name isn't bound is left untouched.
func substituteTemplate(tmpl string, bindings map[string]string) string {
	env := make(map[string]any, len(bindings))
	for k, v := range bindings {
		env[k] = v
	}
	return templatePlaceholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		v, err := expr.Eval(name, env)
		if err != nil || v == nil {
			return match
		}
		return fmt.Sprint(v)
	})
}

func rawToPlainString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func userMessage(text string) workflow.PromptMessage {
	return workflow.PromptMessage{Role: workflow.RoleUser, Content: workflow.PromptContent{Type: "text", Text: text}}
}

func assistantMessage(text string) workflow.PromptMessage {
	return workflow.PromptMessage{Role: workflow.RoleAssistant, Content: workflow.PromptContent{Type: "text", Text: text}}
}
