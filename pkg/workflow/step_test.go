package workflow_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcpcore/pkg/workflow"
)

func TestNewStepCreation(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data"))
	assert.Equal(t, "fetch", step.Name())
	require.NotNil(t, step.Tool())
	assert.Equal(t, "fetch_data", step.Tool().Name())
	assert.False(t, step.IsResourceOnly())
	assert.Empty(t, step.Arguments())
	assert.Empty(t, step.Binding())
}

func TestStepWithArgs(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
		Arg("source", workflow.PromptArg("source")).
		Arg("limit", workflow.Constant(json.RawMessage(`10`)))

	require.Len(t, step.Arguments(), 2)
	assert.Equal(t, "source", step.Arguments()[0].Name)
	assert.Equal(t, workflow.DataSourcePromptArg, step.Arguments()[0].Source.Kind)
	assert.Equal(t, "limit", step.Arguments()[1].Name)
	assert.Equal(t, workflow.DataSourceConstant, step.Arguments()[1].Source.Kind)
}

func TestStepWithBinding(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).Bind("raw_data")
	assert.Equal(t, "raw_data", step.Binding())
}

func TestStepChainableBuilder(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
		Arg("source", workflow.PromptArg("source")).
		Bind("raw_data").
		WithGuidance("fetch {source} now").
		WithResource("docs://schema")

	assert.Equal(t, "fetch", step.Name())
	assert.Equal(t, "raw_data", step.Binding())
	assert.Equal(t, "fetch {source} now", step.Guidance())
	require.Len(t, step.Resources(), 1)
	assert.Equal(t, "docs://schema", step.Resources()[0].URI())
}

func TestStepValidationSuccess(t *testing.T) {
	step := workflow.NewStep("step1", workflow.NewToolHandle("do_it"))
	assert.NoError(t, step.Validate(nil))

	dependent := workflow.NewStep("step2", workflow.NewToolHandle("do_more")).
		Arg("input", workflow.FromStep("step1"))
	assert.NoError(t, dependent.Validate([]string{"step1"}))
}

func TestStepValidationFailureUnknownBinding(t *testing.T) {
	step := workflow.NewStep("step2", workflow.NewToolHandle("do_more")).
		Arg("input", workflow.FromStep("missing"))

	err := step.Validate([]string{"step1"})
	require.Error(t, err)
	var unknown *workflow.UnknownBindingError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Binding)
}

func TestStepDeterministicArgOrder(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
		Arg("third", workflow.Constant(json.RawMessage(`3`))).
		Arg("first", workflow.Constant(json.RawMessage(`1`))).
		Arg("second", workflow.Constant(json.RawMessage(`2`)))

	names := make([]string, len(step.Arguments()))
	for i, a := range step.Arguments() {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"third", "first", "second"}, names)
}

func TestStepWithStepOutputField(t *testing.T) {
	step := workflow.NewStep("transform", workflow.NewToolHandle("transform_data")).
		Arg("value", workflow.FromStepField("fetch", "payload"))

	src := step.Arguments()[0].Source
	assert.Equal(t, workflow.DataSourceStepOutput, src.Kind)
	assert.Equal(t, "fetch", src.Step)
	assert.Equal(t, "payload", src.Field)
}

func TestStepWithTemplateBinding(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
		WithTemplateBinding("source", workflow.PromptArg("source"))

	require.Len(t, step.TemplateBindings(), 1)
	assert.Equal(t, "source", step.TemplateBindings()[0].VarName)
}

func TestStepWithMultipleTemplateBindings(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
		WithTemplateBinding("source", workflow.PromptArg("source")).
		WithTemplateBinding("region", workflow.Constant(json.RawMessage(`"us-east-1"`)))

	require.Len(t, step.TemplateBindings(), 2)
	assert.Equal(t, "source", step.TemplateBindings()[0].VarName)
	assert.Equal(t, "region", step.TemplateBindings()[1].VarName)
}

func TestStepTemplateBindingFromPromptArg(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
		WithTemplateBinding("source", workflow.PromptArg("source"))
	assert.Equal(t, workflow.DataSourcePromptArg, step.TemplateBindings()[0].Source.Kind)
}

func TestStepTemplateBindingFromConstant(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
		WithTemplateBinding("region", workflow.Constant(json.RawMessage(`"us-east-1"`)))
	assert.Equal(t, workflow.DataSourceConstant, step.TemplateBindings()[0].Source.Kind)
}

func TestStepValidationWithTemplateBindings(t *testing.T) {
	step := workflow.NewStep("transform", workflow.NewToolHandle("transform_data")).
		WithTemplateBinding("raw", workflow.FromStep("missing"))

	err := step.Validate([]string{"fetch"})
	require.Error(t, err)
	var unknown *workflow.UnknownBindingError
	require.ErrorAs(t, err, &unknown)
}

func TestStepEmptyTemplateBindings(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data"))
	assert.Empty(t, step.TemplateBindings())
}

func TestStepChainableWithTemplateBindings(t *testing.T) {
	step := workflow.NewStep("fetch", workflow.NewToolHandle("fetch_data")).
		Arg("source", workflow.PromptArg("source")).
		WithTemplateBinding("source", workflow.PromptArg("source")).
		Bind("raw_data")

	assert.Equal(t, "raw_data", step.Binding())
	assert.Len(t, step.Arguments(), 1)
	assert.Len(t, step.TemplateBindings(), 1)
}

func TestResourceOnlyStepCreation(t *testing.T) {
	step := workflow.NewResourceStep("load_docs").WithResource("docs://schema")
	assert.True(t, step.IsResourceOnly())
	assert.Nil(t, step.Tool())
	assert.NoError(t, step.Validate(nil))
}

func TestResourceOnlyStepWithTemplateBindings(t *testing.T) {
	step := workflow.NewResourceStep("load_docs").
		WithResource("docs://{source}").
		WithTemplateBinding("source", workflow.PromptArg("source"))

	require.Len(t, step.TemplateBindings(), 1)
	assert.NoError(t, step.Validate(nil))
}

func TestResourceOnlyStepWithMultipleResources(t *testing.T) {
	step := workflow.NewResourceStep("load_docs").
		WithResource("docs://schema").
		WithResource("docs://examples")
	assert.Len(t, step.Resources(), 2)
}

func TestResourceOnlyStepValidationRequiresResource(t *testing.T) {
	step := workflow.NewResourceStep("load_docs")
	err := step.Validate(nil)
	require.Error(t, err)
	var invalid *workflow.StepValidationError
	require.ErrorAs(t, err, &invalid)
}

func TestResourceOnlyStepValidationRejectsToolArguments(t *testing.T) {
	step := workflow.NewResourceStep("load_docs").WithResource("docs://schema")
	step.Arg("oops", workflow.Constant(json.RawMessage(`1`)))
	err := step.Validate(nil)
	require.Error(t, err)
}

func TestResourceOnlyStepValidationRejectsBinding(t *testing.T) {
	step := workflow.NewResourceStep("load_docs").WithResource("docs://schema")
	step.Bind("oops")
	err := step.Validate(nil)
	require.Error(t, err)
}

func TestResourceOnlyStepWithGuidance(t *testing.T) {
	step := workflow.NewResourceStep("load_docs").
		WithResource("docs://schema").
		WithGuidance("load the schema before transforming")
	assert.Equal(t, "load the schema before transforming", step.Guidance())
}
