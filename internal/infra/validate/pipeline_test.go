package validate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foundry/internal/domain"
)

type fakeInvoker struct {
	liveSchemaFn func(domain.ToolDescriptor) (domain.LiveTool, error)
	callFn       func(domain.ToolDescriptor, map[string]any) (string, error)
	callCtxFn    func(context.Context, domain.ToolDescriptor, map[string]any) (string, error)

	liveSchemaCalls int
	callCalls       int
}

func (f *fakeInvoker) LiveSchema(_ context.Context, tool domain.ToolDescriptor, _ domain.EnvironmentDescriptor) (domain.LiveTool, error) {
	f.liveSchemaCalls++
	if f.liveSchemaFn != nil {
		return f.liveSchemaFn(tool)
	}
	return mirroredSchema(tool), nil
}

func (f *fakeInvoker) Call(ctx context.Context, tool domain.ToolDescriptor, _ domain.EnvironmentDescriptor, params map[string]any) (string, error) {
	f.callCalls++
	if f.callCtxFn != nil {
		return f.callCtxFn(ctx, tool, params)
	}
	if f.callFn != nil {
		return f.callFn(tool, params)
	}
	return typeCheckedCall(tool, params)
}

// mirroredSchema serves exactly what the tool declares.
func mirroredSchema(tool domain.ToolDescriptor) domain.LiveTool {
	return domain.LiveTool{
		FunctionName: tool.Name,
		Description:  tool.Description,
		Parameters:   append([]domain.Parameter(nil), tool.Parameters...),
	}
}

// typeCheckedCall behaves like a well-implemented tool: it rejects
// wrong-typed inputs and otherwise answers with a short sentence.
func typeCheckedCall(tool domain.ToolDescriptor, params map[string]any) (string, error) {
	for _, param := range tool.Parameters {
		value, ok := params[param.Name]
		if !ok {
			continue
		}
		if param.Type == "string" {
			if _, isString := value.(string); !isString {
				return "", domain.E(domain.CodeAvailabilityFailure, "fake", fmt.Sprintf("parameter %s must be a string", param.Name), nil)
			}
		}
	}
	return "the result was computed without trouble", nil
}

func boolPtr(b bool) *bool {
	return &b
}

func weatherTool(description string) domain.ToolDescriptor {
	return domain.ToolDescriptor{
		Name:        "weather_lookup",
		Version:     1,
		Description: description,
		Parameters: []domain.Parameter{
			{Name: "city", Type: "string", Required: boolPtr(true)},
			{Name: "units", Type: "string", Required: boolPtr(false)},
		},
	}
}

const adequateDescription = "Looks up current weather for a city in the requested units. Returns a formatted string describing the result."

func TestPipeline_AllStagesPass(t *testing.T) {
	invoker := &fakeInvoker{}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	report := pipeline.Run(context.Background(), weatherTool(adequateDescription), domain.EnvironmentDescriptor{})

	require.True(t, report.Passed)
	require.Len(t, report.Stages, 6)
	for index, stage := range domain.Stages() {
		require.Equal(t, stage, report.Stages[index].Stage)
		require.Equal(t, domain.StageOutcomePass, report.Stages[index].Outcome)
	}
	_, failed := report.FailingStage()
	require.False(t, failed)
}

func TestPipeline_MissingRequiredFlagFailsFormatCheck(t *testing.T) {
	invoker := &fakeInvoker{}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	tool := weatherTool(adequateDescription)
	tool.Parameters[1].Required = nil

	report := pipeline.Run(context.Background(), tool, domain.EnvironmentDescriptor{})

	require.False(t, report.Passed)
	require.Len(t, report.Stages, 1)
	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.StageFormatCheck, failing.Stage)
	require.Equal(t, domain.CodeSchemaMalformed, failing.Code)
	require.Equal(t, []string{"units"}, failing.Params)

	// Fail-fast: the candidate is never started.
	require.Zero(t, invoker.liveSchemaCalls)
	require.Zero(t, invoker.callCalls)
}

func TestPipeline_FormatCheckFlagsEachDefectOnce(t *testing.T) {
	invoker := &fakeInvoker{}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	tool := weatherTool(adequateDescription)
	tool.Parameters = append(tool.Parameters, domain.Parameter{Name: "city", Type: "bogus"})

	report := pipeline.Run(context.Background(), tool, domain.EnvironmentDescriptor{})

	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.CodeSchemaMalformed, failing.Code)
	// The clean parameters are not blamed for the duplicate's defects.
	require.Equal(t, []string{"city"}, failing.Params)
	require.Contains(t, failing.Detail, "declared twice")
	require.Contains(t, failing.Detail, "unknown type")
}

func TestPipeline_DescriptionCheckRejectsShortAndPlaceholder(t *testing.T) {
	invoker := &fakeInvoker{}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	for _, description := range []string{"", "ok", "TODO describe city and units later"} {
		tool := weatherTool(description)
		report := pipeline.Run(context.Background(), tool, domain.EnvironmentDescriptor{})

		require.False(t, report.Passed)
		require.Len(t, report.Stages, 2)
		failing, ok := report.FailingStage()
		require.True(t, ok)
		require.Equal(t, domain.StageDescriptionCheck, failing.Stage)
		require.Equal(t, domain.CodeDescriptionInadequate, failing.Code)
	}
}

func TestPipeline_DescriptionCheckRequiresEveryParameterMentioned(t *testing.T) {
	invoker := &fakeInvoker{}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	tool := weatherTool("Looks up current weather for a city. Returns a formatted string.")

	report := pipeline.Run(context.Background(), tool, domain.EnvironmentDescriptor{})

	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.CodeDescriptionInadequate, failing.Code)
	require.Equal(t, []string{"units"}, failing.Params)
}

func TestPipeline_SchemaDriftOnTypeMismatch(t *testing.T) {
	invoker := &fakeInvoker{
		liveSchemaFn: func(tool domain.ToolDescriptor) (domain.LiveTool, error) {
			live := mirroredSchema(tool)
			live.Parameters[0].Type = "integer"
			return live, nil
		},
	}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	report := pipeline.Run(context.Background(), weatherTool(adequateDescription), domain.EnvironmentDescriptor{})

	require.False(t, report.Passed)
	require.Len(t, report.Stages, 3)
	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.StageSchemaRetrieval, failing.Stage)
	require.Equal(t, domain.CodeSchemaDrift, failing.Code)
	require.Equal(t, []string{"city"}, failing.Params)
	require.Zero(t, invoker.callCalls)
}

func TestPipeline_SchemaDriftOnMissingDeclaredParameter(t *testing.T) {
	invoker := &fakeInvoker{
		liveSchemaFn: func(tool domain.ToolDescriptor) (domain.LiveTool, error) {
			live := mirroredSchema(tool)
			// The candidate serves city but silently dropped units.
			live.Parameters = live.Parameters[:1]
			return live, nil
		},
	}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	report := pipeline.Run(context.Background(), weatherTool(adequateDescription), domain.EnvironmentDescriptor{})

	require.False(t, report.Passed)
	require.Len(t, report.Stages, 3)
	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.StageSchemaRetrieval, failing.Stage)
	require.Equal(t, domain.CodeSchemaDrift, failing.Code)
	require.Equal(t, []string{"units"}, failing.Params)
	require.Contains(t, failing.Detail, "missing from the live schema")
	require.Zero(t, invoker.callCalls)
}

func TestPipeline_SchemaDriftOnUndeclaredLiveParameter(t *testing.T) {
	invoker := &fakeInvoker{
		liveSchemaFn: func(tool domain.ToolDescriptor) (domain.LiveTool, error) {
			live := mirroredSchema(tool)
			live.Parameters = append(live.Parameters, domain.Parameter{
				Name: "country", Type: "string", Required: boolPtr(false),
			})
			return live, nil
		},
	}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	report := pipeline.Run(context.Background(), weatherTool(adequateDescription), domain.EnvironmentDescriptor{})

	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.CodeSchemaDrift, failing.Code)
	require.Equal(t, []string{"country"}, failing.Params)
}

func TestPipeline_AvailabilityFailureCollectsCases(t *testing.T) {
	invoker := &fakeInvoker{
		callFn: func(domain.ToolDescriptor, map[string]any) (string, error) {
			// Accepts everything, including schema-invalid input, and
			// answers nothing useful.
			return "", nil
		},
	}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	report := pipeline.Run(context.Background(), weatherTool(adequateDescription), domain.EnvironmentDescriptor{})

	require.False(t, report.Passed)
	require.Len(t, report.Stages, 5)
	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.StageAvailability, failing.Stage)
	require.Equal(t, domain.CodeAvailabilityFailure, failing.Code)
	require.Contains(t, failing.Params, "normal")
	require.Contains(t, failing.Params, "abnormal")
}

func TestPipeline_AvailabilityCrashMarkerFails(t *testing.T) {
	invoker := &fakeInvoker{
		callFn: func(tool domain.ToolDescriptor, params map[string]any) (string, error) {
			output, err := typeCheckedCall(tool, params)
			if err != nil {
				return "", err
			}
			_ = output
			return "Traceback (most recent call last):\n  File \"tool.py\"", nil
		},
	}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	report := pipeline.Run(context.Background(), weatherTool(adequateDescription), domain.EnvironmentDescriptor{})

	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.CodeAvailabilityFailure, failing.Code)
	require.Contains(t, failing.Detail, "crash marker")
}

func TestPipeline_AvailabilityTimeoutShortCircuits(t *testing.T) {
	invoker := &fakeInvoker{
		callFn: func(domain.ToolDescriptor, map[string]any) (string, error) {
			return "", domain.E(domain.CodeAvailabilityTimeout, "invoke.Call", "call timed out after 30s", nil)
		},
	}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	report := pipeline.Run(context.Background(), weatherTool(adequateDescription), domain.EnvironmentDescriptor{})

	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.StageAvailability, failing.Stage)
	require.Equal(t, domain.CodeAvailabilityTimeout, failing.Code)
	// The first timeout halts the stage; later cases are not attempted.
	require.Equal(t, 1, invoker.callCalls)
}

func TestPipeline_StageDeadlineBoundsHungCall(t *testing.T) {
	invoker := &fakeInvoker{
		callCtxFn: func(ctx context.Context, _ domain.ToolDescriptor, _ map[string]any) (string, error) {
			// Hangs until the stage deadline fires; without one this
			// never returns.
			<-ctx.Done()
			return "", domain.E(domain.CodeAvailabilityTimeout, "invoke.Call", "call canceled", ctx.Err())
		},
	}
	pipeline := NewPipeline(invoker, 25*time.Millisecond, zap.NewNop(), nil)

	report := pipeline.Run(context.Background(), weatherTool(adequateDescription), domain.EnvironmentDescriptor{})

	require.False(t, report.Passed)
	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.StageAvailability, failing.Stage)
	require.Equal(t, domain.CodeAvailabilityTimeout, failing.Code)
	require.Equal(t, 1, invoker.callCalls)
}

func TestPipeline_ConsistencyMismatchStructuredClaim(t *testing.T) {
	invoker := &fakeInvoker{}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	tool := weatherTool("Looks up weather for a city in given units. Returns structured data encoded as JSON.")

	report := pipeline.Run(context.Background(), tool, domain.EnvironmentDescriptor{})

	require.False(t, report.Passed)
	require.Len(t, report.Stages, 6)
	failing, ok := report.FailingStage()
	require.True(t, ok)
	require.Equal(t, domain.StageConsistency, failing.Stage)
	require.Equal(t, domain.CodeDescriptionMismatch, failing.Code)
}

func TestPipeline_ConsistencyAcceptsMatchingStructuredOutput(t *testing.T) {
	invoker := &fakeInvoker{
		callFn: func(tool domain.ToolDescriptor, params map[string]any) (string, error) {
			if _, err := typeCheckedCall(tool, params); err != nil {
				return "", err
			}
			return `{"temperature": 21, "conditions": "sunny"}`, nil
		},
	}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)

	tool := weatherTool("Looks up weather for a city in given units. Returns structured data encoded as JSON.")

	report := pipeline.Run(context.Background(), tool, domain.EnvironmentDescriptor{})
	require.True(t, report.Passed)
}

func TestPipeline_RerunIsDeterministic(t *testing.T) {
	invoker := &fakeInvoker{}
	pipeline := NewPipeline(invoker, 0, zap.NewNop(), nil)
	tool := weatherTool(adequateDescription)

	first := pipeline.Run(context.Background(), tool, domain.EnvironmentDescriptor{})
	second := pipeline.Run(context.Background(), tool, domain.EnvironmentDescriptor{})

	require.Equal(t, first.Passed, second.Passed)
	require.Len(t, second.Stages, len(first.Stages))
	for index := range first.Stages {
		require.Equal(t, first.Stages[index].Outcome, second.Stages[index].Outcome)
		require.Equal(t, first.Stages[index].Code, second.Stages[index].Code)
	}
}
