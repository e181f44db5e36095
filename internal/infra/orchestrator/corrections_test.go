package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"foundry/internal/domain"
)

func TestSuggestCorrections_SchemaMalformedRepairsParameters(t *testing.T) {
	tool := domain.ToolDescriptor{
		Name: "weather_lookup",
		Parameters: []domain.Parameter{
			{Name: "city", Type: "string"},
		},
	}
	failing := domain.StageResult{
		Stage:  domain.StageFormatCheck,
		Code:   domain.CodeSchemaMalformed,
		Params: []string{"city"},
	}

	corrections, err := suggestCorrections(tool, failing)
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	require.Equal(t, domain.CorrectionParameterAddition, corrections[0].Kind)
	require.Len(t, corrections[0].Parameters, 1)

	repaired := corrections[0].Parameters[0]
	require.Equal(t, "city", repaired.Name)
	require.Equal(t, "string", repaired.Type)
	require.NotNil(t, repaired.Required)
}

func TestSuggestCorrections_UnnamedParameterIsUnfixable(t *testing.T) {
	failing := domain.StageResult{
		Stage:  domain.StageFormatCheck,
		Code:   domain.CodeSchemaMalformed,
		Params: []string{"#0"},
	}

	_, err := suggestCorrections(domain.ToolDescriptor{Name: "weather_lookup"}, failing)
	require.True(t, domain.IsCode(err, domain.CodeUnsupportedCorrection))
}

func TestSuggestCorrections_DescriptionRewriteCoversAllParameters(t *testing.T) {
	required := true
	tool := domain.ToolDescriptor{
		Name: "weather_lookup",
		Parameters: []domain.Parameter{
			{Name: "city", Type: "string", Required: &required},
			{Name: "units", Type: "string", Required: &required},
		},
	}
	failing := domain.StageResult{
		Stage: domain.StageDescriptionCheck,
		Code:  domain.CodeDescriptionInadequate,
	}

	corrections, err := suggestCorrections(tool, failing)
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	require.Equal(t, domain.CorrectionDescriptionRewrite, corrections[0].Kind)
	require.Contains(t, corrections[0].Description, "city")
	require.Contains(t, corrections[0].Description, "units")
	require.Contains(t, corrections[0].Description, "formatted string")
}

func TestSuggestCorrections_MismatchFollowsObservedShape(t *testing.T) {
	tool := domain.ToolDescriptor{Name: "weather_lookup"}

	structural := domain.StageResult{
		Stage:  domain.StageConsistency,
		Code:   domain.CodeDescriptionMismatch,
		Detail: "description claims a textual result but every observed output is structured data with no textual rendering",
	}
	corrections, err := suggestCorrections(tool, structural)
	require.NoError(t, err)
	require.Contains(t, corrections[0].Description, "JSON")

	textual := domain.StageResult{
		Stage:  domain.StageConsistency,
		Code:   domain.CodeDescriptionMismatch,
		Detail: "description claims structured output but observed outputs are plain text",
	}
	corrections, err = suggestCorrections(tool, textual)
	require.NoError(t, err)
	require.Contains(t, corrections[0].Description, "formatted string")
}

func TestSuggestCorrections_AvailabilityRenamesToRegisteredName(t *testing.T) {
	tool := domain.ToolDescriptor{Name: "weather_lookup"}
	failing := domain.StageResult{
		Stage: domain.StageAvailability,
		Code:  domain.CodeAvailabilityFailure,
	}

	corrections, err := suggestCorrections(tool, failing)
	require.NoError(t, err)
	require.Equal(t, domain.CorrectionFunctionRename, corrections[0].Kind)
	require.Equal(t, "weather_lookup", corrections[0].NewName)
}

func TestSuggestCorrections_CoverageIsUnfixable(t *testing.T) {
	failing := domain.StageResult{
		Stage: domain.StageCaseConstruction,
		Code:  domain.CodeInsufficientCoverage,
	}

	_, err := suggestCorrections(domain.ToolDescriptor{Name: "noop_tool"}, failing)
	require.True(t, domain.IsCode(err, domain.CodeUnsupportedCorrection))
}
