package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"foundry/internal/domain"
)

func TestPutReport_OverwritesPerVersion(t *testing.T) {
	store := openTestStore(t)

	failing := passingReport("weather_lookup", 1)
	failing.Passed = false
	failing.Stages = failing.Stages[:1]
	failing.Stages[0].Outcome = domain.StageOutcomeFail
	failing.Stages[0].Code = domain.CodeDescriptionInadequate
	require.NoError(t, store.PutReport(failing))

	got, err := store.Report("weather_lookup", 1)
	require.NoError(t, err)
	require.False(t, got.Passed)

	require.NoError(t, store.PutReport(passingReport("weather_lookup", 1)))
	got, err = store.Report("weather_lookup", 1)
	require.NoError(t, err)
	require.True(t, got.Passed)
	require.Len(t, got.Stages, len(domain.Stages()))
}

func TestPutReport_SuccessIsExactlyNil(t *testing.T) {
	store := openTestStore(t)

	// Callers branch on err != nil, so the success path must hand back
	// an untyped nil, not a nil *domain.Error in the interface.
	err := store.PutReport(passingReport("weather_lookup", 1))
	require.True(t, err == nil)

	err = store.AppendFix(domain.FixRecord{
		ToolName:      "weather_lookup",
		SourceVersion: 1,
		NewVersion:    2,
		CreatedAt:     time.Now().UTC(),
	})
	require.True(t, err == nil)
}

func TestReport_NotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Report("weather_lookup", 3)
	require.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestReport_KeyedByNameAndVersion(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.PutReport(passingReport("weather_lookup", 1)))
	require.NoError(t, store.PutReport(passingReport("weather_lookup", 2)))

	_, err := store.Report("weather_lookup", 1)
	require.NoError(t, err)
	_, err = store.Report("weather_lookup", 3)
	require.True(t, domain.IsCode(err, domain.CodeNotFound))
	_, err = store.Report("other_tool", 1)
	require.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestFixHistory_AppendOrder(t *testing.T) {
	store := openTestStore(t)

	for version := 1; version <= 3; version++ {
		record := domain.FixRecord{
			ToolName:      "weather_lookup",
			SourceVersion: version,
			NewVersion:    version + 1,
			Corrections: []domain.Correction{
				{Kind: domain.CorrectionDescriptionRewrite, Description: "rewritten"},
			},
			Reason:    "description check failed",
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.AppendFix(record))
	}

	history, err := store.FixHistory("weather_lookup")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for index, record := range history {
		require.Equal(t, index+1, record.SourceVersion)
		require.Equal(t, index+2, record.NewVersion)
	}

	empty, err := store.FixHistory("other_tool")
	require.NoError(t, err)
	require.Empty(t, empty)
}
