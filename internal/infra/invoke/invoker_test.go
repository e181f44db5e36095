package invoke

import (
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"foundry/internal/domain"
)

func TestSchemaParameters_NormalizesAndSorts(t *testing.T) {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"units": {Type: "string", Description: "metric or imperial"},
			"city":  {Type: "string"},
			"days":  {Type: "integer"},
		},
		Required: []string{"city"},
	}

	params, err := schemaParameters(schema)
	require.NoError(t, err)
	require.Len(t, params, 3)

	require.Equal(t, "city", params[0].Name)
	require.NotNil(t, params[0].Required)
	require.True(t, *params[0].Required)

	require.Equal(t, "days", params[1].Name)
	require.Equal(t, "integer", params[1].Type)
	require.False(t, *params[1].Required)

	require.Equal(t, "units", params[2].Name)
	require.Equal(t, "metric or imperial", params[2].Description)
	require.False(t, *params[2].Required)
}

func TestSchemaParameters_MissingRequiredListMeansOptional(t *testing.T) {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {Type: "string"},
		},
	}

	params, err := schemaParameters(schema)
	require.NoError(t, err)
	require.Len(t, params, 1)
	require.NotNil(t, params[0].Required)
	require.False(t, *params[0].Required)
}

// The MCP SDK hands inputSchema over as an untyped wire value, so the
// normalization must accept the raw map shape a server actually sends.
func TestSchemaParameters_WireShapedMap(t *testing.T) {
	input := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city":  map[string]any{"type": "string"},
			"units": map[string]any{"type": "string", "description": "metric or imperial"},
		},
		"required": []any{"city"},
	}

	params, err := schemaParameters(input)
	require.NoError(t, err)
	require.Len(t, params, 2)

	require.Equal(t, "city", params[0].Name)
	require.Equal(t, "string", params[0].Type)
	require.True(t, *params[0].Required)

	require.Equal(t, "units", params[1].Name)
	require.Equal(t, "metric or imperial", params[1].Description)
	require.False(t, *params[1].Required)
}

func TestSchemaParameters_UndecodableInput(t *testing.T) {
	_, err := schemaParameters(map[string]any{"properties": []any{"not-a-map"}})
	require.Error(t, err)
}

func TestSchemaParameters_NilSchema(t *testing.T) {
	params, err := schemaParameters(nil)
	require.NoError(t, err)
	require.Nil(t, params)
}

func TestContentText_JoinsTextBlocks(t *testing.T) {
	text := contentText([]mcp.Content{
		&mcp.TextContent{Text: "first"},
		&mcp.TextContent{Text: "second"},
	})
	require.Equal(t, "first\n\nsecond", text)
}

func TestNewStdioInvoker_DefaultsTimeout(t *testing.T) {
	invoker := NewStdioInvoker(0, nil)
	require.Equal(t, int64(domain.DefaultInvokeTimeoutSeconds), int64(invoker.timeout.Seconds()))
}
