package vertex

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestSupportsGrounding_AllowListedModel(t *testing.T) {
	require.True(t, SupportsGrounding("gemini-2.0-flash"))
	require.True(t, SupportsGrounding("publishers/google/models/gemini-2.0-flash"))
}

func TestSupportsGrounding_UnknownModelRejected(t *testing.T) {
	require.False(t, SupportsGrounding("gemini-1.0-pro-vision"))
	require.False(t, SupportsGrounding("some-future-model"))
}

func TestNormalizeModelID_StripsResourcePrefix(t *testing.T) {
	require.Equal(t, "gemini-2.5-pro", normalizeModelID("publishers/google/models/gemini-2.5-pro"))
	require.Equal(t, "gemini-2.5-pro", normalizeModelID("gemini-2.5-pro"))
}

func TestJSONSchemaToGenaiSchema_ObjectWithProperties(t *testing.T) {
	input := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"vat":       map[string]interface{}{"type": "string"},
			"plug":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"emergency": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []interface{}{"vat", "plug", "emergency"},
	}

	schema := jsonSchemaToGenaiSchema(input)
	require.Equal(t, genai.TypeObject, schema.Type)
	require.Len(t, schema.Properties, 3)
	require.ElementsMatch(t, []string{"vat", "plug", "emergency"}, schema.Required)
	require.Equal(t, genai.TypeArray, schema.Properties["plug"].Type)
	require.Equal(t, genai.TypeString, schema.Properties["plug"].Items.Type)
}

func TestConvertSchema_NilInput(t *testing.T) {
	require.Nil(t, convertSchema(nil))
}
