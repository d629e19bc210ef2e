package genaiutils

import (
	"encoding/json"
	"testing"

	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/schema"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"google.golang.org/genai"
)

// objectSchema builds a jsonschema object with properties in the given order.
func objectSchema(props ...orderedmap.Pair[string, *jsonschema.Schema]) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](orderedmap.WithInitialData(props...)),
	}
}

func prop(name string, s *jsonschema.Schema) orderedmap.Pair[string, *jsonschema.Schema] {
	return orderedmap.Pair[string, *jsonschema.Schema]{Key: name, Value: s}
}

func TestConvertJSONSchemaDefinition(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		s, err := ConvertJSONSchemaDefinition(nil)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("forecast request object", func(t *testing.T) {
		t.Parallel()
		def := objectSchema(
			prop("city", &jsonschema.Schema{Type: "string", Description: "City to forecast"}),
			prop("days", &jsonschema.Schema{Type: "integer"}),
		)
		def.Description = "Forecast request"
		def.Required = []string{"city"}

		s, err := ConvertJSONSchemaDefinition(def)
		require.NoError(t, err)
		assert.Equal(t, genai.TypeObject, s.Type)
		assert.Equal(t, "Forecast request", s.Description)
		assert.Equal(t, []string{"city"}, s.Required)
		require.Len(t, s.Properties, 2)
		assert.Equal(t, genai.TypeString, s.Properties["city"].Type)
		assert.Equal(t, "City to forecast", s.Properties["city"].Description)
		assert.Equal(t, genai.TypeInteger, s.Properties["days"].Type)
	})

	t.Run("array of readings", func(t *testing.T) {
		t.Parallel()
		s, err := ConvertJSONSchemaDefinition(&jsonschema.Schema{
			Type:  "array",
			Items: &jsonschema.Schema{Type: "number", Description: "Temperature reading"},
		})
		require.NoError(t, err)
		assert.Equal(t, genai.TypeArray, s.Type)
		require.NotNil(t, s.Items)
		assert.Equal(t, genai.TypeNumber, s.Items.Type)
		assert.Equal(t, "Temperature reading", s.Items.Description)
	})

	t.Run("nested station object", func(t *testing.T) {
		t.Parallel()
		def := objectSchema(
			prop("station", objectSchema(
				prop("id", &jsonschema.Schema{Type: "string"}),
				prop("elevation_m", &jsonschema.Schema{Type: "number"}),
			)),
		)

		s, err := ConvertJSONSchemaDefinition(def)
		require.NoError(t, err)
		require.Len(t, s.Properties, 1)
		station := s.Properties["station"]
		assert.Equal(t, genai.TypeObject, station.Type)
		require.Len(t, station.Properties, 2)
		assert.Equal(t, genai.TypeString, station.Properties["id"].Type)
		assert.Equal(t, genai.TypeNumber, station.Properties["elevation_m"].Type)
	})
}

func TestConvertSchemaType(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		input string
		exp   genai.Type
	}{
		{"object", genai.TypeObject},
		{"string", genai.TypeString},
		{"number", genai.TypeNumber},
		{"integer", genai.TypeInteger},
		{"boolean", genai.TypeBoolean},
		{"array", genai.TypeArray},
		{"null", genai.TypeUnspecified},
		{"", genai.TypeUnspecified},
	}

	for _, tc := range tcases {
		assert.Equal(t, tc.exp, ConvertSchemaType(tc.input), "type %q", tc.input)
	}
}

func TestConvertTools(t *testing.T) {
	t.Parallel()

	t.Run("weather tool from raw schema", func(t *testing.T) {
		t.Parallel()

		var params jsonschema.Schema
		require.NoError(t, json.Unmarshal([]byte(`{
			"type": "object",
			"description": "Weather request parameters",
			"properties": {
				"location": {"type": "string", "description": "City name"},
				"unit": {"type": "string", "enum": ["celsius", "fahrenheit"]}
			},
			"required": ["location"]
		}`), &params))

		result, err := ConvertTools([]llms.Tool{
			{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        "get_weather",
					Description: "Get the current weather for a city",
					Parameters:  &params,
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, result, 1)
		require.Len(t, result[0].FunctionDeclarations, 1)

		decl := result[0].FunctionDeclarations[0]
		assert.Equal(t, "get_weather", decl.Name)
		assert.Equal(t, "Get the current weather for a city", decl.Description)
		assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
		assert.Equal(t, []string{"location"}, decl.Parameters.Required)
		require.Len(t, decl.Parameters.Properties, 2)
		assert.Equal(t, "City name", decl.Parameters.Properties["location"].Description)
	})

	t.Run("one declaration per tool", func(t *testing.T) {
		t.Parallel()

		result, err := ConvertTools([]llms.Tool{
			{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:       "get_weather",
					Parameters: objectSchema(prop("city", &jsonschema.Schema{Type: "string"})),
				},
			},
			{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:       "get_forecast",
					Parameters: objectSchema(prop("days", &jsonschema.Schema{Type: "integer"})),
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, "get_weather", result[0].FunctionDeclarations[0].Name)
		assert.Equal(t, "get_forecast", result[1].FunctionDeclarations[0].Name)
	})

	t.Run("no parameters", func(t *testing.T) {
		t.Parallel()

		result, err := ConvertTools([]llms.Tool{
			{
				Type:     "function",
				Function: &llms.FunctionDefinition{Name: "ping"},
			},
		})
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Nil(t, result[0].FunctionDeclarations[0].Parameters)
	})

	t.Run("unsupported tool type", func(t *testing.T) {
		t.Parallel()

		_, err := ConvertTools([]llms.Tool{
			{Type: "retrieval", Function: &llms.FunctionDefinition{Name: "search"}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported type")
	})
}

func TestConvertResponseFormatJSONSchema(t *testing.T) {
	t.Parallel()

	s, err := ConvertResponseFormatJSONSchema(nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = ConvertResponseFormatJSONSchema(&schema.ResponseFormatJSONSchema{Name: "forecast"})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = ConvertResponseFormatJSONSchema(&schema.ResponseFormatJSONSchema{
		Name: "forecast",
		Schema: &schema.ResponseFormatJSONSchemaProperty{
			Type: "object",
			Properties: map[string]*schema.ResponseFormatJSONSchemaProperty{
				"conditions": {Type: "string", Description: "One-line summary"},
				"temps": {
					Type:  "array",
					Items: &schema.ResponseFormatJSONSchemaProperty{Type: "number"},
				},
			},
			Required: []string{"conditions"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"conditions"}, s.Required)
	require.Len(t, s.Properties, 2)
	assert.Equal(t, "One-line summary", s.Properties["conditions"].Description)
	require.NotNil(t, s.Properties["temps"].Items)
	assert.Equal(t, genai.TypeNumber, s.Properties["temps"].Items.Type)
}

func TestNumericPtrs(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Float32Ptr(0))
	require.NotNil(t, Float32Ptr(0.7))
	assert.InDelta(t, 0.7, *Float32Ptr(0.7), 0.0001)

	assert.Nil(t, Int32Ptr(0))
	require.NotNil(t, Int32Ptr(42))
	assert.EqualValues(t, 42, *Int32Ptr(42))
}
