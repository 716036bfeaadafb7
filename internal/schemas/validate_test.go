package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAnalysis_Valid(t *testing.T) {
	raw := []byte(`{
		"description": "Render charts in the terminal.",
		"overview": "Widget is a Go library for terminal dashboards.",
		"features": ["Bar charts", "Sparklines"],
		"tags": ["cli", "charts"],
		"difficulty": "beginner",
		"removed_features": [],
		"confidence": 0.82,
		"summary": "Description updated."
	}`)

	assert.NoError(t, ValidateAnalysis(raw))
}

func TestValidateAnalysis_OutOfRangeConfidenceAccepted(t *testing.T) {
	// Confidence is clamped by the analyzer, not rejected.
	raw := []byte(`{"description": "x", "features": [], "tags": [], "difficulty": "", "confidence": 1.4}`)

	assert.NoError(t, ValidateAnalysis(raw))
}

func TestValidateAnalysis_MissingFields(t *testing.T) {
	err := ValidateAnalysis([]byte(`{"description": "x"}`))
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.GreaterOrEqual(t, len(validationErr.Errors), 4)
	assert.Contains(t, err.Error(), "confidence")
}

func TestValidateAnalysis_WrongTypes(t *testing.T) {
	raw := []byte(`{"description": "x", "features": "not a list", "tags": [], "difficulty": 3, "confidence": "high"}`)

	err := ValidateAnalysis(raw)
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	fields := make([]string, 0, len(validationErr.Errors))
	for _, fe := range validationErr.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Contains(t, fields, "features")
	assert.Contains(t, fields, "difficulty")
	assert.Contains(t, fields, "confidence")
}

func TestValidateAnalysis_AnyDifficultyLabelAccepted(t *testing.T) {
	for _, label := range []string{"Beginner", "expert", ""} {
		raw := []byte(`{"description": "x", "features": [], "tags": [], "difficulty": "` + label + `", "confidence": 0.9}`)
		assert.NoError(t, ValidateAnalysis(raw), label)
	}
}

func TestValidateAnalysis_EmptyDescription(t *testing.T) {
	raw := []byte(`{"description": "", "features": [], "tags": [], "difficulty": "", "confidence": 0.9}`)

	assert.Error(t, ValidateAnalysis(raw))
}

func TestValidateAnalysis_MalformedJSON(t *testing.T) {
	err := ValidateAnalysis([]byte(`{"description": `))
	require.Error(t, err)

	var docErr *DocumentError
	assert.True(t, errors.As(err, &docErr))
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("missing.schema.json", []byte(`{}`))
	require.Error(t, err)

	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "missing.schema.json", loadErr.Path)
}

func TestValidateJSONString_Valid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`

	assert.NoError(t, ValidateJSONString(schemaContent, `{"name": "test"}`))
}

func TestValidateJSONString_Invalid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`

	err := ValidateJSONString(schemaContent, `{"age": 30}`)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "description", Message: "is required"},
			{Field: "confidence", Message: "must be a number"},
		},
	}

	errorMsg := err.Error()
	assert.Contains(t, errorMsg, "validation failed")
	assert.Contains(t, errorMsg, "description")
	assert.Contains(t, errorMsg, "confidence")
}
