// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"strings"

	apperrors "ar-ledger/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema for one request shape.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Compile loads a schema expressed as a Go map.
func Compile(name string, schemaMap map[string]interface{}) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(name string, schemaMap map[string]interface{}) *Schema {
	s, err := Compile(name, schemaMap)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks doc (a struct with json tags, or a map) against the schema.
func (s *Schema) Validate(doc interface{}) *ValidationResult {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "UNREADABLE_DOCUMENT"}},
		}
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out
}

// Check validates doc and converts any failure into a VALIDATION_FAILED error.
func (s *Schema) Check(doc interface{}) error {
	res := s.Validate(doc)
	if res.Valid {
		return nil
	}
	parts := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return apperrors.NewValidationErrorf("%s: %s", s.name, strings.Join(parts, "; ")).
		WithMetadata("violations", res.Errors)
}

// Helpers for building schemas without repeating map literals.

func Object(required []string, props map[string]interface{}) map[string]interface{} {
	obj := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		obj["required"] = required
	}
	return obj
}

func NonEmptyString() map[string]interface{} {
	return map[string]interface{}{"type": "string", "minLength": 1, "pattern": `\S`}
}

func Enum(values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values}
}

// DecimalString matches an unsigned decimal amount such as "1000" or "12.50".
func DecimalString() map[string]interface{} {
	return map[string]interface{}{"type": "string", "pattern": `^[0-9]+(\.[0-9]+)?$`}
}

// CivilDate matches YYYY-MM-DD.
func CivilDate() map[string]interface{} {
	return map[string]interface{}{"type": "string", "pattern": `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`}
}
