// Package validation checks decoded documents against the JSON schemas of the
// shapes the task definition merge depends on.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// TaskDefinitionSchema covers only the keys the merge reads or writes.
const TaskDefinitionSchema = `{
  "type": "object",
  "required": ["containerDefinitions", "cpu", "memory", "tags"],
  "properties": {
    "containerDefinitions": {
      "type": "array",
      "minItems": 1,
      "items": [{"type": "object"}]
    },
    "tags": {
      "type": "array"
    }
  }
}`

// ContainerSpecSchema describes the input artifact uploaded by the build
// stage. Its tags are a key/value mapping, unlike the task definition's list.
const ContainerSpecSchema = `{
  "type": "object",
  "required": ["containerDefinitions", "cpu", "memory", "tags"],
  "properties": {
    "containerDefinitions": {
      "type": "array",
      "minItems": 1,
      "items": [{"type": "object"}]
    },
    "tags": {
      "type": "object"
    }
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator holds a compiled schema.
type Validator struct {
	name   string
	schema *gojsonschema.Schema
}

// NewValidator compiles schemaJSON. name identifies the document in messages.
func NewValidator(name, schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &Validator{name: name, schema: schema}, nil
}

// MustValidator is NewValidator for the package's built-in schemas.
func MustValidator(name, schemaJSON string) *Validator {
	v, err := NewValidator(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks any value encoding/json can marshal, including jsonorder
// objects.
func (v *Validator) Validate(document interface{}) (*ValidationResult, error) {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", v.name, err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// Check is Validate collapsed into a single error listing every violation.
func (v *Validator) Check(document interface{}) error {
	result, err := v.Validate(document)
	if err != nil {
		return err
	}
	if result.Valid {
		return nil
	}
	return fmt.Errorf("%s is invalid: %s", v.name, strings.Join(result.GetErrorMessages(), "; "))
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, e := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return messages
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, e := range vr.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}
