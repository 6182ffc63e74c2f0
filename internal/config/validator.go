package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// configSchema describes the shape of the run config file. Semantic
// constraints (URL validity, cross-field rules) live in Config.Validate.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "name": { "type": "string" },
    "host": { "type": "string", "minLength": 1 },
    "profiles": {
      "type": "array",
      "items": { "type": "string" },
      "minItems": 1
    },
    "users": { "type": "integer", "minimum": 0 },
    "spawnRate": { "type": "number", "minimum": 0 },
    "rate": { "type": "number", "minimum": 0 },
    "maxVUs": { "type": "integer", "minimum": 0 },
    "duration": { "type": "string", "pattern": "^[0-9]" },
    "timeout": { "type": "string", "pattern": "^[0-9]" },
    "thresholds": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "http_req_duration": { "type": "array", "items": { "type": "string" } },
        "http_req_failed": { "type": "array", "items": { "type": "string" } },
        "http_reqs": { "type": "array", "items": { "type": "string" } }
      }
    }
  }
}`

// ValidationErrors represents a collection of schema validation errors.
type ValidationErrors []error

// Error implements the error interface for ValidationErrors.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// ValidateSchema checks YAML config data against the config schema.
func ValidateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	if doc == nil {
		return nil // Empty file, defaults apply
	}

	// Round-trip through JSON so the schema validator sees plain
	// JSON-compatible values
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("invalid config structure: %w", err)
	}

	var jsonDoc interface{}
	if err := json.Unmarshal(jsonData, &jsonDoc); err != nil {
		return fmt.Errorf("invalid config structure: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.json", strings.NewReader(configSchema)); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	schema, err := compiler.Compile("config.json")
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	if err := schema.Validate(jsonDoc); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return extractValidationErrors(validationErr)
		}
		return err
	}

	return nil
}

// extractValidationErrors flattens a jsonschema.ValidationError tree.
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var errors ValidationErrors

	if err.Message != "" {
		errors = append(errors, fmt.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message))
	}

	for _, childErr := range err.Causes {
		errors = append(errors, extractValidationErrors(childErr)...)
	}

	return errors
}
