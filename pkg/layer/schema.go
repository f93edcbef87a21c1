package layer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidManifest wraps schema violations.
var ErrInvalidManifest = errors.New("invalid layer manifest")

const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["file_format_version"],
  "properties": {
    "file_format_version": {"type": "string", "minLength": 1},
    "layer": {"$ref": "#/definitions/layer"},
    "layers": {"type": "array", "items": {"$ref": "#/definitions/layer"}}
  },
  "anyOf": [
    {"required": ["layer"]},
    {"required": ["layers"]}
  ],
  "definitions": {
    "layer": {
      "type": "object",
      "required": ["name", "api_version"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "type": {"type": "string"},
        "library_path": {"type": "string"},
        "api_version": {"type": "string"},
        "description": {"type": "string"},
        "settings": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["key"],
            "properties": {
              "key": {"type": "string", "minLength": 1},
              "type": {"type": "string"},
              "options": {"type": "array"}
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchema))
	})
	return compiledSchema, schemaErr
}

// ValidateManifest checks raw manifest bytes against the manifest schema.
func ValidateManifest(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compile manifest schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(issues, "; "))
	}
	return nil
}
