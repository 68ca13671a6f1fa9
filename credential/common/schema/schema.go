// Package schema validates the JSON shape of credentials before they are signed.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pilacorp/go-trackback-agent/credential/common/jsonmap"
)

// ErrSchemaViolation is returned when a credential does not satisfy a schema.
var ErrSchemaViolation = errors.New("credential schema violation")

// credentialShape is the minimal structure every credential must have.
const credentialShape = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["@context", "type", "issuer", "credentialSubject"],
  "properties": {
    "@context": {
      "anyOf": [
        {"type": "string"},
        {"type": "array", "minItems": 1}
      ]
    },
    "id": {"type": "string"},
    "type": {
      "anyOf": [
        {"const": "VerifiableCredential"},
        {"type": "array", "items": {"type": "string"}, "contains": {"const": "VerifiableCredential"}}
      ]
    },
    "issuer": {
      "anyOf": [
        {"type": "string", "minLength": 1},
        {"type": "object", "required": ["id"], "properties": {"id": {"type": "string", "minLength": 1}}}
      ]
    },
    "issuanceDate": {"type": "string", "format": "date-time"},
    "expirationDate": {"type": "string", "format": "date-time"},
    "credentialSubject": {
      "anyOf": [
        {"type": "object"},
        {"type": "array", "minItems": 1, "items": {"type": "object"}}
      ]
    },
    "credentialSchema": {
      "anyOf": [
        {"type": "object", "required": ["id"]},
        {"type": "array", "items": {"type": "object", "required": ["id"]}}
      ]
    }
  }
}`

var shapeSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(credentialShape))
})

// Loader returns the schema document published under id.
type Loader func(id string) gojsonschema.JSONLoader

// ReferenceLoader fetches schemas by URL, the default Loader.
func ReferenceLoader(id string) gojsonschema.JSONLoader {
	return gojsonschema.NewReferenceLoader(id)
}

// ValidateCredential checks the built-in credential shape.
func ValidateCredential(doc jsonmap.JSONMap) error {
	s, err := shapeSchema()
	if err != nil {
		return fmt.Errorf("failed to compile credential shape: %w", err)
	}

	normalized, err := doc.Normalize()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(normalized))
	if err != nil {
		return fmt.Errorf("failed to validate credential shape: %w", err)
	}

	return resultError(result)
}

// ValidateAgainst checks doc against an arbitrary JSON schema.
func ValidateAgainst(doc jsonmap.JSONMap, schemaLoader gojsonschema.JSONLoader) error {
	normalized, err := doc.Normalize()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(normalized))
	if err != nil {
		return fmt.Errorf("failed to validate schema: %w", err)
	}

	return resultError(result)
}

// ValidateCredentialSchemas validates doc against every entry of its
// credentialSchema property, loading each schema by id. A credential without
// credentialSchema passes.
func ValidateCredentialSchemas(doc jsonmap.JSONMap, load Loader) error {
	if load == nil {
		load = ReferenceLoader
	}

	normalized, err := doc.Normalize()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}

	var entries []interface{}
	switch v := normalized["credentialSchema"].(type) {
	case nil:
		return nil
	case []interface{}:
		entries = v
	default:
		entries = []interface{}{v}
	}

	for _, entry := range entries {
		var id string
		if e, ok := entry.(map[string]interface{}); ok {
			id, _ = e["id"].(string)
		}
		if id == "" {
			return fmt.Errorf("%w: credentialSchema.id must be a non-empty string", ErrSchemaViolation)
		}

		if err := ValidateAgainst(normalized, load(id)); err != nil {
			return fmt.Errorf("schema %s: %w", id, err)
		}
	}

	return nil
}

func resultError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}

	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
}
