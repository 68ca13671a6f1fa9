package jsonmap

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JSONMap represents a JSON object as a map.
type JSONMap map[string]interface{}

// ToJSON serializes the JSONMap to JSON.
func (m *JSONMap) ToJSON() ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("JSONMap is nil")
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONMap: %w", err)
	}
	return data, nil
}

// Canonicalize returns the RFC 8785 canonical form of the JSONMap. Key order
// and number formatting of the input never change the result.
func (m *JSONMap) Canonicalize() ([]byte, error) {
	data, err := m.ToJSON()
	if err != nil {
		return nil, err
	}

	canonical, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize JSONMap: %w", err)
	}
	return canonical, nil
}

// Normalize returns a copy of the JSONMap as plain decoded JSON: nested
// structs become maps, typed slices become []interface{} and numbers float64.
func (m *JSONMap) Normalize() (JSONMap, error) {
	data, err := m.ToJSON()
	if err != nil {
		return nil, err
	}

	var out JSONMap
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize JSONMap: %w", err)
	}
	return out, nil
}

// String returns the value of key if it is a string.
func (m JSONMap) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Map returns the value of key if it is a JSON object.
func (m JSONMap) Map(key string) (JSONMap, bool) {
	switch v := m[key].(type) {
	case map[string]interface{}:
		return JSONMap(v), true
	case JSONMap:
		return v, true
	default:
		return nil, false
	}
}
