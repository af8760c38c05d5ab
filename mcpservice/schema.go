package mcpservice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	gschema "github.com/google/jsonschema-go/jsonschema"
	"github.com/invopop/jsonschema"
)

var errArgumentsNotObject = errors.New("arguments must be a JSON object")

// InputSchema is a compiled tool input schema.
type InputSchema struct {
	doc      json.RawMessage
	resolved *gschema.Resolved
}

// JSON returns the schema document advertised to clients.
func (s *InputSchema) JSON() json.RawMessage { return s.doc }

// Validate checks payload against the schema. An empty or null payload is
// treated as an empty object.
func (s *InputSchema) Validate(payload json.RawMessage) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return errArgumentsNotObject
	}
	return s.resolved.Validate(v)
}

// reflectInputSchema reflects A into a JSON Schema document and compiles it.
func reflectInputSchema[A any](allowAdditional bool) (*InputSchema, error) {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditional,
	}
	var zero A
	reflected := r.Reflect(&zero)

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("marshal reflected schema: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode reflected schema: %w", err)
	}
	delete(doc, "$schema")
	delete(doc, "$id")
	if _, ok := doc["type"]; !ok {
		doc["type"] = "object"
	}

	return compileSchema(doc)
}

func compileSchema(doc map[string]any) (*InputSchema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var s gschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return &InputSchema{doc: raw, resolved: resolved}, nil
}
