package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
)

// Valid reports whether t is one of the supported parameter types.
func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeObject:
		return true
	}
	return false
}

// Property is a single named tool parameter.
type Property struct {
	Name        string
	Type        ParamType
	Description string
}

// Schema is the input schema of a tool: an object with typed properties.
// Properties keep their declaration order on the wire.
type Schema struct {
	Properties []Property
	Required   []string
}

// EmptySchema is the schema of a tool that takes no arguments.
func EmptySchema() Schema { return Schema{} }

// Property looks up a property by name.
func (s Schema) Property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Check verifies that every property has a name and a supported type, that
// names are unique and that required names are declared.
func (s Schema) Check() error {
	seen := make(map[string]struct{}, len(s.Properties))
	for _, p := range s.Properties {
		if p.Name == "" {
			return fmt.Errorf("property name must not be empty")
		}
		if !p.Type.Valid() {
			return fmt.Errorf("property %q: unsupported type %q", p.Name, p.Type)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("property %q declared twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	for _, r := range s.Required {
		if _, ok := seen[r]; !ok {
			return fmt.Errorf("required property %q is not declared", r)
		}
	}
	return nil
}

type propertyJSON struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
}

func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)
	for i, p := range s.Properties {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(propertyJSON{Type: p.Type, Description: p.Description})
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')

	if len(s.Required) > 0 {
		req, err := json.Marshal(s.Required)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"required":`)
		buf.Write(req)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a schema sent by a peer, keeping property order.
// Unsupported property types are kept as-is so the client can still list
// the tool; they are only rejected at registration.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var doc struct {
		Properties json.RawMessage `json:"properties"`
		Required   []string        `json:"required"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*s = Schema{Required: doc.Required}
	if len(doc.Properties) == 0 || string(doc.Properties) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(doc.Properties))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("schema properties must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)

		var prop propertyJSON
		if err := dec.Decode(&prop); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		s.Properties = append(s.Properties, Property{Name: name, Type: prop.Type, Description: prop.Description})
	}
	return nil
}

// Validate type-checks args against the schema. A nil or empty args is
// treated as an empty object. Violations are reported as ErrInvalidArguments.
func (s Schema) Validate(args json.RawMessage) error {
	if len(bytes.TrimSpace(args)) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}

	schemaJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(args),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return &ArgumentError{Violations: errorMessages}
	}
	return nil
}

// ArgumentError lists the schema violations found in tool arguments.
type ArgumentError struct {
	Violations []string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidArguments, strings.Join(e.Violations, "; "))
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidArguments }

// SchemaFor derives a Schema from the exported fields of a struct using its
// json tags. Integer fields map to number. Fields of any other kind, such as
// slices, are rejected.
func SchemaFor(v interface{}) (Schema, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	js := r.Reflect(v)
	if js == nil || js.Type != "object" {
		return Schema{}, fmt.Errorf("cannot derive schema from %T", v)
	}

	var s Schema
	if js.Properties == nil {
		return s, nil
	}
	for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
		t := ParamType(pair.Value.Type)
		if t == "integer" {
			t = TypeNumber
		}
		if !t.Valid() {
			return Schema{}, fmt.Errorf("field %q: unsupported type %q", pair.Key, pair.Value.Type)
		}
		s.Properties = append(s.Properties, Property{
			Name:        pair.Key,
			Type:        t,
			Description: pair.Value.Description,
		})
	}
	s.Required = append(s.Required, js.Required...)

	if err := s.Check(); err != nil {
		return Schema{}, err
	}
	return s, nil
}
