package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_MarshalKeepsOrder(t *testing.T) {
	s := Schema{
		Properties: []Property{
			{Name: "size", Type: TypeString},
			{Name: "count", Type: TypeNumber, Description: "how many"},
			{Name: "iced", Type: TypeBoolean},
		},
		Required: []string{"size"},
	}

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t,
		`{"type":"object","properties":{"size":{"type":"string"},"count":{"type":"number","description":"how many"},"iced":{"type":"boolean"}},"required":["size"]}`,
		string(b))

	var back Schema
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, s, back)
}

func TestSchema_EmptyMarshalsAsObject(t *testing.T) {
	b, err := json.Marshal(EmptySchema())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"object","properties":{}}`, string(b))
}

func TestSchema_Validate(t *testing.T) {
	s := Schema{
		Properties: []Property{
			{Name: "name", Type: TypeString},
			{Name: "shots", Type: TypeNumber},
			{Name: "extras", Type: TypeObject},
		},
		Required: []string{"name"},
	}

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"valid", `{"name":"Latte","shots":2}`, false},
		{"extra keys allowed", `{"name":"Latte","foam":true}`, false},
		{"object param", `{"name":"Latte","extras":{"syrup":"vanilla"}}`, false},
		{"missing required", `{"shots":2}`, true},
		{"number for string", `{"name":5}`, true},
		{"string for number", `{"name":"Latte","shots":"two"}`, true},
		{"not an object", `[1,2]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(json.RawMessage(tt.args))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArguments)
			var argErr *ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.NotEmpty(t, argErr.Violations)
		})
	}

	assert.NoError(t, EmptySchema().Validate(nil), "absent arguments are an empty object")
}

type drinkQuery struct {
	Name  string `json:"name" jsonschema:"description=Drink name"`
	Shots int    `json:"shots,omitempty"`
	Iced  bool   `json:"iced,omitempty"`
}

type badQuery struct {
	Names []string `json:"names"`
}

func TestSchemaFor(t *testing.T) {
	s, err := SchemaFor(&drinkQuery{})
	require.NoError(t, err)

	require.Len(t, s.Properties, 3)
	assert.Equal(t, Property{Name: "name", Type: TypeString, Description: "Drink name"}, s.Properties[0])
	assert.Equal(t, Property{Name: "shots", Type: TypeNumber}, s.Properties[1])
	assert.Equal(t, Property{Name: "iced", Type: TypeBoolean}, s.Properties[2])
	assert.Equal(t, []string{"name"}, s.Required)

	_, err = SchemaFor(&badQuery{})
	assert.Error(t, err)
}
