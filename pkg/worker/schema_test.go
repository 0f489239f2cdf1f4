package worker

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	City string `json:"city"`
}

type schemaInput struct {
	Name     string                 `json:"name"`
	Age      int                    `json:"age"`
	Score    float64                `json:"score,omitempty"`
	Active   bool                   `json:"active"`
	Tags     []string               `json:"tags,omitempty"`
	Address  nested                 `json:"address"`
	Optional *string                `json:"optional,omitempty"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
	Ignored  string                 `json:"-"`
	hidden   string
}

func TestGenerateSchema(t *testing.T) {
	_ = schemaInput{hidden: ""}.hidden

	schema := generateSchema(reflect.TypeOf(schemaInput{}))
	require.NotNil(t, schema)

	assert.Equal(t, "http://json-schema.org/draft-07/schema#", schema["$schema"])
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)

	assert.Equal(t, map[string]interface{}{"type": "string"}, props["name"])
	assert.Equal(t, map[string]interface{}{"type": "integer"}, props["age"])
	assert.Equal(t, map[string]interface{}{"type": "number"}, props["score"])
	assert.Equal(t, map[string]interface{}{"type": "boolean"}, props["active"])
	assert.Equal(t, map[string]interface{}{
		"type":  "array",
		"items": map[string]interface{}{"type": "string"},
	}, props["tags"])
	assert.Equal(t, map[string]interface{}{"type": "object"}, props["extra"])

	address, ok := props["address"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "object", address["type"])

	// Optional pointer fields are present but not required.
	assert.Contains(t, props, "optional")
	assert.NotContains(t, props, "Ignored")
	assert.NotContains(t, props, "hidden")

	required, ok := schema["required"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"name", "age", "active", "address"}, required)
}

func TestGenerateSchema_Primitive(t *testing.T) {
	schema := generateSchema(reflect.TypeOf(""))
	require.NotNil(t, schema)
	assert.Equal(t, "string", schema["type"])
}

func TestGenerateSchema_Interface(t *testing.T) {
	schema := generateSchema(reflect.TypeOf((*interface{})(nil)).Elem())
	require.NotNil(t, schema)
	assert.Equal(t, "http://json-schema.org/draft-07/schema#", schema["$schema"])
}
