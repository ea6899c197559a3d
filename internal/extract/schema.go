package extract

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schema is a named JSON Schema definition.
type schema struct {
	name       string
	definition map[string]any
}

var scalarTypes = []any{"string", "number", "boolean"}

var questionSchema = schema{
	name: "exam-question",
	definition: map[string]any{
		"type":     "object",
		"required": []any{"id", "question", "answer"},
		"properties": map[string]any{
			"id":       map[string]any{"type": []any{"string", "integer"}, "minLength": 1},
			"question": map[string]any{"type": "string", "minLength": 1},
			"options": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": scalarTypes},
			},
			"answer": map[string]any{"type": scalarTypes, "minLength": 1},
			"rubric": map[string]any{"type": "object"},
		},
	},
}

var gradeSchema = schema{
	name: "grading-result",
	definition: map[string]any{
		"type":     "object",
		"required": []any{"score", "feedback"},
		"properties": map[string]any{
			"score":    map[string]any{"type": []any{"number", "string"}},
			"feedback": map[string]any{"type": "string"},
		},
	},
}

// compiled caches compiled schemas by name.
var compiled sync.Map // map[string]*jsonschema.Schema

func validate(s schema, v any) error {
	c, err := compile(s)
	if err != nil {
		return err
	}
	return c.Validate(v)
}

func compile(s schema) (*jsonschema.Schema, error) {
	if c, ok := compiled.Load(s.name); ok {
		return c.(*jsonschema.Schema), nil
	}

	// The compiler expects a plain decoded JSON value.
	b, err := json.Marshal(s.definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", s.name, err)
	}
	var def any
	if err := json.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", s.name, err)
	}

	compiler := jsonschema.NewCompiler()
	url := "schema://" + s.name + ".json"
	if err := compiler.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", s.name, err)
	}
	c, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", s.name, err)
	}
	compiled.Store(s.name, c)
	return c, nil
}
