package bill

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// OutputSchema returns the JSON Schema (draft 2020-12) every normalized record
// must satisfy. The same document is embedded in the model prompt.
func OutputSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"description", "quantity", "unit_price", "total", "page"},
		"properties": map[string]any{
			"description": map[string]any{"type": "string", "minLength": 1},
			"quantity":    map[string]any{"type": []string{"number", "null"}, "exclusiveMinimum": 0},
			"unit_price":  nullableAmount(),
			"total":       map[string]any{"type": "number", "minimum": 0},
			"page":        map[string]any{"type": []string{"integer", "null"}, "minimum": 1},
		},
	}

	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"vendor", "bill_date", "currency", "line_items", "subtotal", "tax", "grand_total"},
		"properties": map[string]any{
			"vendor":      map[string]any{"type": []string{"string", "null"}},
			"bill_date":   map[string]any{"type": []string{"string", "null"}, "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"currency":    map[string]any{"type": []string{"string", "null"}, "pattern": `^[A-Z]{3}$`},
			"line_items":  map[string]any{"type": "array", "items": item},
			"subtotal":    nullableAmount(),
			"tax":         nullableAmount(),
			"grand_total": nullableAmount(),
		},
	}
}

func nullableAmount() map[string]any {
	return map[string]any{"type": []string{"number", "null"}, "minimum": 0}
}

// compileSchema compiles OutputSchema for validation
func compileSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(OutputSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("bill.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("bill.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// schemaProblems validates a JSON document and flattens the validator's
// error tree into one line per failing location.
func schemaProblems(schema *jsonschema.Schema, data []byte) ([]string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	err := schema.Validate(v)
	if err == nil {
		return nil, nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil, fmt.Errorf("validating: %w", err)
	}
	var problems []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			problems = append(problems, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return problems, nil
}
