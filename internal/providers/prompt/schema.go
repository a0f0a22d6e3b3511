package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const scriptSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "panels"],
  "properties": {
    "title": {"type": "string", "minLength": 1, "maxLength": 120},
    "panels": {
      "type": "array",
      "minItems": 1,
      "maxItems": 12,
      "items": {"type": "string", "minLength": 1}
    },
    "final_prompt": {"type": "string"}
  }
}`

var (
	scriptSchemaOnce sync.Once
	scriptSchema     *jsonschema.Schema
	scriptSchemaErr  error
)

func compiledScriptSchema() (*jsonschema.Schema, error) {
	scriptSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("script.json", strings.NewReader(scriptSchemaJSON)); err != nil {
			scriptSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		scriptSchema, scriptSchemaErr = compiler.Compile("script.json")
		if scriptSchemaErr != nil {
			scriptSchemaErr = fmt.Errorf("compile schema: %w", scriptSchemaErr)
		}
	})
	return scriptSchema, scriptSchemaErr
}

// validateScriptJSON checks a model reply against the script schema before it
// is decoded.
func validateScriptJSON(data []byte) error {
	schema, err := compiledScriptSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
