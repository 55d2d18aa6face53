package server

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const extractRequestSchema = `{
  "type": "object",
  "required": ["name", "content"],
  "properties": {
    "name":       {"type": "string", "minLength": 1, "maxLength": 1024},
    "media_type": {"type": "string", "maxLength": 255},
    "content":    {"type": "string"}
  },
  "additionalProperties": false
}`

const extractableRequestSchema = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name":       {"type": "string", "minLength": 1, "maxLength": 1024},
    "media_type": {"type": "string", "maxLength": 255}
  },
  "additionalProperties": false
}`

const attemptsRequestSchema = `{
  "type": "object",
  "properties": {
    "status": {"enum": ["RUNNING", "TEXT_OK", "EMPTY", "FAILED"]},
    "format": {"enum": ["PDF", "WORD", "SPREADSHEET", "IMAGE", "UNSUPPORTED"]},
    "limit":  {"type": "number", "minimum": 0, "maximum": 1000},
    "offset": {"type": "number", "minimum": 0},
    "since":  {"type": "string", "format": "date-time"}
  },
  "additionalProperties": false
}`

var (
	extractSchema     = mustCompile("extract.json", extractRequestSchema)
	extractableSchema = mustCompile("extractable.json", extractableRequestSchema)
	attemptsSchema    = mustCompile("attempts.json", attemptsRequestSchema)
)

func mustCompile(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// validate checks a decoded JSON object against schema.
func validate(schema *jsonschema.Schema, v map[string]any) error {
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("request does not match schema: %w", err)
	}
	return nil
}
