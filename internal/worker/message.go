package worker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const batchMessageSchemaURL = "batch_message.json"

const batchMessageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["job_id", "category", "batch_number", "items"],
  "properties": {
    "job_id": {"type": "string", "minLength": 1},
    "category": {"type": "string", "minLength": 1},
    "batch_number": {"type": "integer", "minimum": 1},
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["item_key"],
        "properties": {
          "item_key": {"type": "string", "minLength": 1},
          "institution_code": {"type": "string"}
        }
      }
    }
  }
}`

// messageValidator checks batch message bodies before they reach the pool
type messageValidator struct {
	schema *jsonschema.Schema
}

func newMessageValidator() (*messageValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(batchMessageSchemaURL, strings.NewReader(batchMessageSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(batchMessageSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &messageValidator{schema: schema}, nil
}

// decode validates body against the batch message schema and decodes it
func (v *messageValidator) decode(body []byte) (domain.BatchMessage, error) {
	var msg domain.BatchMessage

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return msg, fmt.Errorf("%w: %v", domain.ErrInvalidBatchMessage, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return msg, fmt.Errorf("%w: %v", domain.ErrInvalidBatchMessage, err)
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", domain.ErrInvalidBatchMessage, err)
	}
	return msg, nil
}
