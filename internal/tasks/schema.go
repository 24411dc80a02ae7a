package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedRecord is returned for persisted records that do not describe a task.
var ErrMalformedRecord = errors.New("malformed task record")

const recordSchemaURL = "hivemind://task-record.schema.json"

const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "priority", "location", "id"],
  "properties": {
    "type": {"enum": ["harvest", "fill_container", "upgrade"]},
    "priority": {"type": "integer"},
    "location": {
      "type": "object",
      "required": ["x", "y", "roomName"],
      "properties": {
        "x": {"type": "integer"},
        "y": {"type": "integer"},
        "roomName": {"type": "string", "minLength": 1}
      }
    },
    "id": {"type": "string", "minLength": 1}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

func recordValidator() *jsonschema.Schema {
	schemaOnce.Do(func() {
		schema = jsonschema.MustCompileString(recordSchemaURL, recordSchema)
	})
	return schema
}

// validateRecord checks a raw record against the task record schema.
func validateRecord(record string) error {
	var doc any
	if err := json.Unmarshal([]byte(record), &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := recordValidator().Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}
