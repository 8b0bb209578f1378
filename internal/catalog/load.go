package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bitop-dev/t2i/internal/schema"
)

// fileSchema describes a catalog file: {"models":[{"id","name","description"}]}.
var fileSchema = json.RawMessage(`{
  "type": "object",
  "required": ["models"],
  "properties": {
    "models": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "string", "pattern": "^[^/\\s]+/[^/\\s]+$"},
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`)

type fileDoc struct {
	Models []Model `json:"models"`
}

// Parse validates raw against the catalog file schema and returns its models.
func Parse(raw []byte) ([]Model, error) {
	if err := schema.Validate(fileSchema, raw); err != nil {
		return nil, fmt.Errorf("catalog file: %w", err)
	}
	var doc fileDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog file: %w", err)
	}
	return doc.Models, nil
}

func LoadFile(path string) ([]Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// WriteFile saves models in the format LoadFile reads. Statuses are not kept.
func WriteFile(path string, models []Model) error {
	b, err := json.MarshalIndent(fileDoc{Models: models}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
