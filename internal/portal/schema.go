package portal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const listEnvelopeSchema = `{
  "type": "object",
  "required": ["items", "total"],
  "properties": {
    "items": {"type": "array"},
    "total": {"type": "integer", "minimum": 0},
    "page":  {"type": "integer", "minimum": 0},
    "limit": {"type": "integer", "minimum": 0}
  }
}`

const createdEntrySchema = `{
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": {"type": ["string", "integer"]}
  }
}`

var (
	listEnvelope = compileSchema(listEnvelopeSchema)
	createdEntry = compileSchema(createdEntrySchema)
)

func compileSchema(src string) func() (*gojsonschema.Schema, error) {
	return sync.OnceValues(func() (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	})
}

// validateDocument checks a response body against a compiled schema and
// returns a descriptive error listing every violation.
func validateDocument(schema func() (*gojsonschema.Schema, error), data []byte) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}
