package reader

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/magnetmeta/types"
)

// ReadDocument decodes a JSON or YAML array of objects and returns the
// string value of field from each, in document order. An entry without the
// field, or with a non-string value, is an error naming its position.
func ReadDocument(r io.Reader, format Format, field string) ([]types.Identifier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, ErrNoIdentifiers
	}

	var records []map[string]any
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &records)
	default:
		err = json.Unmarshal(data, &records)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s document: %w", format, err)
	}

	return identifiersFromRecords(records, field)
}

func identifiersFromRecords(records []map[string]any, field string) ([]types.Identifier, error) {
	ids := make([]types.Identifier, 0, len(records))
	for i, rec := range records {
		v, ok := rec[field]
		if !ok {
			return nil, fmt.Errorf("entry %d: missing %q field", i, field)
		}
		s := strings.TrimSpace(toString(v))
		if s == "" {
			return nil, fmt.Errorf("entry %d: %q must be a non-empty string", i, field)
		}
		ids = append(ids, types.Identifier(s))
	}
	if len(ids) == 0 {
		return nil, ErrNoIdentifiers
	}
	return ids, nil
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
