package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Values is an application-wide configuration tree of plain values.
type Values = map[string]any

// LoadFile decodes the TOML file at path into plain values.
func LoadFile(path string) (Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	out := Values{}
	if _, err := toml.Decode(string(data), &out); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return out, nil
}

// Slice parses values[key] with schema. A nil schema yields an empty object.
func Slice(values Values, key string, schema Schema) (any, error) {
	if schema == nil {
		return map[string]any{}, nil
	}
	var raw any
	if values != nil {
		raw = values[key]
	}
	parsed, err := schema.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Key: key, Err: err}
	}
	return parsed, nil
}

// Clone deep-copies nested maps and lists of values.
func Clone(values Values) Values {
	if values == nil {
		return Values{}
	}
	return cloneValue(values).(Values)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
