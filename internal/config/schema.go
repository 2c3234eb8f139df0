package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// Schema parses a raw configuration value into a typed one.
type Schema interface {
	Parse(raw any) (any, error)
}

// SchemaFunc adapts a function to Schema.
type SchemaFunc func(raw any) (any, error)

func (f SchemaFunc) Parse(raw any) (any, error) {
	return f(raw)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// StructSchema decodes raw maps into T using toml field tags and validates
// the result with `validate` struct tags. T must be a struct.
type StructSchema[T any] struct {
	defaults T
	strict   bool
}

type StructOption[T any] func(*StructSchema[T])

// WithDefaults seeds every parse with defaults before decoding.
func WithDefaults[T any](defaults T) StructOption[T] {
	return func(s *StructSchema[T]) {
		s.defaults = defaults
	}
}

// Strict rejects keys that do not map onto a field of T.
func Strict[T any]() StructOption[T] {
	return func(s *StructSchema[T]) {
		s.strict = true
	}
}

// Struct builds a schema producing values of type T.
func Struct[T any](opts ...StructOption[T]) *StructSchema[T] {
	s := &StructSchema[T]{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StructSchema[T]) Parse(raw any) (any, error) {
	return s.ParseTyped(raw)
}

// ParseTyped is Parse without the interface boxing.
func (s *StructSchema[T]) ParseTyped(raw any) (T, error) {
	out := s.defaults
	if raw == nil {
		raw = map[string]any{}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "toml",
		WeaklyTypedInput: true,
		ErrorUnused:      s.strict,
		ZeroFields:       true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(raw); err != nil {
		return out, err
	}
	if err := validate.Struct(out); err != nil {
		return out, err
	}
	return out, nil
}

// As converts a parsed slice back to its concrete type.
func As[T any](parsed any) (T, error) {
	v, ok := parsed.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: got %T, want %T", ErrInvalidConfig, parsed, zero)
	}
	return v, nil
}
