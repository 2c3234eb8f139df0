package state

import (
	"bytes"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Value is a Slice holding a plain struct payload. Its serialized form is a
// map keyed by the payload's toml tags.
type Value[T any] struct {
	V T
}

// ValueKind declares a Value slice kind constructed from its initial payload.
func ValueKind[T any](name string) Kind[*Value[T], T] {
	return Define(name, func(initial T) *Value[T] {
		return &Value[T]{V: initial}
	})
}

// Serialize returns a detached copy of the payload built only from
// map[string]any, []any and scalar values. Nothing in it shares storage
// with the live slice.
func (v *Value[T]) Serialize() any {
	return plain(reflect.ValueOf(v.V))
}

var timeType = reflect.TypeFor[time.Time]()

func plain(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return plain(rv.Elem())
	case reflect.Struct:
		if rv.Type() == timeType {
			return rv.Interface()
		}
		out := map[string]any{}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName: "toml",
			Result:  &out,
		})
		if err != nil {
			return nil
		}
		if err := dec.Decode(rv.Interface()); err != nil {
			return nil
		}
		return plain(reflect.ValueOf(out))
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = plain(iter.Value())
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return bytes.Clone(rv.Bytes())
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = plain(rv.Index(i))
		}
		return out
	default:
		return rv.Interface()
	}
}

func (v *Value[T]) Deserialize(raw any) error {
	var next T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "toml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		Result: &next,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return err
	}
	v.V = next
	return nil
}
