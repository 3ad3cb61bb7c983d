package jsonx

import (
	"reflect"

	"github.com/goccy/go-json"
)

// ToDynamicJSON converts any Go value to a dynamic JSON object represented as a map[string]any.
// It first marshals the input value to JSON bytes and then unmarshals those bytes into a map.
// A nil map input yields an empty map.
func ToDynamicJSON(val any) (map[string]any, error) {
	if m, ok := val.(map[string]any); ok {
		if m == nil {
			return map[string]any{}, nil
		}
		return CloneMap(m), nil
	}
	result := make(map[string]any)
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CloneMap returns a deep copy of the map. Nested maps and slices are copied
// recursively, pointers and other reference values are shared.
func CloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = Clone(v)
	}
	return dst
}

// Merge returns a new map holding a deep copy of base with every key of overlay
// applied on top. Overlay values win on conflicts. Neither input is modified.
func Merge(base, overlay map[string]any) map[string]any {
	dst := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		dst[k] = Clone(v)
	}
	for k, v := range overlay {
		dst[k] = Clone(v)
	}
	return dst
}

// Clone returns a deep copy of the value for the container shapes found in
// decoded JSON and hand-built payloads: maps and slices of any element type.
// Scalars are returned as is.
func Clone(v any) any {
	switch tv := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return CloneMap(tv)
	case []any:
		if tv == nil {
			return tv
		}
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = Clone(e)
		}
		return out
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return tv
	}
	return cloneValue(reflect.ValueOf(v)).Interface()
}

func cloneValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), v.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneElem(v.Index(i), v.Type().Elem()))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneElem(v.Index(i), v.Type().Elem()))
		}
		return out
	default:
		return v
	}
}

func cloneElem(v reflect.Value, typ reflect.Type) reflect.Value {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(typ)
		}
		return reflect.ValueOf(Clone(v.Elem().Interface()))
	}
	return cloneValue(v)
}
