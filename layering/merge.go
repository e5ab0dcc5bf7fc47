// Package layering holds the plain-data toolbox shared by the reactive store
// and its persistence layer: deep clones, layered merges, normalisation of
// foreign container types, and path lookups/overlays that never mutate their
// input.
package layering

import "reflect"

// MergeLayers composes plain data trees ordered from strongest to weakest,
// returning a new tree that keeps values from stronger layers while filling any
// missing keys from weaker ones. Maps merge recursively; any other value
// (slices included) is taken whole from the strongest layer that defines it.
func MergeLayers(layers ...any) any {
	if len(layers) == 0 {
		return nil
	}
	merged := Clone(layers[len(layers)-1])
	for i := len(layers) - 2; i >= 0; i-- {
		merged = mergeValue(layers[i], merged)
	}
	return merged
}

// MergeMaps is MergeLayers specialised for map roots. A nil result is
// replaced by an empty map.
func MergeMaps(layers ...map[string]any) map[string]any {
	values := make([]any, 0, len(layers))
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		values = append(values, layer)
	}
	merged, _ := MergeLayers(values...).(map[string]any)
	if merged == nil {
		return map[string]any{}
	}
	return merged
}

func mergeValue(strong, weak any) any {
	if strong == nil {
		return Clone(weak)
	}
	strongMap, ok := Normalize(strong).(map[string]any)
	if !ok {
		return Clone(strong)
	}
	weakMap, ok := weak.(map[string]any)
	if !ok {
		return Clone(strongMap)
	}
	result := make(map[string]any, len(strongMap)+len(weakMap))
	for key, value := range weakMap {
		result[key] = value
	}
	for key, value := range strongMap {
		if existing, ok := result[key]; ok {
			result[key] = mergeValue(value, existing)
			continue
		}
		result[key] = Clone(value)
	}
	return result
}

// Clone returns a deep copy of a plain data tree. Foreign container types are
// normalised into map[string]any / []any on the way.
func Clone(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		if v == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Clone(item)
		}
		return out
	case []any:
		if v == nil {
			return []any(nil)
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v
	}
	normalized := Normalize(value)
	switch normalized.(type) {
	case map[string]any, []any:
		return Clone(normalized)
	}
	return cloneValue(reflect.ValueOf(value)).Interface()
}

// CloneMap deep copies m, returning an empty map for nil input.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return Clone(m).(map[string]any)
}

// Normalize converts containers whose static type cannot hold arbitrary
// children (map[string]T, []T, [N]T) into a shallow map[string]any / []any
// copy. Plain containers, nil, and scalars are returned unchanged.
func Normalize(value any) any {
	switch value.(type) {
	case nil, map[string]any, []any:
		return value
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			return value
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Slice:
		if rv.IsNil() || rv.Type().Elem().Kind() == reflect.Uint8 {
			return value
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return value
}

// IsContainer reports whether value is (or normalises into) a map or sequence.
func IsContainer(value any) bool {
	switch Normalize(value).(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func cloneValue(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.New(v.Type().Elem())
		clone.Elem().Set(cloneValue(v.Elem()))
		return clone
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := cloneValue(v.Elem())
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		return elem.Convert(v.Type())
	case reflect.Struct:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			field := clone.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(cloneValue(v.Field(i)))
		}
		return clone
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return clone
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i)))
		}
		return clone
	case reflect.Array:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i)))
		}
		return clone
	default:
		return reflect.ValueOf(v.Interface())
	}
}
