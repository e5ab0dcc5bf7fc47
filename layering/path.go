package layering

import "strconv"

// Lookup walks path through root and returns the value found there. Sequence
// segments must be decimal indexes.
func Lookup(root any, path []string) (any, bool) {
	current := root
	for _, segment := range path {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			normalized := Normalize(current)
			switch normalized.(type) {
			case map[string]any, []any:
				current = normalized
				value, ok := Lookup(current, []string{segment})
				if !ok {
					return nil, false
				}
				current = value
			default:
				return nil, false
			}
		}
	}
	return current, true
}

// SetIn returns a copy of root with value placed at path. Every map along the
// path is shallow-copied, so root and any branch not on the path are left
// untouched. Missing or non-map intermediates are replaced by fresh maps.
func SetIn(root map[string]any, path []string, value any) map[string]any {
	out := make(map[string]any, len(root)+1)
	for key, item := range root {
		out[key] = item
	}
	if len(path) == 0 {
		if m, ok := value.(map[string]any); ok {
			return CloneMap(m)
		}
		return out
	}
	head := path[0]
	if len(path) == 1 {
		out[head] = value
		return out
	}
	child, _ := Normalize(out[head]).(map[string]any)
	out[head] = SetIn(child, path[1:], value)
	return out
}

// Without returns a deep copy of value with every listed path removed. Paths
// are relative to value.
func Without(value any, paths [][]string) any {
	out := Clone(value)
	for _, path := range paths {
		out = removePath(out, path)
	}
	return out
}

func removePath(value any, path []string) any {
	if len(path) == 0 {
		return value
	}
	node, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if len(path) == 1 {
		delete(node, path[0])
		return node
	}
	if child, ok := node[path[0]]; ok {
		node[path[0]] = removePath(child, path[1:])
	}
	return node
}
