package reactive

import (
	"slices"
	"sort"

	"github.com/goliatone/go-reactive/layering"
)

// Engine compiles selector expressions evaluated against the store root.
type Engine interface {
	Name() string
	Compile(expression string) (Program, error)
}

// Program is a compiled selector. Dependencies are the paths the expression
// reads, derived from its syntax tree.
type Program interface {
	Expression() string
	Dependencies() []Path
	Run(root *Object) (any, error)
}

// bind reads every dependency through root, so a surrounding Track captures
// them, and returns plain copies of the top-level values they start from.
func bind(root *Object, deps []Path) map[string]any {
	env := make(map[string]any)
	if root == nil {
		return env
	}
	for _, dep := range deps {
		var current any = root
		for _, segment := range dep {
			w, ok := current.(Wrapper)
			if !ok {
				break
			}
			current = w.Get(segment)
		}
	}
	root.core.store.tracker.Silence(func() {
		for _, dep := range deps {
			if len(dep) == 0 {
				continue
			}
			if _, done := env[dep[0]]; done {
				continue
			}
			if value, ok := root.Lookup(dep[0]); ok {
				env[dep[0]] = materialize(value)
			}
		}
	})
	return env
}

// materialize returns a wrapper-free deep copy of value.
func materialize(value any) any {
	if w, ok := value.(Wrapper); ok {
		return w.Materialize()
	}
	return layering.Clone(value)
}

// normalizeDependencies sorts paths and drops any path that is a prefix of
// another, since reading the longer path records its prefixes too.
func normalizeDependencies(paths []Path) []Path {
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].String() < paths[j].String()
	})
	paths = slices.CompactFunc(paths, func(a, b Path) bool { return a.Equal(b) })
	out := make([]Path, 0, len(paths))
	for i, path := range paths {
		covered := false
		for j, other := range paths {
			if i != j && len(other) > len(path) && other.HasPrefix(path) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, path)
		}
	}
	return out
}

func cacheKey(engine, expression string) string {
	return engine + ":" + expression
}
