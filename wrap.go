package reactive

import (
	"reflect"

	"github.com/goliatone/go-reactive/layering"
)

// Wrapper stands in for a container inside the store. Reads through a Wrapper
// are recorded for dependency tracking; writes notify subscribers and queue
// the affected persistence root.
type Wrapper interface {
	// Path returns where the wrapped container lives.
	Path() Path
	// Get reads a child. Containers come back wrapped when the wrapping
	// policy allows it, everything else as the raw value.
	Get(key string) any
	// Set stores value under key. Wrappers are unwrapped first.
	Set(key string, value any)
	// Delete removes key, reporting whether it existed.
	Delete(key string) bool
	Has(key string) bool
	Keys() []string
	Len() int
	// Raw returns the underlying container without copying it.
	Raw() any
	// Materialize returns a deep, wrapper-free copy.
	Materialize() any
	// ResetToInitial restores the container to the configured initial value
	// at its path. It does nothing when no initial value exists.
	ResetToInitial()
}

func (c *core) recordRead(path Path) {
	c.store.tracker.RecordRead(path)
	c.usage.recordRead(path)
}

// shouldWrap applies the depth limit and the selectivity policy to a nested
// container at path.
func (c *core) shouldWrap(path Path, depth int) bool {
	cfg := c.store.cfg
	if !cfg.Wrapping.Enabled || depth > cfg.Wrapping.MaxDepth {
		return false
	}
	priority := matchesAny(path, c.priority)
	if cfg.Memory.ShedUnderPressure && !priority &&
		c.pressure.check(c.cache.size(), c.usage.trackedCount()) {
		return false
	}
	if cfg.Wrapping.UltraSelective && !priority &&
		!matchesAny(path, c.preRegistered) && !c.usage.wasTracked(path) {
		return false
	}
	return true
}

// wrap returns the wrapper registered for value's identity or builds and
// registers a new one. Scalars and foreign values come back unchanged.
func (c *core) wrap(value any, path Path, depth int) any {
	if !c.store.cfg.Wrapping.Enabled {
		return value
	}
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return value
		}
		id, _ := identityOf(v)
		if cached, ok := c.cache.lookup(id).(*Object); ok {
			return cached
		}
		obj := &Object{core: c, path: path, depth: depth, data: v}
		c.cache.insert(id, obj)
		return obj
	case []any:
		id, hasID := identityOf(v)
		if hasID {
			if cached, ok := c.cache.lookup(id).(*Array); ok && c.holds(cached, v) {
				return cached
			}
		}
		arr := &Array{core: c, path: path, depth: depth, items: v}
		if hasID {
			c.cache.insert(id, arr)
		}
		return arr
	}
	return value
}

func (c *core) holds(arr *Array, items []any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sameSlice(arr.itemsLocked(), items)
}

// child converts a raw value read at path into what readers see. Foreign
// containers (map[string]T, []T, arrays) are replaced in the tree by a plain
// shallow copy through replace before being wrapped.
func (c *core) child(value any, path Path, depth int, replace func(any)) any {
	if !isContainer(value) || !c.shouldWrap(path, depth) {
		return value
	}
	plain := value
	switch v := value.(type) {
	case map[string]any:
	case []any:
		if cap(v) == 0 {
			plain = backed(v)
			replace(plain)
		}
	default:
		plain = backed(layering.Normalize(value))
		replace(plain)
	}
	return c.wrap(plain, path, depth)
}

// backed gives an empty sequence its own backing array. Zero-capacity slices
// share storage with every other empty slice, so they have no identity to
// cache a wrapper under.
func backed(value any) any {
	if items, ok := value.([]any); ok && cap(items) == 0 {
		return make([]any, 0, 1)
	}
	return value
}

// unwrapNested replaces wrappers found anywhere inside value with their raw
// containers, so the live tree only ever holds plain data. Containers are
// rewritten in place and only where a wrapper was found.
func unwrapNested(value any) (any, bool) {
	switch v := value.(type) {
	case Wrapper:
		return v.Raw(), true
	case map[string]any:
		for key, child := range v {
			if raw, changed := unwrapNested(child); changed {
				v[key] = raw
			}
		}
	case []any:
		for i, child := range v {
			if raw, changed := unwrapNested(child); changed {
				v[i] = raw
			}
		}
	default:
		if !mayHoldWrappers(value) {
			return value, false
		}
		switch plain := layering.Normalize(value).(type) {
		case map[string]any, []any:
			raw, _ := unwrapNested(plain)
			return raw, true
		}
	}
	return value, false
}

var wrapperType = reflect.TypeFor[Wrapper]()

// mayHoldWrappers reports whether a typed container has an element type a
// wrapper can be stored in.
func mayHoldWrappers(value any) bool {
	if value == nil {
		return false
	}
	t := reflect.TypeOf(value)
	switch t.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		elem := t.Elem()
		return elem.Kind() == reflect.Interface || elem.Implements(wrapperType)
	}
	return false
}

// prepare turns a value about to be stored into its raw form and registers a
// wrapper for fresh containers so later reads hit the cache. Wrappers nested
// in plain containers are unwrapped too.
func (c *core) prepare(value any, path Path, depth int) any {
	if w, ok := value.(Wrapper); ok {
		return w.Raw()
	}
	plain := backed(layering.Normalize(value))
	plain, _ = unwrapNested(plain)
	switch plain.(type) {
	case map[string]any, []any:
		if c.shouldWrap(path, depth) {
			c.wrap(plain, path, depth)
		}
	}
	return plain
}

// commit notifies subscribers of path and queues its persistence root.
func (c *core) commit(path Path) {
	if c.detached.Load() {
		return
	}
	c.store.registry.Notify(path.String())
	c.store.persister.Enqueue(path)
}

// commitSequence notifies the sequence path once plus every touched index.
func (c *core) commitSequence(path Path, touched []Path) {
	if c.detached.Load() {
		return
	}
	paths := make([]string, 0, len(touched)+1)
	paths = append(paths, path.String())
	for _, index := range touched {
		paths = append(paths, index.String())
	}
	c.store.registry.NotifyAll(paths...)
	c.store.persister.Enqueue(path)
}

// initialAt returns a deep copy of the configured initial value at path.
func (c *core) initialAt(path Path) (any, bool) {
	if c.detached.Load() || c.initial == nil {
		return nil, false
	}
	value, ok := layering.Lookup(c.initial, path)
	if !ok {
		return nil, false
	}
	return layering.Clone(value), true
}

// lookupLocked navigates the live tree. The caller holds c.mu.
func (c *core) lookupLocked(path Path) (any, bool) {
	var current any = c.root
	for _, segment := range path {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			index, ok := parseIndex(segment)
			if !ok || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

func isContainer(value any) bool {
	switch value.(type) {
	case nil:
		return false
	case map[string]any, []any:
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String && !rv.IsNil()
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8 && !rv.IsNil()
	case reflect.Array:
		return true
	}
	return false
}

func sameSlice(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	if cap(a) == 0 || cap(b) == 0 {
		return cap(a) == cap(b)
	}
	return &a[:1][0] == &b[:1][0]
}
