package reactive

import (
	"sort"

	"github.com/goliatone/go-reactive/layering"
)

// Object wraps a map[string]any inside the store.
type Object struct {
	core  *core
	path  Path
	depth int
	data  map[string]any
}

var _ Wrapper = (*Object)(nil)

func (o *Object) Path() Path { return append(Path(nil), o.path...) }

func (o *Object) Get(key string) any {
	path := o.path.Child(key)
	o.core.recordRead(path)

	o.core.mu.RLock()
	value, ok := o.data[key]
	o.core.mu.RUnlock()
	if !ok {
		return nil
	}
	return o.core.child(value, path, o.depth+1, func(plain any) {
		o.core.mu.Lock()
		o.data[key] = plain
		o.core.mu.Unlock()
	})
}

// Lookup is Get with an explicit presence flag.
func (o *Object) Lookup(key string) (any, bool) {
	if !o.Has(key) {
		return nil, false
	}
	return o.Get(key), true
}

// Object returns the child at key when it is a wrapped map.
func (o *Object) Object(key string) (*Object, bool) {
	child, ok := o.Get(key).(*Object)
	return child, ok
}

// Array returns the child at key when it is a wrapped sequence.
func (o *Object) Array(key string) (*Array, bool) {
	child, ok := o.Get(key).(*Array)
	return child, ok
}

// GetPath reads a dot path relative to o, recording every step.
func (o *Object) GetPath(path string) any {
	var current any = o
	for _, segment := range ParsePath(path) {
		w, ok := current.(Wrapper)
		if !ok {
			return nil
		}
		current = w.Get(segment)
	}
	return current
}

func (o *Object) Set(key string, value any) {
	path := o.path.Child(key)
	raw := o.core.prepare(value, path, o.depth+1)
	o.core.mu.Lock()
	o.data[key] = raw
	o.core.mu.Unlock()
	o.core.commit(path)
}

func (o *Object) Delete(key string) bool {
	o.core.mu.Lock()
	_, ok := o.data[key]
	if ok {
		delete(o.data, key)
	}
	o.core.mu.Unlock()
	if ok {
		o.core.commit(o.path.Child(key))
	}
	return ok
}

func (o *Object) Has(key string) bool {
	o.core.recordRead(o.path.Child(key))
	o.core.mu.RLock()
	defer o.core.mu.RUnlock()
	_, ok := o.data[key]
	return ok
}

// Keys returns the keys in lexical order.
func (o *Object) Keys() []string {
	o.core.recordRead(o.path)
	return o.keys()
}

func (o *Object) keys() []string {
	o.core.mu.RLock()
	keys := make([]string, 0, len(o.data))
	for key := range o.data {
		keys = append(keys, key)
	}
	o.core.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (o *Object) Len() int {
	o.core.recordRead(o.path)
	o.core.mu.RLock()
	defer o.core.mu.RUnlock()
	return len(o.data)
}

func (o *Object) Raw() any { return o.data }

// Map returns the underlying map without copying it.
func (o *Object) Map() map[string]any { return o.data }

func (o *Object) Materialize() any {
	return o.Snapshot()
}

// Snapshot returns a deep, wrapper-free copy of the map.
func (o *Object) Snapshot() map[string]any {
	o.core.recordRead(o.path)
	o.core.mu.RLock()
	defer o.core.mu.RUnlock()
	return layering.CloneMap(o.data)
}

// Merge assigns every entry of values through Set, in key order, leaving
// other keys alone. Each key notifies on its own.
func (o *Object) Merge(values map[string]any) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		o.Set(key, values[key])
	}
}

// Replace deletes every current key, then assigns values through Set.
func (o *Object) Replace(values map[string]any) {
	for _, key := range o.keys() {
		o.Delete(key)
	}
	o.Merge(values)
}

// DeleteKeys deletes each key and returns how many existed.
func (o *Object) DeleteKeys(keys ...string) int {
	removed := 0
	for _, key := range keys {
		if o.Delete(key) {
			removed++
		}
	}
	return removed
}

// Update stores fn(current) under key. The read of the current value is not
// tracked.
func (o *Object) Update(key string, fn func(current any) any) {
	if fn == nil {
		return
	}
	var current any
	o.core.store.tracker.Silence(func() { current = o.Get(key) })
	o.Set(key, fn(current))
}

func (o *Object) ResetToInitial() {
	initial, ok := o.core.initialAt(o.path)
	if !ok {
		o.core.store.logger.Debug("reactive: no initial value to reset to", "path", o.path.String())
		return
	}
	values, ok := initial.(map[string]any)
	if !ok {
		o.core.store.logger.Warn("reactive: initial value is not a map", "path", o.path.String())
		return
	}
	o.Replace(values)
}
