package reactive

import (
	"slices"
	"strconv"

	"github.com/goliatone/go-reactive/layering"
)

// Array wraps a []any inside the store. It works on whatever sequence is
// stored at its path, so every wrapper for a path sees the same data, and
// mutations that change the length write the new slice header back into the
// parent container. When the path no longer holds a sequence, or the Array
// came from Store.Wrap for a value stored elsewhere, it works on its own copy.
type Array struct {
	core  *core
	path  Path
	depth int
	items []any
	free  bool
}

var _ Wrapper = (*Array)(nil)

func (a *Array) Path() Path { return append(Path(nil), a.path...) }

// Get reads the element at a decimal index key.
func (a *Array) Get(key string) any {
	index, ok := parseIndex(key)
	if !ok {
		return nil
	}
	return a.At(index)
}

// At reads the element at index, or nil when out of range.
func (a *Array) At(index int) any {
	path := a.path.Index(index)
	a.core.recordRead(path)

	a.core.mu.RLock()
	items := a.itemsLocked()
	if index < 0 || index >= len(items) {
		a.core.mu.RUnlock()
		return nil
	}
	value := items[index]
	a.core.mu.RUnlock()

	return a.core.child(value, path, a.depth+1, func(plain any) {
		a.core.mu.Lock()
		if items := a.itemsLocked(); index < len(items) {
			items[index] = plain
		}
		a.core.mu.Unlock()
	})
}

// Set stores value at a decimal index key. Other keys are ignored.
func (a *Array) Set(key string, value any) {
	index, ok := parseIndex(key)
	if !ok {
		a.core.store.logger.Warn("reactive: ignoring non-index key on sequence",
			"path", a.path.String(), "key", key)
		return
	}
	a.SetIndex(index, value)
}

// SetIndex stores value at index, padding with nil when index is past the
// end. The index path is notified, which also wakes the sequence path.
func (a *Array) SetIndex(index int, value any) {
	if index < 0 {
		a.core.store.logger.Warn("reactive: negative sequence index",
			"path", a.path.String(), "index", index)
		return
	}
	path := a.path.Index(index)
	raw := a.core.prepare(value, path, a.depth+1)
	a.mutate(func(items []any) []any {
		if index >= len(items) {
			items = append(items, make([]any, index-len(items)+1)...)
		}
		items[index] = raw
		return items
	})
	a.core.commit(path)
}

// Delete clears the element at index, leaving a nil hole so later indexes
// keep their positions.
func (a *Array) Delete(key string) bool {
	index, ok := parseIndex(key)
	if !ok {
		return false
	}
	a.core.mu.Lock()
	items := a.itemsLocked()
	ok = index < len(items)
	if ok {
		items[index] = nil
	}
	a.core.mu.Unlock()
	if ok {
		a.core.commit(a.path.Index(index))
	}
	return ok
}

func (a *Array) Has(key string) bool {
	index, ok := parseIndex(key)
	if !ok {
		return false
	}
	a.core.recordRead(a.path.Index(index))
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return index < len(a.itemsLocked())
}

// Keys returns the decimal indexes in order.
func (a *Array) Keys() []string {
	n := a.Len()
	keys := make([]string, n)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}

func (a *Array) Len() int {
	a.core.recordRead(a.path)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return len(a.itemsLocked())
}

func (a *Array) Raw() any {
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return a.itemsLocked()
}

func (a *Array) Materialize() any {
	return a.Snapshot()
}

// Snapshot returns a deep, wrapper-free copy of the sequence.
func (a *Array) Snapshot() []any {
	a.core.recordRead(a.path)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	out, _ := layering.Clone(a.itemsLocked()).([]any)
	if out == nil {
		out = []any{}
	}
	return out
}

// Append adds items at the end and notifies the sequence path once. It
// returns the new length.
func (a *Array) Append(items ...any) int {
	if len(items) == 0 {
		return a.length()
	}
	start := a.length()
	prepared := a.prepareAll(start, items)
	var n int
	a.mutate(func(current []any) []any {
		current = append(current, prepared...)
		n = len(current)
		return current
	})
	a.core.commitSequence(a.path, nil)
	return n
}

// Splice removes deleteCount elements at start and inserts items there.
// Negative start counts from the end; both arguments are clamped to the
// sequence. The sequence path is notified once together with every index
// whose element changed or shifted. The removed elements are returned raw.
func (a *Array) Splice(start, deleteCount int, items ...any) []any {
	length := a.length()
	switch {
	case start < 0:
		start = max(length+start, 0)
	case start > length:
		start = length
	}
	deleteCount = min(max(deleteCount, 0), length-start)
	if deleteCount == 0 && len(items) == 0 {
		return nil
	}

	prepared := a.prepareAll(start, items)
	var removed []any
	a.mutate(func(current []any) []any {
		removed = slices.Clone(current[start : start+deleteCount])
		return slices.Replace(current, start, start+deleteCount, prepared...)
	})

	end := start + deleteCount
	if len(items) != deleteCount {
		end = max(length, length-deleteCount+len(items))
	}
	touched := make([]Path, 0, end-start)
	for i := start; i < end; i++ {
		touched = append(touched, a.path.Index(i))
	}
	a.core.commitSequence(a.path, touched)
	return removed
}

// ReplaceAll swaps the whole content for items.
func (a *Array) ReplaceAll(items []any) {
	a.Splice(0, a.length(), items...)
}

func (a *Array) ResetToInitial() {
	initial, ok := a.core.initialAt(a.path)
	if !ok {
		a.core.store.logger.Debug("reactive: no initial value to reset to", "path", a.path.String())
		return
	}
	items, ok := initial.([]any)
	if !ok {
		a.core.store.logger.Warn("reactive: initial value is not a sequence", "path", a.path.String())
		return
	}
	a.ReplaceAll(items)
}

func (a *Array) length() int {
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return len(a.itemsLocked())
}

// itemsLocked returns the sequence currently stored at the Array's path. The
// caller holds c.mu.
func (a *Array) itemsLocked() []any {
	if a.free || len(a.path) == 0 {
		return a.items
	}
	if current, ok := a.core.lookupLocked(a.path); ok {
		if items, ok := current.([]any); ok {
			return items
		}
	}
	return a.items
}

func (a *Array) prepareAll(start int, items []any) []any {
	prepared := make([]any, len(items))
	a.core.store.tracker.Silence(func() {
		for i, item := range items {
			prepared[i] = a.core.prepare(item, a.path.Index(start+i), a.depth+1)
		}
	})
	return prepared
}

// mutate applies fn to the live items under the write lock, writes a changed
// slice header back into the parent and re-keys the cache when the backing
// array moved.
func (a *Array) mutate(fn func([]any) []any) {
	a.core.mu.Lock()
	before := a.itemsLocked()
	after := fn(before)
	a.items = after
	a.writeBackLocked(before, after)
	a.core.mu.Unlock()

	if a.free {
		return
	}
	from, hadFrom := identityOf(before)
	to, hasTo := identityOf(after)
	if hasTo && (!hadFrom || from != to) {
		a.core.cache.rekey(from, hadFrom, to, a)
	}
}

func (a *Array) writeBackLocked(before, after []any) {
	if a.free || len(a.path) == 0 {
		return
	}
	parent, ok := a.core.lookupLocked(a.path.Parent())
	if !ok {
		return
	}
	key := a.path.Last()
	switch node := parent.(type) {
	case map[string]any:
		if current, ok := node[key].([]any); ok && sameSlice(current, before) {
			node[key] = after
		}
	case []any:
		if index, ok := parseIndex(key); ok && index < len(node) {
			if current, ok := node[index].([]any); ok && sameSlice(current, before) {
				node[index] = after
			}
		}
	}
}
