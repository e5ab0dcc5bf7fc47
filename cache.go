package reactive

import (
	"container/list"
	"math"
	"reflect"
	"runtime"
	"sync"
	"time"
	"unsafe"
	"weak"
)

// DefaultCacheSize bounds the recency index.
const DefaultCacheSize = 500

// identity is the address of a container's storage: the map header for maps
// and the backing array for sequences.
type identity struct {
	seq bool
	ptr uintptr
}

// identityOf reports the identity of a plain container. Nil maps and
// zero-capacity sequences have none; they share storage with every other
// empty value of their type.
func identityOf(value any) (identity, bool) {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return identity{}, false
		}
		return identity{ptr: uintptr(reflect.ValueOf(v).UnsafePointer())}, true
	case []any:
		if cap(v) == 0 {
			return identity{}, false
		}
		return identity{seq: true, ptr: uintptr(unsafe.Pointer(unsafe.SliceData(v)))}, true
	}
	return identity{}, false
}

type cacheEntry struct {
	object weak.Pointer[Object]
	array  weak.Pointer[Array]
	elem   *list.Element
}

func (e *cacheEntry) live() Wrapper {
	if obj := e.object.Value(); obj != nil {
		return obj
	}
	if arr := e.array.Value(); arr != nil {
		return arr
	}
	return nil
}

// recencyItem keeps a wrapper alive while it sits in the bounded index.
type recencyItem struct {
	id      identity
	wrapper Wrapper
	touched time.Time
}

// wrapperCache maps container identity to at most one live wrapper. The map
// holds weak pointers, so a wrapper nobody references is collected and its
// entry pruned. The recency index is an MRU list of strong references bounded
// by maxSize; evicting from it always removes the identity from the map too.
// maxSize <= 0 disables the index.
type wrapperCache struct {
	mu      sync.Mutex
	entries map[identity]*cacheEntry
	recency *list.List
	maxSize int
	now     func() time.Time
}

func newWrapperCache(maxSize int) *wrapperCache {
	return &wrapperCache{
		entries: make(map[identity]*cacheEntry),
		recency: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// lookup returns the live wrapper for id and marks it most recently used.
func (c *wrapperCache) lookup(id identity) Wrapper {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return nil
	}
	wrapper := entry.live()
	if wrapper == nil {
		c.dropLocked(id, entry)
		return nil
	}
	if entry.elem != nil {
		item := entry.elem.Value.(*recencyItem)
		item.touched = c.now()
		c.recency.MoveToFront(entry.elem)
	}
	return wrapper
}

// insert registers wrapper under id, evicting the oldest entry first when the
// recency index is full.
func (c *wrapperCache) insert(id identity, wrapper Wrapper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(id, wrapper)
}

func (c *wrapperCache) insertLocked(id identity, wrapper Wrapper) {
	if old, ok := c.entries[id]; ok {
		c.dropLocked(id, old)
	}
	entry := &cacheEntry{}
	switch w := wrapper.(type) {
	case *Object:
		entry.object = weak.Make(w)
		runtime.AddCleanup(w, c.prune, id)
	case *Array:
		entry.array = weak.Make(w)
		runtime.AddCleanup(w, c.prune, id)
	default:
		return
	}
	if c.maxSize > 0 {
		if c.recency.Len() >= c.maxSize {
			c.evictOldestLocked()
		}
		entry.elem = c.recency.PushFront(&recencyItem{id: id, wrapper: wrapper, touched: c.now()})
	}
	c.entries[id] = entry
}

// rekey moves a sequence wrapper whose backing array moved. If the old
// identity no longer points at wrapper the wrapper is inserted fresh.
func (c *wrapperCache) rekey(from identity, hadFrom bool, to identity, wrapper *Array) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hadFrom {
		if entry, ok := c.entries[from]; ok && entry.array.Value() == wrapper {
			if existing, taken := c.entries[to]; taken && existing != entry {
				c.dropLocked(to, existing)
			}
			delete(c.entries, from)
			c.entries[to] = entry
			if entry.elem != nil {
				item := entry.elem.Value.(*recencyItem)
				item.id = to
				item.touched = c.now()
				c.recency.MoveToFront(entry.elem)
			}
			runtime.AddCleanup(wrapper, c.prune, to)
			return
		}
	}
	c.insertLocked(to, wrapper)
}

// prune runs after a wrapper was collected. A newer wrapper registered under
// the same identity keeps the entry.
func (c *wrapperCache) prune(id identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[id]; ok && entry.live() == nil {
		c.dropLocked(id, entry)
	}
}

func (c *wrapperCache) dropLocked(id identity, entry *cacheEntry) {
	if entry.elem != nil {
		c.recency.Remove(entry.elem)
		entry.elem = nil
	}
	delete(c.entries, id)
}

func (c *wrapperCache) evictOldestLocked() bool {
	back := c.recency.Back()
	if back == nil {
		return false
	}
	item := back.Value.(*recencyItem)
	if entry, ok := c.entries[item.id]; ok && entry.elem == back {
		c.dropLocked(item.id, entry)
		return true
	}
	c.recency.Remove(back)
	return true
}

// evictOldest removes the least recently used entry from the index and the
// map.
func (c *wrapperCache) evictOldest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictOldestLocked()
}

// evictFraction removes the oldest ceil(size*fraction) entries and returns
// how many were removed.
func (c *wrapperCache) evictFraction(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	count := int(math.Ceil(float64(c.recency.Len()) * min(fraction, 1)))
	removed := 0
	for removed < count && c.evictOldestLocked() {
		removed++
	}
	return removed
}

func (c *wrapperCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *wrapperCache) recencyLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

func (c *wrapperCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[identity]*cacheEntry)
	c.recency.Init()
}
