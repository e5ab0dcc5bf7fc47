package reactive

import "sync"

// ProgramCache stores compiled selector programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapProgramCache is an unbounded, concurrency-safe ProgramCache.
type MapProgramCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewProgramCache constructs an empty MapProgramCache.
func NewProgramCache() *MapProgramCache {
	return &MapProgramCache{programs: make(map[string]any)}
}

func (c *MapProgramCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.programs[key]
	return value, ok
}

func (c *MapProgramCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[key] = value
}

// WithProgramCache shares compiled programs between selector engines built
// by the store.
func WithProgramCache(cache ProgramCache) Option {
	return func(o *options) {
		o.programCache = cache
	}
}
