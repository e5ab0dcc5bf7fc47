package reactive

import "time"

// DefaultJSTimeout bounds a single JS selector run.
const DefaultJSTimeout = 250 * time.Millisecond

// JSOption configures the JS engine. Options are accepted in every build so
// callers compile with or without the js_eval tag.
type JSOption func(*jsEngineConfig)

type jsEngineConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
	timeout  time.Duration
}

// JSWithProgramCache shares compiled scripts through cache.
func JSWithProgramCache(cache ProgramCache) JSOption {
	return func(cfg *jsEngineConfig) { cfg.cache = cache }
}

// JSWithFunctionRegistry exposes a snapshot of registry to scripts as
// globals and through call(name, args...).
func JSWithFunctionRegistry(registry *FunctionRegistry) JSOption {
	return func(cfg *jsEngineConfig) {
		if registry != nil {
			cfg.registry = registry.Clone()
		}
	}
}

// JSWithTimeout interrupts a run after d. Zero disables the limit.
func JSWithTimeout(d time.Duration) JSOption {
	return func(cfg *jsEngineConfig) { cfg.timeout = max(d, 0) }
}

// WithJSTimeout sets the run limit of the store's built-in JS engine.
func WithJSTimeout(d time.Duration) Option {
	return func(o *options) { o.jsOptions = append(o.jsOptions, JSWithTimeout(d)) }
}

func newJSEngineConfig(opts []JSOption) jsEngineConfig {
	cfg := jsEngineConfig{timeout: DefaultJSTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
