package reactive

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownFunction is returned when a selector calls an unregistered helper.
var ErrUnknownFunction = errors.New("reactive: function not registered")

// Function is a helper callable from selector expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry holds selector helpers. Names are case-insensitive.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

func functionKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds fn under name. Names are unique; "call" is reserved for the
// dynamic dispatch helper every engine exposes.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	key := functionKey(name)
	switch {
	case key == "":
		return fmt.Errorf("reactive: function name must not be empty")
	case key == "call":
		return fmt.Errorf("reactive: function name %q is reserved", name)
	case fn == nil:
		return fmt.Errorf("reactive: function %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, taken := r.functions[key]; taken {
		return fmt.Errorf("reactive: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[functionKey(name)]
	return ok
}

// Call invokes the helper registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	var fn Function
	if r != nil {
		r.mu.RLock()
		fn = r.functions[functionKey(name)]
		r.mu.RUnlock()
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	return fn(args...)
}

// Names returns the registered names, lower-cased and sorted.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.functions))
}

// Clone returns an independent registry with the same helpers.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &FunctionRegistry{functions: maps.Clone(r.functions)}
}

// WithFunctionRegistry exposes a copy of registry to the store's selector
// engines.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(o *options) {
		if registry != nil {
			o.functions = registry.Clone()
		}
	}
}

// WithCustomFunction registers fn for the store's selector engines. Invalid
// or duplicate names are logged when the store is built.
func WithCustomFunction(name string, fn Function) Option {
	return func(o *options) {
		if o.functions == nil {
			o.functions = NewFunctionRegistry()
		}
		if err := o.functions.Register(name, fn); err != nil {
			o.optionErrs = append(o.optionErrs, err)
		}
	}
}
