//go:build js_eval

package reactive

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// JSEngine evaluates selectors with goja. Top-level keys are lazy globals and
// containers are exposed as dynamic objects, so every property access goes
// through the wrappers and is recorded like any other read. Dependencies are
// only known after a tracked run.
type JSEngine struct {
	cache    ProgramCache
	registry *FunctionRegistry
	timeout  time.Duration
}

// NewJSEngine constructs a goja-backed Engine.
func NewJSEngine(opts ...JSOption) Engine {
	cfg := newJSEngineConfig(opts)
	return &JSEngine{
		cache:    cfg.cache,
		registry: cfg.registry,
		timeout:  cfg.timeout,
	}
}

func (e *JSEngine) Name() string { return "js" }

func (e *JSEngine) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrapEngineError("js", fmt.Errorf("expression must not be empty"))
	}
	key := cacheKey("js", expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*jsProgram); ok {
				return program, nil
			}
		}
	}
	compiled, err := goja.Compile("", fmt.Sprintf("(function(){ return (%s); })()", expression), false)
	if err != nil {
		return nil, wrapSelectorError("js", expression, err)
	}
	program := &jsProgram{engine: e, program: compiled, expression: expression}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

type jsProgram struct {
	engine     *JSEngine
	program    *goja.Program
	expression string
}

func (p *jsProgram) Expression() string { return p.expression }

func (p *jsProgram) Dependencies() []Path { return nil }

func (p *jsProgram) Run(root *Object) (any, error) {
	vm := goja.New()
	if root != nil {
		global := vm.GlobalObject()
		for _, key := range root.keys() {
			getter := vm.ToValue(func(goja.FunctionCall) goja.Value {
				return jsValue(vm, root.Get(key))
			})
			if err := global.DefineAccessorProperty(key, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
				return nil, wrapSelectorError("js", p.expression, err)
			}
		}
	}
	if registry := p.engine.registry; registry != nil {
		_ = vm.Set("call", func(name string, arguments ...any) (any, error) {
			return registry.Call(name, arguments...)
		})
		for _, name := range registry.Names() {
			fn := name
			_ = vm.Set(fn, func(arguments ...any) (any, error) {
				return registry.Call(fn, arguments...)
			})
		}
	}
	if timeout := p.engine.timeout; timeout > 0 {
		timer := time.AfterFunc(timeout, func() { vm.Interrupt(ErrSelectorTimeout) })
		defer timer.Stop()
	}
	value, err := vm.RunProgram(p.program)
	if err != nil {
		return nil, wrapSelectorError("js", p.expression, err)
	}
	return jsExport(value.Export()), nil
}

func jsValue(vm *goja.Runtime, value any) goja.Value {
	switch w := value.(type) {
	case *Object:
		return vm.NewDynamicObject(&jsObject{vm: vm, obj: w})
	case *Array:
		return vm.NewDynamicArray(&jsArray{vm: vm, arr: w})
	}
	return vm.ToValue(value)
}

func jsExport(value any) any {
	switch v := value.(type) {
	case *jsObject:
		return v.obj.Materialize()
	case *jsArray:
		return v.arr.Materialize()
	case map[string]any:
		for key, item := range v {
			v[key] = jsExport(item)
		}
	case []any:
		for i, item := range v {
			v[i] = jsExport(item)
		}
	}
	return value
}

// jsObject is a read-only view of an Object.
type jsObject struct {
	vm  *goja.Runtime
	obj *Object
}

func (o *jsObject) Get(key string) goja.Value {
	value, ok := o.obj.Lookup(key)
	if !ok {
		return nil
	}
	return jsValue(o.vm, value)
}

func (o *jsObject) Set(string, goja.Value) bool { return false }

func (o *jsObject) Has(key string) bool { return o.obj.Has(key) }

func (o *jsObject) Delete(string) bool { return false }

func (o *jsObject) Keys() []string { return o.obj.Keys() }

// jsArray is a read-only view of an Array.
type jsArray struct {
	vm  *goja.Runtime
	arr *Array
}

func (a *jsArray) Len() int { return a.arr.Len() }

func (a *jsArray) Get(idx int) goja.Value {
	if idx < 0 {
		return nil
	}
	return jsValue(a.vm, a.arr.At(idx))
}

func (a *jsArray) Set(int, goja.Value) bool { return false }

func (a *jsArray) SetLen(int) bool { return false }

func jsEngineAvailable() bool {
	return true
}
