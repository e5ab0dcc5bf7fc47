package reactive

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprast "github.com/expr-lang/expr/ast"
	exprparser "github.com/expr-lang/expr/parser"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprOption configures an ExprEngine.
type ExprOption func(*ExprEngine)

// ExprWithProgramCache wires a ProgramCache into the expr engine.
func ExprWithProgramCache(cache ProgramCache) ExprOption {
	return func(e *ExprEngine) {
		e.cache = cache
	}
}

// ExprWithFunctionRegistry exposes registry functions to expressions, both
// by name and through call(name, args...).
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprOption {
	return func(e *ExprEngine) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// ExprEngine compiles selectors with github.com/expr-lang/expr.
type ExprEngine struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewExprEngine constructs an expr-backed Engine.
func NewExprEngine(opts ...ExprOption) *ExprEngine {
	e := &ExprEngine{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *ExprEngine) Name() string { return "expr" }

func (e *ExprEngine) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrapEngineError("expr", fmt.Errorf("expression must not be empty"))
	}
	key := cacheKey("expr", expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*exprProgram); ok {
				return program, nil
			}
		}
	}

	tree, err := exprparser.Parse(expression)
	if err != nil {
		return nil, wrapSelectorError("expr", expression, err)
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	if e.registry != nil {
		options = append(options, exprlang.Function("call", e.callFunction))
		for _, name := range e.registry.Names() {
			if name == "call" {
				continue
			}
			options = append(options, exprlang.Function(name, e.registryFunction(name)))
		}
	}
	compiled, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapSelectorError("expr", expression, err)
	}

	program := &exprProgram{
		program:    compiled,
		expression: expression,
		deps:       exprDependencies(tree, e.registry),
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

func (e *ExprEngine) registryFunction(name string) func(...any) (any, error) {
	return func(arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
}

func (e *ExprEngine) callFunction(params ...any) (any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("call requires a function name")
	}
	name, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("call expects a function name, got %T", params[0])
	}
	return e.registry.Call(name, params[1:]...)
}

type exprProgram struct {
	program    *exprvm.Program
	expression string
	deps       []Path
}

func (p *exprProgram) Expression() string { return p.expression }

func (p *exprProgram) Dependencies() []Path { return append([]Path(nil), p.deps...) }

func (p *exprProgram) Run(root *Object) (any, error) {
	env := bind(root, p.deps)
	result, err := exprlang.Run(p.program, env)
	if err != nil {
		return nil, wrapSelectorError("expr", p.expression, err)
	}
	return result, nil
}

// exprCollector gathers identifier and member chains, skipping function
// callees.
type exprCollector struct {
	skip  map[exprast.Node]struct{}
	names map[string]struct{}
	paths []Path
}

func (c *exprCollector) Visit(node *exprast.Node) {
	switch n := (*node).(type) {
	case *exprast.CallNode:
		c.skip[n.Callee] = struct{}{}
	case *exprast.VariableDeclaratorNode:
		c.names[n.Name] = struct{}{}
	}
}

type exprPathVisitor struct {
	*exprCollector
}

func (v exprPathVisitor) Visit(node *exprast.Node) {
	if _, skipped := v.skip[*node]; skipped {
		return
	}
	switch (*node).(type) {
	case *exprast.IdentifierNode, *exprast.MemberNode:
		if path, ok := exprChain(*node); ok {
			if _, local := v.names[path[0]]; !local {
				v.paths = append(v.paths, path)
			}
		}
	}
}

func exprDependencies(tree *exprparser.Tree, registry *FunctionRegistry) []Path {
	collector := &exprCollector{
		skip:  make(map[exprast.Node]struct{}),
		names: map[string]struct{}{"call": {}},
	}
	for _, name := range registry.Names() {
		collector.names[name] = struct{}{}
	}
	exprast.Walk(&tree.Node, collector)
	exprast.Walk(&tree.Node, exprPathVisitor{collector})
	return normalizeDependencies(collector.paths)
}

// exprChain resolves foo.bar["baz"][0] into a Path. Member access with a
// computed property stops the chain at its receiver.
func exprChain(node exprast.Node) (Path, bool) {
	switch n := node.(type) {
	case *exprast.IdentifierNode:
		return Path{n.Value}, true
	case *exprast.MemberNode:
		base, ok := exprChain(n.Node)
		if !ok || n.Method {
			return base, ok
		}
		switch property := n.Property.(type) {
		case *exprast.StringNode:
			return base.Child(property.Value), true
		case *exprast.IntegerNode:
			return base.Index(property.Value), true
		}
		return base, true
	}
	return nil, false
}
