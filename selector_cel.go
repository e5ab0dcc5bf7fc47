package reactive

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELOption configures a CELEngine.
type CELOption func(*CELEngine)

// CELWithProgramCache wires a ProgramCache into the CEL engine.
func CELWithProgramCache(cache ProgramCache) CELOption {
	return func(e *CELEngine) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry exposes registry functions through
// call(name, args...).
func CELWithFunctionRegistry(registry *FunctionRegistry) CELOption {
	return func(e *CELEngine) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// maxCallArgs is the largest argument count call(name, ...) accepts.
const maxCallArgs = 4

// CELEngine compiles selectors with github.com/google/cel-go. Every top-level
// identifier the expression reads is declared as a dynamic variable.
type CELEngine struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEngine constructs a cel-go backed Engine.
func NewCELEngine(opts ...CELOption) *CELEngine {
	e := &CELEngine{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrapEngineError("cel", fmt.Errorf("expression must not be empty"))
	}
	key := cacheKey("cel", expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}

	base, err := celgo.NewEnv(e.envOptions(nil)...)
	if err != nil {
		return nil, wrapEngineError("cel", err)
	}
	parsed, issues := base.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapSelectorError("cel", expression, issues.Err())
	}
	deps := celDependencies(parsed.NativeRep().Expr())

	env, err := celgo.NewEnv(e.envOptions(deps)...)
	if err != nil {
		return nil, wrapEngineError("cel", err)
	}
	checked, issues := env.Check(parsed)
	if issues != nil && issues.Err() != nil {
		return nil, wrapSelectorError("cel", expression, issues.Err())
	}
	compiled, err := env.Program(checked)
	if err != nil {
		return nil, wrapSelectorError("cel", expression, err)
	}

	program := &celProgram{program: compiled, expression: expression, deps: deps}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

func (e *CELEngine) envOptions(deps []Path) []celgo.EnvOption {
	opts := []celgo.EnvOption{celgo.CrossTypeNumericComparisons(true)}
	if e.registry != nil {
		overloads := make([]celgo.FunctionOpt, 0, maxCallArgs+1)
		for n := 0; n <= maxCallArgs; n++ {
			args := []*celgo.Type{celgo.StringType}
			for i := 0; i < n; i++ {
				args = append(args, celgo.DynType)
			}
			overloads = append(overloads, celgo.Overload(
				fmt.Sprintf("call_string_dyn%d", n),
				args,
				celgo.DynType,
				celgo.FunctionBinding(e.callBinding),
			))
		}
		opts = append(opts, celgo.Function("call", overloads...))
	}
	declared := make(map[string]struct{})
	for _, dep := range deps {
		if _, ok := declared[dep[0]]; ok {
			continue
		}
		declared[dep[0]] = struct{}{}
		opts = append(opts, celgo.Variable(dep[0], celgo.DynType))
	}
	return opts
}

func (e *CELEngine) callBinding(values ...ref.Val) ref.Val {
	if len(values) == 0 {
		return types.NewErr("call requires a function name")
	}
	name, ok := values[0].Value().(string)
	if !ok {
		return types.NewErr("call name must be a string")
	}
	args := make([]any, 0, len(values)-1)
	for _, val := range values[1:] {
		args = append(args, val.Value())
	}
	result, err := e.registry.Call(name, args...)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if result == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(result)
}

type celProgram struct {
	program    celgo.Program
	expression string
	deps       []Path
}

func (p *celProgram) Expression() string { return p.expression }

func (p *celProgram) Dependencies() []Path { return append([]Path(nil), p.deps...) }

func (p *celProgram) Run(root *Object) (any, error) {
	activation := bind(root, p.deps)
	for _, dep := range p.deps {
		if _, ok := activation[dep[0]]; !ok {
			activation[dep[0]] = nil
		}
	}
	out, _, err := p.program.Eval(activation)
	if err != nil {
		return nil, wrapSelectorError("cel", p.expression, err)
	}
	return out.Value(), nil
}

// celDependencies collects the select chains an expression reads, ignoring
// comprehension variables.
func celDependencies(expr celast.Expr) []Path {
	var paths []Path
	var visit func(celast.Expr, map[string]struct{})
	visit = func(expr celast.Expr, scope map[string]struct{}) {
		if expr == nil {
			return
		}
		if path, ok := celChain(expr); ok {
			if _, local := scope[path[0]]; !local {
				paths = append(paths, path)
			}
			return
		}
		switch expr.Kind() {
		case celast.SelectKind:
			visit(expr.AsSelect().Operand(), scope)
		case celast.CallKind:
			call := expr.AsCall()
			if call.IsMemberFunction() {
				visit(call.Target(), scope)
			}
			for _, arg := range call.Args() {
				visit(arg, scope)
			}
		case celast.ListKind:
			for _, element := range expr.AsList().Elements() {
				visit(element, scope)
			}
		case celast.MapKind:
			for _, entry := range expr.AsMap().Entries() {
				visit(entry.AsMapEntry().Key(), scope)
				visit(entry.AsMapEntry().Value(), scope)
			}
		case celast.StructKind:
			for _, field := range expr.AsStruct().Fields() {
				visit(field.AsStructField().Value(), scope)
			}
		case celast.ComprehensionKind:
			comp := expr.AsComprehension()
			visit(comp.IterRange(), scope)
			inner := make(map[string]struct{}, len(scope)+3)
			for name := range scope {
				inner[name] = struct{}{}
			}
			inner[comp.IterVar()] = struct{}{}
			if comp.HasIterVar2() {
				inner[comp.IterVar2()] = struct{}{}
			}
			inner[comp.AccuVar()] = struct{}{}
			visit(comp.AccuInit(), inner)
			visit(comp.LoopCondition(), inner)
			visit(comp.LoopStep(), inner)
			visit(comp.Result(), inner)
		}
	}
	visit(expr, map[string]struct{}{})
	return normalizeDependencies(paths)
}

// celChain resolves identifiers, field selections and constant indexes into
// a Path.
func celChain(expr celast.Expr) (Path, bool) {
	switch expr.Kind() {
	case celast.IdentKind:
		return Path{expr.AsIdent()}, true
	case celast.SelectKind:
		sel := expr.AsSelect()
		if sel.IsTestOnly() {
			return nil, false
		}
		base, ok := celChain(sel.Operand())
		if !ok {
			return nil, false
		}
		return base.Child(sel.FieldName()), true
	case celast.CallKind:
		call := expr.AsCall()
		if call.FunctionName() != operators.Index || len(call.Args()) != 2 {
			return nil, false
		}
		base, ok := celChain(call.Args()[0])
		if !ok || call.Args()[1].Kind() != celast.LiteralKind {
			return nil, false
		}
		switch key := call.Args()[1].AsLiteral().(type) {
		case types.String:
			return base.Child(string(key)), true
		case types.Int:
			return base.Index(int(key)), true
		case types.Uint:
			return base.Index(int(key)), true
		}
		return nil, false
	}
	return nil, false
}
