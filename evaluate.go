package reactive

import (
	"fmt"
	"time"
)

// DefaultEngine is used when Evaluate is called without an engine name.
const DefaultEngine = "expr"

// Evaluation is the outcome of one tracked selector run.
type Evaluation struct {
	Value any
	// Paths are the cumulative subscription paths the run read.
	Paths []string
}

// WithEngine registers a custom selector engine under its Name, replacing a
// built-in engine of the same name.
func WithEngine(engine Engine) Option {
	return func(o *options) {
		if engine != nil {
			o.engines = append(o.engines, engine)
		}
	}
}

// Engine returns the selector engine registered under name, building the
// built-in expr, cel and js engines on first use.
func (s *Store) Engine(name string) (Engine, error) {
	if name == "" {
		name = DefaultEngine
	}
	s.enginesMu.Lock()
	defer s.enginesMu.Unlock()
	if engine, ok := s.engines[name]; ok {
		return engine, nil
	}
	var engine Engine
	switch name {
	case "expr":
		engine = NewExprEngine(
			ExprWithProgramCache(s.programCache),
			ExprWithFunctionRegistry(s.functions),
		)
	case "cel":
		engine = NewCELEngine(
			CELWithProgramCache(s.programCache),
			CELWithFunctionRegistry(s.functions),
		)
	case "js":
		if jsEngineAvailable() {
			opts := append([]JSOption{
				JSWithProgramCache(s.programCache),
				JSWithFunctionRegistry(s.functions),
			}, s.jsOptions...)
			engine = NewJSEngine(opts...)
		}
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoEngine, name)
	}
	s.engines[name] = engine
	return engine, nil
}

// Compile compiles expression with the named engine.
func (s *Store) Compile(engine, expression string) (Program, error) {
	if expression == "" {
		return nil, fmt.Errorf("reactive: expression must not be empty")
	}
	e, err := s.Engine(engine)
	if err != nil {
		return nil, err
	}
	return e.Compile(expression)
}

// Evaluate compiles and runs expression against the root with tracking
// enabled.
func (s *Store) Evaluate(engine, expression string) (Evaluation, error) {
	program, err := s.Compile(engine, expression)
	if err != nil {
		s.selectorLogger.LogSelector(SelectorLogEvent{Engine: engine, Expr: expression, Err: err})
		return Evaluation{}, err
	}
	return s.Run(engine, program)
}

// Run executes a compiled program with tracking enabled and logs the
// evaluation.
func (s *Store) Run(engine string, program Program) (Evaluation, error) {
	if engine == "" {
		engine = DefaultEngine
	}
	var runErr error
	start := time.Now()
	value, capture := s.tracker.Track(func() any {
		out, err := program.Run(s.Root())
		runErr = err
		return out
	})
	paths := capture.SubscriptionPaths()
	s.selectorLogger.LogSelector(SelectorLogEvent{
		Engine:       engine,
		Expr:         program.Expression(),
		Dependencies: paths,
		Duration:     time.Since(start),
		Err:          runErr,
	})
	if runErr != nil {
		return Evaluation{}, runErr
	}
	return Evaluation{Value: value, Paths: paths}, nil
}
