package reactive

import "time"

// SelectorLogEvent describes one selector evaluation.
type SelectorLogEvent struct {
	Engine       string
	Expr         string
	Dependencies []string
	Duration     time.Duration
	Err          error
}

// SelectorLogger records selector evaluations.
type SelectorLogger interface {
	LogSelector(SelectorLogEvent)
}

// SelectorLoggerFunc adapts a function to SelectorLogger.
type SelectorLoggerFunc func(SelectorLogEvent)

// LogSelector implements SelectorLogger.
func (f SelectorLoggerFunc) LogSelector(event SelectorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopSelectorLogger struct{}

func (noopSelectorLogger) LogSelector(SelectorLogEvent) {}

// WithSelectorLogger attaches a selector logger to the store.
func WithSelectorLogger(logger SelectorLogger) Option {
	return func(o *options) {
		if logger == nil {
			o.selectorLogger = noopSelectorLogger{}
			return
		}
		o.selectorLogger = logger
	}
}
