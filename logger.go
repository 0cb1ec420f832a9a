package policy

import "github.com/unionhall/policy/logger"

// Logger is re-exported so engine users do not need to import the logger
// package for the common case.
type Logger = logger.Logger

// WithLogger installs a Logger on the engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		if l == nil {
			return nil
		}
		e.logger = l
		return nil
	}
}

// WithTraceIDFunc installs a trace id generator attached to decision logs.
func WithTraceIDFunc(f logger.TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		e.traceIDFunc = f
		return nil
	}
}
