package telemetry

import "go.uber.org/zap"

// Logger exposes the logging capability required by server components. The
// zap logger built at wiring time is adapted into it so packages stay
// fake-friendly in tests.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapZap adapts a zap sugared logger to the Logger interface.
func WrapZap(logger *zap.SugaredLogger) Logger {
	return &zapAdapter{logger: logger}
}

type zapAdapter struct {
	logger *zap.SugaredLogger
}

func (z *zapAdapter) Printf(format string, args ...any) {
	if z == nil || z.logger == nil {
		return
	}
	z.logger.Infof(format, args...)
}
