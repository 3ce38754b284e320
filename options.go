package yunas

import (
	"log/slog"

	"github.com/glimte/yunas-go/interceptors"
)

type engineConfig struct {
	logger  *slog.Logger
	newID   func() string
	globals []interceptors.Interceptor
}

// Option configures the engine
type Option func(*engineConfig)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithIDGenerator sets the function generating exchange IDs
func WithIDGenerator(newID func() string) Option {
	return func(cfg *engineConfig) {
		if newID != nil {
			cfg.newID = newID
		}
	}
}

// WithGlobalInterceptors sets interceptors run ahead of every chain registered
// on the engine, in the given order
func WithGlobalInterceptors(globals ...interceptors.Interceptor) Option {
	return func(cfg *engineConfig) {
		cfg.globals = append(cfg.globals, globals...)
	}
}
