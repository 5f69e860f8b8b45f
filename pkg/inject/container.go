// Package inject builds the dependency container HTTP handlers resolve their services from.
package inject

import (
	"context"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectoinject/loglevel"
	"github.com/Gobusters/ectologger"
)

// NewContainer creates and registers a container under id, with logger registered as the
// service logger. Container diagnostics are written through logger.
func NewContainer(id string, logger ectologger.Logger) (ectocontainer.DIContainer, error) {
	cfg := ectoinject.DefaultContainerConfig
	cfg.ID = id
	cfg.LoggerConfig = &ectocontainer.DIContainerLoggerConfig{
		Prefix:   "ectoinject",
		LogLevel: loglevel.WARN,
		Enabled:  true,
		LogFunc: func(ctx context.Context, level, msg string) {
			entry := logger.WithContext(ctx).WithFields(map[string]any{"component": "ectoinject"})
			if level == loglevel.WARN {
				entry.Warn(msg)
				return
			}
			entry.Debug(msg)
		},
	}

	container, err := ectoinject.NewDIContainer(cfg)
	if err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return nil, err
	}
	return container, nil
}

// Register adds instance to the container as T.
func Register[T any](container ectocontainer.DIContainer, instance T) error {
	return ectoinject.RegisterInstance[T](container, instance)
}
