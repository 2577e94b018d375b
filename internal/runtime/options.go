package runtime

import (
	"log/slog"

	"github.com/sit-kite/kite-server/internal/logger"
	"github.com/sit-kite/kite-server/internal/version"
)

type Options struct {
	JSONLogs bool
	LogLevel string

	logger *logger.Logger
}

func (o *Options) SetupLogger() error {
	format := logger.FormatText
	if o.JSONLogs {
		format = logger.FormatJSON
	}
	l, err := logger.New(logger.Config{
		Format:  format,
		Level:   o.LogLevel,
		Version: version.Version,
	})
	if err != nil {
		return err
	}
	o.logger = l
	return nil
}

func (o *Options) Logger() *slog.Logger {
	if o.logger == nil {
		return nil
	}
	return o.logger.Logger
}

// Component returns a child logger tagged with the given component name.
func (o *Options) Component(name string) *slog.Logger {
	if o.logger == nil {
		return nil
	}
	return o.logger.WithComponent(name)
}
