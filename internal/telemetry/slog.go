package telemetry

import (
	"context"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
)

// NewLogHandler returns a handler writing every record to local and, at the
// same minimum level, to the OTel log pipeline of provider under scope.
func NewLogHandler(local slog.Handler, provider otellog.LoggerProvider, scope string, level slog.Leveler) slog.Handler {
	otelHandler := otelslog.NewHandler(scope, otelslog.WithLoggerProvider(provider))
	return slogmulti.Fanout(local, minLevel{Handler: otelHandler, level: level})
}

// minLevel drops records below level before they reach the wrapped handler.
type minLevel struct {
	slog.Handler
	level slog.Leveler
}

func (h minLevel) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.Handler.Enabled(ctx, l)
}

func (h minLevel) WithAttrs(attrs []slog.Attr) slog.Handler {
	return minLevel{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h minLevel) WithGroup(name string) slog.Handler {
	return minLevel{Handler: h.Handler.WithGroup(name), level: h.level}
}
