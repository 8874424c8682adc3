package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// NewHandler builds a slog handler writing human-readable records to w.
func NewHandler(w io.Writer, name string, verbose bool) slog.Handler {
	level := charmlog.InfoLevel
	if verbose {
		level = charmlog.DebugLevel
	}
	return charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          name,
		Level:           level,
	})
}

// New returns a logger named for a component, writing to stderr.
func New(name string) *slog.Logger {
	return slog.New(NewHandler(os.Stderr, name, false))
}

type ctxKey struct{}

// IntoContext attaches a logger to a context. Use FromContext to pull
// the logger back out.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or slog.Default when
// none is attached.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if v := ctx.Value(ctxKey{}); v != nil {
			return v.(*slog.Logger)
		}
	}
	return slog.Default()
}
