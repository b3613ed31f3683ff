package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds the process logger on stderr. dev switches to debug level and
// human readable console output with stack traces.
func Setup(dev bool) zerolog.Logger {
	return New(os.Stderr, dev)
}

// New builds a logger writing to w.
func New(w io.Writer, dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lctx := zerolog.New(w).Level(level).With().Timestamp().Caller()
	if dev {
		lctx = lctx.Stack()
	}
	return lctx.Logger()
}

// ForOperation returns a context whose logger carries the operation name and
// tenant. The logger already on ctx is extended; without one the global
// logger is used.
func ForOperation(ctx context.Context, operation string, orgID, actorID uuid.UUID) context.Context {
	base := zerolog.Ctx(ctx)
	if base.GetLevel() == zerolog.Disabled {
		base = &log.Logger
	}

	lctx := base.With().
		Str("operation", operation).
		Str("org_id", orgID.String())
	if actorID != uuid.Nil {
		lctx = lctx.Str("actor_id", actorID.String())
	}

	return lctx.Logger().WithContext(ctx)
}
