package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	pkgctx "github.com/baechuer/real-time-ressys/services/user-service/internal/pkg/context"
)

var Logger zerolog.Logger

func Init() {
	InitWithWriter(os.Stdout)
}

// InitWithWriter reads LOG_LEVEL (default info) and LOG_FORMAT (json|console, default console).
func InitWithWriter(w io.Writer) {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if os.Getenv("LOG_FORMAT") == "json" {
		Logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger().Level(level)
	}

	zlog.Logger = Logger
}

// WithCtx returns Logger enriched with the request id and acting user carried
// by ctx.
func WithCtx(ctx context.Context) *zerolog.Logger {
	c := Logger.With()
	if rid := pkgctx.GetRequestID(ctx); rid != "" {
		c = c.Str("request_id", rid)
	}
	if uid := pkgctx.ActorID(ctx); uid != "" {
		c = c.Str("actor_id", uid)
	}
	l := c.Logger()
	return &l
}
