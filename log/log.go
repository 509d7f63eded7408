// Package log configures the process-wide zerolog logger. Packages log
// through zerolog's global logger or a context logger; this package only
// owns setup and the trace-correlation hook.
package log

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Setup initializes the global logger. level accepts the usual zerolog
// names ("debug", "info", ...); unknown values fall back to info. When
// pretty is set, output goes through a ConsoleWriter for local runs.
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	log.Logger = logger.Level(lvl).Hook(traceHook{}).With().Timestamp().Logger()
	// Contexts without an attached logger fall back to the global one.
	zerolog.DefaultContextLogger = &log.Logger
}

// traceHook adds trace_id and span_id to every event carrying a context
// with a recording span, so gateway logs can be joined with traces.
type traceHook struct{}

func (traceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		e.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
}

// TokenPreview renders a token safely for logs: its length and a short
// prefix, never the full value.
func TokenPreview(token string) string {
	if len(token) <= 12 {
		return "len=" + strconv.Itoa(len(token))
	}
	return token[:12] + "... len=" + strconv.Itoa(len(token))
}
