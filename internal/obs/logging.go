package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/championcart/backend/internal/common"
)

// NewLogger builds the process logger. format "console" or "text" selects the
// human readable writer, anything else emits JSON.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

// RequestLogger writes one structured line per request and attaches a request
// scoped logger to the context for zerolog.Ctx. Probe and scrape paths are
// logged at debug.
type RequestLogger struct {
	Logger zerolog.Logger
	// Quiet lists path prefixes demoted to debug. Defaults to health and metrics.
	Quiet []string
}

var defaultQuietPaths = []string{"/health/", "/metrics"}

// Middleware implements chi middleware for structured request logs.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	quiet := l.Quiet
	if quiet == nil {
		quiet = defaultQuietPaths
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		fields := l.Logger.With().Str("request_id", reqID)
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			fields = fields.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		scoped := fields.Logger()
		r = r.WithContext(scoped.WithContext(r.Context()))
		next.ServeHTTP(recorder, r)

		status := recorder.Status()
		evt := scoped.WithLevel(levelFor(status, r.URL.Path, quiet)).
			Str("method", r.Method).
			Str("route", routeOf(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration_ms", time.Since(start)).
			Int64("bytes", recorder.BytesWritten())
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("client_ip", ip)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}

func levelFor(status int, path string, quiet []string) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status == http.StatusTooManyRequests:
		return zerolog.WarnLevel
	}
	for _, prefix := range quiet {
		if strings.HasPrefix(path, prefix) {
			return zerolog.DebugLevel
		}
	}
	return zerolog.InfoLevel
}
