package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/championcart/backend/internal/common"
)

// Decisions counts limiter verdicts per scope: allowed, limited or bypassed
// (limiter unavailable).
var Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "championcart",
	Subsystem: "ratelimit",
	Name:      "decisions_total",
	Help:      "Sliding window rate limit decisions.",
}, []string{"scope", "verdict"})

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	// Scope labels metrics and prefixes keys produced by ByClientIP.
	Scope  string
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// ByClientIP keys requests by client address under a per-route scope.
func ByClientIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}

// Handler enforces a sliding window limit in front of next. It fails open:
// when Redis is unreachable the request is served and a warning logged.
type Handler struct {
	Limiter Limiter
	Config  Config
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil {
		return next
	}
	scope := h.Config.Scope
	if scope == "" {
		scope = "default"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		switch {
		case err != nil:
			Decisions.WithLabelValues(scope, "bypassed").Inc()
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
		case !d.Allowed:
			Decisions.WithLabelValues(scope, "limited").Inc()
			h.setHeaders(w.Header(), d)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter(d.ResetAt)))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		default:
			Decisions.WithLabelValues(scope, "allowed").Inc()
			h.setHeaders(w.Header(), d)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Handler) setHeaders(hdr http.Header, d Decision) {
	hdr.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
	hdr.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	hdr.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// retryAfter rounds up to whole seconds, never below one.
func retryAfter(reset time.Time) int {
	return max(int(math.Ceil(time.Until(reset).Seconds())), 1)
}
