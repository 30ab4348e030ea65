package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a single probe through to sample the dependency.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero values fall back to sane defaults.
type BreakerConfig struct {
	// Target names the guarded dependency in metrics and logs.
	Target       string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	Logger       *zerolog.Logger
	Now          func() time.Time
}

// Breaker implements a failure-ratio circuit breaker.
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     State
	failures  int
	successes int
	probing   bool
	openedAt  time.Time
}

// NewBreaker constructs a breaker that opens once at least MinRequests were
// observed and the failure ratio reaches FailureRatio.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Breaker{cfg: cfg, state: Closed}
	b.recordStateLocked()
	return b
}

// Target returns the dependency label of the breaker.
func (b *Breaker) Target() string { return b.cfg.Target }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. After the cool-off an open
// breaker moves to half-open and admits exactly one probe until it is reported.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.changeStateLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an admitted request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.cfg.FailureRatio {
		b.changeStateLocked(ctx, Open)
		return
	}
	if total > b.cfg.MinRequests*2 {
		// decay so old outcomes weigh less
		b.successes = int(math.Ceil(float64(b.successes) * 0.5))
		b.failures = int(math.Ceil(float64(b.failures) * 0.5))
	}
}

// Backoff returns the exponential delay before retry number attempt. jitterPct
// spreads the delay by up to that fraction in either direction.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	switch next {
	case Open:
		b.openedAt = b.cfg.Now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.failures = 0
	b.successes = 0
	b.recordStateLocked()

	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.cfg.Target, prev.String(), next.String()).Inc()
	}
	if next == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.cfg.Target).Inc()
	}
	evt := b.logger(ctx).Info().
		Str("target", b.cfg.Target).
		Str("from_state", prev.String()).
		Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) recordStateLocked() {
	if BreakerState == nil {
		return
	}
	BreakerState.WithLabelValues(b.cfg.Target).Set(float64(b.state))
}

func (b *Breaker) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.cfg.Logger != nil {
		return b.cfg.Logger
	}
	return zerolog.Ctx(ctx)
}
