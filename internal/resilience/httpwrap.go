package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with per-attempt timeouts, retries with
// jittered exponential backoff, and a circuit breaker.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// StatusError reports a response that exhausted every attempt with a retryable status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: upstream responded %s", e.Status)
}

// Retryable reports whether a response status is worth another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Do executes req, retrying transport errors and retryable statuses. The body is
// buffered so it can be replayed. Non-retryable responses are returned as is
// and the caller owns their body.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(BreakerConfig{MinRequests: 1, FailureRatio: 1, OpenFor: time.Second})
	}
	maxAttempts := cl.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !breaker.Allow(ctx) {
			OutboundAttempts.WithLabelValues(breaker.Target(), "rejected").Inc()
			lastErr = ErrOpenCircuit
			break
		}
		started := time.Now()
		resp, err := cl.doOnce(ctx, cloneWithBody(ctx, req, body))
		OutboundDuration.WithLabelValues(breaker.Target()).Observe(time.Since(started).Seconds())
		switch {
		case err == nil && !Retryable(resp.StatusCode):
			breaker.Report(ctx, true)
			OutboundAttempts.WithLabelValues(breaker.Target(), "ok").Inc()
			return resp, nil
		case err == nil:
			lastErr = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			OutboundAttempts.WithLabelValues(breaker.Target(), "status").Inc()
		default:
			lastErr = err
			OutboundAttempts.WithLabelValues(breaker.Target(), "error").Inc()
		}
		breaker.Report(ctx, false)
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(Backoff(cl.BaseBackoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// doOnce bounds a single attempt. The attempt context is cancelled once the
// caller closes the response body.
func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		return cl.Client.Do(req)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func cloneWithBody(ctx context.Context, req *http.Request, body []byte) *http.Request {
	clone := req.Clone(ctx)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return clone
}
