package llm

import (
	"context"
	"errors"
	"time"
)

// Observer receives one observation per completion.
type Observer interface {
	ObserveCompletion(provider, purpose, outcome string, d time.Duration)
}

// MetricsProvider is a decorator that reports completion latency.
type MetricsProvider struct {
	inner    Provider
	observer Observer
}

// WithMetrics wraps a Provider with latency observation.
func WithMetrics(p Provider, o Observer) Provider {
	return &MetricsProvider{inner: p, observer: o}
}

func (m *MetricsProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := m.inner.Complete(ctx, req)
	m.observer.ObserveCompletion(m.inner.Name(), req.Purpose, outcome(resp, err), time.Since(start))
	return resp, err
}

func (m *MetricsProvider) Name() string { return m.inner.Name() }

func outcome(resp *Response, err error) string {
	var (
		rl       *ErrRateLimit
		rejected *ErrRejected
	)
	switch {
	case err == nil && resp.Cached:
		return "cached"
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &rejected):
		return "rejected"
	}
	return "error"
}
