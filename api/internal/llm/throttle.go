package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type throttled struct {
	Backend
	lim *rate.Limiter
}

// Throttle paces calls to b through lim. Several agents sharing one local
// inference server should share the same limiter.
func Throttle(b Backend, lim *rate.Limiter) Backend {
	if lim == nil || lim.Limit() == rate.Inf {
		return b
	}
	return &throttled{Backend: b, lim: lim}
}

func (t *throttled) Invoke(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (string, error) {
	if err := t.lim.Wait(ctx); err != nil {
		return "", Wrap(t.Name(), err)
	}
	return t.Backend.Invoke(ctx, prompt, temperature, timeout)
}

// NewLimiter returns a limiter allowing rps calls per second, or nil when
// rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
