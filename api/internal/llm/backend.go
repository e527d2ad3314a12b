package llm

import (
	"context"
	"strings"
	"time"
)

// Backend is a text-in/text-out generative model bound to one model name.
// Implementations must honour timeout (0 means no per-call bound beyond ctx)
// and report failures as *BackendError.
type Backend interface {
	Name() string
	Invoke(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (string, error)

func (f BackendFunc) Name() string { return "func" }

func (f BackendFunc) Invoke(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (string, error) {
	return f(ctx, prompt, temperature, timeout)
}

// Agent is a role (student, tutor, translator...) played by a backend with
// fixed sampling settings.
type Agent struct {
	Role        string
	Backend     Backend
	Temperature float64
	Timeout     time.Duration
}

// Ask invokes the backend and trims surrounding whitespace from the answer.
func (a Agent) Ask(ctx context.Context, prompt string) (string, error) {
	out, err := a.Backend.Invoke(ctx, prompt, a.Temperature, a.Timeout)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// WithTimeout derives a context for a single call. A zero timeout keeps ctx.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
