// Package llmtest provides scripted backends for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Reply is one canned backend answer.
type Reply struct {
	Text string
	Err  error
}

// Text is shorthand for a successful reply.
func Text(s string) Reply { return Reply{Text: s} }

// Fail is shorthand for a failed reply.
func Fail(err error) Reply { return Reply{Err: err} }

// ErrExhausted is returned once a Scripted backend has no replies left and no
// responder.
var ErrExhausted = errors.New("llmtest: script exhausted")

// Call records one invocation.
type Call struct {
	Prompt      string
	Temperature float64
	Timeout     time.Duration
}

// Scripted replays queued replies in order, then falls back to Respond.
// It is safe for concurrent use.
type Scripted struct {
	ProviderName string
	Respond      func(prompt string) Reply

	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

func New(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Func builds a backend answering every prompt with fn.
func Func(fn func(prompt string) Reply) *Scripted {
	return &Scripted{Respond: fn}
}

func (s *Scripted) Name() string {
	if s.ProviderName == "" {
		return "scripted"
	}
	return s.ProviderName
}

func (s *Scripted) Push(r ...Reply) {
	s.mu.Lock()
	s.replies = append(s.replies, r...)
	s.mu.Unlock()
}

func (s *Scripted) Invoke(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Prompt: prompt, Temperature: temperature, Timeout: timeout})
	var r Reply
	switch {
	case len(s.replies) > 0:
		r = s.replies[0]
		s.replies = s.replies[1:]
	case s.Respond != nil:
		s.mu.Unlock()
		r = s.Respond(prompt)
		s.mu.Lock()
	default:
		r = Reply{Err: ErrExhausted}
	}
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Text, r.Err
}

// Calls returns a copy of the recorded invocations.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
