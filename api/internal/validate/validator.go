package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/rubric"
)

// Outcome is the state a validation pass ends in.
type Outcome int

const (
	Success Outcome = iota
	Retry
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Fail:
		return "fail"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

const (
	DefaultMaxAttempts = 5
	DefaultCorrective  = "‼️ DEVUELVE SOLO UN OBJETO JSON, sin texto extra."
)

// Step is one Invoke -> Parse -> Validate pass.
type Step struct {
	Outcome  Outcome
	Response rubric.TutorResponse
	Raw      string
	Reason   error
}

// Result is the end of a validation cycle: Success with a complete response,
// or Fail with the last reason. Response is the zero value on Fail.
type Result struct {
	Outcome  Outcome
	Response rubric.TutorResponse
	Attempts int
	Raw      string
	Reason   error
}

func (r Result) OK() bool { return r.Outcome == Success }

// Validator runs one structured tutor call under a bounded retry budget.
type Validator struct {
	tables      *rubric.Tables
	corrective  string
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

type Option func(*Validator)

func WithMaxAttempts(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxAttempts = n
		}
	}
}

// WithBackoff sets the pause after a backend error; attempt n waits n*d.
func WithBackoff(d time.Duration) Option { return func(v *Validator) { v.backoff = d } }

func WithCorrective(s string) Option {
	return func(v *Validator) {
		if s = strings.TrimSpace(s); s != "" {
			v.corrective = s
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(v *Validator) { v.log = l } }

func New(tables *rubric.Tables, opts ...Option) *Validator {
	v := &Validator{
		tables:      tables,
		corrective:  DefaultCorrective,
		maxAttempts: DefaultMaxAttempts,
		backoff:     300 * time.Millisecond,
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *Validator) MaxAttempts() int { return v.maxAttempts }

// Step performs a single pass. Backend, parse and validation failures all
// come back as Retry; the caller owns the attempt budget.
func (v *Validator) Step(ctx context.Context, agent llm.Agent, prompt string) Step {
	raw, err := agent.Ask(ctx, prompt)
	if err != nil {
		return Step{Outcome: Retry, Reason: err}
	}
	resp, err := Decode(raw, v.tables)
	if err != nil {
		return Step{Outcome: Retry, Raw: raw, Reason: err}
	}
	return Step{Outcome: Success, Response: resp, Raw: raw}
}

// Run drives Step until Success or the attempt budget is spent. It never
// issues more than MaxAttempts backend calls.
func (v *Validator) Run(ctx context.Context, agent llm.Agent, prompt string) Result {
	current := prompt
	var last Step
	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		last = v.Step(ctx, agent, current)
		if last.Outcome == Success {
			return Result{Outcome: Success, Response: last.Response, Attempts: attempt, Raw: last.Raw}
		}

		v.log.Debug().
			Str("role", agent.Role).
			Int("attempt", attempt).
			Err(last.Reason).
			Msg("structured output rejected")

		if ctx.Err() != nil {
			return Result{Outcome: Fail, Attempts: attempt, Raw: last.Raw, Reason: last.Reason}
		}
		if attempt == v.maxAttempts {
			break
		}
		if errors.Is(last.Reason, llm.ErrBackend) {
			// same prompt again after a pause
			if err := sleep(ctx, time.Duration(attempt)*v.backoff); err != nil {
				return Result{Outcome: Fail, Attempts: attempt, Raw: last.Raw, Reason: last.Reason}
			}
			continue
		}
		current = v.Reformulate(prompt, last.Raw, last.Reason)
	}
	return Result{Outcome: Fail, Attempts: v.maxAttempts, Raw: last.Raw, Reason: last.Reason}
}

// Reformulate builds the retry prompt: the corrective instruction, the
// original request, then the rejected output for the model to fix.
func (v *Validator) Reformulate(original, previous string, reason error) string {
	var b strings.Builder
	b.WriteString(v.corrective)
	b.WriteString("\n\n")
	b.WriteString(original)
	b.WriteString("\n\nSALIDA ANTERIOR (corrígela):\n")
	b.WriteString(strings.TrimSpace(previous))
	if reason != nil {
		b.WriteString("\nMotivo: ")
		b.WriteString(reason.Error())
	}
	return b.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
