package dialogue

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tutor-dpo/api/internal/llm"
)

// Exchange is one student utterance and the tutor text that answered it.
// Tutor is empty for the turn currently being answered.
type Exchange struct {
	Student string `json:"student"`
	Tutor   string `json:"tutor"`
}

type Mode string

const (
	Raw        Mode = "raw"
	Numbered   Mode = "numbered"
	Summarized Mode = "summarized"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Raw, Numbered, Summarized:
		return m, nil
	}
	return "", fmt.Errorf("unknown context mode %q", s)
}

type Labels struct {
	Student string
	Tutor   string
}

var (
	EnglishLabels = Labels{Student: "Student", Tutor: "Tutor"}
	SpanishLabels = Labels{Student: "Alumno", Tutor: "Tutor"}
)

// Summarize compresses a rendered transcript.
type Summarize func(ctx context.Context, transcript string) (string, error)

// Builder renders conversation history for prompts.
type Builder struct {
	labels    Labels
	summarize Summarize
	maxTokens int
	counter   TokenCounter
}

type Option func(*Builder)

func WithLabels(l Labels) Option { return func(b *Builder) { b.labels = l } }

func WithSummarizer(s Summarize) Option { return func(b *Builder) { b.summarize = s } }

// WithTokenBound drops the oldest exchanges until the rendered transcript fits
// in max tokens. The newest exchange is always kept.
func WithTokenBound(max int, c TokenCounter) Option {
	return func(b *Builder) {
		b.maxTokens = max
		if c != nil {
			b.counter = c
		}
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{labels: EnglishLabels, counter: HeuristicCounter{}}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SummarizeWith asks agent for the prompt render builds from the transcript.
func SummarizeWith(agent llm.Agent, render func(transcript string) string) Summarize {
	return func(ctx context.Context, transcript string) (string, error) {
		return agent.Ask(ctx, render(transcript))
	}
}

// Build renders history in the given mode. history is never modified.
// Summarized mode makes exactly one backend call, or none for empty history.
func (b *Builder) Build(ctx context.Context, history []Exchange, mode Mode) (string, error) {
	switch mode {
	case Raw, "":
		return b.fit(history, b.raw), nil
	case Numbered:
		return b.fit(history, b.numbered), nil
	case Summarized:
		if len(history) == 0 {
			return "", nil
		}
		if b.summarize == nil {
			return "", fmt.Errorf("summarized context requested without a summarizer")
		}
		out, err := b.summarize(ctx, b.fit(history, b.raw))
		if err != nil {
			return "", fmt.Errorf("summarize context: %w", err)
		}
		return strings.TrimSpace(out), nil
	default:
		return "", fmt.Errorf("unknown context mode %q", mode)
	}
}

// Render is Build for the pure modes.
func (b *Builder) Render(history []Exchange, mode Mode) string {
	if mode == Numbered {
		return b.fit(history, b.numbered)
	}
	return b.fit(history, b.raw)
}

func (b *Builder) fit(history []Exchange, render func([]Exchange) string) string {
	out := render(history)
	if b.maxTokens <= 0 {
		return out
	}
	for start := 1; start < len(history) && b.counter.Count(out) > b.maxTokens; start++ {
		out = render(history[start:])
	}
	return out
}

func (b *Builder) raw(history []Exchange) string {
	var sb strings.Builder
	for i, ex := range history {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(b.labels.Student + ": " + ex.Student)
		if i == len(history)-1 && ex.Tutor == "" {
			continue
		}
		sb.WriteString("\n" + b.labels.Tutor + ": " + ex.Tutor)
	}
	return sb.String()
}

func (b *Builder) numbered(history []Exchange) string {
	var sb strings.Builder
	for i, ex := range history {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i+1) + ". " + b.labels.Student + ": " + oneLine(ex.Student))
		sb.WriteString("\n   " + b.labels.Tutor + " : " + oneLine(ex.Tutor))
	}
	return sb.String()
}

func oneLine(s string) string { return strings.ReplaceAll(s, "\n", " ") }
