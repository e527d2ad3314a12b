package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tutor-dpo/api/internal/dataset"
	"tutor-dpo/api/internal/dialogue"
	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/prompt"
	"tutor-dpo/api/internal/rubric"
	"tutor-dpo/api/internal/tutoring"
	"tutor-dpo/api/internal/validate"
)

// CommitPolicy decides when turns of a conversation reach the output.
type CommitPolicy string

const (
	// Stream writes every validated turn immediately. An aborted
	// conversation keeps the turns written before the failure.
	Stream CommitPolicy = "stream"
	// Atomic buffers a conversation and writes it only once it completes.
	Atomic CommitPolicy = "atomic"
)

func ParseCommitPolicy(s string) (CommitPolicy, error) {
	switch p := CommitPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case Stream, Atomic:
		return p, nil
	case "":
		return Stream, nil
	}
	return "", fmt.Errorf("unknown commit policy %q", s)
}

const DefaultMaxTurns = 10

var (
	ErrStudentFailed = errors.New("student agent failed")
	ErrTutorFailed   = errors.New("tutor validation failed")
)

// Agents are the three roles of a conversation.
type Agents struct {
	Student llm.Agent
	TutorAT llm.Agent
	TutorAS llm.Agent
}

type Config struct {
	MaxTurns int
	Commit   CommitPolicy
	// TurnPause is waited after each validated turn before the next student
	// utterance is requested.
	TurnPause time.Duration
}

type Orchestrator struct {
	agents     Agents
	validator  *validate.Validator
	prompts    *prompt.Set
	tables     *rubric.Tables
	builder    *dialogue.Builder
	translator tutoring.Translator
	cfg        Config
	log        zerolog.Logger
}

type Option func(*Orchestrator)

func WithTranslator(t tutoring.Translator) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.translator = t
		}
	}
}

func WithContextBuilder(b *dialogue.Builder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.builder = b
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func New(agents Agents, v *validate.Validator, prompts *prompt.Set, tables *rubric.Tables, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Commit == "" {
		cfg.Commit = Stream
	}
	o := &Orchestrator{
		agents:     agents,
		validator:  v,
		prompts:    prompts,
		tables:     tables,
		builder:    dialogue.NewBuilder(dialogue.WithLabels(dialogue.SpanishLabels)),
		translator: tutoring.Identity{},
		cfg:        cfg,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type state int

const (
	stateSeed state = iota
	stateGenerateStudent
	stateGenerateTutors
	stateValidate
	stateAbort
	stateComplete
)

// Outcome describes how one conversation ended.
type Outcome struct {
	ConversationID string
	// Committed is the number of turns written to the sink.
	Committed int
	Completed bool
	Reason    error
}

// Converse runs one conversation for problem and writes its turns to sink
// according to the commit policy. Tutor or student failures end the
// conversation and are reported in Outcome; the returned error is only set
// when the sink fails or ctx is done.
func (o *Orchestrator) Converse(ctx context.Context, id, problem string, sink dataset.Sink) (Outcome, error) {
	var (
		history []dialogue.Exchange
		pending []dataset.Turn
		seed    string
		student string
		at, as  validate.Result
		turn    int
	)
	out := Outcome{ConversationID: id}
	log := o.log.With().Str("conversation_id", id).Logger()
	st := stateSeed

	for {
		switch st {
		case stateSeed:
			seed = o.translator.Translate(ctx, strings.TrimSpace(problem))
			student = seed
			st = stateGenerateTutors

		case stateGenerateStudent:
			if err := pause(ctx, o.cfg.TurnPause); err != nil {
				return out, err
			}
			p := o.prompts.Render(prompt.Student, "contexto", o.builder.Render(history, dialogue.Raw))
			utt, err := o.agents.Student.Ask(ctx, p)
			if err == nil && utt == "" {
				err = llm.EmptyError(o.agents.Student.Backend.Name())
			}
			if err != nil {
				out.Reason = fmt.Errorf("%w: turn %d: %w", ErrStudentFailed, turn, err)
				st = stateAbort
				continue
			}
			student = o.translator.Translate(ctx, utt)
			st = stateGenerateTutors

		case stateGenerateTutors:
			current := append(history[:len(history):len(history)], dialogue.Exchange{Student: student})
			ctxText := o.builder.Render(current, dialogue.Raw)
			if ctxText == "" {
				ctxText = "—"
			}
			p := o.tutorPrompt(ctxText, student)
			at = o.validator.Run(ctx, o.agents.TutorAT, p)
			as = validate.Result{Outcome: validate.Fail}
			if at.OK() {
				as = o.validator.Run(ctx, o.agents.TutorAS, p)
			}
			st = stateValidate

		case stateValidate:
			if !at.OK() || !as.OK() {
				role, res := o.agents.TutorAT.Role, at
				if at.OK() {
					role, res = o.agents.TutorAS.Role, as
				}
				out.Reason = fmt.Errorf("%w: turn %d: %s after %d attempts: %v", ErrTutorFailed, turn, role, res.Attempts, res.Reason)
				st = stateAbort
				continue
			}
			rec := dataset.Turn{
				ConversationID: id,
				TurnIdx:        turn,
				Problem:        seed,
				Student:        student,
				TutorAT:        tutoring.TranslateResponse(ctx, o.translator, at.Response),
				TutorAS:        tutoring.TranslateResponse(ctx, o.translator, as.Response),
			}
			if o.cfg.Commit == Stream {
				if err := sink.Append(rec); err != nil {
					return out, err
				}
				out.Committed++
			} else {
				pending = append(pending, rec)
			}
			history = append(history, dialogue.Exchange{Student: student, Tutor: rec.TutorAT.Text})
			turn++
			if turn >= o.cfg.MaxTurns {
				st = stateComplete
			} else {
				st = stateGenerateStudent
			}

		case stateAbort:
			if err := ctx.Err(); err != nil {
				return out, err
			}
			log.Warn().
				Err(out.Reason).
				Int("committed", out.Committed).
				Int("discarded", len(pending)).
				Msg("conversation aborted")
			return out, nil

		case stateComplete:
			for _, rec := range pending {
				if err := sink.Append(rec); err != nil {
					return out, err
				}
				out.Committed++
			}
			out.Completed = true
			log.Debug().Int("turns", turn).Msg("conversation complete")
			return out, nil
		}
	}
}

func (o *Orchestrator) tutorPrompt(ctxText, student string) string {
	return o.prompts.Render(prompt.Tutor,
		"eval_codes", prompt.Legend(o.tables.Eval),
		"action_codes", prompt.Legend(o.tables.Action),
		"state_codes", prompt.Legend(o.tables.State),
		"contexto", ctxText,
		"alumno", student,
	)
}

func pause(ctx context.Context, d time.Duration) error {
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
