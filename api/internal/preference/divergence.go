package preference

import (
	"context"

	"github.com/rs/zerolog"

	"tutor-dpo/api/internal/dataset"
	"tutor-dpo/api/internal/dialogue"
	"tutor-dpo/api/internal/tutoring"
)

// Divergence prefers the AT response over the AS response on every turn
// where their rubric codes differ. Turns with identical codes yield nothing.
type Divergence struct {
	builder    *dialogue.Builder
	classifier *tutoring.Classifier
	summarizer *tutoring.Summarizer
	log        zerolog.Logger
}

// NewDivergence builds the strategy. classifier and summarizer are optional;
// without them the auxiliary fields are left out.
func NewDivergence(classifier *tutoring.Classifier, summarizer *tutoring.Summarizer, log zerolog.Logger) *Divergence {
	return &Divergence{
		builder:    dialogue.NewBuilder(dialogue.WithLabels(dialogue.SpanishLabels)),
		classifier: classifier,
		summarizer: summarizer,
		log:        log,
	}
}

func (d *Divergence) Name() string { return NameDivergence }

func (d *Divergence) Extract(ctx context.Context, conv Conversation, emit Emit) error {
	problem := conv.problem()
	var history []dialogue.Exchange
	for _, turn := range conv.Turns {
		at, as := turn.TutorAT, turn.TutorAS
		if HasDivergence(at, as) {
			current := append(history[:len(history):len(history)], dialogue.Exchange{Student: turn.Student})
			pair := dataset.Pair{
				ConversationID:    conv.ID,
				TurnIdx:           dataset.IntPtr(turn.TurnIdx),
				Context:           d.builder.Render(current, dialogue.Raw),
				Chosen:            at.Text,
				Rejected:          as.Text,
				Eval:              at.Eval,
				Action:            at.Action,
				State:             at.State,
				GeneratedSolution: at.Text,
			}
			if d.classifier != nil {
				tags := d.classifier.Classify(ctx, problem, at.Text)
				pair.Area, pair.Objective = tags.Area, tags.Objective
			}
			if d.summarizer != nil {
				sum, err := d.summarizer.Summarize(ctx, at.Text)
				if err != nil {
					d.log.Warn().Err(err).Str("conversation_id", conv.ID).Int("turn_idx", turn.TurnIdx).
						Msg("solution summary failed")
				}
				pair.SecondaryAnswer = sum
			}
			if err := emit(pair); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		history = append(history, dialogue.Exchange{Student: turn.Student, Tutor: at.Text})
	}
	return nil
}
