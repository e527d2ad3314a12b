package preference

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"tutor-dpo/api/internal/dataset"
	"tutor-dpo/api/internal/dialogue"
	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/prompt"
)

// Contrastive generates a scaffolding response (chosen) and a direct-answer
// response (rejected) for every student turn. Later turns are conditioned on
// the generated chosen responses, not on the Dc tutor text.
type Contrastive struct {
	agent   llm.Agent
	prompts *prompt.Set
	builder *dialogue.Builder
	mode    dialogue.Mode
	log     zerolog.Logger
}

// NewContrastive builds the strategy. mode selects how the recorded context
// is rendered: Numbered, or Summarized through one extra call per turn.
func NewContrastive(agent llm.Agent, prompts *prompt.Set, mode dialogue.Mode, log zerolog.Logger) *Contrastive {
	if mode != dialogue.Numbered {
		mode = dialogue.Summarized
	}
	summarize := dialogue.SummarizeWith(agent, func(transcript string) string {
		return prompts.Render(prompt.Summary, "dialogo", transcript)
	})
	return &Contrastive{
		agent:   agent,
		prompts: prompts,
		builder: dialogue.NewBuilder(dialogue.WithLabels(dialogue.SpanishLabels), dialogue.WithSummarizer(summarize)),
		mode:    mode,
		log:     log,
	}
}

func (c *Contrastive) Name() string { return NameContrastive }

func (c *Contrastive) Extract(ctx context.Context, conv Conversation, emit Emit) error {
	var history []dialogue.Exchange
	for _, turn := range conv.Turns {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := c.log.With().Str("conversation_id", conv.ID).Int("turn_idx", turn.TurnIdx).Logger()

		current := append(history[:len(history):len(history)], dialogue.Exchange{Student: turn.Student})
		dlg := c.builder.Render(current, dialogue.Numbered)

		chosen, err := c.generate(ctx, prompt.Scaffold, dlg)
		if err != nil {
			log.Warn().Err(err).Msg("scaffolding response failed; turn skipped")
			continue
		}
		rejected, err := c.generate(ctx, prompt.Direct, dlg)
		if err != nil {
			log.Warn().Err(err).Msg("direct response failed; turn skipped")
			continue
		}

		out := turn.Student
		if len(history) > 0 {
			summary, err := c.builder.Build(ctx, history, c.mode)
			if err != nil {
				log.Warn().Err(err).Msg("context summary failed; using student utterance")
			} else if strings.TrimSpace(summary) != "" {
				out = summary
			}
		}

		if err := emit(dataset.Pair{
			ConversationID: conv.ID,
			TurnIdx:        dataset.IntPtr(turn.TurnIdx),
			Context:        out,
			Chosen:         chosen,
			Rejected:       rejected,
			Preference:     true,
		}); err != nil {
			return err
		}
		history = append(history, dialogue.Exchange{Student: turn.Student, Tutor: chosen})
	}
	return nil
}

func (c *Contrastive) generate(ctx context.Context, name prompt.Name, dlg string) (string, error) {
	out, err := c.agent.Ask(ctx, c.prompts.Render(name, "contexto", dlg))
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", llm.EmptyError(c.agent.Backend.Name())
	}
	return out, nil
}
