package tutoring

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/prompt"
	"tutor-dpo/api/internal/rubric"
)

// Translator normalizes text into the dataset language. It never fails:
// on any problem the input comes back unchanged.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// Identity leaves text untouched.
type Identity struct{}

func (Identity) Translate(_ context.Context, text string) string { return text }

var (
	numberRe     = regexp.MustCompile(`^\s*\d+(\.\d+)?\s*$`)
	rolePrefixRe = regexp.MustCompile(`(?i)^(Human|Assistant)\s*:\s*`)
)

type LLMTranslator struct {
	agent   llm.Agent
	prompts *prompt.Set
	log     zerolog.Logger
}

func NewTranslator(agent llm.Agent, prompts *prompt.Set, log zerolog.Logger) *LLMTranslator {
	return &LLMTranslator{agent: agent, prompts: prompts, log: log}
}

func (t *LLMTranslator) Translate(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if numberRe.MatchString(text) {
		return strings.TrimSpace(text)
	}
	out, err := t.agent.Ask(ctx, t.prompts.Render(prompt.Translate, "texto", text))
	if err != nil {
		t.log.Warn().Err(err).Msg("translation failed; keeping source text")
		return text
	}
	out = strings.TrimSpace(rolePrefixRe.ReplaceAllString(out, ""))
	if out == "" {
		return text
	}
	return out
}

// TranslateResponse translates the free-text fields of r. Rubric codes are
// left as they are.
func TranslateResponse(ctx context.Context, tr Translator, r rubric.TutorResponse) rubric.TutorResponse {
	r.Subproblem = tr.Translate(ctx, r.Subproblem)
	r.Text = tr.Translate(ctx, r.Text)
	return r
}
