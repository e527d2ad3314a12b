package tutoring

import (
	"context"
	"strings"

	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/prompt"
)

// Summarizer condenses a tutor solution into its key steps.
type Summarizer struct {
	agent   llm.Agent
	prompts *prompt.Set
}

func NewSummarizer(agent llm.Agent, prompts *prompt.Set) *Summarizer {
	return &Summarizer{agent: agent, prompts: prompts}
}

// Summarize returns "" for blank input without calling the backend.
func (s *Summarizer) Summarize(ctx context.Context, solution string) (string, error) {
	if strings.TrimSpace(solution) == "" {
		return "", nil
	}
	return s.agent.Ask(ctx, s.prompts.Render(prompt.SolutionSummary, "texto", solution))
}
