package preference

import (
	"context"
	"fmt"
	"strings"

	"tutor-dpo/api/internal/dataset"
	"tutor-dpo/api/internal/rubric"
)

// Conversation is the ordered Dc turns sharing one conversation id.
type Conversation struct {
	ID    string
	Turns []dataset.Turn
}

// problem returns the seed problem of the conversation.
func (c Conversation) problem() string {
	for _, t := range c.Turns {
		if t.Problem != "" {
			return t.Problem
		}
	}
	if len(c.Turns) > 0 {
		return c.Turns[0].Student
	}
	return ""
}

// Emit receives each pair as soon as it is built.
type Emit func(dataset.Pair) error

// Strategy turns one conversation into preference pairs. Record-level
// generation failures are skipped inside Extract; a returned error comes
// from emit or ctx.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, conv Conversation, emit Emit) error
}

const (
	NameDivergence  = "divergence"
	NameContrastive = "contrastive"
)

func ParseStrategy(s string) (string, error) {
	switch n := strings.ToLower(strings.TrimSpace(s)); n {
	case NameDivergence, NameContrastive:
		return n, nil
	case "":
		return NameDivergence, nil
	}
	return "", fmt.Errorf("unknown preference strategy %q", s)
}

// HasDivergence reports whether the two tutors disagree on any rubric code.
func HasDivergence(at, as rubric.TutorResponse) bool {
	return !rubric.SameCodes(at, as)
}
