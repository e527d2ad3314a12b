package tutoring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/prompt"
	"tutor-dpo/api/internal/rubric"
	"tutor-dpo/api/internal/validate"
)

// Policy decides what a failed tag lookup turns into.
type Policy string

const (
	// DefaultOnParseFailure substitutes AC01 / OP09.
	DefaultOnParseFailure Policy = "default-on-parse-failure"
	// PropagateAsMissing leaves the tag empty so it is omitted from output.
	PropagateAsMissing Policy = "propagate-as-missing"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case DefaultOnParseFailure, PropagateAsMissing:
		return p, nil
	case "":
		return DefaultOnParseFailure, nil
	}
	return "", fmt.Errorf("unknown classification policy %q", s)
}

// Tags are the auxiliary pedagogical labels of a record.
type Tags struct {
	Area      string `json:"area_conocimiento,omitempty"`
	Objective string `json:"objetivo_pedagogico,omitempty"`
}

var errUnknownTag = errors.New("tag not in table")

type Classifier struct {
	agent      llm.Agent
	prompts    *prompt.Set
	curriculum *rubric.Curriculum
	policy     Policy
	log        zerolog.Logger
}

func NewClassifier(agent llm.Agent, prompts *prompt.Set, cur *rubric.Curriculum, policy Policy, log zerolog.Logger) *Classifier {
	if policy == "" {
		policy = DefaultOnParseFailure
	}
	return &Classifier{agent: agent, prompts: prompts, curriculum: cur, policy: policy, log: log}
}

func (c *Classifier) Policy() Policy { return c.policy }

// Classify tags a problem and its solution with an area and an objective.
// The two lookups run concurrently over the same immutable input and are
// joined before returning. Failures never surface as errors; they resolve
// through the configured policy.
func (c *Classifier) Classify(ctx context.Context, problem, solution string) Tags {
	var (
		tags            Tags
		areaErr, objErr error
		g               errgroup.Group
	)
	areas, objective := c.curriculum.Areas, c.curriculum.Objectives
	g.Go(func() error {
		p := c.prompts.Render(prompt.ClassifyArea,
			"areas", prompt.Bullets(areas), "problema", problem, "solucion", solution)
		tags.Area, areaErr = c.lookup(ctx, p, "area_conocimiento", areas)
		return nil
	})
	g.Go(func() error {
		p := c.prompts.Render(prompt.ClassifyObjective,
			"objetivos", prompt.Bullets(objective), "problema", problem, "solucion", solution)
		tags.Objective, objErr = c.lookup(ctx, p, "objetivo_pedagogico", objective)
		return nil
	})
	_ = g.Wait()

	if areaErr != nil {
		tags.Area = c.fallback(rubric.DefaultArea, "area_conocimiento", areaErr)
	}
	if objErr != nil {
		tags.Objective = c.fallback(rubric.DefaultObjective, "objetivo_pedagogico", objErr)
	}
	return tags
}

func (c *Classifier) lookup(ctx context.Context, p, key string, table rubric.Table) (string, error) {
	raw, err := c.agent.Ask(ctx, p)
	if err != nil {
		return "", err
	}
	v, ok := validate.StringField(raw, key)
	if !ok {
		return "", validate.ErrParse
	}
	v = strings.ToUpper(v)
	if !table.Has(v) {
		return "", fmt.Errorf("%w: %s=%q", errUnknownTag, key, v)
	}
	return v, nil
}

func (c *Classifier) fallback(def, key string, err error) string {
	ev := c.log.Warn().Err(err).Str("tag", key).Str("policy", string(c.policy))
	if c.policy == PropagateAsMissing {
		ev.Msg("classification failed; tag left empty")
		return ""
	}
	ev.Str("default", def).Msg("classification failed; using default")
	return def
}
