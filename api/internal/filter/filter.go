package filter

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tutor-dpo/api/internal/checkpoint"
	"tutor-dpo/api/internal/dataset"
	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/prompt"
	"tutor-dpo/api/internal/rubric"
	"tutor-dpo/api/internal/validate"
)

var advanced = regexp.MustCompile(`f\([a-zA-Z]\)|√|\^|\b(?:log|ln|sin|cos|tan|mod)\b|\bx\s*=`)

// IsObviouslyAdvanced flags text with notation beyond grades 3 to 5, so it
// can be dropped without asking the model.
func IsObviouslyAdvanced(text string) bool {
	return advanced.MatchString(text)
}

// Example is one labelled few-shot case for the include check.
type Example struct {
	Problem  string
	Solution string
	Include  bool
}

var FewShot = []Example{
	{Problem: "Ava has 5 boxes of crayons. Each box has 8 crayons. How many crayons does she have in total?",
		Solution: "5 × 8 = 40. Ava has 40 crayons.", Include: true},
	{Problem: "If f(x) = x^2 + 3x, what is f(2)?",
		Solution: "f(2) = 2^2 + 3×2 = 4 + 6 = 10.", Include: false},
	{Problem: "Calculate the value of √49.",
		Solution: "The square root of 49 is 7.", Include: false},
	{Problem: "Luca drank 2/3 of his juice. What fraction of the juice is left?",
		Solution: "1 - 2/3 = 1/3. One third is left.", Include: true},
}

const (
	fieldProblem   = "problem"
	fieldSolution  = "generated_solution"
	fieldSubject   = "subject"
	fieldObjective = "objective_code"
)

// Filter keeps grade-appropriate seed problems and tags them with a subject
// and a pedagogical objective.
type Filter struct {
	agent      llm.Agent
	prompts    *prompt.Set
	curriculum *rubric.Curriculum
	examples   string
	log        zerolog.Logger
}

func New(agent llm.Agent, prompts *prompt.Set, cur *rubric.Curriculum, log zerolog.Logger) *Filter {
	return &Filter{
		agent:      agent,
		prompts:    prompts,
		curriculum: cur,
		examples:   renderExamples(FewShot),
		log:        log.With().Str("component", "filter").Logger(),
	}
}

func renderExamples(exs []Example) string {
	var sb strings.Builder
	for _, ex := range exs {
		fmt.Fprintf(&sb, "Problem:\n%s\n\nSolution:\n%s\n\nAnswer: {\"include\": %t}\n\n", ex.Problem, ex.Solution, ex.Include)
	}
	return sb.String()
}

// Evaluate decides whether obj is kept. A kept record gains the subject and
// objective_code fields when their lookups succeed. obj is not modified.
func (f *Filter) Evaluate(ctx context.Context, obj map[string]any) (map[string]any, bool) {
	problem, _ := obj[fieldProblem].(string)
	solution, _ := obj[fieldSolution].(string)
	if strings.TrimSpace(problem) == "" {
		return nil, false
	}
	if IsObviouslyAdvanced(problem) || IsObviouslyAdvanced(solution) {
		return nil, false
	}

	ok, err := f.include(ctx, problem, solution)
	if err != nil {
		f.log.Warn().Err(err).Msg("include check failed; record skipped")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var subject, objective string
	var g errgroup.Group
	g.Go(func() error {
		subject = f.subject(ctx, problem, solution)
		return nil
	})
	g.Go(func() error {
		objective = f.objective(ctx, problem, solution)
		return nil
	})
	_ = g.Wait()

	out := make(map[string]any, len(obj)+2)
	for k, v := range obj {
		out[k] = v
	}
	if subject != "" {
		out[fieldSubject] = subject
	}
	if objective != "" {
		out[fieldObjective] = objective
	}
	return out, true
}

func (f *Filter) include(ctx context.Context, problem, solution string) (bool, error) {
	raw, err := f.agent.Ask(ctx, f.prompts.Render(prompt.FilterInclude,
		"ejemplos", f.examples, "problema", problem, "solucion", solution))
	if err != nil {
		return false, err
	}
	m, ok := validate.Object(raw)
	if !ok {
		return false, validate.ErrParse
	}
	v, _ := m["include"].(bool)
	return v, nil
}

func (f *Filter) subject(ctx context.Context, problem, solution string) string {
	raw, err := f.agent.Ask(ctx, f.prompts.Render(prompt.FilterSubject,
		"temas", bulletList(f.curriculum.Subjects), "problema", problem, "solucion", solution))
	if err != nil {
		f.log.Warn().Err(err).Msg("subject tagging failed")
		return ""
	}
	v, ok := validate.StringField(raw, fieldSubject)
	if !ok {
		f.log.Warn().Str("raw", raw).Msg("subject tagging unparseable")
		return ""
	}
	for _, s := range f.curriculum.Subjects {
		if strings.EqualFold(s, v) {
			return s
		}
	}
	return v
}

func (f *Filter) objective(ctx context.Context, problem, solution string) string {
	raw, err := f.agent.Ask(ctx, f.prompts.Render(prompt.FilterObjective,
		"problema", problem, "solucion", solution))
	if err != nil {
		f.log.Warn().Err(err).Msg("objective tagging failed")
		return ""
	}
	v, ok := validate.StringField(raw, fieldObjective)
	v = strings.ToUpper(v)
	if !ok || !f.curriculum.Objectives.Has(v) {
		f.log.Warn().Str("raw", raw).Msg("objective tagging unusable")
		return ""
	}
	return v
}

func bulletList(items []string) string {
	var sb strings.Builder
	for i, s := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- " + s)
	}
	return sb.String()
}

type Stats struct {
	Read      int
	Kept      int
	Dropped   int
	Malformed int
}

func (s Stats) Map() map[string]int {
	return map[string]int{
		"read":      s.Read,
		"kept":      s.Kept,
		"dropped":   s.Dropped,
		"malformed": s.Malformed,
	}
}

// Run filters every record of r into sink. off, when set, skips lines
// consumed by an earlier run and is saved every off.Every lines.
func (f *Filter) Run(ctx context.Context, r io.Reader, sink dataset.Sink, off *checkpoint.Offset) (Stats, error) {
	var st Stats
	start := 0
	if off != nil {
		n, err := off.Load()
		if err != nil {
			return st, err
		}
		start = n
	}
	consumed := start

	bad := func(line int, err error) {
		if line < start {
			return
		}
		st.Malformed++
		f.log.Warn().Int("line", line).Err(err).Msg("skipping malformed record")
	}
	err := dataset.Decode(r, bad, func(line int, obj map[string]any) error {
		if line < start {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		st.Read++
		if kept, ok := f.Evaluate(ctx, obj); ok {
			if err := sink.Append(kept); err != nil {
				return err
			}
			st.Kept++
		} else {
			st.Dropped++
		}
		consumed = line + 1
		if off != nil && off.Due(consumed) {
			return off.Save(consumed)
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	if off != nil && consumed > start {
		if err := off.Save(consumed); err != nil {
			return st, err
		}
	}
	f.log.Info().Interface("stats", st.Map()).Msg("seed filtering finished")
	return st, nil
}
