package tutoring

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-dpo/api/internal/checkpoint"
	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/llm/llmtest"
	"tutor-dpo/api/internal/prompt"
	"tutor-dpo/api/internal/rubric"
)

func agent(b llm.Backend) llm.Agent { return llm.Agent{Role: "aux", Backend: b} }

func TestTranslate(t *testing.T) {
	be := llmtest.New(
		llmtest.Text("Assistant: ¿Cuánto es 2+2?"),
		llmtest.Text("   "),
		llmtest.Fail(errors.New("down")),
	)
	tr := NewTranslator(agent(be), prompt.MustDefault(), zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, "¿Cuánto es 2+2?", tr.Translate(ctx, "What is 2+2?"))
	assert.Equal(t, "keep me", tr.Translate(ctx, "keep me"), "empty output falls back")
	assert.Equal(t, "still here", tr.Translate(ctx, "still here"), "backend error falls back")

	// numbers and blanks never reach the backend
	assert.Equal(t, "42.5", tr.Translate(ctx, " 42.5 "))
	assert.Equal(t, "", tr.Translate(ctx, ""))
	assert.Equal(t, 3, be.CallCount())
	assert.Contains(t, be.Calls()[0].Prompt, "What is 2+2?")
}

func TestTranslateResponseKeepsCodes(t *testing.T) {
	tr := NewTranslator(agent(llmtest.Func(func(p string) llmtest.Reply {
		return llmtest.Text("ES")
	})), prompt.MustDefault(), zerolog.Nop())

	r := rubric.TutorResponse{Eval: "g", Action: "6", State: "w", Subproblem: "add", Text: "what do you think?"}
	got := TranslateResponse(context.Background(), tr, r)
	assert.Equal(t, rubric.TutorResponse{Eval: "g", Action: "6", State: "w", Subproblem: "ES", Text: "ES"}, got)
}

func TestSummarizer(t *testing.T) {
	be := llmtest.New(llmtest.Text(" Suma 2 y 2. "))
	s := NewSummarizer(agent(be), prompt.MustDefault())

	out, err := s.Summarize(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Equal(t, 0, be.CallCount())

	out, err = s.Summarize(context.Background(), "2+2=4")
	require.NoError(t, err)
	assert.Equal(t, "Suma 2 y 2.", out)
}

// classifierBackend answers area and objective prompts independently.
func classifierBackend(area, objective llmtest.Reply) *llmtest.Scripted {
	return llmtest.Func(func(p string) llmtest.Reply {
		if strings.Contains(p, `"area_conocimiento"`) {
			return area
		}
		return objective
	})
}

func TestClassify(t *testing.T) {
	cur := rubric.DefaultCurriculum()
	ctx := context.Background()

	tests := []struct {
		name      string
		policy    Policy
		area, obj llmtest.Reply
		want      Tags
	}{
		{"both parse", DefaultOnParseFailure,
			llmtest.Text(`{"area_conocimiento":"ac02"}`), llmtest.Text(`Claro: {"objetivo_pedagogico":"OP07"}`),
			Tags{Area: "AC02", Objective: "OP07"}},
		{"parse failure defaults", DefaultOnParseFailure,
			llmtest.Text("no sé"), llmtest.Text(`{"objetivo_pedagogico":"OP04"}`),
			Tags{Area: "AC01", Objective: "OP04"}},
		{"unknown code defaults", DefaultOnParseFailure,
			llmtest.Text(`{"area_conocimiento":"AC99"}`), llmtest.Fail(errors.New("down")),
			Tags{Area: "AC01", Objective: "OP09"}},
		{"propagate as missing", PropagateAsMissing,
			llmtest.Text("???"), llmtest.Text(`{"objetivo_pedagogico":"OP01"}`),
			Tags{Objective: "OP01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := classifierBackend(tt.area, tt.obj)
			c := NewClassifier(agent(be), prompt.MustDefault(), cur, tt.policy, zerolog.Nop())
			assert.Equal(t, tt.want, c.Classify(ctx, "¿Cuánto es 2+2?", "4"))
			assert.Equal(t, 2, be.CallCount())
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultOnParseFailure, p)
	p, err = ParsePolicy("Propagate-As-Missing")
	require.NoError(t, err)
	assert.Equal(t, PropagateAsMissing, p)
	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

func TestEnrich(t *testing.T) {
	be := llmtest.Func(func(p string) llmtest.Reply {
		switch {
		case strings.Contains(p, `"area_conocimiento"`):
			return llmtest.Text(`{"area_conocimiento":"AC01"}`)
		case strings.Contains(p, `"objetivo_pedagogico"`):
			return llmtest.Text(`{"objetivo_pedagogico":"OP04"}`)
		case strings.HasPrefix(p, "Resume"):
			return llmtest.Text("Multiplica 5 por 8.")
		default:
			return llmtest.Text("[es]")
		}
	})
	ps := prompt.MustDefault()
	e := &Enricher{
		Translator: NewTranslator(agent(be), ps, zerolog.Nop()),
		Classifier: NewClassifier(agent(be), ps, rubric.DefaultCurriculum(), DefaultOnParseFailure, zerolog.Nop()),
		Summarizer: NewSummarizer(agent(be), ps),
	}
	in := map[string]any{"problem": "5 boxes of 8", "generated_solution": "40", "id": 7.0}
	out := e.Enrich(context.Background(), in)

	assert.Equal(t, "[es]", out["problem"])
	assert.Equal(t, "40", out["generated_solution"], "pure numbers are not translated")
	assert.Equal(t, 7.0, out["id"])
	assert.Equal(t, "AC01", out["area_conocimiento"])
	assert.Equal(t, "OP04", out["objetivo_pedagogico"])
	assert.Equal(t, "Multiplica 5 por 8.", out["generated_secondary_answer"])
	assert.Equal(t, "5 boxes of 8", in["problem"])
}

type rowSink struct{ rows []map[string]any }

func (s *rowSink) Append(v any) error {
	s.rows = append(s.rows, v.(map[string]any))
	return nil
}

func TestEnricherRunSkips(t *testing.T) {
	be := llmtest.Func(func(string) llmtest.Reply { return llmtest.Text("traducido") })
	e := &Enricher{Translator: NewTranslator(agent(be), prompt.MustDefault(), zerolog.Nop())}
	in := strings.Join([]string{
		`{"problem":"one"}`,
		`{"problem":"two"}`,
		`oops`,
		`{"problem":"three"}`,
	}, "\n")
	sink := &rowSink{}

	st, err := e.Run(context.Background(), strings.NewReader(in), sink, 1, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Written)
	assert.Equal(t, 1, st.Malformed)
	require.Len(t, sink.rows, 2)
	assert.Equal(t, "traducido", sink.rows[0]["problem"])
	assert.Equal(t, 2, be.CallCount(), "skipped rows are not translated")
}

func TestEnricherRunResumesFromOffset(t *testing.T) {
	be := llmtest.Func(func(string) llmtest.Reply { return llmtest.Text("traducido") })
	e := &Enricher{Translator: NewTranslator(agent(be), prompt.MustDefault(), zerolog.Nop())}
	off := checkpoint.ForOutput(filepath.Join(t.TempDir(), "es.jsonl"), 10)
	first := strings.Join([]string{`oops`, `{"problem":"one"}`, ``, `{"problem":"two"}`}, "\n")
	sink := &rowSink{}

	_, err := e.Run(context.Background(), strings.NewReader(first), sink, -1, off, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, sink.rows, 2)

	// two rows were written, but four input lines were consumed
	more := first + "\n" + `{"problem":"three"}`
	st, err := e.Run(context.Background(), strings.NewReader(more), sink, -1, off, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Written)
	assert.Equal(t, 0, st.Malformed)
	assert.Len(t, sink.rows, 3, "no row is translated twice")
	assert.Equal(t, 3, be.CallCount())
}
