package preference

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-dpo/api/internal/checkpoint"
	"tutor-dpo/api/internal/dataset"
	"tutor-dpo/api/internal/dialogue"
	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/llm/llmtest"
	"tutor-dpo/api/internal/prompt"
	"tutor-dpo/api/internal/rubric"
	"tutor-dpo/api/internal/tutoring"
)

type memSink struct {
	pairs []dataset.Pair
	err   error
}

func (m *memSink) Append(v any) error {
	if m.err != nil {
		return m.err
	}
	m.pairs = append(m.pairs, v.(dataset.Pair))
	return nil
}

func resp(eval, action, state, text string) rubric.TutorResponse {
	return rubric.TutorResponse{Eval: eval, Action: action, State: state, Subproblem: "sumar", Text: text}
}

func turn(id string, idx int, student string, at, as rubric.TutorResponse) dataset.Turn {
	return dataset.Turn{ConversationID: id, TurnIdx: idx, Student: student, TutorAT: at, TutorAS: as}
}

func dcReader(t *testing.T, turns ...dataset.Turn) *strings.Reader {
	t.Helper()
	var sb strings.Builder
	for _, tr := range turns {
		line, err := dataset.Marshal(tr)
		require.NoError(t, err)
		sb.Write(line)
	}
	return strings.NewReader(sb.String())
}

func agent(b llm.Backend) llm.Agent { return llm.Agent{Role: "aux", Backend: b} }

func TestHasDivergence(t *testing.T) {
	a := resp("g", "6", "w", "¿Qué crees?")
	b := resp("g", "6", "w", "Es 4.")
	assert.False(t, HasDivergence(a, b), "text alone never diverges")

	b.Action = "1"
	assert.True(t, HasDivergence(a, b))
	assert.Equal(t, "1", b.Action)
	assert.Equal(t, "6", a.Action)

	c := resp("b", "6", "w", "")
	assert.True(t, HasDivergence(a, c))
	d := resp("g", "6", "x", "")
	assert.True(t, HasDivergence(a, d))
}

func TestParseStrategy(t *testing.T) {
	n, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, NameDivergence, n)
	n, err = ParseStrategy(" Contrastive ")
	require.NoError(t, err)
	assert.Equal(t, NameContrastive, n)
	_, err = ParseStrategy("random")
	assert.Error(t, err)
}

func TestGroupOrdersTurns(t *testing.T) {
	r := resp("g", "6", "w", "")
	convs := Group([]dataset.Turn{
		turn("b", 1, "b1", r, r),
		turn("a", 0, "a0", r, r),
		turn("b", 0, "b0", r, r),
	})
	require.Len(t, convs, 2)
	assert.Equal(t, "b", convs[0].ID, "first seen order")
	assert.Equal(t, "b0", convs[0].Turns[0].Student)
	assert.Equal(t, "b1", convs[0].Turns[1].Student)
	assert.Equal(t, "a", convs[1].ID)
}

func TestDivergenceEmitsOnlyDivergentTurns(t *testing.T) {
	dc := dcReader(t,
		turn("c1", 0, "Creo que es 5", resp("b", "6", "w", "¿Seguro? Cuenta otra vez."), resp("b", "1", "w", "Es 4.")),
		turn("c1", 1, "Ah, es 4", resp("g", "6", "x", "¡Bien! ¿Por qué?"), resp("g", "6", "x", "Correcto.")),
		turn("c2", 0, "No sé", resp("a", "6", "w", "¿Qué sabes?"), resp("a", "6", "w", "Piensa.")),
		turn("c2", 1, "Sumo", resp("g", "10", "x", "¿Y ahora?"), resp("g", "6", "x", "Listo.")),
	)
	b := NewBuilder(NewDivergence(nil, nil, zerolog.Nop()), nil, zerolog.Nop())
	sink := &memSink{}

	st, err := b.Run(context.Background(), dc, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Conversations)
	assert.Equal(t, 2, st.Pairs)
	require.Len(t, sink.pairs, 2)

	first := sink.pairs[0]
	assert.Equal(t, "c1", first.ConversationID)
	assert.Equal(t, 0, *first.TurnIdx)
	assert.Equal(t, "¿Seguro? Cuenta otra vez.", first.Chosen)
	assert.Equal(t, "Es 4.", first.Rejected)
	assert.Equal(t, "Alumno: Creo que es 5", first.Context)
	assert.Equal(t, "6", first.Action, "codes come from the AT response")
	assert.False(t, first.Preference)

	second := sink.pairs[1]
	assert.Equal(t, "c2", second.ConversationID)
	assert.Equal(t, 1, *second.TurnIdx)
	assert.Equal(t, "Alumno: No sé\nTutor: ¿Qué sabes?\nAlumno: Sumo", second.Context)
	assert.Equal(t, "10", second.Action)
	assert.Empty(t, second.Area)
	assert.Empty(t, second.SecondaryAnswer)
}

func TestDivergenceIdenticalCodesYieldNothing(t *testing.T) {
	r := resp("g", "6", "w", "mismo")
	dc := dcReader(t, turn("c1", 0, "hola", r, resp("g", "6", "w", "otro texto")))
	sink := &memSink{}
	keys := checkpoint.NewKeySet()

	st, err := NewBuilder(NewDivergence(nil, nil, zerolog.Nop()), keys, zerolog.Nop()).
		Run(context.Background(), dc, sink)
	require.NoError(t, err)
	assert.Zero(t, st.Pairs)
	assert.Empty(t, sink.pairs)
	assert.False(t, keys.Has("c1"))
}

func TestDivergenceEnrichesPairs(t *testing.T) {
	aux := llmtest.Func(func(p string) llmtest.Reply {
		switch {
		case strings.Contains(p, "ÁREAS DE CONOCIMIENTO"):
			return llmtest.Text(`{"area_conocimiento":"ac05"}`)
		case strings.Contains(p, "OBJETIVOS PEDAGÓGICOS"):
			return llmtest.Text("no sé")
		default:
			return llmtest.Text("Contar de nuevo.")
		}
	})
	prompts := prompt.MustDefault()
	cls := tutoring.NewClassifier(agent(aux), prompts, rubric.DefaultCurriculum(), tutoring.DefaultOnParseFailure, zerolog.Nop())
	sum := tutoring.NewSummarizer(agent(aux), prompts)

	dc := dcReader(t, dataset.Turn{
		ConversationID: "c1", Problem: "¿Cuánto es 2+2?", Student: "5",
		TutorAT: resp("b", "6", "w", "¿Seguro?"), TutorAS: resp("b", "1", "w", "Es 4."),
	})
	sink := &memSink{}
	_, err := NewBuilder(NewDivergence(cls, sum, zerolog.Nop()), nil, zerolog.Nop()).
		Run(context.Background(), dc, sink)
	require.NoError(t, err)
	require.Len(t, sink.pairs, 1)

	p := sink.pairs[0]
	assert.Equal(t, "AC05", p.Area)
	assert.Equal(t, rubric.DefaultObjective, p.Objective)
	assert.Equal(t, "¿Seguro?", p.GeneratedSolution)
	assert.Equal(t, "Contar de nuevo.", p.SecondaryAnswer)
	for _, c := range aux.Calls() {
		if strings.Contains(c.Prompt, "Problema:") {
			assert.Contains(t, c.Prompt, "¿Cuánto es 2+2?")
		}
	}
}

func contrastiveBackend(failScaffoldOn string) *llmtest.Scripted {
	return llmtest.Func(func(p string) llmtest.Reply {
		switch {
		case strings.Contains(p, "Resume en no más de dos frases"):
			return llmtest.Text("El alumno intentó sumar.")
		case strings.Contains(p, "tutor de matemáticas paciente"):
			if failScaffoldOn != "" && strings.Contains(p, failScaffoldOn) {
				return llmtest.Fail(errors.New("boom"))
			}
			return llmtest.Text("¿Qué pasa si cuentas con los dedos?")
		case strings.Contains(p, "sin fomentar diálogo"):
			return llmtest.Text("Es 4.")
		}
		return llmtest.Text("")
	})
}

func TestContrastiveBuildsPairs(t *testing.T) {
	be := contrastiveBackend("")
	r := resp("g", "6", "w", "ignorado")
	dc := dcReader(t, turn("c1", 0, "Creo que es 5", r, r), turn("c1", 1, "Ahora 4", r, r))
	sink := &memSink{}

	s := NewContrastive(agent(be), prompt.MustDefault(), dialogue.Summarized, zerolog.Nop())
	st, err := NewBuilder(s, nil, zerolog.Nop()).Run(context.Background(), dc, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Pairs)
	require.Len(t, sink.pairs, 2)

	assert.Equal(t, "Creo que es 5", sink.pairs[0].Context, "first turn context is the student utterance")
	assert.Equal(t, "El alumno intentó sumar.", sink.pairs[1].Context)
	for _, p := range sink.pairs {
		assert.True(t, p.Preference)
		assert.Equal(t, "c1", p.ConversationID)
		assert.Equal(t, "¿Qué pasa si cuentas con los dedos?", p.Chosen)
		assert.Equal(t, "Es 4.", p.Rejected)
	}

	// the second scaffold prompt sees the generated chosen text, not the Dc tutor
	var scaffolds []string
	for _, c := range be.Calls() {
		if strings.Contains(c.Prompt, "tutor de matemáticas paciente") {
			scaffolds = append(scaffolds, c.Prompt)
		}
	}
	require.Len(t, scaffolds, 2)
	assert.Contains(t, scaffolds[1], "1. Alumno: Creo que es 5\n   Tutor : ¿Qué pasa si cuentas con los dedos?\n2. Alumno: Ahora 4")
	assert.NotContains(t, scaffolds[1], "ignorado")
}

func TestContrastiveSkipsFailedTurn(t *testing.T) {
	be := contrastiveBackend("primero")
	r := resp("g", "6", "w", "")
	dc := dcReader(t, turn("c1", 0, "primero", r, r), turn("c1", 1, "segundo", r, r))
	sink := &memSink{}

	s := NewContrastive(agent(be), prompt.MustDefault(), dialogue.Numbered, zerolog.Nop())
	_, err := NewBuilder(s, nil, zerolog.Nop()).Run(context.Background(), dc, sink)
	require.NoError(t, err)
	require.Len(t, sink.pairs, 1)
	assert.Equal(t, 1, *sink.pairs[0].TurnIdx)
	assert.Equal(t, "segundo", sink.pairs[0].Context, "history stays empty after a skipped turn")
}

func TestContrastiveNumberedContext(t *testing.T) {
	be := contrastiveBackend("")
	r := resp("g", "6", "w", "")
	dc := dcReader(t, turn("c1", 0, "uno", r, r), turn("c1", 1, "dos", r, r))
	sink := &memSink{}

	s := NewContrastive(agent(be), prompt.MustDefault(), dialogue.Numbered, zerolog.Nop())
	_, err := NewBuilder(s, nil, zerolog.Nop()).Run(context.Background(), dc, sink)
	require.NoError(t, err)
	require.Len(t, sink.pairs, 2)
	assert.Equal(t, "1. Alumno: uno\n   Tutor : ¿Qué pasa si cuentas con los dedos?", sink.pairs[1].Context)
	for _, c := range be.Calls() {
		assert.NotContains(t, c.Prompt, "Resume en no más de dos frases")
	}
}

func TestBuilderSkipsKnownAndMarks(t *testing.T) {
	div := func(id string) dataset.Turn {
		return turn(id, 0, "x", resp("b", "6", "w", "a"), resp("b", "1", "w", "b"))
	}
	keys := checkpoint.NewKeySet("done")
	sink := &memSink{}
	dc := dcReader(t, div("done"), div("new"))

	b := NewBuilder(NewDivergence(nil, nil, zerolog.Nop()), keys, zerolog.Nop())
	st, err := b.Run(context.Background(), dc, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 1, st.Pairs)
	assert.True(t, keys.Has("new"))

	st, err = b.Run(context.Background(), dcReader(t, div("done"), div("new")), sink)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Skipped)
	assert.Len(t, sink.pairs, 1, "rerun never duplicates")
}

func TestBuilderMalformedAndSinkError(t *testing.T) {
	in := "garbage\n" + `{"turn_idx":0,"student":"sin id"}` + "\n"
	b := NewBuilder(NewDivergence(nil, nil, zerolog.Nop()), nil, zerolog.Nop())
	st, err := b.Run(context.Background(), strings.NewReader(in), &memSink{})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Malformed)

	sinkErr := errors.New("disk full")
	dc := dcReader(t, turn("c1", 0, "x", resp("b", "6", "w", "a"), resp("b", "1", "w", "b")))
	_, err = b.Run(context.Background(), dc, &memSink{err: sinkErr})
	assert.ErrorIs(t, err, sinkErr)
}
