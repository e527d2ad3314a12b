package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/llm/llmtest"
)

var history = []Exchange{
	{Student: "¿Cuánto es 2+2?", Tutor: "¿Qué crees que pasa si juntas dos y dos?"},
	{Student: "Creo que\n4", Tutor: "¡Muy bien!"},
}

func TestBuildRaw(t *testing.T) {
	b := NewBuilder()
	out, err := b.Build(context.Background(), history, Raw)
	require.NoError(t, err)
	assert.Equal(t,
		"Student: ¿Cuánto es 2+2?\nTutor: ¿Qué crees que pasa si juntas dos y dos?\nStudent: Creo que\n4\nTutor: ¡Muy bien!",
		out)
}

func TestBuildRawCurrentTurn(t *testing.T) {
	b := NewBuilder(WithLabels(SpanishLabels))
	h := append(append([]Exchange{}, history[:1]...), Exchange{Student: "4"})
	assert.Equal(t,
		"Alumno: ¿Cuánto es 2+2?\nTutor: ¿Qué crees que pasa si juntas dos y dos?\nAlumno: 4",
		b.Render(h, Raw))
}

func TestBuildNumbered(t *testing.T) {
	b := NewBuilder(WithLabels(SpanishLabels))
	out, err := b.Build(context.Background(), history, Numbered)
	require.NoError(t, err)
	assert.Equal(t,
		"1. Alumno: ¿Cuánto es 2+2?\n   Tutor : ¿Qué crees que pasa si juntas dos y dos?\n2. Alumno: Creo que 4\n   Tutor : ¡Muy bien!",
		out)
}

func TestBuildEmpty(t *testing.T) {
	be := llmtest.New()
	b := NewBuilder(WithSummarizer(SummarizeWith(llm.Agent{Backend: be}, func(s string) string { return s })))
	for _, m := range []Mode{Raw, Numbered, Summarized} {
		out, err := b.Build(context.Background(), nil, m)
		require.NoError(t, err)
		assert.Equal(t, "", out, m)
	}
	assert.Equal(t, 0, be.CallCount())
}

func TestBuildSummarized(t *testing.T) {
	be := llmtest.New(llmtest.Text("  El alumno sumó 2+2 y obtuvo 4.  "))
	b := NewBuilder(WithSummarizer(SummarizeWith(llm.Agent{Backend: be}, func(s string) string {
		return "RESUME:\n" + s
	})))

	before := append([]Exchange(nil), history...)
	out, err := b.Build(context.Background(), history, Summarized)
	require.NoError(t, err)
	assert.Equal(t, "El alumno sumó 2+2 y obtuvo 4.", out)
	assert.Equal(t, before, history)

	calls := be.Calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0].Prompt, "RESUME:\nStudent: ¿Cuánto es 2+2?"))
}

func TestBuildSummarizedError(t *testing.T) {
	be := llmtest.New(llmtest.Fail(errors.New("boom")))
	b := NewBuilder(WithSummarizer(SummarizeWith(llm.Agent{Backend: be}, func(s string) string { return s })))
	_, err := b.Build(context.Background(), history, Summarized)
	assert.ErrorContains(t, err, "boom")

	_, err = NewBuilder().Build(context.Background(), history, Summarized)
	assert.Error(t, err)
}

type wordCounter struct{}

func (wordCounter) Count(s string) int { return len(strings.Fields(s)) }

func TestTokenBoundDropsOldest(t *testing.T) {
	h := []Exchange{
		{Student: "uno dos tres", Tutor: "cuatro cinco"},
		{Student: "seis", Tutor: "siete"},
		{Student: "ocho"},
	}
	b := NewBuilder(WithTokenBound(6, wordCounter{}))
	assert.Equal(t, "Student: seis\nTutor: siete\nStudent: ocho", b.Render(h, Raw))

	// the newest exchange survives even when it alone exceeds the bound
	b = NewBuilder(WithTokenBound(1, wordCounter{}))
	assert.Equal(t, "Student: ocho", b.Render(h, Raw))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Numbered ")
	require.NoError(t, err)
	assert.Equal(t, Numbered, m)
	_, err = ParseMode("fancy")
	assert.Error(t, err)
}

func TestHeuristicCounter(t *testing.T) {
	assert.Equal(t, 2, HeuristicCounter{}.Count("12345678"))
}
