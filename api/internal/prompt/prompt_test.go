package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-dpo/api/internal/rubric"
)

func TestLoadBuiltins(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	for _, n := range all {
		assert.NotEmpty(t, s.Raw(n), n)
	}
	assert.Contains(t, s.Raw(Tutor), "{contexto}")
	assert.Contains(t, s.Raw(Tutor), "{alumno}")
	assert.Contains(t, s.Raw(Summary), "{dialogo}")
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "student.txt"), []byte("  custom {contexto}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "direct.txt"), []byte("   "), 0o644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom {contexto}", s.Raw(Student))
	// empty override falls back to the built-in
	assert.Equal(t, MustDefault().Raw(Direct), s.Raw(Direct))
}

func TestRender(t *testing.T) {
	s := MustDefault()
	out := s.Render(Student, "contexto", "Alumno: 2+2\nTutor: ¿Qué crees?")
	assert.Contains(t, out, "Alumno: 2+2")
	assert.NotContains(t, out, "{contexto}")

	// literal JSON braces in the template survive rendering
	out = s.Render(Tutor, "contexto", "—", "alumno", "¿Cuánto es 2+2?")
	assert.Contains(t, out, `"Tutorbot"`)
	assert.True(t, strings.HasSuffix(out, "¿Cuánto es 2+2?"))
}

func TestLegend(t *testing.T) {
	tb := rubric.Default()
	assert.Equal(t, "w = Nuevo subproblema; x = Subproblema en curso; y = Subproblema resuelto; z = Problema principal resuelto", Legend(tb.State))

	b := Bullets(rubric.DefaultCurriculum().Areas)
	assert.True(t, strings.HasPrefix(b, "- AC01: "))
	assert.Equal(t, 5, strings.Count(b, "\n")+1)
}
