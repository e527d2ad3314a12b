package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tutor-dpo/api/internal/rubric"
)

//go:embed templates/*.txt
var builtin embed.FS

type Name string

const (
	Tutor             Name = "tutor"
	Student           Name = "student"
	Scaffold          Name = "scaffold"
	Direct            Name = "direct"
	Summary           Name = "summary"
	Translate         Name = "translate"
	SolutionSummary   Name = "solution_summary"
	ClassifyArea      Name = "classify_area"
	ClassifyObjective Name = "classify_objective"
	Corrective        Name = "corrective"
	FilterInclude     Name = "filter_include"
	FilterSubject     Name = "filter_subject"
	FilterObjective   Name = "filter_objective"
)

var all = []Name{
	Tutor, Student, Scaffold, Direct, Summary, Translate, SolutionSummary,
	ClassifyArea, ClassifyObjective, Corrective,
	FilterInclude, FilterSubject, FilterObjective,
}

// Set is the immutable collection of prompt templates for a run.
type Set struct {
	text map[Name]string
}

// Load reads every template from dir, falling back to the built-in copy for
// files that are missing or empty. An empty dir uses only built-ins.
func Load(dir string) (*Set, error) {
	s := &Set{text: make(map[Name]string, len(all))}
	for _, n := range all {
		file := string(n) + ".txt"
		if dir != "" {
			b, err := os.ReadFile(filepath.Join(dir, file))
			switch {
			case err == nil && len(strings.TrimSpace(string(b))) > 0:
				s.text[n] = strings.TrimSpace(string(b))
				continue
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return nil, fmt.Errorf("prompt %q: %w", n, err)
			}
		}
		b, err := builtin.ReadFile("templates/" + file)
		if err != nil {
			return nil, fmt.Errorf("prompt %q not found in %q or built-ins: %w", n, dir, err)
		}
		s.text[n] = strings.TrimSpace(string(b))
	}
	return s, nil
}

// MustDefault returns the built-in templates. It panics only if the binary
// was built without them.
func MustDefault() *Set {
	s, err := Load("")
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Set) Raw(n Name) string { return s.text[n] }

// Render fills {key} placeholders from kv pairs: Render(n, "contexto", c, ...).
// Placeholders without a value are left untouched.
func (s *Set) Render(n Name, kv ...string) string {
	if len(kv)%2 != 0 {
		kv = kv[:len(kv)-1]
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(s.text[n])
}

// Legend renders a table as "a = desc; b = desc; ...".
func Legend(t rubric.Table) string {
	codes := t.Codes()
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, c+" = "+t.Describe(c))
	}
	return strings.Join(parts, "; ")
}

// Bullets renders a table as "- CODE: desc" lines.
func Bullets(t rubric.Table) string {
	var b strings.Builder
	for i, c := range t.Codes() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- " + c + ": " + t.Describe(c))
	}
	return b.String()
}
