package rubric

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Table is an immutable code -> description enumeration.
type Table struct {
	name  string
	codes []string
	desc  map[string]string
}

func newTable(name string, entries map[string]string) Table {
	t := Table{name: name, desc: make(map[string]string, len(entries))}
	for k, v := range entries {
		t.codes = append(t.codes, k)
		t.desc[k] = v
	}
	sort.Slice(t.codes, func(i, j int) bool { return codeLess(t.codes[i], t.codes[j]) })
	return t
}

// numeric codes sort as numbers so "10" follows "9"
func codeLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

func (t Table) Name() string { return t.name }

func (t Table) Has(code string) bool {
	_, ok := t.desc[code]
	return ok
}

func (t Table) Describe(code string) string { return t.desc[code] }

// Codes returns a copy of the codes in display order.
func (t Table) Codes() []string {
	out := make([]string, len(t.codes))
	copy(out, t.codes)
	return out
}

func (t Table) Len() int { return len(t.codes) }

// Tables holds the three rubric enumerations a tutor turn is coded against.
type Tables struct {
	Eval   Table
	Action Table
	State  Table
}

// Default returns the rubric used by the tutor prompts.
func Default() *Tables {
	return &Tables{
		Eval: newTable("Eval of Student Response", map[string]string{
			"a": "Respuesta incorrecta",
			"b": "Respuesta correcta",
			"c": "Parcialmente correcta",
			"d": "Ambigua / muy breve",
			"e": "Fuera de tema",
			"f": "Pregunta del estudiante",
			"g": "Sin evaluación (N/A)",
		}),
		Action: newTable("Action Based on Eval", map[string]string{
			"1":  "Señalar error y dar pista",
			"2":  "Revelar solución tras varios intentos",
			"3":  "Reforzar respuesta correcta",
			"4":  "Reconocer acierto parcial y guiar el resto",
			"5":  "Dividir el problema en pasos más pequeños",
			"6":  "Plantear pregunta guía",
			"7":  "Proporcionar solución parcial",
			"8":  "Motivar y animar a continuar",
			"9":  "Resumir progreso hasta el momento",
			"10": "Explicar solución completa",
			"11": "Verificar comprensión del alumno",
			"12": "Cerrar subproblema / pasar al siguiente",
		}),
		State: newTable("Subproblem State", map[string]string{
			"w": "Nuevo subproblema",
			"x": "Subproblema en curso",
			"y": "Subproblema resuelto",
			"z": "Problema principal resuelto",
		}),
	}
}

// ErrCode marks a rubric-bound field that is missing or outside its table.
var ErrCode = errors.New("rubric field out of range")

// CodeError names the offending field and value.
type CodeError struct {
	Field   string
	Value   string
	Missing bool
}

func (e *CodeError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%q is missing", e.Field)
	}
	return fmt.Sprintf("%q has invalid value %q", e.Field, e.Value)
}

func (e *CodeError) Is(target error) bool { return target == ErrCode }

// Check reports the first rubric-bound field of r that is outside its table.
func (t *Tables) Check(r TutorResponse) error {
	for _, f := range []struct {
		table Table
		value string
	}{
		{t.Eval, r.Eval},
		{t.Action, r.Action},
		{t.State, r.State},
	} {
		if f.value == "" {
			return &CodeError{Field: f.table.name, Missing: true}
		}
		if !f.table.Has(f.value) {
			return &CodeError{Field: f.table.name, Value: f.value}
		}
	}
	return nil
}
