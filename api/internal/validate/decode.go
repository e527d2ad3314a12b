package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"tutor-dpo/api/internal/rubric"
)

var (
	ErrParse      = errors.New("no well-formed JSON object in output")
	ErrValidation = rubric.ErrCode
)

// FieldError reports a rubric-bound field that is missing or not in its table.
type FieldError = rubric.CodeError

var (
	evalKeys       = []string{"Eval of Student Response", "eval", "eval_code"}
	actionKeys     = []string{"Action Based on Eval", "action", "action_code"}
	stateKeys      = []string{"Subproblem State", "state", "subproblem_state"}
	subproblemKeys = []string{"Subproblem", "subproblem_text"}
	textKeys       = []string{"Tutorbot", "tutor", "tutor_text"}
)

// Decode extracts and checks a tutor response from raw model output.
// Errors match ErrParse or ErrValidation.
func Decode(raw string, tables *rubric.Tables) (rubric.TutorResponse, error) {
	obj, ok := ExtractObject(raw)
	if !ok {
		return rubric.TutorResponse{}, ErrParse
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return rubric.TutorResponse{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	r := rubric.TutorResponse{
		Eval:       strings.ToLower(code(lookup(m, evalKeys))),
		Action:     code(lookup(m, actionKeys)),
		State:      strings.ToLower(code(lookup(m, stateKeys))),
		Subproblem: text(lookup(m, subproblemKeys)),
		Text:       text(lookup(m, textKeys)),
	}
	if err := tables.Check(r); err != nil {
		return rubric.TutorResponse{}, err
	}
	return r, nil
}

// lookup finds the first alias present, matching keys case-insensitively.
func lookup(m map[string]any, aliases []string) any {
	for _, a := range aliases {
		if v, ok := m[a]; ok {
			return v
		}
	}
	for k, v := range m {
		for _, a := range aliases {
			if strings.EqualFold(strings.TrimSpace(k), a) {
				return v
			}
		}
	}
	return nil
}

// code renders a scalar code; integral numbers lose their fraction (6.0 -> "6").
func code(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return code(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
