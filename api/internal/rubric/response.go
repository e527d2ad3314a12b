package rubric

// TutorResponse is one validated tutor turn. Field names on the wire match
// the keys the tutor prompt asks the model for.
type TutorResponse struct {
	Eval       string `json:"Eval of Student Response"`
	Action     string `json:"Action Based on Eval"`
	State      string `json:"Subproblem State"`
	Subproblem string `json:"Subproblem"`
	Text       string `json:"Tutorbot"`
}

// SameCodes reports whether a and b agree on all three rubric codes.
func SameCodes(a, b TutorResponse) bool {
	return a.Eval == b.Eval && a.Action == b.Action && a.State == b.State
}
