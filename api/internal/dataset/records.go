package dataset

import (
	"tutor-dpo/api/internal/rubric"
)

// Seed is one input problem. Other fields of the line are ignored.
type Seed struct {
	Problem string `json:"problem"`
}

// Turn is one Dc line.
type Turn struct {
	ConversationID string               `json:"conversation_id"`
	TurnIdx        int                  `json:"turn_idx"`
	Problem        string               `json:"problem,omitempty"`
	Student        string               `json:"student"`
	TutorAT        rubric.TutorResponse `json:"tutor_AT"`
	TutorAS        rubric.TutorResponse `json:"tutor_AS"`
}

// Pair is one Dp line. Divergence records carry the rubric codes of the
// chosen response and the auxiliary tags; contrastive records set Preference.
type Pair struct {
	ConversationID string `json:"conversation_id,omitempty"`
	TurnIdx        *int   `json:"turn_idx,omitempty"`
	Context        string `json:"context"`
	Chosen         string `json:"chosen"`
	Rejected       string `json:"rejected"`

	Eval   string `json:"Eval of Student Response,omitempty"`
	Action string `json:"Action Based on Eval,omitempty"`
	State  string `json:"Subproblem State,omitempty"`

	Area      string `json:"area_conocimiento,omitempty"`
	Objective string `json:"objetivo_pedagogico,omitempty"`

	GeneratedSolution string `json:"generated_solution,omitempty"`
	SecondaryAnswer   string `json:"generated_secondary_answer,omitempty"`

	Preference bool `json:"preference,omitempty"`
}

func IntPtr(i int) *int { return &i }
