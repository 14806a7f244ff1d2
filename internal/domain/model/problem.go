package model

type ProblemDifficulty string
type ProblemStatus string

const (
	DifficultyEasy   ProblemDifficulty = "Easy"
	DifficultyMedium ProblemDifficulty = "Medium"
	DifficultyHard   ProblemDifficulty = "Hard"

	StatusDraft             ProblemStatus = "Draft"
	StatusPendingValidation ProblemStatus = "PendingValidation"
	StatusPublished         ProblemStatus = "Published"
	ProblemStatusRejected   ProblemStatus = "Rejected"
)

// Problem is the catalog metadata a contest binds to a label.
type Problem struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Slug         string            `json:"slug"`
	Difficulty   ProblemDifficulty `json:"difficulty"`
	Status       ProblemStatus     `json:"status"`
	DefaultScore *int              `json:"default_score,omitempty"` // nil means DefaultProblemScore
}
