package model

import (
	"strings"
	"time"
)

// SubmissionStatus is the raw status reported by the grading service.
type SubmissionStatus string

const (
	StatusPending             SubmissionStatus = "Pending"
	StatusInQueue             SubmissionStatus = "InQueue"
	StatusProcessing          SubmissionStatus = "Processing"
	StatusAccepted            SubmissionStatus = "Accepted"
	StatusRejected            SubmissionStatus = "Rejected" // Grader did not say why
	StatusWrongAnswer         SubmissionStatus = "WrongAnswer"
	StatusTimeLimitExceeded   SubmissionStatus = "TimeLimitExceeded"
	StatusMemoryLimitExceeded SubmissionStatus = "MemoryLimitExceeded"
	StatusCompilationError    SubmissionStatus = "CompilationError"
	StatusRuntimeError        SubmissionStatus = "RuntimeError"
	StatusSystemError         SubmissionStatus = "SystemError" // Error in the grader itself
)

var statusAliases = map[string]SubmissionStatus{
	"ac":  StatusAccepted,
	"wa":  StatusWrongAnswer,
	"tle": StatusTimeLimitExceeded,
	"mle": StatusMemoryLimitExceeded,
	"ce":  StatusCompilationError,
	"re":  StatusRuntimeError,
	"se":  StatusSystemError,
}

var knownStatuses = []SubmissionStatus{
	StatusPending, StatusInQueue, StatusProcessing, StatusAccepted, StatusRejected,
	StatusWrongAnswer, StatusTimeLimitExceeded, StatusMemoryLimitExceeded,
	StatusCompilationError, StatusRuntimeError, StatusSystemError,
}

// ParseSubmissionStatus accepts the grader's spellings: "Accepted", "ACCEPTED",
// "wrong_answer", "WA". ok is false for values it does not recognise.
func ParseSubmissionStatus(raw string) (status SubmissionStatus, ok bool) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(raw))
	if s, found := statusAliases[key]; found {
		return s, true
	}
	for _, s := range knownStatuses {
		if strings.ToLower(string(s)) == key {
			return s, true
		}
	}
	return "", false
}

// Verdict is the contest-level classification of a graded submission.
type Verdict string

const (
	VerdictAccepted Verdict = "Accepted"
	VerdictRejected Verdict = "Rejected"
	VerdictPending  Verdict = "Pending"
)

// VerdictFromStatus folds grader statuses into contest verdicts.
// System errors are not the contestant's fault and stay Pending until regraded.
func VerdictFromStatus(s SubmissionStatus) Verdict {
	switch s {
	case StatusAccepted:
		return VerdictAccepted
	case StatusRejected, StatusWrongAnswer, StatusTimeLimitExceeded, StatusMemoryLimitExceeded,
		StatusCompilationError, StatusRuntimeError:
		return VerdictRejected
	default:
		return VerdictPending
	}
}

// SubmissionEvent is a graded submission as seen by the contest subsystem.
// Events are read-only: nothing in the ranking path writes them back.
type SubmissionEvent struct {
	SequenceID   int64     `json:"sequence_id"`
	SubmissionID string    `json:"submission_id"`
	ContestID    string    `json:"contest_id"`
	UserID       string    `json:"user_id"`
	ProblemLabel string    `json:"problem_label"`
	Verdict      Verdict   `json:"verdict"`
	Score        float64   `json:"score"` // Only meaningful for Accepted in OI mode
	SubmittedAt  time.Time `json:"submitted_at"`
}

// IsTerminal reports whether the event carries a final verdict.
func (e SubmissionEvent) IsTerminal() bool {
	return e.Verdict == VerdictAccepted || e.Verdict == VerdictRejected
}
