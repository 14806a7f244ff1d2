package messaging

// SubmissionJudgedEvent is published by the grading service on the judged topic.
type SubmissionJudgedEvent struct {
	SequenceID   int64   `json:"sequenceId"`
	SubmissionID string  `json:"submissionId"`
	UserID       string  `json:"userId"`
	ProblemID    string  `json:"problemId"`
	ProblemLabel string  `json:"problemLabel"`
	ContestID    *string `json:"contestId"`
	Verdict      string  `json:"verdict"`
	Score        float64 `json:"score"`
	SubmittedAt  string  `json:"submittedAt"`
	Timestamp    string  `json:"timestamp"`
}

// LeaderboardUpdatedEvent tells downstream consumers to refetch a contest's ranking.
type LeaderboardUpdatedEvent struct {
	ContestID string `json:"contestId"`
	Version   int64  `json:"version"`
	Frozen    bool   `json:"frozen"`
	Final     bool   `json:"final"`
	Timestamp string `json:"timestamp"`
}
