package model

import "time"

type CellStatus string

const (
	CellNotAttempted CellStatus = "NotAttempted"
	CellWrong        CellStatus = "Wrong"
	CellAccepted     CellStatus = "Accepted"
)

// ProblemCell is one user's standing on one problem.
type ProblemCell struct {
	Label      string     `json:"label"`
	Status     CellStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	Score      float64    `json:"score"`
	AcceptTime *int       `json:"accept_time,omitempty"` // Minutes since contest start
	Penalty    int        `json:"penalty"`               // Minutes, ACM only
}

type RankingRow struct {
	Rank         int           `json:"rank"`
	UserID       string        `json:"user_id"`
	Official     bool          `json:"official"`
	SolvedCount  int           `json:"solved_count"`
	TotalScore   float64       `json:"total_score"`
	TotalPenalty int           `json:"total_penalty"`
	LastAccept   *int          `json:"last_accept,omitempty"` // Latest accept time among scored cells
	Cells        []ProblemCell `json:"cells"`
}

// RankingSnapshot is an immutable, fully computed ranking table.
// Callers must treat Rows as read-only once the snapshot is published.
type RankingSnapshot struct {
	ContestID      string       `json:"contest_id"`
	ContestVersion int64        `json:"contest_version"`
	Mode           ContestMode  `json:"mode"`
	Cutoff         time.Time    `json:"cutoff"`
	Frozen         bool         `json:"frozen"`
	Final          bool         `json:"final"`
	ComputedAt     time.Time    `json:"computed_at"`
	EventCount     int          `json:"event_count"` // Events read to build the table
	Rows           []RankingRow `json:"rows"`
}

// RankingView is what GetRanking hands back to a viewer.
type RankingView struct {
	Snapshot *RankingSnapshot `json:"snapshot"`
	Self     *RankingRow      `json:"self,omitempty"` // Unofficial viewer's own row
}
