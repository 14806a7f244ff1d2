// Package ranking turns a contest configuration and its graded submission events
// into a ranking snapshot. Compute is a pure function: it never mutates the contest
// or the events, and every call builds its accumulators from scratch.
package ranking

import (
	"sort"
	"time"
	"tle_zone_contest/internal/domain/model"
)

// PenaltyPerWrongAttempt is the ACM penalty, in minutes, for each attempt before acceptance.
const PenaltyPerWrongAttempt = 20

type Options struct {
	// Cutoff hides events submitted after it. Zero means no cutoff.
	Cutoff time.Time
	// IncludeUnofficial adds participants who joined after the start.
	IncludeUnofficial bool
	Frozen            bool
	Final             bool
	ComputedAt        time.Time
}

// Compute builds a fresh snapshot. Events are processed in (SubmittedAt, SequenceID)
// order regardless of the order they are passed in.
func Compute(c *model.Contest, events []model.SubmissionEvent, opts Options) *model.RankingSnapshot {
	labelIndex := make(map[string]int, len(c.Problems))
	weights := make([]int, len(c.Problems))
	for i, p := range c.Problems {
		labelIndex[p.Label] = i
		weights[i] = p.ScoreWeight()
	}

	accs := make(map[string]*model.RankingRow, len(c.Participants))
	order := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if !p.IsOfficial && !opts.IncludeUnofficial {
			continue
		}
		if _, dup := accs[p.UserID]; dup {
			continue
		}
		cells := make([]model.ProblemCell, len(c.Problems))
		for i, cp := range c.Problems {
			cells[i] = model.ProblemCell{Label: cp.Label, Status: model.CellNotAttempted}
		}
		accs[p.UserID] = &model.RankingRow{UserID: p.UserID, Official: p.IsOfficial, Cells: cells}
		order = append(order, p.UserID)
	}

	policy := c.EffectiveOIScorePolicy()
	for _, ev := range sortedEvents(events) {
		if !ev.IsTerminal() {
			continue
		}
		if ev.SubmittedAt.Before(c.StartTime) {
			continue
		}
		if !opts.Cutoff.IsZero() && ev.SubmittedAt.After(opts.Cutoff) {
			continue
		}
		row, ok := accs[ev.UserID]
		if !ok {
			continue
		}
		idx, ok := labelIndex[ev.ProblemLabel]
		if !ok {
			continue
		}
		apply(c, row, idx, weights[idx], ev, policy)
	}

	rows := make([]model.RankingRow, 0, len(order))
	for _, userID := range order {
		rows = append(rows, finish(*accs[userID]))
	}
	SortAndRank(c.Mode, rows)

	return &model.RankingSnapshot{
		ContestID:      c.ID,
		ContestVersion: c.Version,
		Mode:           c.Mode,
		Cutoff:         opts.Cutoff,
		Frozen:         opts.Frozen,
		Final:          opts.Final,
		ComputedAt:     opts.ComputedAt,
		EventCount:     len(events),
		Rows:           rows,
	}
}

func apply(c *model.Contest, row *model.RankingRow, idx, weight int, ev model.SubmissionEvent, policy model.OIScorePolicy) {
	cell := &row.Cells[idx]
	cell.Attempts++

	minutes := int(ev.SubmittedAt.Sub(c.StartTime) / time.Minute)

	if ev.Verdict != model.VerdictAccepted {
		if cell.Status == model.CellNotAttempted {
			cell.Status = model.CellWrong
		}
		return
	}

	if cell.Status == model.CellAccepted {
		// Only the max-score OI policy lets a later acceptance change anything.
		if c.Mode == model.ModeOI && policy == model.OIMaxScore {
			score := clampScore(ev.Score, weight)
			if score > cell.Score {
				row.TotalScore += score - cell.Score
				cell.Score = score
				cell.AcceptTime = intPtr(minutes)
			}
		}
		return
	}

	cell.Status = model.CellAccepted
	cell.AcceptTime = intPtr(minutes)
	row.SolvedCount++

	switch c.Mode {
	case model.ModeOI:
		cell.Score = clampScore(ev.Score, weight)
		row.TotalScore += cell.Score
	default:
		cell.Score = float64(weight)
		cell.Penalty = minutes + PenaltyPerWrongAttempt*(cell.Attempts-1)
		row.TotalScore += cell.Score
		row.TotalPenalty += cell.Penalty
	}
}

// finish derives the OI tie-break: the latest accept time among cells that scored.
func finish(row model.RankingRow) model.RankingRow {
	var last *int
	for _, cell := range row.Cells {
		if cell.Status != model.CellAccepted || cell.AcceptTime == nil || cell.Score <= 0 {
			continue
		}
		if last == nil || *cell.AcceptTime > *last {
			last = intPtr(*cell.AcceptTime)
		}
	}
	row.LastAccept = last
	return row
}

func sortedEvents(events []model.SubmissionEvent) []model.SubmissionEvent {
	out := make([]model.SubmissionEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].SequenceID < out[j].SequenceID
	})
	return out
}

// clampScore keeps a grader score within [0, weight].
func clampScore(score float64, weight int) float64 {
	if score < 0 {
		return 0
	}
	if limit := float64(weight); score > limit {
		return limit
	}
	return score
}

func intPtr(v int) *int {
	return &v
}
