package contest

import (
	"context"
	"errors"
	"fmt"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"
)

// ProblemCatalog is the read side of the problem catalog a binding needs.
type ProblemCatalog interface {
	FindProblemByID(ctx context.Context, id string) (*model.Problem, error)
}

// AssignLabels fills in A, B, C... when no problem carries a label.
// Partially labelled lists are left untouched so Validate can report them.
func AssignLabels(problems []model.ContestProblem) []model.ContestProblem {
	out := make([]model.ContestProblem, len(problems))
	copy(out, problems)
	for _, p := range out {
		if p.Label != "" {
			return out
		}
	}
	for i := range out {
		if i >= model.MaxContestProblems {
			break
		}
		out[i].Label = string(rune('A' + i))
	}
	return out
}

// BindProblems resolves each label's problem against the catalog. It returns a new
// slice with titles filled and missing weights taken from the catalog default.
// A problem may be bound to only one label per contest.
func BindProblems(ctx context.Context, catalog ProblemCatalog, problems []model.ContestProblem) ([]model.ContestProblem, error) {
	verrs := common.NewValidationErrors()
	bound := make([]model.ContestProblem, len(problems))
	seen := make(map[string]string, len(problems))

	for i, p := range problems {
		bound[i] = p
		field := fmt.Sprintf("problems[%d].problem_id", i)
		if p.ProblemID == "" {
			verrs.Add(field, "is required")
			continue
		}
		if other, dup := seen[p.ProblemID]; dup {
			verrs.Add(field, fmt.Sprintf("problem already bound to label %s", other))
			continue
		}
		seen[p.ProblemID] = p.Label

		problem, err := catalog.FindProblemByID(ctx, p.ProblemID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				verrs.Add(field, "unknown problem")
				continue
			}
			return nil, common.Errorf("looking up problem %s: %w", p.ProblemID, err)
		}
		if problem.Status != model.StatusPublished {
			verrs.Add(field, "problem is not published")
			continue
		}
		bound[i].Title = problem.Title
		if bound[i].Weight == nil && problem.DefaultScore != nil {
			w := *problem.DefaultScore
			bound[i].Weight = &w
		}
	}

	if err := verrs.Err(); err != nil {
		return nil, err
	}
	return bound, nil
}
