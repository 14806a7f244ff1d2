// Package contest holds the contest record rules: lifecycle phases, configuration
// validation, problem binding and participation checks. Everything here is a pure
// function of its inputs; persistence and locking live in the service layer.
package contest

import (
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"
)

// Status derives the contest phase from the wall clock.
// CANCELLED overrides every time-based phase.
func Status(c *model.Contest, now time.Time) model.ContestStatus {
	switch {
	case c.Cancelled:
		return model.ContestCancelled
	case now.Before(c.StartTime):
		return model.ContestUpcoming
	case now.Before(c.EndTime):
		return model.ContestRunning
	default:
		return model.ContestEnded
	}
}

// CheckEditable rejects schedule and problem edits once the contest has left UPCOMING.
func CheckEditable(c *model.Contest, now time.Time) error {
	if s := Status(c, now); s != model.ContestUpcoming {
		return common.Errorf("contest %s is %s, configuration is locked: %w", c.ID, s, common.ErrClosed)
	}
	return nil
}

// CheckCancellable allows cancelling from any phase except CANCELLED itself.
func CheckCancellable(c *model.Contest) error {
	if c.Cancelled {
		return common.Errorf("contest %s already cancelled: %w", c.ID, common.ErrConflict)
	}
	return nil
}
