package ranking

import (
	"time"
	"tle_zone_contest/internal/domain/model"
)

// Visibility is the freeze controller's answer for one viewer at one instant.
type Visibility struct {
	Cutoff time.Time
	Frozen bool // The viewer sees a frozen snapshot
	Final  bool // The cutoff is the contest end and will never move again
}

// FreezeStart is the instant the public ranking stops moving, or the zero time
// when the contest has no freeze window.
func FreezeStart(c *model.Contest) time.Time {
	if c.FreezeMinutes <= 0 {
		return time.Time{}
	}
	return c.EndTime.Add(-c.FreezeDuration())
}

// InFreezeWindow reports whether now lies in [end - freeze, end).
func InFreezeWindow(c *model.Contest, now time.Time) bool {
	start := FreezeStart(c)
	return !start.IsZero() && !now.Before(start) && now.Before(c.EndTime)
}

// DecideCutoff picks the latest event time role may see at now. Privileged viewers
// always see up to now; everyone else sees the freeze start while the window is
// open. Once the contest has ended the cutoff is the end time for all viewers.
// A non-nil asOf can only move the cutoff earlier.
func DecideCutoff(c *model.Contest, role model.ViewerRole, now time.Time, asOf *time.Time) Visibility {
	var v Visibility
	switch {
	case !now.Before(c.EndTime):
		v = Visibility{Cutoff: c.EndTime, Final: !c.Cancelled}
	case InFreezeWindow(c, now) && !role.IsPrivileged():
		v = Visibility{Cutoff: FreezeStart(c), Frozen: true}
	default:
		v = Visibility{Cutoff: now}
	}

	if asOf != nil && asOf.Before(v.Cutoff) {
		v.Cutoff = *asOf
		v.Final = false
		// A historical view from before the freeze shows nothing hidden.
		if v.Frozen && asOf.Before(FreezeStart(c)) {
			v.Frozen = false
		}
	}
	return v
}
