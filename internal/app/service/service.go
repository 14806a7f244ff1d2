package service

import (
	"errors"
	"tle_zone_contest/internal/domain/model"
)

// Actor is the authenticated caller of a service method.
type Actor struct {
	UserID string
	Role   string // Site role from the token
}

func (a Actor) IsSiteAdmin() bool {
	return a.Role == model.RoleAdmin
}

// canAdminister reports whether the actor may change c's configuration.
func (a Actor) canAdminister(c *model.Contest) bool {
	return a.IsSiteAdmin() || c.IsAdmin(a.UserID)
}

// RankingNotifier is told about changes that make a contest's ranking stale.
type RankingNotifier interface {
	// NotifyEvent asks for a recompute after new events or membership changes.
	NotifyEvent(contestID string)
	// NotifyContestChanged records a configuration change at version.
	NotifyContestChanged(contestID string, version int64)
}

// SnapshotSource serves the latest snapshot a ranking worker has published.
type SnapshotSource interface {
	// Latest returns nil when no snapshot of that kind is available.
	Latest(contestID string, frozen bool) *model.RankingSnapshot
}

type noopNotifier struct{}

func (noopNotifier) NotifyEvent(string)                 {}
func (noopNotifier) NotifyContestChanged(string, int64) {}

func outcomeOf(err error, outcomes map[error]string) string {
	if err == nil {
		return "ok"
	}
	for target, label := range outcomes {
		if errors.Is(err, target) {
			return label
		}
	}
	return "error"
}
