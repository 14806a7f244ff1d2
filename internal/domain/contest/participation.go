package contest

import (
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a protected contest's join password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckJoin decides whether userID may join c at now and returns the record to insert.
// Checks run in a fixed order: phase, access, duplicate membership, capacity.
// Callers must hold the contest's membership lock so the capacity check and the
// insert are one step.
func CheckJoin(c *model.Contest, userID, password string, now time.Time) (model.Participant, error) {
	switch Status(c, now) {
	case model.ContestEnded, model.ContestCancelled:
		return model.Participant{}, common.Errorf("cannot join contest %s: %w", c.ID, common.ErrClosed)
	}

	switch c.Type {
	case model.ContestTypeProtected:
		// bcrypt compares in constant time.
		if c.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
			return model.Participant{}, common.Errorf("wrong contest password: %w", common.ErrUnauthorized)
		}
	case model.ContestTypePrivate:
		if !c.IsInvited(userID) && !c.IsAdmin(userID) {
			return model.Participant{}, common.Errorf("user %s is not invited: %w", userID, common.ErrUnauthorized)
		}
	}

	if _, ok := c.FindParticipant(userID); ok {
		return model.Participant{}, common.Errorf("user %s in contest %s: %w", userID, c.ID, common.ErrAlreadyJoined)
	}
	if c.MaxParticipants > 0 && len(c.Participants) >= c.MaxParticipants {
		return model.Participant{}, common.Errorf("contest %s has %d/%d participants: %w", c.ID, len(c.Participants), c.MaxParticipants, common.ErrFull)
	}

	return model.Participant{
		UserID:     userID,
		JoinTime:   now,
		IsOfficial: now.Before(c.StartTime),
	}, nil
}

// CheckLeave permits leaving only before the contest starts.
func CheckLeave(c *model.Contest, userID string, now time.Time) error {
	if Status(c, now) != model.ContestUpcoming {
		return common.Errorf("cannot leave contest %s after start: %w", c.ID, common.ErrClosed)
	}
	if _, ok := c.FindParticipant(userID); !ok {
		return common.Errorf("user %s is not a participant of %s: %w", userID, c.ID, common.ErrNotFound)
	}
	return nil
}

// CheckMembershipIntegrity reports duplicate participant rows. Such rows can only come
// from a broken write path, so they are surfaced, never merged.
func CheckMembershipIntegrity(c *model.Contest) error {
	seen := make(map[string]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		if _, dup := seen[p.UserID]; dup {
			return common.Errorf("contest %s lists user %s twice: %w", c.ID, p.UserID, common.ErrConsistency)
		}
		seen[p.UserID] = struct{}{}
	}
	labels := make(map[string]struct{}, len(c.Problems))
	for _, p := range c.Problems {
		if _, dup := labels[p.Label]; dup {
			return common.Errorf("contest %s binds label %s twice: %w", c.ID, p.Label, common.ErrConsistency)
		}
		labels[p.Label] = struct{}{}
	}
	return nil
}
