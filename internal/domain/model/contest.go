package model

import (
	"time"
)

type ContestType string
type ContestMode string
type ContestStatus string
type OIScorePolicy string

const (
	ContestTypePublic    ContestType = "public"
	ContestTypePrivate   ContestType = "private"
	ContestTypeProtected ContestType = "protected"

	ModeACM ContestMode = "ACM"
	ModeOI  ContestMode = "OI"

	ContestUpcoming  ContestStatus = "UPCOMING"
	ContestRunning   ContestStatus = "RUNNING"
	ContestEnded     ContestStatus = "ENDED"
	ContestCancelled ContestStatus = "CANCELLED"

	// OIFirstAccepted keeps the score of the first accepted submission per problem.
	OIFirstAccepted OIScorePolicy = "first_accepted"
	// OIMaxScore keeps the best score across accepted submissions.
	OIMaxScore OIScorePolicy = "max_score"
)

const (
	MinContestMinutes   = 30
	MaxContestMinutes   = 10080
	MaxContestProblems  = 26
	MaxFreezeMinutes    = 300
	DefaultProblemScore = 100
)

type Contest struct {
	ID                  string           `json:"id"`
	Slug                string           `json:"slug"`
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Type                ContestType      `json:"type"`
	Mode                ContestMode      `json:"mode"`
	PasswordHash        string           `json:"-"` // bcrypt, only for protected contests
	StartTime           time.Time        `json:"start_time"`
	EndTime             time.Time        `json:"end_time"`
	DurationMinutes     int              `json:"duration_minutes"`
	CreatedByID         string           `json:"created_by_id"`
	AdminIDs            []string         `json:"admin_ids"`
	InvitedUserIDs      []string         `json:"-"`
	Problems            []ContestProblem `json:"problems"`
	Participants        []Participant    `json:"-"`
	AllowViewOthersCode bool             `json:"allow_view_others_code"`
	AllowViewRanking    bool             `json:"allow_view_ranking"`
	FreezeMinutes       int              `json:"freeze_minutes"`
	MaxParticipants     int              `json:"max_participants"` // 0 means unlimited
	OIScorePolicy       OIScorePolicy    `json:"oi_score_policy,omitempty"`
	Cancelled           bool             `json:"cancelled"`
	Version             int64            `json:"version"`
	TotalParticipants   int              `json:"total_participants"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

type ContestProblem struct {
	ProblemID string `json:"problem_id"`
	Label     string `json:"label"`
	Weight    *int   `json:"weight,omitempty"` // OI weight; nil means DefaultProblemScore
	Title     string `json:"title,omitempty"`  // For display, from the catalog
}

// ScoreWeight returns the configured weight or the default of 100.
func (p ContestProblem) ScoreWeight() int {
	if p.Weight == nil {
		return DefaultProblemScore
	}
	return *p.Weight
}

type Participant struct {
	UserID     string    `json:"user_id"`
	JoinTime   time.Time `json:"join_time"`
	IsOfficial bool      `json:"is_official"`
}

// IsAdmin reports whether userID owns or administers the contest.
func (c *Contest) IsAdmin(userID string) bool {
	if userID == "" {
		return false
	}
	if c.CreatedByID == userID {
		return true
	}
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Contest) IsInvited(userID string) bool {
	for _, id := range c.InvitedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// FindParticipant returns the participant record for userID, if any.
func (c *Contest) FindParticipant(userID string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c *Contest) FindProblem(label string) (ContestProblem, bool) {
	for _, p := range c.Problems {
		if p.Label == label {
			return p, true
		}
	}
	return ContestProblem{}, false
}

// FreezeDuration is the length of the freeze window before EndTime.
func (c *Contest) FreezeDuration() time.Duration {
	return time.Duration(c.FreezeMinutes) * time.Minute
}

// EffectiveOIScorePolicy defaults an unset policy to OIFirstAccepted.
func (c *Contest) EffectiveOIScorePolicy() OIScorePolicy {
	if c.OIScorePolicy == "" {
		return OIFirstAccepted
	}
	return c.OIScorePolicy
}
