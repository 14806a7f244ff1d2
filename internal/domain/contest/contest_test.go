package contest

import (
	"context"
	"testing"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newContest() *model.Contest {
	return &model.Contest{
		ID:              "c1",
		Title:           "Spring Round",
		Type:            model.ContestTypePublic,
		Mode:            model.ModeACM,
		StartTime:       t0,
		EndTime:         t0.Add(120 * time.Minute),
		DurationMinutes: 120,
		CreatedByID:     "owner",
		AdminIDs:        []string{"helper"},
		Problems: []model.ContestProblem{
			{ProblemID: "p1", Label: "A"},
			{ProblemID: "p2", Label: "B"},
		},
	}
}

func TestStatus_Phases(t *testing.T) {
	c := newContest()

	assert.Equal(t, model.ContestUpcoming, Status(c, t0.Add(-time.Second)))
	assert.Equal(t, model.ContestRunning, Status(c, t0))
	assert.Equal(t, model.ContestRunning, Status(c, c.EndTime.Add(-time.Nanosecond)))
	assert.Equal(t, model.ContestEnded, Status(c, c.EndTime))
}

func TestStatus_CancelledOverridesTime(t *testing.T) {
	c := newContest()
	c.Cancelled = true

	for _, now := range []time.Time{t0.Add(-time.Hour), t0.Add(time.Minute), c.EndTime.Add(time.Hour)} {
		assert.Equal(t, model.ContestCancelled, Status(c, now))
	}
}

func TestCheckEditable(t *testing.T) {
	c := newContest()

	require.NoError(t, CheckEditable(c, t0.Add(-time.Minute)))
	assert.ErrorIs(t, CheckEditable(c, t0.Add(time.Minute)), common.ErrClosed)
	assert.ErrorIs(t, CheckEditable(c, c.EndTime), common.ErrClosed)
}

func TestCheckCancellable(t *testing.T) {
	c := newContest()
	require.NoError(t, CheckCancellable(c))

	c.Cancelled = true
	assert.ErrorIs(t, CheckCancellable(c), common.ErrConflict)
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(newContest()))
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *model.Contest)
		field  string
	}{
		{"end before start", func(c *model.Contest) { c.EndTime = c.StartTime }, "end_time"},
		{"duration mismatch", func(c *model.Contest) { c.DurationMinutes = 90 }, "duration_minutes"},
		{"too short", func(c *model.Contest) {
			c.DurationMinutes = 20
			c.EndTime = c.StartTime.Add(20 * time.Minute)
		}, "duration_minutes"},
		{"too long", func(c *model.Contest) {
			c.DurationMinutes = 10081
			c.EndTime = c.StartTime.Add(10081 * time.Minute)
		}, "duration_minutes"},
		{"no problems", func(c *model.Contest) { c.Problems = nil }, "problems"},
		{"lowercase label", func(c *model.Contest) { c.Problems[1].Label = "b" }, "problems[1].label"},
		{"two letter label", func(c *model.Contest) { c.Problems[0].Label = "AA" }, "problems[0].label"},
		{"duplicate label", func(c *model.Contest) { c.Problems[1].Label = "A" }, "problems"},
		{"protected without password", func(c *model.Contest) { c.Type = model.ContestTypeProtected }, "password"},
		{"password on public", func(c *model.Contest) { c.PasswordHash = "x" }, "password"},
		{"freeze too long", func(c *model.Contest) { c.FreezeMinutes = 301 }, "freeze_minutes"},
		{"unknown mode", func(c *model.Contest) { c.Mode = "IOI" }, "mode"},
		{"bad oi policy", func(c *model.Contest) { c.OIScorePolicy = "average" }, "oi_score_policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newContest()
			tt.mutate(c)

			err := Validate(c)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrValidation)

			var verrs *common.ValidationErrors
			require.True(t, common.AsValidationErrors(err, &verrs))
			assert.Contains(t, verrs.Fields, tt.field)
		})
	}
}

func TestValidate_TwentySixProblems(t *testing.T) {
	c := newContest()
	c.Problems = nil
	for i := 0; i < 26; i++ {
		c.Problems = append(c.Problems, model.ContestProblem{ProblemID: string(rune('a' + i)), Label: string(rune('A' + i))})
	}
	require.NoError(t, Validate(c))

	c.Problems = append(c.Problems, model.ContestProblem{ProblemID: "extra", Label: "Z"})
	assert.ErrorIs(t, Validate(c), common.ErrValidation)
}

func TestAssignLabels(t *testing.T) {
	in := []model.ContestProblem{{ProblemID: "x"}, {ProblemID: "y"}, {ProblemID: "z"}}
	out := AssignLabels(in)

	assert.Equal(t, []string{"A", "B", "C"}, []string{out[0].Label, out[1].Label, out[2].Label})
	assert.Empty(t, in[0].Label, "input must not be modified")

	partial := []model.ContestProblem{{ProblemID: "x", Label: "C"}, {ProblemID: "y"}}
	assert.Equal(t, partial, AssignLabels(partial))
}

type fakeCatalog map[string]*model.Problem

func (f fakeCatalog) FindProblemByID(_ context.Context, id string) (*model.Problem, error) {
	p, ok := f[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return p, nil
}

func TestBindProblems(t *testing.T) {
	fifty := 50
	catalog := fakeCatalog{
		"p1":    {ID: "p1", Title: "Two Sum", Status: model.StatusPublished},
		"p2":    {ID: "p2", Title: "Knapsack", Status: model.StatusPublished, DefaultScore: &fifty},
		"draft": {ID: "draft", Title: "WIP", Status: model.StatusDraft},
	}

	bound, err := BindProblems(context.Background(), catalog, newContest().Problems)
	require.NoError(t, err)
	assert.Equal(t, "Two Sum", bound[0].Title)
	assert.Nil(t, bound[0].Weight)
	assert.Equal(t, 100, bound[0].ScoreWeight())
	require.NotNil(t, bound[1].Weight)
	assert.Equal(t, 50, *bound[1].Weight)

	_, err = BindProblems(context.Background(), catalog, []model.ContestProblem{
		{ProblemID: "p1", Label: "A"},
		{ProblemID: "p1", Label: "B"},
		{ProblemID: "missing", Label: "C"},
		{ProblemID: "draft", Label: "D"},
	})
	var verrs *common.ValidationErrors
	require.True(t, common.AsValidationErrors(err, &verrs))
	assert.Contains(t, verrs.Fields, "problems[1].problem_id")
	assert.Contains(t, verrs.Fields, "problems[2].problem_id")
	assert.Contains(t, verrs.Fields, "problems[3].problem_id")
}

func TestCheckJoin_Order(t *testing.T) {
	c := newContest()
	c.MaxParticipants = 1

	p, err := CheckJoin(c, "u1", "", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, p.IsOfficial)
	assert.Equal(t, "u1", p.UserID)

	c.Participants = append(c.Participants, p)
	_, err = CheckJoin(c, "u1", "", t0.Add(-time.Hour))
	assert.ErrorIs(t, err, common.ErrAlreadyJoined)

	_, err = CheckJoin(c, "u2", "", t0.Add(-time.Hour))
	assert.ErrorIs(t, err, common.ErrFull)

	_, err = CheckJoin(c, "u2", "", c.EndTime)
	assert.ErrorIs(t, err, common.ErrClosed)

	c.Cancelled = true
	_, err = CheckJoin(c, "u2", "", t0.Add(-time.Hour))
	assert.ErrorIs(t, err, common.ErrClosed)
}

func TestCheckJoin_AfterStartIsUnofficial(t *testing.T) {
	c := newContest()

	p, err := CheckJoin(c, "late", "", t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, p.IsOfficial)
}

func TestCheckJoin_ProtectedPassword(t *testing.T) {
	c := newContest()
	c.Type = model.ContestTypeProtected
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	c.PasswordHash = hash

	_, err = CheckJoin(c, "u1", "guess", t0.Add(-time.Hour))
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = CheckJoin(c, "u1", "s3cret", t0.Add(-time.Hour))
	assert.NoError(t, err)
}

func TestCheckJoin_PrivateRequiresInvitation(t *testing.T) {
	c := newContest()
	c.Type = model.ContestTypePrivate
	c.InvitedUserIDs = []string{"guest"}

	_, err := CheckJoin(c, "stranger", "", t0.Add(-time.Hour))
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = CheckJoin(c, "guest", "", t0.Add(-time.Hour))
	assert.NoError(t, err)
}

func TestCheckLeave(t *testing.T) {
	c := newContest()
	c.Participants = []model.Participant{{UserID: "u1", JoinTime: t0.Add(-time.Hour), IsOfficial: true}}

	require.NoError(t, CheckLeave(c, "u1", t0.Add(-time.Minute)))
	assert.ErrorIs(t, CheckLeave(c, "u2", t0.Add(-time.Minute)), common.ErrNotFound)
	assert.ErrorIs(t, CheckLeave(c, "u1", t0), common.ErrClosed)
	assert.ErrorIs(t, CheckLeave(c, "u1", c.EndTime.Add(time.Hour)), common.ErrClosed)
}

func TestCheckMembershipIntegrity(t *testing.T) {
	c := newContest()
	c.Participants = []model.Participant{{UserID: "u1"}, {UserID: "u2"}}
	require.NoError(t, CheckMembershipIntegrity(c))

	c.Participants = append(c.Participants, model.Participant{UserID: "u1"})
	assert.ErrorIs(t, CheckMembershipIntegrity(c), common.ErrConsistency)
}
