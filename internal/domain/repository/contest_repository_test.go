package repository

import (
	"context"
	"testing"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"

	"github.com/stretchr/testify/assert"
)

// The repository has no connection, so these pass only if the id check returns
// before any query is issued.
func TestContestRepository_MalformedIDIsNotFound(t *testing.T) {
	repo := NewPgContestRepository(nil)
	ctx := context.Background()

	for _, id := range []string{"foo", "", "c1", "123e4567-e89b-12d3-a456"} {
		_, err := repo.FindByID(ctx, id)
		assert.ErrorIs(t, err, common.ErrNotFound, id)

		_, err = repo.Cancel(ctx, id)
		assert.ErrorIs(t, err, common.ErrNotFound, id)

		assert.ErrorIs(t, repo.AddInvitations(ctx, id, []string{"u1"}), common.ErrNotFound, id)

		_, err = repo.MutateMembership(ctx, id, func(*model.Contest) (MembershipChange, error) {
			t.Fatal("membership func must not run")
			return MembershipChange{}, nil
		})
		assert.ErrorIs(t, err, common.ErrNotFound, id)
	}
}

func TestContestIDExists(t *testing.T) {
	assert.NoError(t, contestIDExists("123e4567-e89b-12d3-a456-426614174000"))
	assert.ErrorIs(t, contestIDExists("not-a-uuid"), common.ErrNotFound)
}
