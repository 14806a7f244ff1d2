package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"
	"tle_zone_contest/internal/domain/repository"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(v int) *int { return &v }

// sampleContest starts at t0 and runs for 300 minutes with problems A, B and C.
func sampleContest(id string) *model.Contest {
	return &model.Contest{
		ID:               id,
		Slug:             "sample-" + id,
		Title:            "Sample " + id,
		Type:             model.ContestTypePublic,
		Mode:             model.ModeACM,
		StartTime:        t0,
		EndTime:          t0.Add(300 * time.Minute),
		DurationMinutes:  300,
		CreatedByID:      "owner",
		AllowViewRanking: true,
		Version:          1,
		Problems: []model.ContestProblem{
			{ProblemID: "p1", Label: "A"},
			{ProblemID: "p2", Label: "B"},
			{ProblemID: "p3", Label: "C"},
		},
	}
}

func cloneContest(c *model.Contest) *model.Contest {
	out := *c
	out.AdminIDs = append([]string(nil), c.AdminIDs...)
	out.InvitedUserIDs = append([]string(nil), c.InvitedUserIDs...)
	out.Problems = append([]model.ContestProblem(nil), c.Problems...)
	out.Participants = append([]model.Participant(nil), c.Participants...)
	return &out
}

type fakeContestRepo struct {
	mu       sync.Mutex
	contests map[string]*model.Contest
	findErr  error
}

func newFakeContestRepo(contests ...*model.Contest) *fakeContestRepo {
	r := &fakeContestRepo{contests: make(map[string]*model.Contest)}
	for _, c := range contests {
		r.contests[c.ID] = cloneContest(c)
	}
	return r
}

func (r *fakeContestRepo) stored(id string) *model.Contest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneContest(r.contests[id])
}

func (r *fakeContestRepo) Create(_ context.Context, c *model.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.contests {
		if existing.Slug == c.Slug {
			return common.ErrConflict
		}
	}
	c.CreatedAt, c.UpdatedAt = t0, t0
	r.contests[c.ID] = cloneContest(c)
	return nil
}

func (r *fakeContestRepo) FindByID(_ context.Context, id string) (*model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	c, ok := r.contests[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneContest(c), nil
}

func (r *fakeContestRepo) ListUnfinishedIDs(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, c := range r.contests {
		if !c.Cancelled && c.EndTime.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeContestRepo) Update(_ context.Context, c *model.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.contests[c.ID]
	if !ok {
		return common.ErrNotFound
	}
	if cur.Version != c.Version || cur.Cancelled {
		return common.ErrConflict
	}
	c.Version++
	r.contests[c.ID] = cloneContest(c)
	return nil
}

func (r *fakeContestRepo) Cancel(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[id]
	if !ok {
		return 0, common.ErrNotFound
	}
	if c.Cancelled {
		return 0, common.ErrConflict
	}
	c.Cancelled = true
	c.Version++
	return c.Version, nil
}

func (r *fakeContestRepo) AddInvitations(_ context.Context, contestID string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[contestID]
	if !ok {
		return common.ErrNotFound
	}
	for _, id := range userIDs {
		if !c.IsInvited(id) {
			c.InvitedUserIDs = append(c.InvitedUserIDs, id)
		}
	}
	return nil
}

// MutateMembership holds the repo lock for the whole call, like the row lock does.
func (r *fakeContestRepo) MutateMembership(_ context.Context, contestID string, fn repository.MembershipFunc) (*model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.contests[contestID]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := cloneContest(cur)
	change, err := fn(c)
	if err != nil {
		return nil, err
	}
	switch {
	case change.Join != nil:
		if _, dup := c.FindParticipant(change.Join.UserID); dup {
			return nil, common.ErrAlreadyJoined
		}
		c.Participants = append(c.Participants, *change.Join)
		c.TotalParticipants++
	case change.Leave != "":
		kept := c.Participants[:0]
		for _, p := range c.Participants {
			if p.UserID != change.Leave {
				kept = append(kept, p)
			}
		}
		c.Participants = kept
		c.TotalParticipants--
	}
	r.contests[contestID] = cloneContest(c)
	return c, nil
}

type fakeEventRepo struct {
	mu      sync.Mutex
	events  map[int64]model.SubmissionEvent
	listErr error
	lists   int
}

func newFakeEventRepo(events ...model.SubmissionEvent) *fakeEventRepo {
	r := &fakeEventRepo{events: make(map[int64]model.SubmissionEvent)}
	for _, ev := range events {
		r.events[ev.SequenceID] = ev
	}
	return r
}

func (r *fakeEventRepo) Append(_ context.Context, ev *model.SubmissionEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.events[ev.SequenceID]; dup {
		return false, nil
	}
	r.events[ev.SequenceID] = *ev
	return true, nil
}

func (r *fakeEventRepo) ListByContest(_ context.Context, contestID string, until time.Time) ([]model.SubmissionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.SubmissionEvent
	for _, ev := range r.events {
		if ev.ContestID == contestID && !ev.SubmittedAt.After(until) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceID < out[j].SequenceID })
	return out, nil
}

func (r *fakeEventRepo) CountByContest(_ context.Context, contestID string, until time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return 0, r.listErr
	}
	n := 0
	for _, ev := range r.events {
		if ev.ContestID == contestID && !ev.SubmittedAt.After(until) {
			n++
		}
	}
	return n, nil
}

func (r *fakeEventRepo) listCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lists
}

type fakeProblemRepo map[string]*model.Problem

func (f fakeProblemRepo) FindProblemByID(_ context.Context, id string) (*model.Problem, error) {
	p, ok := f[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return p, nil
}

func publishedCatalog() fakeProblemRepo {
	return fakeProblemRepo{
		"p1": {ID: "p1", Title: "Two Sum", Status: model.StatusPublished},
		"p2": {ID: "p2", Title: "Paths", Status: model.StatusPublished, DefaultScore: intPtr(250)},
		"p3": {ID: "p3", Title: "Grid", Status: model.StatusPublished},
		"p4": {ID: "p4", Title: "Draft", Status: model.StatusDraft},
	}
}

type fakeUserRepo map[string]*model.User

func (f fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func knownUsers(ids ...string) fakeUserRepo {
	users := fakeUserRepo{}
	for _, id := range ids {
		users[id] = &model.User{ID: id, Username: id, Role: model.RoleUser}
	}
	return users
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []string
	versions map[string]int64
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{versions: make(map[string]int64)}
}

func (n *recordingNotifier) NotifyEvent(contestID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, contestID)
}

func (n *recordingNotifier) NotifyContestChanged(contestID string, version int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.versions[contestID] = version
}

func (n *recordingNotifier) eventCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakeSnapshots struct {
	live, frozen *model.RankingSnapshot
}

func (f fakeSnapshots) Latest(_ string, frozen bool) *model.RankingSnapshot {
	if frozen {
		return f.frozen
	}
	return f.live
}

type fakeRankingCache struct {
	mu      sync.Mutex
	entries map[string]*model.RankingSnapshot
	puts    int
}

func newFakeRankingCache() *fakeRankingCache {
	return &fakeRankingCache{entries: make(map[string]*model.RankingSnapshot)}
}

func (f *fakeRankingCache) GetFinal(_ context.Context, contestID string, version int64, eventCount int) (*model.RankingSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.entries[cacheKey(contestID, version, eventCount)]
	return s, nil
}

func (f *fakeRankingCache) PutFinal(_ context.Context, s *model.RankingSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	key := cacheKey(s.ContestID, s.ContestVersion, s.EventCount)
	if _, ok := f.entries[key]; !ok {
		f.entries[key] = s
	}
	return nil
}

func cacheKey(contestID string, version int64, eventCount int) string {
	return fmt.Sprintf("%s:%d:%d", contestID, version, eventCount)
}
