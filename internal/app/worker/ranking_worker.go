package worker

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/contest"
	"tle_zone_contest/internal/domain/model"
	"tle_zone_contest/internal/domain/ranking"
	"tle_zone_contest/internal/domain/repository"
	"tle_zone_contest/internal/platform/cache"
	"tle_zone_contest/internal/platform/messaging"
	"tle_zone_contest/internal/platform/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	// Interval refreshes running contests even when no events arrive.
	Interval time.Duration
	// MinGap is the shortest time between two recomputes of one contest.
	MinGap time.Duration
	// LockTTL bounds the finalize lock shared with other instances.
	LockTTL time.Duration
}

// RankingManager runs one worker goroutine per live contest. Each worker recomputes
// its contest's snapshots and publishes them with a pointer swap, so readers never
// see a half-built table.
type RankingManager struct {
	contests  repository.ContestRepository
	events    repository.SubmissionEventRepository
	cache     cache.RankingCache
	locker    cache.Locker
	publisher messaging.LeaderboardPublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	cfg       Config
	now       func() time.Time

	mu      sync.Mutex
	ctx     context.Context // nil until Run
	workers map[string]*contestWorker
	wg      sync.WaitGroup
}

type contestWorker struct {
	contestID string
	trigger   chan struct{}
	limiter   *rate.Limiter

	latestVersion atomic.Int64
	live          atomic.Pointer[model.RankingSnapshot]
	frozen        atomic.Pointer[model.RankingSnapshot]
}

func NewRankingManager(
	contests repository.ContestRepository,
	events repository.SubmissionEventRepository,
	rankingCache cache.RankingCache,
	locker cache.Locker,
	publisher messaging.LeaderboardPublisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *RankingManager {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &RankingManager{
		contests:  contests,
		events:    events,
		cache:     rankingCache,
		locker:    locker,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("component", "ranking-worker").Logger(),
		cfg:       cfg,
		now:       time.Now,
		workers:   make(map[string]*contestWorker),
	}
}

// Run starts workers for every unfinished contest and blocks until ctx is done.
func (m *RankingManager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	pending := make([]*contestWorker, 0, len(m.workers))
	for _, w := range m.workers {
		pending = append(pending, w)
	}
	m.mu.Unlock()

	for _, w := range pending {
		m.start(ctx, w)
	}

	ids, err := m.contests.ListUnfinishedIDs(ctx, m.now())
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list unfinished contests; workers start on demand")
	}
	for _, id := range ids {
		m.ensure(id)
	}
	m.logger.Info().Int("contests", len(ids)).Msg("Ranking workers started")

	<-ctx.Done()
	m.wg.Wait()
	m.logger.Info().Msg("Ranking workers stopped")
	return nil
}

// NotifyEvent wakes the contest's worker, starting one if needed.
func (m *RankingManager) NotifyEvent(contestID string) {
	m.ensure(contestID).poke()
}

// NotifyContestChanged records that version is now current. Results computed
// against older versions are dropped.
func (m *RankingManager) NotifyContestChanged(contestID string, version int64) {
	w := m.ensure(contestID)
	w.observeVersion(version)
	w.poke()
}

// Latest returns the last published snapshot of the requested kind.
func (m *RankingManager) Latest(contestID string, frozen bool) *model.RankingSnapshot {
	m.mu.Lock()
	w, ok := m.workers[contestID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if frozen {
		return w.frozen.Load()
	}
	return w.live.Load()
}

func (m *RankingManager) ensure(contestID string) *contestWorker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.workers[contestID]; ok {
		return w
	}
	limit := rate.Inf
	if m.cfg.MinGap > 0 {
		limit = rate.Every(m.cfg.MinGap)
	}
	w := &contestWorker{
		contestID: contestID,
		trigger:   make(chan struct{}, 1),
		limiter:   rate.NewLimiter(limit, 1),
	}
	m.workers[contestID] = w
	if m.ctx != nil {
		m.startLocked(m.ctx, w)
	}
	return w
}

func (m *RankingManager) start(ctx context.Context, w *contestWorker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startLocked(ctx, w)
}

func (m *RankingManager) startLocked(ctx context.Context, w *contestWorker) {
	if ctx.Err() != nil {
		return
	}
	m.wg.Add(1)
	if m.metrics != nil {
		m.metrics.IncWorkers()
	}
	go m.runWorker(ctx, w)
}

func (m *RankingManager) runWorker(ctx context.Context, w *contestWorker) {
	log := m.logger.With().Str("contestId", w.contestID).Logger()
	defer func() {
		m.mu.Lock()
		if m.workers[w.contestID] == w {
			delete(m.workers, w.contestID)
		}
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.DecWorkers()
		}
		m.wg.Done()
	}()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		finished, err := m.recompute(ctx, w)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Readers keep the last published snapshot until a later pass succeeds.
			log.Warn().Err(err).Msg("Ranking recompute failed")
			m.countRecompute("error")
		}
		if finished {
			log.Info().Msg("Ranking worker finished")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
		case <-ticker.C:
		}
	}
}

// recompute builds fresh snapshots for the worker's contest. finished is true once
// the contest needs no more work from this worker.
func (m *RankingManager) recompute(ctx context.Context, w *contestWorker) (finished bool, err error) {
	c, err := m.contests.FindByID(ctx, w.contestID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	w.observeVersion(c.Version)

	now := m.now()
	status := contest.Status(c, now)
	switch status {
	case model.ContestCancelled:
		w.live.Store(nil)
		w.frozen.Store(nil)
		return true, nil
	case model.ContestUpcoming:
		return false, nil
	}

	if err := contest.CheckMembershipIntegrity(c); err != nil {
		m.logger.Error().Err(err).Str("contestId", c.ID).Msg("Contest data is inconsistent; ranking not published")
		return false, err
	}

	events, err := m.events.ListByContest(ctx, c.ID, c.EndTime)
	if err != nil {
		return false, err
	}

	started := time.Now()
	if status == model.ContestEnded {
		final := ranking.Compute(c, events, ranking.Options{Cutoff: c.EndTime, Final: true, ComputedAt: now})
		m.observe(started)
		if m.stale(w, final) {
			return false, nil
		}
		w.live.Store(final)
		w.frozen.Store(nil)
		m.finalize(ctx, final)
		return true, nil
	}

	live := ranking.Compute(c, events, ranking.Options{Cutoff: now, ComputedAt: now})
	var frozen *model.RankingSnapshot
	if ranking.InFreezeWindow(c, now) {
		frozen = ranking.Compute(c, events, ranking.Options{Cutoff: ranking.FreezeStart(c), Frozen: true, ComputedAt: now})
	}
	m.observe(started)
	if m.stale(w, live) {
		return false, nil
	}

	previous := w.live.Load()
	w.live.Store(live)
	w.frozen.Store(frozen)
	m.countRecompute("published")

	if previous == nil || previous.ContestVersion != live.ContestVersion || !reflect.DeepEqual(previous.Rows, live.Rows) {
		m.publish(ctx, live, frozen != nil)
	}
	return false, nil
}

// stale drops a snapshot built from a contest version that has since been replaced
// and schedules another pass.
func (m *RankingManager) stale(w *contestWorker, s *model.RankingSnapshot) bool {
	if s.ContestVersion >= w.latestVersion.Load() {
		return false
	}
	if m.metrics != nil {
		m.metrics.IncStaleDiscard()
	}
	m.countRecompute("stale")
	m.logger.Debug().
		Str("contestId", s.ContestID).
		Int64("version", s.ContestVersion).
		Int64("latest", w.latestVersion.Load()).
		Msg("Discarding stale ranking")
	w.poke()
	return true
}

// finalize caches the final table once across all instances and announces it.
// A worker started for an ended contest, typically by a verdict graded after the
// end, runs this again. It announces only when the table was built from events
// not yet covered by a cached final table.
func (m *RankingManager) finalize(ctx context.Context, final *model.RankingSnapshot) {
	m.countRecompute("final")
	if m.locker != nil {
		release, ok, err := m.locker.TryLock(ctx, "contest:ranking:finalize:"+final.ContestID, m.cfg.LockTTL)
		if err != nil {
			m.logger.Warn().Err(err).Str("contestId", final.ContestID).Msg("Could not take finalize lock")
			return
		}
		if !ok {
			m.logger.Info().Str("contestId", final.ContestID).Msg("Another instance is finalizing this contest")
			return
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn().Err(err).Str("contestId", final.ContestID).Msg("Failed to release finalize lock")
			}
		}()
	}

	if m.cache != nil {
		cached, err := m.cache.GetFinal(ctx, final.ContestID, final.ContestVersion, final.EventCount)
		if err != nil {
			m.logger.Warn().Err(err).Str("contestId", final.ContestID).Msg("Final ranking cache unavailable")
		}
		if cached != nil {
			m.logger.Debug().Str("contestId", final.ContestID).Msg("Final ranking already cached")
			return
		}
		if err := m.cache.PutFinal(ctx, final); err != nil {
			m.logger.Warn().Err(err).Str("contestId", final.ContestID).Msg("Failed to cache final ranking")
		}
	}
	m.publish(ctx, final, false)
	m.logger.Info().
		Str("contestId", final.ContestID).
		Int("rows", len(final.Rows)).
		Int64("version", final.ContestVersion).
		Msg("Final ranking published")
}

func (m *RankingManager) publish(ctx context.Context, s *model.RankingSnapshot, frozen bool) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.PublishLeaderboardUpdated(ctx, messaging.LeaderboardUpdatedEvent{
		ContestID: s.ContestID,
		Version:   s.ContestVersion,
		Frozen:    frozen,
		Final:     s.Final,
		Timestamp: s.ComputedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("contestId", s.ContestID).Msg("Failed to publish leaderboard.updated")
	}
}

func (m *RankingManager) observe(started time.Time) {
	if m.metrics != nil {
		m.metrics.ObserveCompute(time.Since(started).Seconds())
	}
}

func (m *RankingManager) countRecompute(result string) {
	if m.metrics != nil {
		m.metrics.IncRecompute(result)
	}
}

func (w *contestWorker) poke() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// observeVersion raises latestVersion to v if v is newer.
func (w *contestWorker) observeVersion(v int64) {
	for {
		cur := w.latestVersion.Load()
		if v <= cur || w.latestVersion.CompareAndSwap(cur, v) {
			return
		}
	}
}
