package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"
	"tle_zone_contest/internal/platform/messaging"
	"tle_zone_contest/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestionFixture struct {
	svc      *IngestionService
	events   *fakeEventRepo
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newIngestionFixture() *ingestionFixture {
	f := &ingestionFixture{
		events:   newFakeEventRepo(),
		notifier: newRecordingNotifier(),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.svc = NewIngestionService(newFakeContestRepo(sampleContest("c1")), f.events, f.notifier, f.metrics, zerolog.Nop())
	return f
}

func gradingResult(seq int64, status model.SubmissionStatus) GradingResult {
	return GradingResult{
		SequenceID:   seq,
		SubmissionID: "sub-1",
		ContestID:    "c1",
		UserID:       "alice",
		ProblemLabel: "A",
		Status:       status,
		SubmittedAt:  t0.Add(12 * time.Minute),
	}
}

func TestIngest_StoresTerminalVerdicts(t *testing.T) {
	f := newIngestionFixture()

	require.NoError(t, f.svc.Ingest(context.Background(), SourceWebhook, gradingResult(1, "ACCEPTED")))
	require.NoError(t, f.svc.Ingest(context.Background(), SourceWebhook, gradingResult(2, "wrong_answer")))

	stored, err := f.events.ListByContest(context.Background(), "c1", t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, model.VerdictAccepted, stored[0].Verdict)
	assert.Equal(t, model.VerdictRejected, stored[1].Verdict)
	assert.Equal(t, 2, f.notifier.eventCount())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.EventsIngested.WithLabelValues(SourceWebhook, "stored")))
}

func TestIngest_DuplicateSequenceIsIgnored(t *testing.T) {
	f := newIngestionFixture()

	require.NoError(t, f.svc.Ingest(context.Background(), SourceWebhook, gradingResult(7, model.StatusAccepted)))
	require.NoError(t, f.svc.Ingest(context.Background(), SourceKafka, gradingResult(7, model.StatusAccepted)))

	assert.Len(t, f.events.events, 1)
	assert.Equal(t, 1, f.notifier.eventCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsIngested.WithLabelValues(SourceKafka, "duplicate")))
}

func TestIngest_NonTerminalVerdictsAreDropped(t *testing.T) {
	f := newIngestionFixture()

	for i, status := range []model.SubmissionStatus{model.StatusInQueue, model.StatusProcessing, model.StatusSystemError, "pending"} {
		require.NoError(t, f.svc.Ingest(context.Background(), SourceWebhook, gradingResult(int64(i+1), status)))
	}
	assert.Empty(t, f.events.events)
	assert.Zero(t, f.notifier.eventCount())
}

func TestIngest_PlainRejectionIsTerminal(t *testing.T) {
	f := newIngestionFixture()

	require.NoError(t, f.svc.Ingest(context.Background(), SourceWebhook, gradingResult(1, "Rejected")))
	require.NoError(t, f.svc.Ingest(context.Background(), SourceWebhook, gradingResult(2, "REJECTED")))

	require.Len(t, f.events.events, 2)
	assert.Equal(t, model.VerdictRejected, f.events.events[1].Verdict)
	assert.Equal(t, model.VerdictRejected, f.events.events[2].Verdict)
	assert.Equal(t, 2, f.notifier.eventCount())
}

func TestIngest_UnknownStatusIsRejected(t *testing.T) {
	f := newIngestionFixture()

	err := f.svc.Ingest(context.Background(), SourceWebhook, gradingResult(1, "Mystery"))
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, f.events.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsIngested.WithLabelValues(SourceWebhook, "invalid")))
}

func TestIngest_Rejections(t *testing.T) {
	f := newIngestionFixture()

	missing := gradingResult(1, model.StatusAccepted)
	missing.UserID = ""
	assert.ErrorIs(t, f.svc.Ingest(context.Background(), SourceWebhook, missing), common.ErrValidation)

	noSeq := gradingResult(0, model.StatusAccepted)
	assert.ErrorIs(t, f.svc.Ingest(context.Background(), SourceWebhook, noSeq), common.ErrValidation)

	badLabel := gradingResult(2, model.StatusAccepted)
	badLabel.ProblemLabel = "Z"
	assert.ErrorIs(t, f.svc.Ingest(context.Background(), SourceWebhook, badLabel), common.ErrValidation)

	otherContest := gradingResult(3, model.StatusAccepted)
	otherContest.ContestID = "nope"
	assert.ErrorIs(t, f.svc.Ingest(context.Background(), SourceWebhook, otherContest), common.ErrNotFound)

	assert.Empty(t, f.events.events)
}

type failingEventRepo struct{ *fakeEventRepo }

func (failingEventRepo) Append(context.Context, *model.SubmissionEvent) (bool, error) {
	return false, errors.New("disk full")
}

func TestIngest_EventStoreDown(t *testing.T) {
	svc := NewIngestionService(newFakeContestRepo(sampleContest("c1")), failingEventRepo{newFakeEventRepo()}, nil, nil, zerolog.Nop())
	err := svc.Ingest(context.Background(), SourceWebhook, gradingResult(1, model.StatusAccepted))
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)
}

func judgedMessage(t *testing.T, event messaging.SubmissionJudgedEvent) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Topic: "submission.judged", Value: value}
}

func TestHandleSubmissionJudged(t *testing.T) {
	f := newIngestionFixture()
	contestID := "c1"

	err := f.svc.HandleSubmissionJudged(context.Background(), judgedMessage(t, messaging.SubmissionJudgedEvent{
		SequenceID:   11,
		SubmissionID: "sub-11",
		UserID:       "bob",
		ProblemLabel: "B",
		ContestID:    &contestID,
		Verdict:      "TLE",
		SubmittedAt:  t0.Add(42 * time.Minute).Format(time.RFC3339Nano),
	}))
	require.NoError(t, err)

	ev, ok := f.events.events[11]
	require.True(t, ok)
	assert.Equal(t, model.VerdictRejected, ev.Verdict)
	assert.Equal(t, "B", ev.ProblemLabel)
	assert.True(t, ev.SubmittedAt.Equal(t0.Add(42*time.Minute)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsIngested.WithLabelValues(SourceKafka, "stored")))

	err = f.svc.HandleSubmissionJudged(context.Background(), judgedMessage(t, messaging.SubmissionJudgedEvent{
		SequenceID:   13,
		SubmissionID: "sub-13",
		UserID:       "bob",
		ProblemLabel: "A",
		ContestID:    &contestID,
		Verdict:      "Rejected",
		SubmittedAt:  t0.Add(44 * time.Minute).Format(time.RFC3339Nano),
	}))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictRejected, f.events.events[13].Verdict)
}

func TestHandleSubmissionJudged_FallsBackToTimestamp(t *testing.T) {
	f := newIngestionFixture()
	contestID := "c1"

	err := f.svc.HandleSubmissionJudged(context.Background(), judgedMessage(t, messaging.SubmissionJudgedEvent{
		SequenceID:   12,
		SubmissionID: "sub-12",
		UserID:       "bob",
		ProblemLabel: "A",
		ContestID:    &contestID,
		Verdict:      "Accepted",
		Timestamp:    t0.Add(50 * time.Minute).Format(time.RFC3339),
	}))
	require.NoError(t, err)
	assert.True(t, f.events.events[12].SubmittedAt.Equal(t0.Add(50*time.Minute)))
}

func TestHandleSubmissionJudged_SkipsAndRejects(t *testing.T) {
	f := newIngestionFixture()

	practice := judgedMessage(t, messaging.SubmissionJudgedEvent{SequenceID: 1, SubmissionID: "p", UserID: "bob", Verdict: "Accepted"})
	assert.NoError(t, f.svc.HandleSubmissionJudged(context.Background(), practice))

	unknown := "elsewhere"
	foreign := judgedMessage(t, messaging.SubmissionJudgedEvent{
		SequenceID: 2, SubmissionID: "f", UserID: "bob", ProblemLabel: "A", ContestID: &unknown,
		Verdict: "Accepted", SubmittedAt: t0.Format(time.RFC3339),
	})
	assert.NoError(t, f.svc.HandleSubmissionJudged(context.Background(), foreign))

	contestID := "c1"
	badTime := judgedMessage(t, messaging.SubmissionJudgedEvent{
		SequenceID: 3, SubmissionID: "b", UserID: "bob", ProblemLabel: "A", ContestID: &contestID,
		Verdict: "Accepted", SubmittedAt: "yesterday",
	})
	assert.ErrorIs(t, f.svc.HandleSubmissionJudged(context.Background(), badTime), common.ErrValidation)

	assert.Error(t, f.svc.HandleSubmissionJudged(context.Background(), kafka.Message{Value: []byte("{not json")}))
	assert.Empty(t, f.events.events)
}
