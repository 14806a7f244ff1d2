package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSubmissionStatus(t *testing.T) {
	cases := map[string]SubmissionStatus{
		"Accepted":            StatusAccepted,
		"ACCEPTED":            StatusAccepted,
		"AC":                  StatusAccepted,
		"wrong_answer":        StatusWrongAnswer,
		"TIME_LIMIT_EXCEEDED": StatusTimeLimitExceeded,
		"mle":                 StatusMemoryLimitExceeded,
		"SystemError":         StatusSystemError,
		"Rejected":            StatusRejected,
		"REJECTED":            StatusRejected,
		"pending":             StatusPending,
	}
	for raw, want := range cases {
		got, ok := ParseSubmissionStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "banana", "Mystery"} {
		_, ok := ParseSubmissionStatus(raw)
		assert.False(t, ok, raw)
	}
}

func TestVerdictFromStatus(t *testing.T) {
	assert.Equal(t, VerdictAccepted, VerdictFromStatus(StatusAccepted))
	assert.Equal(t, VerdictRejected, VerdictFromStatus(StatusRejected))
	assert.Equal(t, VerdictRejected, VerdictFromStatus(StatusCompilationError))
	assert.Equal(t, VerdictPending, VerdictFromStatus(StatusSystemError))
	assert.Equal(t, VerdictPending, VerdictFromStatus(StatusInQueue))
}
