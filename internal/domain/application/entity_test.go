package application

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

func TestCanTransition(t *testing.T) {
	legal := map[Status][]Status{
		StatusPending:  {StatusApproved, StatusRejected},
		StatusApproved: {StatusCompleted},
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := false
			for _, s := range legal[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, from := range []Status{StatusRejected, StatusCompleted} {
		assert.True(t, from.IsTerminal())
		for _, to := range AllStatuses() {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestRequiredSource(t *testing.T) {
	tests := []struct {
		target Status
		want   Status
		ok     bool
	}{
		{StatusApproved, StatusPending, true},
		{StatusRejected, StatusPending, true},
		{StatusCompleted, StatusApproved, true},
		{StatusPending, "", false},
	}

	for _, tt := range tests {
		got, ok := RequiredSource(tt.target)
		assert.Equal(t, tt.ok, ok, tt.target)
		assert.Equal(t, tt.want, got, tt.target)
	}
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("approve")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, d)

	target, ok := DecisionReject.Target()
	assert.True(t, ok)
	assert.Equal(t, StatusRejected, target)

	_, err = ParseDecision("COMPLETE")
	assert.True(t, shared.IsValidation(err))
}

func TestNewApplication(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	app, err := NewApplication(NewApplicationParams{
		ID:          uuid.NewString(),
		ApplicantID: "applicant-1",
		ProgramID:   "program-1",
		Message:     "  I would love to learn weaving  ",
		Now:         now,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, app.Status)
	assert.Equal(t, "  I would love to learn weaving  ", app.Message)
	assert.Equal(t, now, app.CreatedAt)

	_, err = NewApplication(NewApplicationParams{
		ID:          uuid.NewString(),
		ApplicantID: "applicant-1",
		ProgramID:   "program-1",
		Message:     "   ",
	})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestApplicationTransition(t *testing.T) {
	app := &Application{Status: StatusPending}
	at := time.Now()

	require.NoError(t, app.Transition(StatusApproved, at))
	assert.Equal(t, StatusApproved, app.Status)
	require.NotNil(t, app.DecidedAt)

	err := app.Transition(StatusRejected, at)
	assert.True(t, shared.IsInvalidState(err))
	assert.Equal(t, StatusApproved, app.Status)

	require.NoError(t, app.Transition(StatusCompleted, at))
	assert.NotNil(t, app.CompletedAt)
}
