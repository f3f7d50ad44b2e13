package match

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		by       Trigger
		ok       bool
	}{
		{StatusMatched, StatusScheduled, TriggerUser, true},
		{StatusMatched, StatusCooked, TriggerUser, true},
		{StatusScheduled, StatusCooked, TriggerUser, true},
		{StatusScheduled, StatusMatched, TriggerUser, false},
		{StatusCooked, StatusScheduled, TriggerUser, false},
		{StatusExpired, StatusScheduled, TriggerUser, false},
		{StatusMatched, StatusExpired, TriggerUser, false},
		{StatusMatched, StatusExpired, TriggerSweep, true},
		{StatusScheduled, StatusExpired, TriggerSweep, false},
		{StatusMatched, StatusCooked, TriggerSweep, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to, tc.by), "%s -> %s", tc.from, tc.to)
	}
}

func TestPlanTransition_Schedule(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cur := State{Status: StatusMatched, CreatedAt: now.Add(-48 * time.Hour)}

	_, err := PlanTransition(cur, StatusScheduled, TriggerUser, nil, now)
	assert.ErrorIs(t, err, ErrInvalidCookDate)

	past := now.Add(-time.Minute)
	_, err = PlanTransition(cur, StatusScheduled, TriggerUser, &past, now)
	assert.ErrorIs(t, err, ErrInvalidCookDate)

	future := now.Add(24 * time.Hour)
	p, err := PlanTransition(cur, StatusScheduled, TriggerUser, &future, now)
	require.NoError(t, err)
	require.NotNil(t, p.CookDate)
	assert.True(t, p.CookDate.Equal(future))
	assert.Nil(t, p.MatchToCook)
}

func TestPlanTransition_CookSetsDateAndDuration(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-72 * time.Hour)

	// matched -> cooked with no date: cook date becomes now
	p, err := PlanTransition(State{Status: StatusMatched, CreatedAt: created}, StatusCooked, TriggerUser, nil, now)
	require.NoError(t, err)
	require.NotNil(t, p.CookDate)
	assert.True(t, p.CookDate.Equal(now))
	require.NotNil(t, p.MatchToCook)
	assert.Equal(t, 72*time.Hour, *p.MatchToCook)

	// scheduled in the past keeps its date
	past := now.Add(-time.Hour)
	p, err = PlanTransition(State{Status: StatusScheduled, CreatedAt: created, CookDate: &past}, StatusCooked, TriggerUser, nil, now)
	require.NoError(t, err)
	assert.True(t, p.CookDate.Equal(past))
	assert.Equal(t, 71*time.Hour, *p.MatchToCook)

	// scheduled in the future is pulled back to now
	future := now.Add(time.Hour)
	p, err = PlanTransition(State{Status: StatusScheduled, CreatedAt: created, CookDate: &future}, StatusCooked, TriggerUser, nil, now)
	require.NoError(t, err)
	assert.True(t, p.CookDate.Equal(now))
}

func TestPlanTransition_Invalid(t *testing.T) {
	now := time.Now()
	_, err := PlanTransition(State{Status: StatusExpired}, StatusScheduled, TriggerUser, nil, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = PlanTransition(State{Status: StatusMatched}, StatusExpired, TriggerUser, nil, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIsStale(t *testing.T) {
	now := time.Now()
	old := State{Status: StatusMatched, LastActivityAt: now.Add(-31 * 24 * time.Hour)}
	fresh := State{Status: StatusMatched, LastActivityAt: now.Add(-29 * 24 * time.Hour)}
	scheduled := State{Status: StatusScheduled, LastActivityAt: now.Add(-90 * 24 * time.Hour)}

	assert.True(t, IsStale(old, now, DefaultExpiry))
	assert.False(t, IsStale(fresh, now, DefaultExpiry))
	assert.False(t, IsStale(scheduled, now, DefaultExpiry))
}

func TestValidateRating(t *testing.T) {
	for r := MinRating; r <= MaxRating; r++ {
		assert.NoError(t, ValidateRating(r))
	}
	assert.ErrorIs(t, ValidateRating(0), ErrInvalidRating)
	assert.ErrorIs(t, ValidateRating(6), ErrInvalidRating)
}

func TestValidateNote(t *testing.T) {
	text, err := ValidateNote("  tasty  ")
	require.NoError(t, err)
	assert.Equal(t, "tasty", text)

	_, err = ValidateNote("   ")
	assert.ErrorIs(t, err, ErrEmptyNote)

	_, err = ValidateNote(strings.Repeat("a", MaxNoteLength+1))
	assert.ErrorIs(t, err, ErrNoteTooLong)
}

func TestAverageRating(t *testing.T) {
	_, ok := AverageRating(nil)
	assert.False(t, ok)

	avg, ok := AverageRating(map[string]int{"a": 4, "b": 5})
	assert.True(t, ok)
	assert.InDelta(t, 4.5, avg, 1e-9)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Scheduled ")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, s)

	s, err = ParseStatus("")
	require.NoError(t, err)
	assert.Equal(t, Status(""), s)

	_, err = ParseStatus("burnt")
	assert.Error(t, err)
}
