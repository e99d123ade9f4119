package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNextStreak(t *testing.T) {
	tests := []struct {
		name      string
		current   Streak
		today     string
		wantCount int
		wantLast  string
	}{
		{"first activity", Streak{}, "2025-06-01", 1, "2025-06-01"},
		{"same day repeat", Streak{Count: 4, LastActiveDate: strPtr("2025-06-01")}, "2025-06-01", 4, "2025-06-01"},
		{"consecutive day", Streak{Count: 4, LastActiveDate: strPtr("2025-05-31")}, "2025-06-01", 5, "2025-06-01"},
		{"skipped one day", Streak{Count: 4, LastActiveDate: strPtr("2025-05-30")}, "2025-06-01", 1, "2025-06-01"},
		{"month boundary", Streak{Count: 2, LastActiveDate: strPtr("2024-02-29")}, "2024-03-01", 3, "2024-03-01"},
		{"zeroed streak same day", Streak{Count: 0, LastActiveDate: strPtr("2025-06-01")}, "2025-06-01", 1, "2025-06-01"},
		{"future last active", Streak{Count: 3, LastActiveDate: strPtr("2025-06-02")}, "2025-06-01", 3, "2025-06-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStreak(tt.current, tt.today)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, got.Count)
			require.NotNil(t, got.LastActiveDate)
			assert.Equal(t, tt.wantLast, *got.LastActiveDate)
		})
	}
}

func TestNextStreak_ConsecutiveDaysAccumulate(t *testing.T) {
	streak := Streak{}
	days := []string{"2025-06-01", "2025-06-02", "2025-06-03", "2025-06-04", "2025-06-05"}
	for _, d := range days {
		var err error
		streak, err = NextStreak(streak, d)
		require.NoError(t, err)
	}
	assert.Equal(t, len(days), streak.Count)

	streak, err := NextStreak(streak, "2025-06-07")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.Count)
}

func TestUser_HasDeliverableToken(t *testing.T) {
	assert.False(t, (&User{}).HasDeliverableToken())
	assert.False(t, (&User{PushToken: strPtr("")}).HasDeliverableToken())
	assert.False(t, (&User{PushToken: strPtr(InvalidPushToken)}).HasDeliverableToken())
	assert.True(t, (&User{PushToken: strPtr("abc123")}).HasDeliverableToken())
}

func TestGenerationRunSummary_FailureRate(t *testing.T) {
	assert.Equal(t, 0.0, GenerationRunSummary{}.FailureRate())
	assert.InDelta(t, 0.6, GenerationRunSummary{Candidates: 10, Failed: 6}.FailureRate(), 1e-9)
}
