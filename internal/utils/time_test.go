package contextutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarDate_UsesLocation(t *testing.T) {
	ts := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-01", CalendarDate(ts, nil))

	tokyo := LoadLocation("Asia/Tokyo")
	assert.Equal(t, "2025-06-02", CalendarDate(ts, tokyo))
}

func TestDaysBetween_CalendarNotElapsed(t *testing.T) {
	days, err := DaysBetween("2025-06-01", "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, 1, days)

	days, err = DaysBetween("2025-02-27", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2, days)

	days, err = DaysBetween("2025-06-05", "2025-06-05")
	require.NoError(t, err)
	assert.Equal(t, 0, days)
}

func TestParseCalendarDate_Invalid(t *testing.T) {
	_, err := ParseCalendarDate("06/01/2025")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestAddDays(t *testing.T) {
	d, err := AddDays("2024-03-01", -1)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d)
}

func TestLoadLocation_FallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}
