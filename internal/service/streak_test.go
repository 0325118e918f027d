package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStreak(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.Local)
	earlierToday := time.Date(2025, 3, 10, 0, 5, 0, 0, time.Local)
	yesterdayLate := time.Date(2025, 3, 9, 23, 55, 0, 0, time.Local)
	threeDaysAgo := now.AddDate(0, 0, -3)

	cases := []struct {
		name        string
		current     int
		longest     int
		last        *time.Time
		wantCurrent int
		wantLongest int
	}{
		{"first activity", 0, 0, nil, 1, 1},
		{"same day", 4, 6, &earlierToday, 4, 6},
		{"consecutive day", 4, 4, &yesterdayLate, 5, 5},
		{"gap resets", 9, 9, &threeDaysAgo, 1, 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cur, longest := NextStreak(tc.current, tc.longest, tc.last, now)
			assert.Equal(t, tc.wantCurrent, cur)
			assert.Equal(t, tc.wantLongest, longest)
		})
	}
}

func TestStreakDays(t *testing.T) {
	// 2025-03-10 是周一
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.Local)
	last := time.Date(2025, 3, 10, 7, 0, 0, 0, time.Local)

	days := StreakDays(now, &last)
	require.Len(t, days, 5)
	assert.Equal(t, "M", days[0].Label)
	assert.Equal(t, "Monday", days[0].Day)
	assert.Equal(t, "2025-03-10", days[0].Date)
	assert.True(t, days[0].IsActive)
	assert.Equal(t, "F", days[4].Label)
	for _, d := range days[1:] {
		assert.False(t, d.IsActive)
	}

	for _, d := range StreakDays(now, nil) {
		assert.False(t, d.IsActive)
	}
}
