package service

import (
	"math"
	"suma_backend/internal/util"
	"time"
)

var dayLabels = [7]string{"Su", "M", "T", "W", "Th", "F", "Sa"}

// swagger:model StreakDay
type StreakDay struct {
	Label    string `json:"label"`
	Day      string `json:"day"`
	Date     string `json:"date"`
	IsActive bool   `json:"isActive"`
}

func midnight(t time.Time) time.Time {
	y, m, d := t.In(time.Local).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// daysBetween 按本地日历计算相隔的整天数，夏令时切换日也按一天算
func daysBetween(from, to time.Time) int {
	return int(math.Round(midnight(to).Sub(midnight(from)).Hours() / 24))
}

// NextStreak 同一天不变，相隔一天 +1，超过一天重置为 1；没有历史活动时从 1 开始
func NextStreak(current, longest int, lastActivity *time.Time, now time.Time) (int, int) {
	switch {
	case lastActivity == nil:
		current = 1
	default:
		switch days := daysBetween(*lastActivity, now); {
		case days <= 0:
		case days == 1:
			current++
		default:
			current = 1
		}
	}
	if current > longest {
		longest = current
	}
	return current, longest
}

// StreakDays 从今天开始往后 5 天，只有今天可能是 active
func StreakDays(now time.Time, lastActivity *time.Time) []StreakDay {
	days := make([]StreakDay, 0, 5)
	for i := 0; i < 5; i++ {
		date := midnight(now).AddDate(0, 0, i)
		active := lastActivity != nil && daysBetween(*lastActivity, date) == 0
		days = append(days, StreakDay{
			Label:    dayLabels[date.Weekday()],
			Day:      date.Weekday().String(),
			Date:     date.Format(util.DateFormat),
			IsActive: active,
		})
	}
	return days
}
