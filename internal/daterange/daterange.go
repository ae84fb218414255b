// Package daterange は "today" や "next 3 days" のような相対表現を絶対時間範囲に解決する。
package daterange

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/calmate/internal/model"
)

var nextNPattern = regexp.MustCompile(`(?i)^next\s+(\d+)\s+(day|days|week|weeks|month|months)$`)

// Resolve はexprをnowのタイムゾーンで解決する。週は月曜始まり。
// 認識できない表現は today として扱う。
func Resolve(expr string, now time.Time) model.DateRange {
	e := strings.ToLower(strings.Join(strings.Fields(expr), " "))

	switch e {
	case "today":
		return day(now)
	case "tomorrow":
		return day(now.AddDate(0, 0, 1))
	case "this week":
		start := weekStart(now)
		return model.DateRange{Start: start, End: endBefore(start.AddDate(0, 0, 7))}
	case "next week":
		start := weekStart(now).AddDate(0, 0, 7)
		return model.DateRange{Start: start, End: endBefore(start.AddDate(0, 0, 7))}
	case "this month":
		start := monthStart(now)
		return model.DateRange{Start: start, End: endBefore(start.AddDate(0, 1, 0))}
	case "next month":
		start := monthStart(now).AddDate(0, 1, 0)
		return model.DateRange{Start: start, End: endBefore(start.AddDate(0, 1, 0))}
	}

	if m := nextNPattern.FindStringSubmatch(e); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			switch strings.TrimSuffix(m[2], "s") {
			case "day":
				return model.DateRange{Start: now, End: now.AddDate(0, 0, n)}
			case "week":
				return model.DateRange{Start: now, End: now.AddDate(0, 0, 7*n)}
			case "month":
				return model.DateRange{Start: now, End: now.AddDate(0, n, 0)}
			}
		}
	}

	return day(now)
}

// StartOfDay はtの日付の0時を返す。
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay はtの日付の最終時刻（23:59:59.999999999）を返す。
func EndOfDay(t time.Time) time.Time {
	return endBefore(StartOfDay(t).AddDate(0, 0, 1))
}

func day(t time.Time) model.DateRange {
	return model.DateRange{Start: StartOfDay(t), End: EndOfDay(t)}
}

func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	return StartOfDay(t).AddDate(0, 0, -offset)
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func endBefore(t time.Time) time.Time {
	return t.Add(-time.Nanosecond)
}
