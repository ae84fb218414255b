package executor

import (
	"sort"
	"time"

	"github.com/hitoshi/calmate/internal/daterange"
	"github.com/hitoshi/calmate/internal/model"
)

const (
	workdayStartHour = 9
	workdayEndHour   = 18
	minFreeSlot      = 30 * time.Minute
)

// Interval は占有区間。
type Interval struct {
	Start time.Time
	End   time.Time
}

// ComputeFreeSlots は [start, end] の各日について 09:00〜18:00 の枠から占有区間を除き、
// 30分以上の空きを返す。日付の境界はstartのタイムゾーンで決める。
func ComputeFreeSlots(start, end time.Time, busy []Interval) []model.FreeSlot {
	merged := mergeIntervals(busy)
	loc := start.Location()
	slots := []model.FreeSlot{}

	for day := daterange.StartOfDay(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		y, m, d := day.Date()
		windowStart := latest(start, time.Date(y, m, d, workdayStartHour, 0, 0, 0, loc))
		windowEnd := earliest(end, time.Date(y, m, d, workdayEndHour, 0, 0, 0, loc))
		if !windowEnd.After(windowStart) {
			continue
		}

		cursor := windowStart
		for _, b := range merged {
			if !b.End.After(cursor) {
				continue
			}
			if !b.Start.Before(windowEnd) {
				break
			}
			if b.Start.After(cursor) {
				slots = appendSlot(slots, cursor, b.Start)
			}
			cursor = b.End
			if !cursor.Before(windowEnd) {
				break
			}
		}
		if cursor.Before(windowEnd) {
			slots = appendSlot(slots, cursor, windowEnd)
		}
	}

	return slots
}

func appendSlot(slots []model.FreeSlot, start, end time.Time) []model.FreeSlot {
	gap := end.Sub(start)
	if gap < minFreeSlot {
		return slots
	}
	return append(slots, model.FreeSlot{Start: start, End: end, Duration: gap.Minutes()})
}

// mergeIntervals は開始順に並べ、重なりと接触を1区間にまとめる。
func mergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.End.After(iv.Start) {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var out []Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
