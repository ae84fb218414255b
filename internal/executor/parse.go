package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultDuration = 60 * time.Minute

// maxEventDuration は作成できるイベントの最長期間。
const maxEventDuration = 31 * 24 * time.Hour

// clockLayouts は受け付ける時刻表記。AM/PMの大小は問わない。
var clockLayouts = []string{"3:04 PM", "3:04PM", "3 PM", "3PM", "15:04"}

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s+(hour|minute|min|hr)`)

// parseDateTime は "2025-03-14" と "3:30 PM" のような日付・時刻をloc上の時刻にする。
func parseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}

	c := strings.ToUpper(strings.Join(strings.Fields(clock), " "))
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, c)
		if err == nil {
			y, m, d := day.Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: unsupported format", clock)
}

// parseDuration は "2 hours" "45 min" のような自由記述を期間にする。解釈できなければ60分。
// maxEventDurationを超える場合は false を返す。
func parseDuration(s string) (time.Duration, bool) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return defaultDuration, true
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// 桁あふれ
		return 0, false
	}
	if n <= 0 {
		return defaultDuration, true
	}

	unit := time.Minute
	if u := strings.ToLower(m[2]); strings.HasPrefix(u, "hour") || strings.HasPrefix(u, "hr") {
		unit = time.Hour
	}
	if n > int(maxEventDuration/unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
