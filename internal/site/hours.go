package site

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/directory-crawler/internal/model"
)

var clock12Re = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?(?::\d{2})?\s*([ap])\.?\s*m?\.?$`)
var clock24Re = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?$`)

// toClock converts "9:00 am", "12 PM", "17:30" or "09:00:00" to "HH:MM".
func toClock(s string) (string, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "noon":
		return "12:00", true
	case "midnight":
		return "24:00", true
	}
	if m := clock12Re.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins := 0
		if m[2] != "" {
			mins, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || mins > 59 {
			return "", false
		}
		h %= 12
		if strings.EqualFold(m[3], "p") {
			h += 12
		}
		return fmt.Sprintf("%02d:%02d", h, mins), true
	}
	if m := clock24Re.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		if h > 24 || mins > 59 || (h == 24 && mins != 0) {
			return "", false
		}
		return fmt.Sprintf("%02d:%02d", h, mins), true
	}
	return "", false
}

// parseDays expands "Mon - Fri", "Sat, Sun" or "Tuesday" into weekdays.
func parseDays(s string) []model.Weekday {
	var out []model.Weekday
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if from, to, ok := strings.Cut(part, "-"); ok {
			a, okA := model.ParseWeekday(from)
			b, okB := model.ParseWeekday(to)
			if !okA || !okB {
				continue
			}
			out = append(out, dayRange(a, b)...)
			continue
		}
		if d, ok := model.ParseWeekday(part); ok {
			out = append(out, d)
		}
	}
	return out
}

func dayRange(from, to model.Weekday) []model.Weekday {
	days := model.AllWeekdays()
	start, end := -1, -1
	for i, d := range days {
		if d == from {
			start = i
		}
		if d == to {
			end = i
		}
	}
	var out []model.Weekday
	for i := start; ; i = (i + 1) % len(days) {
		out = append(out, days[i])
		if i == end {
			break
		}
	}
	return out
}

// parseRanges reads "9:00 am - 5:00 pm, 6:00 pm - 9:00 pm", "Closed" or
// "Open 24 hours". ok is false when nothing recognizable was found.
func parseRanges(s string) ([]model.TimeRange, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case lower == "":
		return nil, false
	case strings.Contains(lower, "closed"):
		return []model.TimeRange{}, true
	case strings.Contains(lower, "24 hours"):
		return []model.TimeRange{{Open: "00:00", Close: "24:00"}}, true
	}
	var out []model.TimeRange
	for _, part := range strings.Split(s, ",") {
		part = strings.ReplaceAll(part, "–", "-")
		from, to, ok := strings.Cut(part, "-")
		if !ok {
			continue
		}
		open, okO := toClock(from)
		closing, okC := toClock(to)
		if okO && okC {
			out = append(out, model.TimeRange{Open: open, Close: closing})
		}
	}
	return out, len(out) > 0
}

// addHours merges ranges for days into h, creating h when nil.
func addHours(h model.WeeklyHours, days []model.Weekday, ranges []model.TimeRange) model.WeeklyHours {
	if len(days) == 0 {
		return h
	}
	if h == nil {
		h = make(model.WeeklyHours)
	}
	for _, d := range days {
		if len(ranges) == 0 {
			if _, ok := h[d]; !ok {
				h[d] = []model.TimeRange{}
			}
			continue
		}
		h[d] = append(h[d], ranges...)
	}
	return h
}
