package model

import (
	"regexp"
	"sort"
	"strings"
)

// Weekday is a lowercase three-letter day key ("mon" … "sun").
type Weekday string

const (
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
	Saturday  Weekday = "sat"
	Sunday    Weekday = "sun"
)

// AllWeekdays returns the days in calendar order starting Monday.
func AllWeekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// TimeRange is an opening interval in 24h "HH:MM" form.
type TimeRange struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WeeklyHours maps each day to its opening intervals. A day with an empty
// slice is closed; a missing day is unknown.
type WeeklyHours map[Weekday][]TimeRange

var clockRe = regexp.MustCompile(`^(([01]\d|2[0-3]):[0-5]\d|24:00)$`)

// Valid reports whether both ends are well-formed 24h clock times.
func (t TimeRange) Valid() bool {
	return clockRe.MatchString(t.Open) && clockRe.MatchString(t.Close)
}

// Equal compares two schedules day by day.
func (h WeeklyHours) Equal(o WeeklyHours) bool {
	if len(h) != len(o) {
		return false
	}
	for day, ranges := range h {
		other, ok := o[day]
		if !ok || len(other) != len(ranges) {
			return false
		}
		for i := range ranges {
			if ranges[i] != other[i] {
				return false
			}
		}
	}
	return true
}

// ParseWeekday maps English day names and abbreviations to a Weekday.
func ParseWeekday(s string) (Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return "", false
	}
	switch {
	case strings.HasPrefix(s, "mo"):
		return Monday, true
	case strings.HasPrefix(s, "tu"):
		return Tuesday, true
	case strings.HasPrefix(s, "we"):
		return Wednesday, true
	case strings.HasPrefix(s, "th"):
		return Thursday, true
	case strings.HasPrefix(s, "fr"):
		return Friday, true
	case strings.HasPrefix(s, "sa"):
		return Saturday, true
	case strings.HasPrefix(s, "su"):
		return Sunday, true
	}
	return "", false
}

// Days returns the scheduled days in calendar order.
func (h WeeklyHours) Days() []Weekday {
	order := make(map[Weekday]int, 7)
	for i, d := range AllWeekdays() {
		order[d] = i
	}
	days := make([]Weekday, 0, len(h))
	for d := range h {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return order[days[i]] < order[days[j]] })
	return days
}
