package cachecheck

import "time"

const (
	hoursInDay         = 24
	springForwardHours = 23
	fallBackHours      = 25
	duplicateHourCount = 2
)

func utcOffset(t time.Time) int {
	_, offset := t.Zone()
	return offset
}

// IsDSTTransitionDay reports whether the UTC offset of now differs from the
// offset one day earlier or one day later, i.e. the local day is shortened
// or lengthened by a daylight-saving switch.
func IsDSTTransitionDay(now time.Time) bool {
	today := utcOffset(now)
	return today != utcOffset(now.AddDate(0, 0, -1)) || today != utcOffset(now.AddDate(0, 0, 1))
}

// IsSpringForward reports whether the local day lost an hour: today's UTC
// offset is greater than yesterday's.
func IsSpringForward(now time.Time) bool {
	return utcOffset(now) > utcOffset(now.AddDate(0, 0, -1))
}

// ExpectedHours returns the number of distinct wall-clock hours the local
// day of now has: 24 normally, 23 on spring-forward, 25 on fall-back days.
func ExpectedHours(now time.Time) int {
	if !IsDSTTransitionDay(now) {
		return hoursInDay
	}
	if IsSpringForward(now) {
		return springForwardHours
	}
	return fallBackHours
}

// DateOf truncates t to its wall-clock calendar date. The date is taken in
// the timestamp's own offset, matching how price points carry their zone.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func SameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// DaysBetween returns the whole calendar days from "from" to "to",
// negative when from is later.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / hoursInDay)
}
