package engine

import (
	"fmt"
	"time"
)

// DateRule decides whether a job fires on calendar[i].
// calendar holds the trading days of the replay in ascending order.
type DateRule interface {
	Matches(calendar []time.Time, i int) bool
	String() string
}

type everyDay struct{}

func EveryDay() DateRule { return everyDay{} }

func (everyDay) Matches(calendar []time.Time, i int) bool { return i >= 0 && i < len(calendar) }
func (everyDay) String() string                        { return "every_day" }

type monthStart struct{ offset int }

// MonthStart fires on the trading day offset days after the first trading day of each month.
func MonthStart(offset int) DateRule { return monthStart{offset: offset} }

func (r monthStart) Matches(calendar []time.Time, i int) bool {
	return periodPosition(calendar, i, sameMonth) == r.offset
}

func (r monthStart) String() string { return fmt.Sprintf("month_start(%d)", r.offset) }

type weekStart struct{ offset int }

// WeekStart fires on the trading day offset days after the first trading day of each ISO week.
func WeekStart(offset int) DateRule { return weekStart{offset: offset} }

func (r weekStart) Matches(calendar []time.Time, i int) bool {
	return periodPosition(calendar, i, sameWeek) == r.offset
}

func (r weekStart) String() string { return fmt.Sprintf("week_start(%d)", r.offset) }

type weekEnd struct{}

// WeekEnd fires on the last trading day of each ISO week.
func WeekEnd() DateRule { return weekEnd{} }

func (weekEnd) Matches(calendar []time.Time, i int) bool {
	if i < 0 || i >= len(calendar) {
		return false
	}
	return i == len(calendar)-1 || !sameWeek(calendar[i], calendar[i+1])
}

func (weekEnd) String() string { return "week_end" }

// periodPosition counts the trading days before calendar[i] that share its period.
func periodPosition(calendar []time.Time, i int, same func(a, b time.Time) bool) int {
	if i < 0 || i >= len(calendar) {
		return -1
	}
	pos := 0
	for j := i - 1; j >= 0 && same(calendar[j], calendar[i]); j-- {
		pos++
	}
	return pos
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func sameWeek(a, b time.Time) bool {
	ay, aw := a.ISOWeek()
	by, bw := b.ISOWeek()
	return ay == by && aw == bw
}
