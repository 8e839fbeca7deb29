package engine

import (
	"testing"
	"time"
)

// tradingDays returns the weekdays between from and to, inclusive.
func tradingDays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}

func matchingDays(rule DateRule, calendar []time.Time) []string {
	var out []string
	for i, d := range calendar {
		if rule.Matches(calendar, i) {
			out = append(out, d.Format("2006-01-02"))
		}
	}
	return out
}

func TestDateRules(t *testing.T) {
	// 2024-01-29 (Mon) .. 2024-02-09 (Fri)
	calendar := tradingDays(
		time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 9, 0, 0, 0, 0, time.UTC),
	)

	tests := []struct {
		name string
		rule DateRule
		want []string
	}{
		{"month start", MonthStart(0), []string{"2024-01-29", "2024-02-01"}},
		{"month start plus one", MonthStart(1), []string{"2024-01-30", "2024-02-02"}},
		{"week start", WeekStart(0), []string{"2024-01-29", "2024-02-05"}},
		{"week start plus four", WeekStart(4), []string{"2024-02-02", "2024-02-09"}},
		{"week end", WeekEnd(), []string{"2024-02-02", "2024-02-09"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchingDays(tt.rule, calendar)
			if len(got) != len(tt.want) {
				t.Fatalf("%s matched %v, want %v", tt.rule, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("%s matched %v, want %v", tt.rule, got, tt.want)
				}
			}
		})
	}

	if got := len(matchingDays(EveryDay(), calendar)); got != len(calendar) {
		t.Errorf("every day matched %d days, want %d", got, len(calendar))
	}
}

func TestDateRules_Holidays(t *testing.T) {
	// Week with Monday missing: the first trading day of the week is Tuesday.
	calendar := []time.Time{
		time.Date(2024, time.May, 24, 0, 0, 0, 0, time.UTC), // Fri
		time.Date(2024, time.May, 28, 0, 0, 0, 0, time.UTC), // Tue
		time.Date(2024, time.May, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC), // Mon
	}
	if got := matchingDays(WeekStart(0), calendar); len(got) != 3 || got[1] != "2024-05-28" {
		t.Errorf("week start matched %v", got)
	}
	if got := matchingDays(MonthStart(0), calendar); len(got) != 2 || got[1] != "2024-06-03" {
		t.Errorf("month start matched %v", got)
	}
	if got := matchingDays(WeekEnd(), calendar); len(got) != 3 || got[1] != "2024-05-29" {
		t.Errorf("week end matched %v", got)
	}
}
