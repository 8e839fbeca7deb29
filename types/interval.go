package types

import (
	"fmt"
	"time"
)

type Interval string

const (
	OneMinute Interval = "1"
	Hour      Interval = "60"
	Day       Interval = "D"
	Week      Interval = "W"
	Month     Interval = "M"
)

var IntervalToTime = map[Interval]time.Duration{
	OneMinute: time.Minute,
	Hour:      time.Hour,
	Day:       time.Hour * 24,
	Week:      time.Hour * 24 * 7,
}

var ConvertInterval = map[string]Interval{
	"1":  OneMinute,
	"60": Hour,
	"D":  Day,
	"W":  Week,
	"M":  Month,
}

// ParseInterval maps a config string such as "D" to an Interval.
func ParseInterval(s string) (Interval, error) {
	if s == "" {
		return Day, nil
	}
	interval, ok := ConvertInterval[s]
	if !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return interval, nil
}
