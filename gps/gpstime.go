package gps

import (
	"fmt"
	"time"
)

// LeapSeconds is GPS-UTC, unchanged since 2017-01-01.
const LeapSeconds = 18

const Week = 7 * 24 * time.Hour

var Epoch = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)

// ToGPS converts a UTC instant to GPS week number and time of week.
func ToGPS(t time.Time) (week int, tow time.Duration, err error) {
	d := t.Add(LeapSeconds * time.Second).Sub(Epoch)
	if d < 0 {
		return 0, 0, fmt.Errorf("%v is before the GPS epoch", t.UTC())
	}
	return int(d / Week), d % Week, nil
}

// FromGPS converts a GPS week and time of week back to UTC.
func FromGPS(week int, tow time.Duration) time.Time {
	return Epoch.Add(time.Duration(week)*Week + tow - LeapSeconds*time.Second)
}
