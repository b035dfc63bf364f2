package scan

import (
	"fmt"
	"strings"
	"time"
)

// Unit-seconds for the age filter. A year is 365.25 days and a month is a
// twelfth of that, so thresholds stay stable across leap years.
const (
	secondsPerDay   = 86400
	secondsPerWeek  = 7 * secondsPerDay
	secondsPerYear  = 31557600
	secondsPerMonth = secondsPerYear / 12
)

// AgeFilter skips dataset folders older than number x unit.
type AgeFilter struct {
	Enabled bool
	Number  int
	Unit    string
}

// Threshold returns the configured maximum age. The unit accepts both
// singular and plural forms ("month" and "months").
func (f AgeFilter) Threshold() (time.Duration, error) {
	unit := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(f.Unit)), "s")

	var unitSeconds int64
	switch unit {
	case "day":
		unitSeconds = secondsPerDay
	case "week":
		unitSeconds = secondsPerWeek
	case "month":
		unitSeconds = secondsPerMonth
	case "year":
		unitSeconds = secondsPerYear
	default:
		return 0, fmt.Errorf("unsupported age unit %q", f.Unit)
	}
	return time.Duration(int64(f.Number)*unitSeconds) * time.Second, nil
}

// Excludes reports whether a folder created at the given time is old enough
// to skip.
func (f AgeFilter) Excludes(created, now time.Time) (bool, error) {
	if !f.Enabled {
		return false, nil
	}

	threshold, err := f.Threshold()
	if err != nil {
		return false, err
	}
	return now.Sub(created) > threshold, nil
}
