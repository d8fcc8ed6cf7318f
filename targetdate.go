package parkwatch

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Errors returned by [ResolveDate]. Match them with [errors.Is].
var (
	// ErrInvalidFormat indicates the input matches neither MM/DD nor MM/DD/YYYY.
	ErrInvalidFormat = errors.New("invalid date format (want MM/DD or MM/DD/YYYY)")

	// ErrInvalidCalendarDate indicates the numbers do not form a real date,
	// for example month 13 or February 30.
	ErrInvalidCalendarDate = errors.New("not a calendar date")

	// ErrPastDate indicates the resolved date is strictly before today.
	ErrPastDate = errors.New("date is in the past")
)

var (
	shortDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
	longDatePattern  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// TargetDate is the calendar day the monitor watches.
//
// A TargetDate produced by [ResolveDate] always names a real calendar date
// that was not in the past at resolution time. It is a value type and is
// never modified after creation.
type TargetDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ResolveDate parses a target date from operator input.
//
// Accepted forms are MM/DD, which implies the year of now, and MM/DD/YYYY.
// Surrounding whitespace is ignored. The date is compared against the
// calendar day of now in now's location:
//
//   - input matching neither form fails with [ErrInvalidFormat]
//   - numbers that do not form a real date fail with [ErrInvalidCalendarDate]
//   - a date strictly before today fails with [ErrPastDate]; today is accepted
//
// ResolveDate has no side effects.
func ResolveDate(input string, now time.Time) (TargetDate, error) {
	s := strings.TrimSpace(input)

	var month, day, year int
	if m := shortDatePattern.FindStringSubmatch(s); m != nil {
		month, _ = strconv.Atoi(m[1])
		day, _ = strconv.Atoi(m[2])
		year = now.Year()
	} else if m := longDatePattern.FindStringSubmatch(s); m != nil {
		month, _ = strconv.Atoi(m[1])
		day, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
	} else {
		return TargetDate{}, fmt.Errorf("%w: %q", ErrInvalidFormat, input)
	}

	if !isCalendarDate(year, month, day) {
		return TargetDate{}, fmt.Errorf("%w: %q", ErrInvalidCalendarDate, input)
	}

	td := TargetDate{Year: year, Month: time.Month(month), Day: day}
	if td.Before(now) {
		return TargetDate{}, fmt.Errorf("%w: %s is before %s", ErrPastDate, td, now.Format("2006-01-02"))
	}
	return td, nil
}

// isCalendarDate reports whether the numbers survive a round trip through
// time.Date without normalisation.
func isCalendarDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

// Before reports whether the date is strictly before the calendar day of t,
// using t's location.
func (d TargetDate) Before(t time.Time) bool {
	today := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.Time(time.UTC).Before(today)
}

// Time returns midnight of the date in loc.
func (d TargetDate) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// IsZero reports whether the date is unset.
func (d TargetDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String formats the date as YYYY-MM-DD.
func (d TargetDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}
