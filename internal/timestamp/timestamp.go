// Package timestamp converts bridge-provided message timestamps into UTC
// instants and renders them the way log records show them.
//
// Bridges report times with a variable number of fractional digits and an
// explicit numeric offset, for example:
//
//	2025-09-27T11:58:59.936761682-04:00
//
// [Normalize] accepts that form, truncates the fraction to microseconds and
// returns the instant in UTC. [Format] renders an instant as
// 2025-09-27T15:58:59.936761+00:00.
package timestamp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrMalformed is returned (wrapped) for input that does not match the
// expected structure or carries out-of-range fields.
var ErrMalformed = errors.New("malformed timestamp")

// microDigits is the number of fractional digits kept.
const microDigits = 6

// pattern captures date, time, optional fraction, offset sign and offset.
// Group 7 is the fraction without the dot; it may be empty.
var pattern = regexp.MustCompile(
	`^(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(?:\.(\d*))?([+-])(\d{2}):(\d{2})$`,
)

// Normalize parses raw into a UTC instant with at most microsecond precision.
//
// The fraction may have any number of digits, including none. Digits past
// the sixth are dropped, not rounded. A missing offset, a "Z" suffix,
// non-digit fields, or out-of-range values yield an error wrapping
// [ErrMalformed].
func Normalize(raw string) (time.Time, error) {
	m := pattern.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q does not match YYYY-MM-DDTHH:MM:SS.ffffff±HH:MM", ErrMalformed, raw)
	}

	var f [6]int
	for i := range f {
		n, err := parseUint(m[i+1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
		}
		f[i] = n
	}
	year, month, day, hour, minute, second := f[0], f[1], f[2], f[3], f[4], f[5]

	micros, err := parseFraction(m[7])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
	}

	offHour, err := parseUint(m[9])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
	}
	offMinute, err := parseUint(m[10])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
	}

	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: %q: time of day out of range", ErrMalformed, raw)
	}
	if offHour > 23 || offMinute > 59 {
		return time.Time{}, fmt.Errorf("%w: %q: offset out of range", ErrMalformed, raw)
	}
	if year < 1 || month < 1 || month > 12 || day < 1 || day > daysIn(year, time.Month(month)) {
		return time.Time{}, fmt.Errorf("%w: %q: date out of range", ErrMalformed, raw)
	}

	offset := offHour*3600 + offMinute*60
	if m[8] == "-" {
		offset = -offset
	}
	zone := time.FixedZone("", offset)

	local := time.Date(year, time.Month(month), day, hour, minute, second, micros*1000, zone)
	return local.UTC(), nil
}

// Format renders t in UTC as ISO-8601 with a "+00:00" suffix. Microseconds
// are included only when non-zero, and sub-microsecond precision is dropped.
func Format(t time.Time) string {
	t = t.UTC().Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05-07:00")
	}
	return t.Format("2006-01-02T15:04:05.000000-07:00")
}

// parseUint parses a run of ASCII digits as a non-negative int.
func parseUint(s string) (int, error) {
	n, err := strconv.ParseUint(s, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return int(n), nil
}

// parseFraction converts fractional-second digits into whole microseconds.
func parseFraction(digits string) (int, error) {
	if digits == "" {
		return 0, nil
	}
	if len(digits) > microDigits {
		digits = digits[:microDigits]
	}
	n, err := parseUint(digits)
	if err != nil {
		return 0, err
	}
	for i := len(digits); i < microDigits; i++ {
		n *= 10
	}
	return n, nil
}

// daysIn returns the number of days in month of year.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
