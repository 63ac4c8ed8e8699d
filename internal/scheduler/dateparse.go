package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	numericDate = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	namedDate   = regexp.MustCompile(`^(\d{1,2})\s+([[:alpha:]]+)\.?\s+(\d{4})$`)
)

// months maps Indonesian and English month names and abbreviations.
var months = map[string]time.Month{
	"januari": time.January, "january": time.January, "jan": time.January,
	"februari": time.February, "pebruari": time.February, "february": time.February, "feb": time.February, "peb": time.February,
	"maret": time.March, "march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"mei": time.May, "may": time.May,
	"juni": time.June, "june": time.June, "jun": time.June,
	"juli": time.July, "july": time.July, "jul": time.July,
	"agustus": time.August, "august": time.August, "agu": time.August, "agt": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"oktober": time.October, "october": time.October, "okt": time.October, "oct": time.October,
	"november": time.November, "nov": time.November, "nop": time.November,
	"desember": time.December, "december": time.December, "des": time.December, "dec": time.December,
}

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"02 Jan 06",
}

// ParseDate reads a calendar date and returns midnight of that day in loc.
// Accepted forms, tried in order: YYYY-MM-DD, DD/MM/YYYY or DD-MM-YYYY,
// "D <month name> YYYY" in Indonesian or English, then a set of common layouts.
// Day/month combinations that do not exist, such as 31/02, are rejected.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if isoDate.MatchString(s) {
		t, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		return t, nil
	}

	if m := numericDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return exactDate(s, year, time.Month(month), day, loc)
	}

	if m := namedDate.FindStringSubmatch(s); m != nil {
		if month, ok := months[strings.ToLower(m[2])]; ok {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			return exactDate(s, year, month, day, loc)
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			y, mo, d := t.Date()
			return time.Date(y, mo, d, 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// exactDate builds the date and rejects values time.Date would normalize.
func exactDate(s string, year int, month time.Month, day int, loc *time.Location) (time.Time, error) {
	if month < time.January || month > time.December {
		return time.Time{}, fmt.Errorf("invalid month in %q", s)
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if t.Day() != day || t.Month() != month || t.Year() != year {
		return time.Time{}, fmt.Errorf("date %q does not exist", s)
	}
	return t, nil
}

// nextMonthly returns the first monthly occurrence of from strictly after
// after, keeping day-of-month and clock time. Months without that day are skipped.
func nextMonthly(from, after time.Time) time.Time {
	y, m, d := from.Date()
	hh, mm, ss := from.Clock()
	loc := from.Location()
	for i := 1; i <= 12*100; i++ {
		t := time.Date(y, m+time.Month(i), d, hh, mm, ss, 0, loc)
		if t.Day() != d {
			continue
		}
		if t.After(after) {
			return t
		}
	}
	return time.Time{}
}
