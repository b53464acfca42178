// Package timeutil provides tolerant date parsing for the heterogeneous
// formats returned by literature indices and feeds.
package timeutil

import (
	"strings"
	"time"
)

// dateLayouts covers the RFC 2822 and ISO 8601 shapes seen in feeds and
// registry responses, plus common numeric and named-month forms.
var dateLayouts = []string{
	time.RFC1123Z,                   // Mon, 02 Jan 2006 15:04:05 -0700
	time.RFC1123,                    // Mon, 02 Jan 2006 15:04:05 MST
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,                    // 2006-01-02T15:04:05Z07:00
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// ParseDate parses a date string against every known layout. Returns the
// zero time and false when nothing matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// PublicationDate builds a date from possibly partial year/month/day parts.
// Missing month and day default to 1. Years outside [1900, current+1] are
// rejected as registry noise.
func PublicationDate(year, month, day int) (time.Time, bool) {
	if year < 1900 || year > time.Now().Year()+1 {
		return time.Time{}, false
	}
	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 || day > 31 {
		day = 1
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); treat that as day 1.
	if int(t.Month()) != month {
		t = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	}
	return t, true
}

// MonthNumber maps English month names and abbreviations to 1..12.
// Returns 0 for unknown names.
func MonthNumber(name string) int {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jan", "january":
		return 1
	case "feb", "february":
		return 2
	case "mar", "march":
		return 3
	case "apr", "april":
		return 4
	case "may":
		return 5
	case "jun", "june":
		return 6
	case "jul", "july":
		return 7
	case "aug", "august":
		return 8
	case "sep", "september":
		return 9
	case "oct", "october":
		return 10
	case "nov", "november":
		return 11
	case "dec", "december":
		return 12
	default:
		return 0
	}
}
