package pipeline

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

var errBadDate = errors.New("unparseable date")

var monthNames = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// parseDate reads a calendar date in the given day/month/year ordering.
// A leading four-digit year always means year-month-day, English month names
// are accepted in place of the month number, and a trailing time is ignored.
func parseDate(raw string, order domain.DateOrder) (civil.Date, error) {
	s := stripTime(strings.TrimSpace(raw))
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '-' || r == '.' || r == ',' || unicode.IsSpace(r)
	})
	if len(parts) != 3 {
		return civil.Date{}, errBadDate
	}

	var dayStr, yearStr string
	var month time.Month

	nameAt := -1
	for i, p := range parts {
		if m, ok := monthName(p); ok {
			nameAt, month = i, m
			break
		}
	}

	switch {
	case nameAt >= 0:
		rest := make([]string, 0, 2)
		for i, p := range parts {
			if i != nameAt {
				rest = append(rest, p)
			}
		}
		switch {
		case len(rest[0]) == 4:
			yearStr, dayStr = rest[0], rest[1]
		case len(rest[1]) == 4:
			dayStr, yearStr = rest[0], rest[1]
		case order == domain.DateOrderYMD:
			yearStr, dayStr = rest[0], rest[1]
		default:
			dayStr, yearStr = rest[0], rest[1]
		}
	default:
		var monthStr string
		switch {
		case len(parts[0]) == 4 || order == domain.DateOrderYMD:
			yearStr, monthStr, dayStr = parts[0], parts[1], parts[2]
		case order == domain.DateOrderMDY:
			monthStr, dayStr, yearStr = parts[0], parts[1], parts[2]
		default:
			dayStr, monthStr, yearStr = parts[0], parts[1], parts[2]
		}
		m, err := strconv.Atoi(monthStr)
		if err != nil || len(monthStr) > 2 {
			return civil.Date{}, errBadDate
		}
		month = time.Month(m)
	}

	day, err := strconv.Atoi(dayStr)
	if err != nil || len(dayStr) > 2 {
		return civil.Date{}, errBadDate
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return civil.Date{}, errBadDate
	}
	switch len(yearStr) {
	case 2:
		year += 2000
	case 4:
	default:
		return civil.Date{}, errBadDate
	}

	d := civil.Date{Year: year, Month: month, Day: day}
	if !d.IsValid() {
		return civil.Date{}, errBadDate
	}
	return d, nil
}

// stripTime drops a trailing "10:22[:33]" or "T10:22:33Z" part.
func stripTime(s string) string {
	colon := strings.Index(s, ":")
	if colon < 0 {
		return s
	}
	cut := strings.LastIndexAny(s[:colon], " T")
	if cut < 0 {
		return s
	}
	return strings.TrimSpace(s[:cut])
}

func monthName(s string) (time.Month, bool) {
	if len(s) < 3 {
		return 0, false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return 0, false
		}
	}
	m, ok := monthNames[strings.ToUpper(s[:3])]
	return m, ok
}
