package rules

import (
	"regexp"
	"strconv"
	"time"
)

var (
	dateISODash  = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	dateISODot   = regexp.MustCompile(`(\d{4})\.(\d{2})\.(\d{2})`)
	dateISOSlash = regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})`)
	dateCompact  = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`)
	dateYYMMDD   = regexp.MustCompile(`(?:^|\D)(\d{2})(\d{2})(\d{2})(?:\D|$)`)
)

var longPatterns = []*regexp.Regexp{dateISODash, dateISODot, dateISOSlash, dateCompact}

func safeDate(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 || y < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// inferCentury maps a two-digit year to a four-digit one relative to the
// ingestion year, rejecting results more than roughly a year in the future.
func inferCentury(twoDigitYear int, ingestedAt time.Time) int {
	base := ingestedAt.Year() % 100
	year := 1900 + twoDigitYear
	if twoDigitYear <= base+1 {
		year = 2000 + twoDigitYear
	}
	if time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).After(ingestedAt.AddDate(1, 0, 0)) {
		year -= 100
	}
	return year
}

// ParseEventDateFromText tries, in order, YYYY-MM-DD, YYYY.MM.DD,
// YYYY/MM/DD, YYYYMMDD, then a bare YYMMDD with century inference relative
// to ingestedAt. Returns ok=false when nothing matches or the match is not a
// valid calendar date.
func ParseEventDateFromText(text string, ingestedAt time.Time) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}

	for _, pat := range longPatterns {
		m := pat.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if t, ok := safeDate(y, mo, d); ok {
			return t, true
		}
	}

	if m := dateYYMMDD.FindStringSubmatch(text); m != nil {
		yy, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		y := inferCentury(yy, ingestedAt)
		if t, ok := safeDate(y, mo, d); ok {
			return t, true
		}
	}

	return time.Time{}, false
}
