package detect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Question parsing for the two crypto models. Target extraction feeds the
// price-target model; window extraction feeds the directional model.

var (
	// "$103,000", "$103,000.50" or "$103" (a trailing k is handled below).
	dollarAmountRe = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})*(?:\.\d+)?)`)
	// "103,000" or "103000.50" without a currency prefix.
	bareAmountRe = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*(?:\.\d+)?)`)

	// "8:00AM-8:15AM", "8:00 - 8:15" (en dash accepted).
	windowRe = regexp.MustCompile(`(?i)(\d{1,2}:\d{2}(?:AM|PM)?)\s*[-–]\s*(\d{1,2}:\d{2}(?:AM|PM)?)`)
	// "February 9" style explicit date.
	monthDayRe = regexp.MustCompile(`(?i)(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2})`)
)

// extractTargetPrice pulls the first numeric price target out of a contract
// question. A "k" immediately after the number multiplies by 1000
// ("$103k" -> 103000). Returns false when the question carries no number.
func extractTargetPrice(question string) (float64, bool) {
	for _, re := range []*regexp.Regexp{dollarAmountRe, bareAmountRe} {
		loc := re.FindStringSubmatchIndex(question)
		if loc == nil {
			continue
		}
		raw := question[loc[2]:loc[3]]
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			continue
		}
		if loc[3] < len(question) && (question[loc[3]] == 'k' || question[loc[3]] == 'K') {
			v *= 1000
		}
		return v, true
	}
	return 0, false
}

// marketTZ is the assumed zone for clock times in contract questions. The
// venue quotes windows in US Eastern time; DST is ignored on purpose.
var marketTZ = time.FixedZone("ET", -5*3600)

// extractWindow parses the start/end clock times of a directional contract
// question, e.g. "Bitcoin Up or Down - February 9, 8:00AM-8:15AM ET". When no
// explicit date is present the current date (in ET) is assumed. Returns false
// when no window is found.
func extractWindow(question string, now time.Time) (start, end time.Time, ok bool) {
	m := windowRe.FindStringSubmatch(question)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}

	ref := now.In(marketTZ)
	year, month, day := ref.Date()
	if dm := monthDayRe.FindStringSubmatch(question); dm != nil {
		if t, err := time.Parse("January 2", fmt.Sprintf("%s %s", dm[1], dm[2])); err == nil {
			month = t.Month()
			day = t.Day()
		}
	}

	start, ok = parseClock(m[1], year, month, day)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok = parseClock(m[2], year, month, day)
	if !ok || !end.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start.UTC(), end.UTC(), true
}

// parseClock parses "8:00AM" or "8:00" onto the given date in ET.
func parseClock(s string, year int, month time.Month, day int) (time.Time, bool) {
	s = strings.ToUpper(s)
	layout := "15:04"
	if strings.HasSuffix(s, "AM") || strings.HasSuffix(s, "PM") {
		layout = "3:04PM"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), 0, 0, marketTZ), true
}
