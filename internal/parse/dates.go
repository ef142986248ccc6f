package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// recognizer pairs a pattern with the rule that resolves its match to a
// day. resolve reports false when the matched text cannot be resolved
// (e.g. a count that does not fit an int), in which case the match is
// discarded and scanning continues with the next rule.
type recognizer struct {
	re      *regexp.Regexp
	resolve func(now time.Time, m []string) (time.Time, bool)
}

// recognizers is the fixed, ordered rule list for due date extraction.
// The first match wins; later rules are never attempted.
var recognizers = []recognizer{
	{
		re:      regexp.MustCompile(`(?i)\btomorrow\b`),
		resolve: func(now time.Time, _ []string) (time.Time, bool) { return now.AddDate(0, 0, 1), true },
	},
	{
		re:      regexp.MustCompile(`(?i)\btoday\b`),
		resolve: func(now time.Time, _ []string) (time.Time, bool) { return now, true },
	},
	{
		re:      regexp.MustCompile(`(?i)\bnext\s+week\b`),
		resolve: func(now time.Time, _ []string) (time.Time, bool) { return nextWeekday(now, time.Monday), true },
	},
	{
		re: regexp.MustCompile(`(?i)\bnext\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
		resolve: func(now time.Time, m []string) (time.Time, bool) {
			return nextWeekday(now, weekdayNames[strings.ToLower(m[1])]), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\bin\s+(\d+)\s+days?\b`),
		resolve: func(now time.Time, m []string) (time.Time, bool) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			return now.AddDate(0, 0, n), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\bin\s+(\d+)\s+weeks?\b`),
		resolve: func(now time.Time, m []string) (time.Time, bool) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			return now.AddDate(0, 0, 7*n), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
		resolve: func(now time.Time, m []string) (time.Time, bool) {
			return nextWeekday(now, weekdayNames[strings.ToLower(m[1])]), true
		},
	},
	{
		re: regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`),
		resolve: func(now time.Time, m []string) (time.Time, bool) {
			month, _ := strconv.Atoi(m[1])
			day, _ := strconv.Atoi(m[2])
			candidate := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
			startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			if candidate.Before(startOfToday) {
				candidate = candidate.AddDate(1, 0, 0)
			}
			return candidate, true
		},
	},
	{
		re:      regexp.MustCompile(`(?i)\bend\s+of\s+week\b`),
		resolve: func(now time.Time, _ []string) (time.Time, bool) { return nextWeekday(now, time.Friday), true },
	},
}

// nextWeekday returns the next occurrence of target strictly after now's day.
// When today is the target weekday it rolls a full week forward.
func nextWeekday(now time.Time, target time.Weekday) time.Time {
	days := (int(target) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

// ExtractDueDate scans text with the ordered recognizer list. On a match it
// returns the resolved date normalized to 23:59:59.999 of that calendar day
// and the text with the matched span removed and whitespace collapsed. With
// no match the date is nil and the text is returned unchanged.
func ExtractDueDate(now time.Time, text string) (*time.Time, string) {
	for _, r := range recognizers {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		day, ok := r.resolve(now, m)
		if !ok {
			continue
		}
		idx := r.re.FindStringIndex(text)
		due := endOfDay(day)
		remaining := collapseSpaces(text[:idx[0]] + text[idx[1]:])
		return &due, remaining
	}
	return nil, text
}

// collapseSpaces trims and squeezes runs of whitespace to single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
