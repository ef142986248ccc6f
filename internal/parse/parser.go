// Package parse turns free-form capture text into structured task fields:
// an optional #horizon reference, an optional due date, a cleaned title,
// and the scheduling bucket derived from the date.
package parse

import (
	"regexp"
	"strings"
	"time"

	"horizons/internal/model"
)

var horizonPrefixRe = regexp.MustCompile(`^#(\S+)\s+(.+)$`)

// SplitHorizonPrefix extracts a leading "#token " from text. It returns the
// lowercased token, the remainder, and whether the prefix was present.
func SplitHorizonPrefix(text string) (token, rest string, ok bool) {
	m := horizonPrefixRe.FindStringSubmatch(text)
	if m == nil {
		return "", text, false
	}
	return strings.ToLower(m[1]), m[2], true
}

// Input is the raw parse result of a capture line: the candidate horizon
// reference (if any), the extracted due date, and the remaining title.
type Input struct {
	HorizonRef string
	DueDate    *time.Time
	Title      string
	Timeframe  model.Timeframe
}

// Parse splits a horizon prefix off text, extracts a due date from what
// remains, and classifies the result. Resolution of the reference against
// known horizons is a separate step; see Capture.
func Parse(now time.Time, text string) Input {
	ref, working, _ := SplitHorizonPrefix(text)
	due, title := ExtractDueDate(now, working)
	return Input{
		HorizonRef: ref,
		DueDate:    due,
		Title:      title,
		Timeframe:  Classify(due, now),
	}
}

// Capture is the fully resolved form of a capture line, ready to become a
// task.
type Capture struct {
	Title     string
	HorizonID string
	DueDate   *time.Time
	Timeframe model.Timeframe
	Matched   bool // a #reference was present and resolved
}

// BuildCapture parses text and resolves its horizon reference against the
// known horizons. A resolved reference routes the task and is stripped from
// the title; an unresolved one is ordinary text and stays in the title
// untouched, with the task routed to fallbackID.
func BuildCapture(now time.Time, text string, horizons []model.Horizon, fallbackID string) Capture {
	working := text
	horizonID := fallbackID
	matched := false

	if ref, rest, ok := SplitHorizonPrefix(text); ok {
		if h, found := Resolve(ref, horizons); found {
			horizonID = h.ID
			working = rest
			matched = true
		}
	}

	due, title := ExtractDueDate(now, working)
	return Capture{
		Title:     title,
		HorizonID: horizonID,
		DueDate:   due,
		Timeframe: Classify(due, now),
		Matched:   matched,
	}
}
