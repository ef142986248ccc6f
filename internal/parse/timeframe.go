package parse

import (
	"time"

	"horizons/internal/model"
)

// Classify returns the scheduling bucket for a due date relative to now.
//
// A nil due date is backlog. Anything up to and including the start of
// tomorrow is today. Anything up to and including the end of the current
// week's Sunday is week. Everything later is backlog.
func Classify(due *time.Time, now time.Time) model.Timeframe {
	if due == nil {
		return model.TimeframeBacklog
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !due.After(startOfDay.AddDate(0, 0, 1)) {
		return model.TimeframeToday
	}

	// On a Sunday the current week runs through the following Sunday.
	sunday := startOfDay.AddDate(0, 0, 7-int(startOfDay.Weekday()))
	if !due.After(endOfDay(sunday)) {
		return model.TimeframeWeek
	}

	return model.TimeframeBacklog
}

// endOfDay returns 23:59:59.999 of t's calendar day.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999*int(time.Millisecond), t.Location())
}
