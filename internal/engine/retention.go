package engine

import (
	"time"

	"horizons/internal/model"
)

// FilterStale drops tasks that were completed more than maxAge before now.
// It is applied exactly once per Load; a task that crosses the threshold
// mid-session stays visible until the next load.
func FilterStale(tasks []model.Task, now time.Time, maxAge time.Duration) []model.Task {
	kept := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed && t.CompletedAt != nil && now.Sub(*t.CompletedAt) >= maxAge {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}
