package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxTitleLen is the longest accepted task title, in bytes.
const MaxTitleLen = 10000

// Timeframe is the derived scheduling bucket of a task.
type Timeframe string

const (
	TimeframeToday   Timeframe = "today"
	TimeframeWeek    Timeframe = "week"
	TimeframeBacklog Timeframe = "backlog"
)

// Task is an actionable item owned by exactly one horizon.
//
// Two invariants hold at all times: Completed is true iff CompletedAt is
// set, and Timeframe is the bucket derived from the current DueDate.
type Task struct {
	ID          string     `json:"id"`
	HorizonID   string     `json:"horizon_id"`
	Title       string     `json:"title"`
	Timeframe   Timeframe  `json:"timeframe"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RecordID returns the task's id.
func (t Task) RecordID() string { return t.ID }

const provisionalPrefix = "local_"

// NewProvisionalID creates a client-side id for an optimistic insert.
// It is replaced by the server-assigned id once the persist call confirms.
func NewProvisionalID() string {
	u := uuid.New().String()
	return provisionalPrefix + strings.ReplaceAll(u[:13], "-", "")
}

// IsProvisionalID reports whether id was generated client-side.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// NewID creates a server-assigned record identifier.
func NewID() string {
	return uuid.New().String()
}
