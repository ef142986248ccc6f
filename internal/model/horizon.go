// Package model defines the horizon and task records shared by the sync
// engine, the remote collaborators, and the reference server.
package model

import "time"

// DefaultHorizonColor is assigned to horizons created without a color.
const DefaultHorizonColor = "#38b5b5"

// Horizon is a long-running focus area that owns tasks.
type Horizon struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Active    bool      `json:"is_active"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordID returns the horizon's id.
func (h Horizon) RecordID() string { return h.ID }
