// Package remote defines the engine's two external collaborators, the
// persistence authority and the realtime change stream, plus their HTTP
// and WebSocket implementations.
package remote

import (
	"context"
	"encoding/json"

	"horizons/internal/model"
)

// Op is the kind of change carried by a notification.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Entity names a synced record type.
type Entity string

const (
	EntityHorizons Entity = "horizons"
	EntityTasks    Entity = "tasks"
)

// Notification is a single change event from the realtime stream. Delivery
// is at-least-once and unordered, and a subscriber may receive its own
// writes back.
type Notification struct {
	Op     Op              `json:"op"`
	Entity Entity          `json:"entity"`
	Record json.RawMessage `json:"record"`
}

// API is the persistence authority. Horizons list filtered to active ones
// ordered by sort position; tasks list ordered by creation time. Create
// calls return the authoritative record with its server-assigned id.
type API interface {
	ListHorizons(ctx context.Context) ([]model.Horizon, error)
	CreateHorizon(ctx context.Context, h model.Horizon) (model.Horizon, error)
	UpdateHorizon(ctx context.Context, h model.Horizon) (model.Horizon, error)
	DeleteHorizon(ctx context.Context, id string) error

	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Stream is the realtime collaborator. Subscribe returns a channel of
// notifications for one entity and a stop function that ends delivery and
// closes the channel.
type Stream interface {
	Subscribe(ctx context.Context, entity Entity) (<-chan Notification, func(), error)
}
