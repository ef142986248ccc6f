package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"horizons/internal/feed"
	"horizons/internal/remote"
)

// Sweeper periodically purges long-completed tasks from the database and
// publishes a delete notification for each one. It is the server-side
// counterpart of the client's load-time retention filter, running on a
// schedule and with a (typically looser) age of its own.
type Sweeper struct {
	store  *Store
	bus    *feed.Bus
	maxAge time.Duration
	c      *cron.Cron
}

// NewSweeper creates a sweeper on the given 5-field cron schedule.
func NewSweeper(store *Store, bus *feed.Bus, schedule string, maxAge time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		store:  store,
		bus:    bus,
		maxAge: maxAge,
		c:      cron.New(),
	}
	if _, err := s.c.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.c.Start()
	slog.Info("retention sweeper started", "max_age", s.maxAge)
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.maxAge)
	purged, err := s.store.PurgeCompletedBefore(cutoff)
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
		return
	}
	if len(purged) == 0 {
		return
	}

	for _, t := range purged {
		data, err := json.Marshal(t)
		if err != nil {
			continue
		}
		s.bus.Publish(feed.NewChange(remote.Notification{
			Op:     remote.OpDelete,
			Entity: remote.EntityTasks,
			Record: data,
		}))
	}
	slog.Info("retention sweep purged tasks", "count", len(purged), "cutoff", cutoff)
}
