package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"horizons/internal/model"
	"horizons/internal/remote"
)

// Apply merges one change notification into the collections. It runs on
// the same command loop as local mutations, so the two can never interleave
// partial writes.
//
// Delivery is at-least-once and unordered, so the merge rules tolerate
// both: inserts upsert by id, updates fall back to insert when the record
// is unknown, deletes of absent records are no-ops. A notification always
// replaces the full local record for that id, even one with an optimistic
// edit still in flight. Last write wins.
func (s *Store) Apply(n remote.Notification) {
	s.exec(func() { s.applyOnLoop(n) })
}

func (s *Store) applyOnLoop(n remote.Notification) {
	switch n.Entity {
	case remote.EntityHorizons:
		s.applyHorizon(n)
	case remote.EntityTasks:
		s.applyTask(n)
	default:
		slog.Warn("notification for unknown entity", "entity", n.Entity)
	}
}

func (s *Store) applyTask(n remote.Notification) {
	var t model.Task
	if err := json.Unmarshal(n.Record, &t); err != nil || t.ID == "" {
		slog.Warn("malformed task notification", "op", n.Op, "error", err)
		return
	}
	switch n.Op {
	case remote.OpInsert, remote.OpUpdate:
		s.tasks.Upsert(t)
		s.publish(Event{Kind: KindRemote, Entity: remote.EntityTasks, ID: t.ID})
	case remote.OpDelete:
		s.tasks.Remove(t.ID)
		s.publish(Event{Kind: KindRemote, Entity: remote.EntityTasks, ID: t.ID})
	default:
		slog.Warn("notification with unknown op", "op", n.Op)
	}
}

func (s *Store) applyHorizon(n remote.Notification) {
	var h model.Horizon
	if err := json.Unmarshal(n.Record, &h); err != nil || h.ID == "" {
		slog.Warn("malformed horizon notification", "op", n.Op, "error", err)
		return
	}
	switch n.Op {
	case remote.OpInsert, remote.OpUpdate:
		s.horizons.Upsert(h)
		if s.activeID == "" {
			s.activeID = h.ID
		}
		s.publish(Event{Kind: KindRemote, Entity: remote.EntityHorizons, ID: h.ID})
	case remote.OpDelete:
		s.horizons.Remove(h.ID)
		if s.activeID == h.ID {
			s.activeID = ""
			if all := s.horizons.All(); len(all) > 0 {
				s.activeID = all[0].ID
			}
		}
		s.publish(Event{Kind: KindRemote, Entity: remote.EntityHorizons, ID: h.ID})
	default:
		slog.Warn("notification with unknown op", "op", n.Op)
	}
}

// Reconciler pumps change notifications from the realtime stream into a
// store for as long as its context lives.
type Reconciler struct {
	store  *Store
	stream remote.Stream

	cancel context.CancelFunc
	stops  []func()
	wg     sync.WaitGroup
}

// NewReconciler creates a reconciler bridging stream into store.
func NewReconciler(store *Store, stream remote.Stream) *Reconciler {
	return &Reconciler{store: store, stream: stream}
}

// Start subscribes to both entity feeds and begins applying notifications.
func (r *Reconciler) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	for _, entity := range []remote.Entity{remote.EntityHorizons, remote.EntityTasks} {
		ch, stop, err := r.stream.Subscribe(ctx, entity)
		if err != nil {
			r.Stop()
			return err
		}
		r.stops = append(r.stops, stop)

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for n := range ch {
				r.store.Apply(n)
			}
		}()
	}

	slog.Info("reconciler started", "entities", 2)
	return nil
}

// Stop ends the subscriptions and waits for the pumps to drain.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	for _, stop := range r.stops {
		stop()
	}
	r.stops = nil
	r.wg.Wait()
}
