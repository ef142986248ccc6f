package server

import (
	"testing"
	"time"

	"horizons/internal/feed"
	"horizons/internal/model"
	"horizons/internal/remote"
)

func TestSweep_PurgesAndNotifies(t *testing.T) {
	store := openTestStore(t)
	bus := feed.NewBus(16)
	t.Cleanup(bus.Close)

	ch, stop := bus.SubscribeChan(16, remote.EntityTasks)
	defer stop()

	created, err := store.CreateTask(model.Task{Title: "long done", Timeframe: model.TimeframeBacklog})
	if err != nil {
		t.Fatal(err)
	}
	doneAt := time.Now().UTC().Add(-100 * time.Hour)
	created.Completed = true
	created.CompletedAt = &doneAt
	if _, err := store.UpdateTask(created); err != nil {
		t.Fatal(err)
	}

	sweeper, err := NewSweeper(store, bus, "0 4 * * *", 72*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	sweeper.sweep()

	select {
	case c := <-ch:
		if c.Op != remote.OpDelete {
			t.Errorf("change op = %s, want delete", c.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delete notification from the sweep")
	}

	if _, err := store.GetTask(created.ID); err != ErrNoRecord {
		t.Errorf("task still present after sweep: err = %v", err)
	}
}

func TestNewSweeper_BadSchedule(t *testing.T) {
	store := openTestStore(t)
	bus := feed.NewBus(16)
	t.Cleanup(bus.Close)

	if _, err := NewSweeper(store, bus, "not a schedule", time.Hour); err == nil {
		t.Fatal("expected an error for a malformed schedule")
	}
}
