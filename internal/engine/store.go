// Package engine implements the natural-language capture and optimistic
// sync core: an in-memory horizon/task store with
// apply-then-confirm-or-rollback mutation semantics, fed concurrently by
// local commands and by the remote change stream.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"horizons/internal/model"
	"horizons/internal/parse"
	"horizons/internal/remote"
)

// DefaultRetentionAge is how long completed tasks stay visible across
// loads.
const DefaultRetentionAge = 24 * time.Hour

// Options configures a Store.
type Options struct {
	API          remote.API
	Now          func() time.Time // defaults to time.Now
	RetentionAge time.Duration    // defaults to DefaultRetentionAge
	EventBuffer  int              // defaults to 64
}

// Store owns the authoritative in-memory horizon and task collections.
//
// Every mutation and every inbound notification executes on a single
// command loop, so no operation ever observes a torn intermediate state.
// Persist calls run asynchronously and re-enqueue their commit or rollback
// step when the result arrives; in-flight calls are never cancelled.
type Store struct {
	api       remote.API
	now       func() time.Time
	retention time.Duration

	ops      chan func()
	quit     chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup
	closing  sync.Once

	horizons collection[model.Horizon]
	tasks    collection[model.Task]
	activeID string

	// confirmed maps provisional ids to the authoritative ids they became
	// at persist-confirmation time, so callers holding a provisional id can
	// keep mutating the record after the swap.
	confirmed map[string]string

	// pendingDelete holds provisional ids deleted while their create
	// persist was still in flight. The remote delete has to wait for the
	// confirmation to learn the authoritative id.
	pendingDelete map[string]bool

	events chan Event
}

// EventKind classifies store events.
type EventKind string

const (
	// KindConfirmed: an optimistic create was acknowledged and the
	// provisional record swapped for the authoritative one.
	KindConfirmed EventKind = "confirmed"
	// KindRolledBack: a persist call failed and the optimistic mutation was
	// reverted. Err carries the TransportError.
	KindRolledBack EventKind = "rolled_back"
	// KindRemote: a change notification was merged into the collections.
	KindRemote EventKind = "remote"
	// KindError: a persist call failed without a rollback (deletes). Err is
	// set.
	KindError EventKind = "error"
)

// Event reports a store state change that happened after the synchronous
// part of a mutation returned.
type Event struct {
	Kind   EventKind
	Entity remote.Entity
	ID     string
	Err    error
}

// New creates a Store and starts its command loop.
func New(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetentionAge <= 0 {
		opts.RetentionAge = DefaultRetentionAge
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}

	s := &Store{
		api:           opts.API,
		now:           opts.Now,
		retention:     opts.RetentionAge,
		ops:           make(chan func()),
		quit:          make(chan struct{}),
		loopDone:      make(chan struct{}),
		confirmed:     make(map[string]string),
		pendingDelete: make(map[string]bool),
		events:        make(chan Event, opts.EventBuffer),
	}
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.quit:
			return
		}
	}
}

// exec runs fn on the command loop and waits for it to finish.
func (s *Store) exec(fn func()) {
	done := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(done) }:
	case <-s.quit:
		return
	}
	select {
	case <-done:
	case <-s.quit:
	}
}

// persist runs the remote call off the loop and re-enqueues its settle step.
func (s *Store) persist(call func() error, settle func(err error)) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		err := call()
		s.exec(func() { settle(err) })
	}()
}

// Close waits for in-flight persist calls to settle, then stops the loop.
func (s *Store) Close() {
	s.closing.Do(func() {
		s.inflight.Wait()
		close(s.quit)
		<-s.loopDone
		close(s.events)
	})
}

// Events returns the channel of asynchronous store events. Events are
// dropped when the channel is full rather than blocking the loop. The
// channel closes once Close has drained all in-flight persists.
func (s *Store) Events() <-chan Event { return s.events }

func (s *Store) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// resolveID translates a provisional id into its authoritative id once the
// confirmation has landed. Unknown ids pass through unchanged.
func (s *Store) resolveID(id string) string {
	if auth, ok := s.confirmed[id]; ok {
		return auth
	}
	return id
}

// Load fetches both collections from the authority and installs them,
// dropping tasks completed more than the retention age ago. The filter runs
// only here; a task that crosses the threshold mid-session stays visible
// until the next Load.
func (s *Store) Load(ctx context.Context) error {
	horizons, err := s.api.ListHorizons(ctx)
	if err != nil {
		return &TransportError{Op: "load horizons", Err: err}
	}
	tasks, err := s.api.ListTasks(ctx)
	if err != nil {
		return &TransportError{Op: "load tasks", Err: err}
	}
	tasks = FilterStale(tasks, s.now(), s.retention)

	s.exec(func() {
		s.horizons.Restore(horizons)
		s.tasks.Restore(tasks)
		if _, ok := s.horizons.Get(s.activeID); !ok {
			s.activeID = ""
			if len(horizons) > 0 {
				s.activeID = horizons[0].ID
			}
		}
	})
	return nil
}

// Horizons returns the current horizon collection in order.
func (s *Store) Horizons() []model.Horizon {
	var out []model.Horizon
	s.exec(func() { out = s.horizons.All() })
	return out
}

// Tasks returns the current task collection in order.
func (s *Store) Tasks() []model.Task {
	var out []model.Task
	s.exec(func() { out = s.tasks.All() })
	return out
}

// Task returns one task by id, resolving provisional ids.
func (s *Store) Task(id string) (model.Task, bool) {
	var (
		t  model.Task
		ok bool
	)
	s.exec(func() { t, ok = s.tasks.Get(s.resolveID(id)) })
	return t, ok
}

// ActiveHorizon returns the horizon new captures default to.
func (s *Store) ActiveHorizon() (model.Horizon, bool) {
	var (
		h  model.Horizon
		ok bool
	)
	s.exec(func() { h, ok = s.horizons.Get(s.activeID) })
	return h, ok
}

// SetActiveHorizon changes the default destination for new captures.
func (s *Store) SetActiveHorizon(id string) error {
	err := ErrNotFound
	s.exec(func() {
		if _, ok := s.horizons.Get(id); ok {
			s.activeID = id
			err = nil
		}
	})
	return err
}

// TasksForHorizon returns the tasks owned by one horizon, in order.
func (s *Store) TasksForHorizon(horizonID string) []model.Task {
	var out []model.Task
	s.exec(func() {
		for _, t := range s.tasks.All() {
			if t.HorizonID == horizonID {
				out = append(out, t)
			}
		}
	})
	return out
}

// TasksByTimeframe returns one horizon's tasks in one scheduling bucket.
func (s *Store) TasksByTimeframe(horizonID string, tf model.Timeframe) []model.Task {
	var out []model.Task
	for _, t := range s.TasksForHorizon(horizonID) {
		if t.Timeframe == tf {
			out = append(out, t)
		}
	}
	return out
}

// TodayTasks returns every task bucketed as today, across horizons.
func (s *Store) TodayTasks() []model.Task {
	var out []model.Task
	s.exec(func() {
		for _, t := range s.tasks.All() {
			if t.Timeframe == model.TimeframeToday {
				out = append(out, t)
			}
		}
	})
	return out
}

// CreateTask captures free-form text as a new task: the text is parsed for
// a #horizon reference and a due date, the task is inserted optimistically
// under a provisional id and returned immediately, and the persist call
// runs in the background. On success the provisional record is swapped for
// the authoritative one in the same collection slot; on failure it is
// removed outright and a KindRolledBack event reports the error.
func (s *Store) CreateTask(ctx context.Context, text string) (model.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Task{}, &ValidationError{Field: "title", Reason: "empty"}
	}
	if len(text) > model.MaxTitleLen {
		return model.Task{}, &ValidationError{Field: "title", Reason: "exceeds 10000 characters"}
	}

	var (
		task model.Task
		verr error
	)
	s.exec(func() {
		now := s.now()
		c := parse.BuildCapture(now, text, s.horizons.All(), s.activeID)
		// A capture like "#home tomorrow" parses down to nothing once the
		// reference and the date span are stripped.
		if c.Title == "" {
			verr = &ValidationError{Field: "title", Reason: "empty after parsing"}
			return
		}
		task = model.Task{
			ID:        model.NewProvisionalID(),
			HorizonID: c.HorizonID,
			Title:     c.Title,
			Timeframe: c.Timeframe,
			DueDate:   c.DueDate,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.tasks.Append(task)
	})
	if verr != nil {
		return model.Task{}, verr
	}

	provID := task.ID
	persistCtx := context.WithoutCancel(ctx)
	var created model.Task
	s.persist(
		func() error {
			var err error
			created, err = s.api.CreateTask(persistCtx, task)
			return err
		},
		func(err error) {
			if err != nil {
				s.tasks.Remove(provID)
				delete(s.pendingDelete, provID)
				terr := &TransportError{Op: "create task", Err: err}
				slog.Warn("task create failed, removing provisional record", "id", provID, "error", err)
				s.publish(Event{Kind: KindRolledBack, Entity: remote.EntityTasks, ID: provID, Err: terr})
				return
			}
			s.confirmed[provID] = created.ID
			if s.pendingDelete[provID] {
				// The task was deleted while the create was in flight. The
				// record is already gone locally; chase the authoritative
				// copy, which the stream may meanwhile have echoed back.
				delete(s.pendingDelete, provID)
				s.tasks.Remove(created.ID)
				s.deleteTaskRemote(context.Background(), created.ID)
				return
			}
			if _, ok := s.tasks.Get(created.ID); ok {
				// The stream echoed this insert before the confirmation
				// landed; the authoritative record is already in place.
				s.tasks.Remove(provID)
			} else {
				s.tasks.Replace(provID, created)
			}
			s.publish(Event{Kind: KindConfirmed, Entity: remote.EntityTasks, ID: created.ID})
		},
	)
	return task, nil
}

// TaskPatch describes a partial task update. Nil fields are left untouched.
// Setting or clearing the due date recomputes the timeframe in the same
// mutation, overriding any Timeframe supplied alongside it.
type TaskPatch struct {
	Title        *string
	Notes        *string
	HorizonID    *string
	Timeframe    *model.Timeframe
	DueDate      *time.Time
	ClearDueDate bool
	Toggle       bool // flip completed, setting or clearing completedAt
}

// UpdateTask applies a partial update optimistically and persists it in the
// background. The whole task collection is snapshotted first; a failed
// persist restores that snapshot wholesale and reports a KindRolledBack
// event.
func (s *Store) UpdateTask(ctx context.Context, id string, patch TaskPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return &ValidationError{Field: "title", Reason: "empty"}
		}
		if len(title) > model.MaxTitleLen {
			return &ValidationError{Field: "title", Reason: "exceeds 10000 characters"}
		}
		patch.Title = &title
	}

	var (
		updated model.Task
		snap    []model.Task
		found   bool
	)
	s.exec(func() {
		rid := s.resolveID(id)
		cur, ok := s.tasks.Get(rid)
		if !ok {
			return
		}
		found = true
		snap = s.tasks.Snapshot()
		updated = s.mergeTask(cur, patch)
		s.tasks.Replace(rid, updated)
	})
	if !found {
		return ErrNotFound
	}

	persistCtx := context.WithoutCancel(ctx)
	s.persist(
		func() error {
			_, err := s.api.UpdateTask(persistCtx, updated)
			return err
		},
		func(err error) {
			if err == nil {
				return
			}
			s.tasks.Restore(snap)
			terr := &TransportError{Op: "update task", Err: err}
			slog.Warn("task update failed, restoring snapshot", "id", updated.ID, "error", err)
			s.publish(Event{Kind: KindRolledBack, Entity: remote.EntityTasks, ID: updated.ID, Err: terr})
		},
	)
	return nil
}

// mergeTask applies a patch to a task, enforcing the completed/completedAt
// and dueDate/timeframe invariants. Runs on the command loop.
func (s *Store) mergeTask(cur model.Task, patch TaskPatch) model.Task {
	now := s.now()
	next := cur

	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Notes != nil {
		next.Notes = *patch.Notes
	}
	if patch.HorizonID != nil {
		next.HorizonID = *patch.HorizonID
	}
	if patch.Timeframe != nil {
		next.Timeframe = *patch.Timeframe
	}
	if patch.DueDate != nil || patch.ClearDueDate {
		next.DueDate = patch.DueDate
		if patch.ClearDueDate {
			next.DueDate = nil
		}
		// Derived field: a due date change always wins over a supplied
		// timeframe.
		next.Timeframe = parse.Classify(next.DueDate, now)
	}
	if patch.Toggle {
		next.Completed = !cur.Completed
		if next.Completed {
			done := now
			next.CompletedAt = &done
		} else {
			next.CompletedAt = nil
		}
	}

	next.UpdatedAt = now
	return next
}

// ToggleComplete flips a task's completed flag, setting or clearing
// completedAt atomically in a single update.
func (s *Store) ToggleComplete(ctx context.Context, id string) error {
	return s.UpdateTask(ctx, id, TaskPatch{Toggle: true})
}

// DeleteTask removes a task immediately and issues the remote delete in the
// background. A failed remote delete is reported as a KindError event but
// the record is never restored. Deleting a task whose create persist has not
// confirmed yet removes it locally and defers the remote delete until the
// confirmation supplies the authoritative id.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	var (
		rid      string
		found    bool
		deferred bool
	)
	s.exec(func() {
		rid = s.resolveID(id)
		found = s.tasks.Remove(rid)
		if found && model.IsProvisionalID(rid) {
			s.pendingDelete[rid] = true
			deferred = true
		}
	})
	if !found {
		return ErrNotFound
	}
	if deferred {
		return nil
	}

	s.deleteTaskRemote(context.WithoutCancel(ctx), rid)
	return nil
}

// deleteTaskRemote issues the background delete for a task already removed
// from the collection.
func (s *Store) deleteTaskRemote(ctx context.Context, id string) {
	s.persist(
		func() error { return s.api.DeleteTask(ctx, id) },
		func(err error) {
			if err == nil {
				return
			}
			terr := &TransportError{Op: "delete task", Err: err}
			slog.Warn("task delete failed remotely, record stays removed", "id", id, "error", err)
			s.publish(Event{Kind: KindError, Entity: remote.EntityTasks, ID: id, Err: terr})
		},
	)
}

// AddHorizon creates a horizon optimistically, following the same
// provisional-id protocol as task creation.
func (s *Store) AddHorizon(ctx context.Context, name string) (model.Horizon, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Horizon{}, &ValidationError{Field: "name", Reason: "empty"}
	}

	var h model.Horizon
	s.exec(func() {
		now := s.now()
		h = model.Horizon{
			ID:        model.NewProvisionalID(),
			Name:      name,
			Color:     model.DefaultHorizonColor,
			Active:    true,
			SortOrder: s.horizons.Len(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.horizons.Append(h)
		if s.activeID == "" {
			s.activeID = h.ID
		}
	})

	provID := h.ID
	persistCtx := context.WithoutCancel(ctx)
	var created model.Horizon
	s.persist(
		func() error {
			var err error
			created, err = s.api.CreateHorizon(persistCtx, h)
			return err
		},
		func(err error) {
			if err != nil {
				s.horizons.Remove(provID)
				if s.activeID == provID {
					s.activeID = ""
					if all := s.horizons.All(); len(all) > 0 {
						s.activeID = all[0].ID
					}
				}
				terr := &TransportError{Op: "create horizon", Err: err}
				slog.Warn("horizon create failed, removing provisional record", "id", provID, "error", err)
				s.publish(Event{Kind: KindRolledBack, Entity: remote.EntityHorizons, ID: provID, Err: terr})
				return
			}
			s.confirmed[provID] = created.ID
			if _, ok := s.horizons.Get(created.ID); ok {
				// The stream echoed this insert before the confirmation
				// landed; the authoritative record is already in place.
				s.horizons.Remove(provID)
			} else {
				s.horizons.Replace(provID, created)
			}
			if s.activeID == provID {
				s.activeID = created.ID
			}
			s.publish(Event{Kind: KindConfirmed, Entity: remote.EntityHorizons, ID: created.ID})
		},
	)
	return h, nil
}

// HorizonPatch describes a partial horizon update.
type HorizonPatch struct {
	Name      *string
	Color     *string
	SortOrder *int
}

// UpdateHorizon applies a partial update optimistically with snapshot
// rollback, mirroring UpdateTask.
func (s *Store) UpdateHorizon(ctx context.Context, id string, patch HorizonPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return &ValidationError{Field: "name", Reason: "empty"}
		}
		patch.Name = &name
	}

	var (
		updated model.Horizon
		snap    []model.Horizon
		found   bool
	)
	s.exec(func() {
		rid := s.resolveID(id)
		cur, ok := s.horizons.Get(rid)
		if !ok {
			return
		}
		found = true
		snap = s.horizons.Snapshot()
		updated = cur
		if patch.Name != nil {
			updated.Name = *patch.Name
		}
		if patch.Color != nil {
			updated.Color = *patch.Color
		}
		if patch.SortOrder != nil {
			updated.SortOrder = *patch.SortOrder
		}
		updated.UpdatedAt = s.now()
		s.horizons.Replace(rid, updated)
	})
	if !found {
		return ErrNotFound
	}

	persistCtx := context.WithoutCancel(ctx)
	s.persist(
		func() error {
			_, err := s.api.UpdateHorizon(persistCtx, updated)
			return err
		},
		func(err error) {
			if err == nil {
				return
			}
			s.horizons.Restore(snap)
			terr := &TransportError{Op: "update horizon", Err: err}
			slog.Warn("horizon update failed, restoring snapshot", "id", updated.ID, "error", err)
			s.publish(Event{Kind: KindRolledBack, Entity: remote.EntityHorizons, ID: updated.ID, Err: terr})
		},
	)
	return nil
}

// ArchiveHorizon deactivates a horizon and drops it from the visible
// collection. Its tasks stay: they become orphaned-but-visible, never
// deleted. A failed persist restores the horizon (and the active selection)
// wholesale.
func (s *Store) ArchiveHorizon(ctx context.Context, id string) error {
	var (
		archived   model.Horizon
		snap       []model.Horizon
		prevActive string
		found      bool
	)
	s.exec(func() {
		rid := s.resolveID(id)
		cur, ok := s.horizons.Get(rid)
		if !ok {
			return
		}
		found = true
		snap = s.horizons.Snapshot()
		prevActive = s.activeID
		archived = cur
		archived.Active = false
		archived.UpdatedAt = s.now()
		s.horizons.Remove(rid)
		if s.activeID == rid {
			s.activeID = ""
			if all := s.horizons.All(); len(all) > 0 {
				s.activeID = all[0].ID
			}
		}
	})
	if !found {
		return ErrNotFound
	}

	persistCtx := context.WithoutCancel(ctx)
	s.persist(
		func() error {
			_, err := s.api.UpdateHorizon(persistCtx, archived)
			return err
		},
		func(err error) {
			if err == nil {
				return
			}
			s.horizons.Restore(snap)
			s.activeID = prevActive
			terr := &TransportError{Op: "archive horizon", Err: err}
			slog.Warn("horizon archive failed, restoring snapshot", "id", archived.ID, "error", err)
			s.publish(Event{Kind: KindRolledBack, Entity: remote.EntityHorizons, ID: archived.ID, Err: terr})
		},
	)
	return nil
}
