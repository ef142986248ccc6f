package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"horizons/internal/model"
	"horizons/internal/remote"
)

var testNow = time.Date(2025, 3, 12, 15, 30, 0, 0, time.Local)

// fakeAPI is an in-memory authority. Failure flags make the next call of
// that kind fail, for exercising rollback paths.
type fakeAPI struct {
	mu  sync.Mutex
	seq int

	horizons []model.Horizon
	tasks    []model.Task

	failCreateTask    bool
	failUpdateTask    bool
	failDeleteTask    bool
	failCreateHorizon bool
	failUpdateHorizon bool

	// When set, update calls block on it before answering, letting a test
	// observe the optimistic state before the persist settles.
	updateGate chan struct{}

	// When set, create calls record the authoritative record and then
	// block on it before answering, letting a test act between the server
	// commit and the confirmation.
	createGate chan struct{}

	deletedTasks []string
}

func (f *fakeAPI) nextID() string {
	f.seq++
	return fmt.Sprintf("srv-%d", f.seq)
}

func (f *fakeAPI) ListHorizons(context.Context) ([]model.Horizon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Horizon(nil), f.horizons...), nil
}

func (f *fakeAPI) CreateHorizon(_ context.Context, h model.Horizon) (model.Horizon, error) {
	f.mu.Lock()
	if f.failCreateHorizon {
		f.mu.Unlock()
		return model.Horizon{}, errors.New("authority down")
	}
	h.ID = f.nextID()
	f.horizons = append(f.horizons, h)
	f.mu.Unlock()
	if f.createGate != nil {
		<-f.createGate
	}
	return h, nil
}

func (f *fakeAPI) UpdateHorizon(_ context.Context, h model.Horizon) (model.Horizon, error) {
	if f.updateGate != nil {
		<-f.updateGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateHorizon {
		return model.Horizon{}, errors.New("authority down")
	}
	return h, nil
}

func (f *fakeAPI) DeleteHorizon(context.Context, string) error { return nil }

func (f *fakeAPI) ListTasks(context.Context) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Task(nil), f.tasks...), nil
}

func (f *fakeAPI) CreateTask(_ context.Context, t model.Task) (model.Task, error) {
	f.mu.Lock()
	if f.failCreateTask {
		f.mu.Unlock()
		return model.Task{}, errors.New("authority down")
	}
	t.ID = f.nextID()
	f.tasks = append(f.tasks, t)
	f.mu.Unlock()
	if f.createGate != nil {
		<-f.createGate
	}
	return t, nil
}

func (f *fakeAPI) UpdateTask(_ context.Context, t model.Task) (model.Task, error) {
	if f.updateGate != nil {
		<-f.updateGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateTask {
		return model.Task{}, errors.New("authority down")
	}
	return t, nil
}

func (f *fakeAPI) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeleteTask {
		return errors.New("authority down")
	}
	f.deletedTasks = append(f.deletedTasks, id)
	return nil
}

var _ remote.API = (*fakeAPI)(nil)

func newTestStore(t *testing.T, api *fakeAPI) *Store {
	t.Helper()
	s := New(Options{API: api, Now: func() time.Time { return testNow }})
	t.Cleanup(s.Close)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

// waitEvent receives the next store event, failing the test on timeout.
func waitEvent(t *testing.T, s *Store) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a store event")
		return Event{}
	}
}

func TestCreateTask_ConfirmSwapsProvisionalInPlace(t *testing.T) {
	api := &fakeAPI{horizons: []model.Horizon{{ID: "h1", Name: "Home Systems", Active: true}}}
	s := newTestStore(t, api)

	task, err := s.CreateTask(context.Background(), "#home buy filters tomorrow")
	if err != nil {
		t.Fatal(err)
	}
	if !model.IsProvisionalID(task.ID) {
		t.Errorf("returned id %q is not provisional", task.ID)
	}
	if task.Title != "buy filters" {
		t.Errorf("title = %q, want %q", task.Title, "buy filters")
	}
	if task.HorizonID != "h1" {
		t.Errorf("horizon = %q, want h1", task.HorizonID)
	}
	if task.DueDate == nil {
		t.Fatal("expected a due date")
	}

	ev := waitEvent(t, s)
	if ev.Kind != KindConfirmed || ev.Entity != remote.EntityTasks {
		t.Fatalf("event = %+v, want task confirmation", ev)
	}

	list := s.Tasks()
	if len(list) != 1 {
		t.Fatalf("got %d tasks, want 1", len(list))
	}
	if list[0].ID != ev.ID || model.IsProvisionalID(list[0].ID) {
		t.Errorf("task id = %q, want authoritative %q", list[0].ID, ev.ID)
	}

	// The provisional id keeps working after the swap.
	got, ok := s.Task(task.ID)
	if !ok || got.ID != ev.ID {
		t.Errorf("Task(provisional) = (%+v, %v), want the confirmed record", got, ok)
	}
}

func TestCreateTask_FailureLeavesNoResidual(t *testing.T) {
	api := &fakeAPI{failCreateTask: true}
	s := newTestStore(t, api)

	task, err := s.CreateTask(context.Background(), "doomed capture")
	if err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, s)
	if ev.Kind != KindRolledBack || ev.ID != task.ID {
		t.Fatalf("event = %+v, want rollback of %s", ev, task.ID)
	}
	var terr *TransportError
	if !errors.As(ev.Err, &terr) {
		t.Errorf("event error = %v, want a TransportError", ev.Err)
	}

	if got := s.Tasks(); len(got) != 0 {
		t.Errorf("got %d tasks after rollback, want 0", len(got))
	}
}

func TestCreateTask_Validation(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})

	var verr *ValidationError
	if _, err := s.CreateTask(context.Background(), "   "); !errors.As(err, &verr) {
		t.Errorf("blank capture: err = %v, want ValidationError", err)
	}

	long := make([]byte, model.MaxTitleLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := s.CreateTask(context.Background(), string(long)); !errors.As(err, &verr) {
		t.Errorf("oversized capture: err = %v, want ValidationError", err)
	}
}

func TestUpdateTask_RollbackRestoresSnapshot(t *testing.T) {
	api := &fakeAPI{failUpdateTask: true, updateGate: make(chan struct{})}
	s := newTestStore(t, api)

	created, _ := s.CreateTask(context.Background(), "original title")
	waitEvent(t, s) // confirmation

	before := s.Tasks()

	title := "changed title"
	if err := s.UpdateTask(context.Background(), created.ID, TaskPatch{Title: &title}); err != nil {
		t.Fatal(err)
	}

	// Optimistic change is visible while the persist is still in flight.
	if got, _ := s.Task(created.ID); got.Title != "changed title" {
		t.Errorf("optimistic title = %q, want %q", got.Title, "changed title")
	}
	close(api.updateGate)

	ev := waitEvent(t, s)
	if ev.Kind != KindRolledBack {
		t.Fatalf("event = %+v, want rollback", ev)
	}

	after := s.Tasks()
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("collection after rollback = %+v, want snapshot %+v", after, before)
	}
}

func TestUpdateTask_UnknownID(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})
	title := "x"
	if err := s.UpdateTask(context.Background(), "nope", TaskPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestToggleComplete_CompletedAtInvariant(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})

	created, _ := s.CreateTask(context.Background(), "flip me")
	waitEvent(t, s)

	if err := s.ToggleComplete(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Task(created.ID)
	if !got.Completed || got.CompletedAt == nil || !got.CompletedAt.Equal(testNow) {
		t.Errorf("after toggle on: completed=%v completedAt=%v", got.Completed, got.CompletedAt)
	}

	if err := s.ToggleComplete(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Task(created.ID)
	if got.Completed || got.CompletedAt != nil {
		t.Errorf("after toggle off: completed=%v completedAt=%v", got.Completed, got.CompletedAt)
	}
}

func TestUpdateTask_DueDateRecomputesTimeframe(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})

	created, _ := s.CreateTask(context.Background(), "no date yet")
	waitEvent(t, s)
	if created.Timeframe != model.TimeframeBacklog {
		t.Fatalf("capture without date = %s, want backlog", created.Timeframe)
	}

	due := time.Date(2025, 3, 12, 23, 59, 59, 0, time.Local)
	week := model.TimeframeWeek // should be overridden by the derived value
	if err := s.UpdateTask(context.Background(), created.ID, TaskPatch{DueDate: &due, Timeframe: &week}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Task(created.ID)
	if got.Timeframe != model.TimeframeToday {
		t.Errorf("timeframe = %s, want today (derived from due date)", got.Timeframe)
	}

	if err := s.UpdateTask(context.Background(), created.ID, TaskPatch{ClearDueDate: true}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Task(created.ID)
	if got.DueDate != nil || got.Timeframe != model.TimeframeBacklog {
		t.Errorf("after clear: due=%v timeframe=%s, want nil/backlog", got.DueDate, got.Timeframe)
	}
}

func TestDeleteTask_RemoteFailureDoesNotResurrect(t *testing.T) {
	api := &fakeAPI{failDeleteTask: true}
	s := newTestStore(t, api)

	created, _ := s.CreateTask(context.Background(), "dismiss me")
	waitEvent(t, s)

	if err := s.DeleteTask(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, s)
	if ev.Kind != KindError {
		t.Fatalf("event = %+v, want KindError", ev)
	}
	if got := s.Tasks(); len(got) != 0 {
		t.Errorf("got %d tasks, want 0: a failed remote delete must not resurrect", len(got))
	}
}

func TestAddHorizon_ConfirmKeepsActiveSelection(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})

	h, err := s.AddHorizon(context.Background(), "Deep Work")
	if err != nil {
		t.Fatal(err)
	}
	if !model.IsProvisionalID(h.ID) {
		t.Errorf("id %q is not provisional", h.ID)
	}

	ev := waitEvent(t, s)
	if ev.Kind != KindConfirmed || ev.Entity != remote.EntityHorizons {
		t.Fatalf("event = %+v, want horizon confirmation", ev)
	}

	active, ok := s.ActiveHorizon()
	if !ok || active.ID != ev.ID {
		t.Errorf("active = (%+v, %v), want the confirmed horizon", active, ok)
	}
}

func TestArchiveHorizon_RollbackRestoresActive(t *testing.T) {
	api := &fakeAPI{
		horizons: []model.Horizon{
			{ID: "h1", Name: "First", Active: true},
			{ID: "h2", Name: "Second", Active: true},
		},
		failUpdateHorizon: true,
		updateGate:        make(chan struct{}),
	}
	s := newTestStore(t, api)

	if err := s.ArchiveHorizon(context.Background(), "h1"); err != nil {
		t.Fatal(err)
	}

	// Optimistically gone, active moved on.
	if active, _ := s.ActiveHorizon(); active.ID != "h2" {
		t.Errorf("active after archive = %s, want h2", active.ID)
	}
	close(api.updateGate)

	ev := waitEvent(t, s)
	if ev.Kind != KindRolledBack {
		t.Fatalf("event = %+v, want rollback", ev)
	}

	if got := s.Horizons(); len(got) != 2 {
		t.Errorf("got %d horizons after rollback, want 2", len(got))
	}
	if active, _ := s.ActiveHorizon(); active.ID != "h1" {
		t.Errorf("active after rollback = %s, want h1", active.ID)
	}
}

func TestLoad_DropsStaleCompletedTasks(t *testing.T) {
	old := testNow.Add(-25 * time.Hour)
	recent := testNow.Add(-1 * time.Hour)
	api := &fakeAPI{tasks: []model.Task{
		{ID: "t1", Title: "stale", Completed: true, CompletedAt: &old},
		{ID: "t2", Title: "fresh", Completed: true, CompletedAt: &recent},
		{ID: "t3", Title: "open"},
	}}
	s := newTestStore(t, api)

	list := s.Tasks()
	if len(list) != 2 {
		t.Fatalf("got %d tasks, want 2", len(list))
	}
	for _, task := range list {
		if task.ID == "t1" {
			t.Error("stale completed task survived Load")
		}
	}
}

func TestSetActiveHorizon(t *testing.T) {
	api := &fakeAPI{horizons: []model.Horizon{{ID: "h1"}, {ID: "h2"}}}
	s := newTestStore(t, api)

	if err := s.SetActiveHorizon("h2"); err != nil {
		t.Fatal(err)
	}
	if active, _ := s.ActiveHorizon(); active.ID != "h2" {
		t.Errorf("active = %s, want h2", active.ID)
	}
	if err := s.SetActiveHorizon("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// awaitServerTask polls until the fake authority has committed a task,
// which happens before a gated create call answers.
func awaitServerTask(t *testing.T, api *fakeAPI) model.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if list, _ := api.ListTasks(context.Background()); len(list) > 0 {
			return list[len(list)-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the server-side task")
	return model.Task{}
}

func awaitServerHorizon(t *testing.T, api *fakeAPI) model.Horizon {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if list, _ := api.ListHorizons(context.Background()); len(list) > 0 {
			return list[len(list)-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the server-side horizon")
	return model.Horizon{}
}

func TestCreateTask_StreamEchoBeforeConfirm(t *testing.T) {
	api := &fakeAPI{createGate: make(chan struct{})}
	s := newTestStore(t, api)

	prov, err := s.CreateTask(context.Background(), "buy filters")
	if err != nil {
		t.Fatal(err)
	}

	// The server has committed but the create response is still held back;
	// deliver the changefeed echo of the insert first.
	created := awaitServerTask(t, api)
	s.Apply(taskNote(t, remote.OpInsert, created))
	if ev := waitEvent(t, s); ev.Kind != KindRemote {
		t.Fatalf("event = %+v, want a remote merge", ev)
	}

	close(api.createGate)
	if ev := waitEvent(t, s); ev.Kind != KindConfirmed || ev.ID != created.ID {
		t.Fatalf("event = %+v, want confirmation of %s", ev, created.ID)
	}

	list := s.Tasks()
	if len(list) != 1 {
		t.Fatalf("got %d tasks after echo and confirmation, want 1", len(list))
	}
	if list[0].ID != created.ID {
		t.Errorf("task id = %q, want %q", list[0].ID, created.ID)
	}
	if got, ok := s.Task(prov.ID); !ok || got.ID != created.ID {
		t.Errorf("Task(provisional) = (%+v, %v), want the confirmed record", got, ok)
	}
}

func TestAddHorizon_StreamEchoBeforeConfirm(t *testing.T) {
	api := &fakeAPI{createGate: make(chan struct{})}
	s := newTestStore(t, api)

	if _, err := s.AddHorizon(context.Background(), "Garden"); err != nil {
		t.Fatal(err)
	}

	created := awaitServerHorizon(t, api)
	s.Apply(horizonNote(t, remote.OpInsert, created))
	if ev := waitEvent(t, s); ev.Kind != KindRemote {
		t.Fatalf("event = %+v, want a remote merge", ev)
	}

	close(api.createGate)
	if ev := waitEvent(t, s); ev.Kind != KindConfirmed || ev.ID != created.ID {
		t.Fatalf("event = %+v, want confirmation of %s", ev, created.ID)
	}

	list := s.Horizons()
	if len(list) != 1 {
		t.Fatalf("got %d horizons after echo and confirmation, want 1", len(list))
	}
	if active, _ := s.ActiveHorizon(); active.ID != created.ID {
		t.Errorf("active = %q, want %q", active.ID, created.ID)
	}
}

func TestCreateTask_EmptyParsedTitle(t *testing.T) {
	api := &fakeAPI{horizons: []model.Horizon{{ID: "h1", Name: "Home Systems", Active: true}}}
	s := newTestStore(t, api)

	// Reference and date span strip down to an empty title.
	_, err := s.CreateTask(context.Background(), "#home tomorrow")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want a ValidationError", err)
	}
	if got := s.Tasks(); len(got) != 0 {
		t.Errorf("got %d tasks, want 0", len(got))
	}
}

func TestDeleteTask_BeforeCreateConfirms(t *testing.T) {
	api := &fakeAPI{createGate: make(chan struct{})}
	s := newTestStore(t, api)

	prov, err := s.CreateTask(context.Background(), "fleeting thought")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteTask(context.Background(), prov.ID); err != nil {
		t.Fatal(err)
	}
	if got := s.Tasks(); len(got) != 0 {
		t.Fatalf("got %d tasks after delete, want 0", len(got))
	}

	// Once the create confirms, the deferred delete goes out with the
	// authoritative id instead of the provisional one.
	close(api.createGate)
	s.Close()

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.deletedTasks) != 1 || api.deletedTasks[0] != "srv-1" {
		t.Errorf("remote deletes = %v, want [srv-1]", api.deletedTasks)
	}
}
