// Package server implements the reference remote authority: a SQLite-backed
// record store, a REST API, a WebSocket changefeed, and a scheduled
// retention sweep.
package server

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"horizons/internal/model"
)

// ErrNoRecord is returned when an id does not exist.
var ErrNoRecord = errors.New("no such record")

// Store persists horizons and tasks in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, err
	}
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS horizons (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '#38b5b5',
	is_active INTEGER NOT NULL DEFAULT 1,
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	horizon_id TEXT NOT NULL,
	title TEXT NOT NULL,
	timeframe TEXT NOT NULL DEFAULT 'backlog',
	due_date TEXT DEFAULT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	completed_at TEXT DEFAULT NULL,
	notes TEXT DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`
	_, err := s.db.Exec(ddl)
	return err
}

// ListHorizons returns horizons ordered by sort position, optionally only
// active ones.
func (s *Store) ListHorizons(activeOnly bool) ([]model.Horizon, error) {
	q := `SELECT id, name, color, is_active, sort_order, created_at, updated_at FROM horizons`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY sort_order, created_at;`

	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Horizon
	for rows.Next() {
		h, err := scanHorizon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetHorizon returns one horizon by id.
func (s *Store) GetHorizon(id string) (model.Horizon, error) {
	row := s.db.QueryRow(`SELECT id, name, color, is_active, sort_order, created_at, updated_at FROM horizons WHERE id = ?;`, id)
	h, err := scanHorizon(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Horizon{}, ErrNoRecord
	}
	return h, err
}

// CreateHorizon inserts a horizon, assigning the authoritative id and
// timestamps. The caller's (possibly provisional) id is discarded.
func (s *Store) CreateHorizon(h model.Horizon) (model.Horizon, error) {
	now := time.Now().UTC()
	h.ID = model.NewID()
	h.CreatedAt = now
	h.UpdatedAt = now
	if h.Color == "" {
		h.Color = model.DefaultHorizonColor
	}

	_, err := s.db.Exec(
		`INSERT INTO horizons (id, name, color, is_active, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?);`,
		h.ID, h.Name, h.Color, boolInt(h.Active), h.SortOrder, timeStr(now), timeStr(now),
	)
	if err != nil {
		return model.Horizon{}, fmt.Errorf("insert horizon: %w", err)
	}
	return h, nil
}

// UpdateHorizon replaces a horizon record wholesale.
func (s *Store) UpdateHorizon(h model.Horizon) (model.Horizon, error) {
	h.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE horizons SET name = ?, color = ?, is_active = ?, sort_order = ?, updated_at = ? WHERE id = ?;`,
		h.Name, h.Color, boolInt(h.Active), h.SortOrder, timeStr(h.UpdatedAt), h.ID,
	)
	if err != nil {
		return model.Horizon{}, fmt.Errorf("update horizon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Horizon{}, ErrNoRecord
	}
	return s.GetHorizon(h.ID)
}

// DeleteHorizon removes a horizon by id.
func (s *Store) DeleteHorizon(id string) error {
	res, err := s.db.Exec(`DELETE FROM horizons WHERE id = ?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoRecord
	}
	return nil
}

// CountHorizons returns the number of horizon rows.
func (s *Store) CountHorizons() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM horizons;`).Scan(&n)
	return n, err
}

// ListTasks returns all tasks ordered by creation time.
func (s *Store) ListTasks() ([]model.Task, error) {
	rows, err := s.db.Query(`SELECT id, horizon_id, title, timeframe, due_date, completed, completed_at, notes, created_at, updated_at FROM tasks ORDER BY created_at, id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTask returns one task by id.
func (s *Store) GetTask(id string) (model.Task, error) {
	row := s.db.QueryRow(`SELECT id, horizon_id, title, timeframe, due_date, completed, completed_at, notes, created_at, updated_at FROM tasks WHERE id = ?;`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNoRecord
	}
	return t, err
}

// CreateTask inserts a task, assigning the authoritative id and timestamps.
func (s *Store) CreateTask(t model.Task) (model.Task, error) {
	now := time.Now().UTC()
	t.ID = model.NewID()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO tasks (id, horizon_id, title, timeframe, due_date, completed, completed_at, notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		t.ID, t.HorizonID, t.Title, string(t.Timeframe), nullTimeStr(t.DueDate), boolInt(t.Completed), nullTimeStr(t.CompletedAt), t.Notes, timeStr(now), timeStr(now),
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// UpdateTask replaces a task record wholesale.
func (s *Store) UpdateTask(t model.Task) (model.Task, error) {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE tasks SET horizon_id = ?, title = ?, timeframe = ?, due_date = ?, completed = ?, completed_at = ?, notes = ?, updated_at = ? WHERE id = ?;`,
		t.HorizonID, t.Title, string(t.Timeframe), nullTimeStr(t.DueDate), boolInt(t.Completed), nullTimeStr(t.CompletedAt), t.Notes, timeStr(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Task{}, ErrNoRecord
	}
	return s.GetTask(t.ID)
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoRecord
	}
	return nil
}

// PurgeCompletedBefore deletes tasks completed before cutoff and returns
// the purged records, so the sweep can publish delete notifications.
func (s *Store) PurgeCompletedBefore(cutoff time.Time) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT id, horizon_id, title, timeframe, due_date, completed, completed_at, notes, created_at, updated_at FROM tasks WHERE completed = 1 AND completed_at IS NOT NULL;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purged []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if t.CompletedAt == nil || !t.CompletedAt.Before(cutoff) {
			continue
		}
		purged = append(purged, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range purged {
		if _, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?;`, t.ID); err != nil {
			return nil, err
		}
	}
	return purged, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHorizon(row rowScanner) (model.Horizon, error) {
	var (
		h                    model.Horizon
		active               int
		createdStr, updatedStr string
	)
	if err := row.Scan(&h.ID, &h.Name, &h.Color, &active, &h.SortOrder, &createdStr, &updatedStr); err != nil {
		return model.Horizon{}, err
	}
	h.Active = active == 1
	h.CreatedAt = parseTime(createdStr)
	h.UpdatedAt = parseTime(updatedStr)
	return h, nil
}

func scanTask(row rowScanner) (model.Task, error) {
	var (
		t                    model.Task
		completed            int
		tf                   string
		dueStr, doneStr      sql.NullString
		createdStr, updatedStr string
	)
	if err := row.Scan(&t.ID, &t.HorizonID, &t.Title, &tf, &dueStr, &completed, &doneStr, &t.Notes, &createdStr, &updatedStr); err != nil {
		return model.Task{}, err
	}
	t.Timeframe = model.Timeframe(tf)
	t.Completed = completed == 1
	if dueStr.Valid {
		if parsed := parseTime(dueStr.String); !parsed.IsZero() {
			t.DueDate = &parsed
		}
	}
	if doneStr.Valid {
		if parsed := parseTime(doneStr.String); !parsed.IsZero() {
			t.CompletedAt = &parsed
		}
	}
	t.CreatedAt = parseTime(createdStr)
	t.UpdatedAt = parseTime(updatedStr)
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeStr(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTimeStr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeStr(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
