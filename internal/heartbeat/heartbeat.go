// Package heartbeat tracks liveness of the horizons authority process
// through a small JSON file, for when the HTTP health endpoint cannot be
// reached (wrong port, firewall, hung listener).
package heartbeat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Status is the liveness state of the authority process.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// Beat is one stamp of the liveness file. Addr and DBPath identify which
// authority instance wrote it when several roots are in play.
type Beat struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	DBPath    string    `json:"db_path"`
	StartedAt time.Time `json:"started_at"`
	BeatAt    time.Time `json:"beat_at"`
}

// Uptime is how long the process behind b has been running.
func (b *Beat) Uptime() time.Duration {
	return time.Since(b.StartedAt)
}

const stampInterval = 30 * time.Second

// Writer stamps the beat file on an interval until stopped. A Writer is
// single-use: Start once, Stop once.
type Writer struct {
	path string
	beat Beat

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWriter creates a writer for the authority listening on addr and
// backed by the database at dbPath.
func NewWriter(path, addr, dbPath string) *Writer {
	return &Writer{
		path: path,
		beat: Beat{PID: os.Getpid(), Addr: addr, DBPath: dbPath},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start stamps the file immediately, then keeps re-stamping it every 30
// seconds in a background goroutine.
func (w *Writer) Start() {
	w.beat.StartedAt = time.Now()
	w.stamp()

	go func() {
		defer close(w.done)
		t := time.NewTicker(stampInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				w.stamp()
			case <-w.stop:
				return
			}
		}
	}()
}

// Stop ends the stamping and removes the beat file, so a later Check
// reports the process as not running rather than stale.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		os.Remove(w.path)
	})
}

// stamp writes via tmp+rename so a concurrent Check never reads a torn
// file.
func (w *Writer) stamp() {
	b := w.beat
	b.BeatAt = time.Now()

	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("heartbeat write failed", "path", w.path, "error", err)
		return
	}
	if err := os.Rename(tmp, w.path); err != nil {
		slog.Warn("heartbeat write failed", "path", w.path, "error", err)
	}
}

// Check classifies the process behind the beat file at path. A beat older
// than maxAge means the process stopped stamping without cleaning up; a
// missing file means it is not running at all.
func Check(path string, maxAge time.Duration) (Status, *Beat, error) {
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return StatusDead, nil, nil
	case err != nil:
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var b Beat
	if err := json.Unmarshal(data, &b); err != nil {
		return StatusDead, nil, fmt.Errorf("decode heartbeat: %w", err)
	}

	if time.Since(b.BeatAt) > maxAge {
		return StatusStale, &b, nil
	}
	return StatusAlive, &b, nil
}
