package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"horizons/internal/feed"
	"horizons/internal/model"
	"horizons/internal/remote"
)

// Server is the horizons authority HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *Hub
	bus        *feed.Bus
	store      *Store
	host       string
	port       int
}

// NewServer wires the store, changefeed bus, and WebSocket hub behind a
// chi router. apiKey, when non-empty, is required in the X-API-Key header
// of every request.
func NewServer(store *Store, bus *feed.Bus, host string, port int, apiKey string) *Server {
	hub := NewHub(bus)

	s := &Server{
		hub:   hub,
		bus:   bus,
		store: store,
		host:  host,
		port:  port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	if apiKey != "" {
		r.Use(requireAPIKey(apiKey))
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/changes", s.handleChanges)

	r.Route("/api/horizons", func(r chi.Router) {
		r.Get("/", s.handleListHorizons)
		r.Post("/", s.handleCreateHorizon)
		r.Put("/{id}", s.handleUpdateHorizon)
		r.Delete("/{id}", s.handleDeleteHorizon)
	})
	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Put("/{id}", s.handleUpdateTask)
		r.Delete("/{id}", s.handleDeleteTask)
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("horizons authority listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != key {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.bus.History(limit))
}

func (s *Server) handleListHorizons(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "1"
	list, err := s.store.ListHorizons(activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []model.Horizon{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateHorizon(w http.ResponseWriter, r *http.Request) {
	var h model.Horizon
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if h.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := s.store.CreateHorizon(h)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publish(remote.OpInsert, remote.EntityHorizons, created)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateHorizon(w http.ResponseWriter, r *http.Request) {
	var h model.Horizon
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.ID = chi.URLParam(r, "id")

	updated, err := s.store.UpdateHorizon(h)
	if errors.Is(err, ErrNoRecord) {
		writeError(w, http.StatusNotFound, "no such horizon")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publish(remote.OpUpdate, remote.EntityHorizons, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteHorizon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.store.DeleteHorizon(id)
	if errors.Is(err, ErrNoRecord) {
		writeError(w, http.StatusNotFound, "no such horizon")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publish(remote.OpDelete, remote.EntityHorizons, model.Horizon{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	list, err := s.store.ListTasks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []model.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if t.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if len(t.Title) > model.MaxTitleLen {
		writeError(w, http.StatusBadRequest, "title too long (max 10,000 characters)")
		return
	}

	created, err := s.store.CreateTask(t)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publish(remote.OpInsert, remote.EntityTasks, created)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t.ID = chi.URLParam(r, "id")
	if len(t.Title) > model.MaxTitleLen {
		writeError(w, http.StatusBadRequest, "title too long (max 10,000 characters)")
		return
	}

	updated, err := s.store.UpdateTask(t)
	if errors.Is(err, ErrNoRecord) {
		writeError(w, http.StatusNotFound, "no such task")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publish(remote.OpUpdate, remote.EntityTasks, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.store.DeleteTask(id)
	if errors.Is(err, ErrNoRecord) {
		writeError(w, http.StatusNotFound, "no such task")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publish(remote.OpDelete, remote.EntityTasks, model.Task{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// publish pushes a committed mutation onto the changefeed.
func (s *Server) publish(op remote.Op, entity remote.Entity, record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("marshal changefeed record", "entity", entity, "error", err)
		return
	}
	s.bus.Publish(feed.NewChange(remote.Notification{Op: op, Entity: entity, Record: data}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
