// Package admin serves the HTTP control surface of the live monitor.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"surveyops/internal/backend"
	"surveyops/internal/clock"
	"surveyops/internal/monitor"
	"surveyops/internal/sim"
)

// Monitor is the controller surface the server exposes.
type Monitor interface {
	Refresh(ctx context.Context) error
	Select(ctx context.Context, missionID string) error
	Deselect(ctx context.Context) error
	ControlMission(ctx context.Context, missionID string, action backend.Action) (*backend.Mission, error)
	SimulateMission(ctx context.Context, missionID string) (string, error)
	Snapshot(ctx context.Context) (monitor.Snapshot, error)
	ClearProgress(ctx context.Context, missionID string) error
}

// Feed is the inspection surface of the progress feed. Its methods run on
// the event loop through Runner.
type Feed interface {
	Subscriptions() []string
	Cached(missionID string) (sim.CacheEntry, bool)
}

// Options configures a Server.
type Options struct {
	Monitor        Monitor
	Feed           Feed
	Runner         clock.Runner
	AllowedOrigins []string
	Logger         *slog.Logger
	// OnStatus is told when the listener starts and stops.
	OnStatus func(active bool)
}

// Server is the admin HTTP API.
type Server struct {
	mon      Monitor
	feed     Feed
	runner   clock.Runner
	log      *slog.Logger
	onStatus func(bool)
	tpl      *template.Template
	router   chi.Router
}

//go:embed templates/index.html
var content embed.FS

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Subscription describes a live generator run.
type Subscription struct {
	MissionID     string  `json:"missionId"`
	Progress      float64 `json:"progress"`
	WaypointIndex int     `json:"waypointIndex"`
	Cached        bool    `json:"cached"`
}

// NewServer builds the router.
func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"http://localhost:5173"}
	}
	s := &Server{
		mon:      o.Monitor,
		feed:     o.Feed,
		runner:   o.Runner,
		log:      o.Logger,
		onStatus: o.OnStatus,
		tpl:      template.Must(template.New("index.html").ParseFS(content, "templates/index.html")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/monitor", s.handleSnapshot)
		r.Post("/monitor/deselect", s.handleDeselect)
		r.Get("/subscriptions", s.handleSubscriptions)
		r.Get("/missions", s.handleMissions)
		r.Post("/missions/refresh", s.handleRefresh)
		r.Post("/missions/{id}/select", s.handleSelect)
		r.Post("/missions/{id}/simulate", s.handleSimulate)
		r.Post("/missions/{id}/{action}", s.handleControl)
		r.Delete("/missions/{id}/progress", s.handleClearProgress)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setStatus(true)
	defer s.setStatus(false)
	s.log.Info("admin API listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) setStatus(active bool) {
	if s.onStatus != nil {
		s.onStatus(active)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mon.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, snap); err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mon.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// missionView is a mission with its local feed state.
type missionView struct {
	backend.Mission
	Selected   bool `json:"selected"`
	Subscribed bool `json:"subscribed"`
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mon.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	subs, err := s.subscriptions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	live := make(map[string]bool, len(subs))
	for _, sub := range subs {
		live[sub.MissionID] = true
	}
	out := make([]missionView, 0, len(snap.Missions))
	for _, m := range snap.Missions {
		out = append(out, missionView{
			Mission:    m,
			Selected:   snap.Selected != nil && snap.Selected.ID == m.ID,
			Subscribed: live[m.ID],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.subscriptions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) subscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	err := s.runner.Do(ctx, func() {
		for _, id := range s.feed.Subscriptions() {
			e, ok := s.feed.Cached(id)
			subs = append(subs, Subscription{MissionID: id, Progress: e.Progress, WaypointIndex: e.WaypointIndex, Cached: ok})
		}
	})
	if subs == nil {
		subs = []Subscription{}
	}
	return subs, err
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.Refresh(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleSnapshot(w, r)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.Select(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleSnapshot(w, r)
}

func (s *Server) handleDeselect(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.Deselect(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	action, err := backend.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	m, err := s.mon.ControlMission(r.Context(), chi.URLParam(r, "id"), action)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	msg, err := s.mon.SimulateMission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleClearProgress(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.ClearProgress(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, monitor.ErrUnknownMission):
		status = http.StatusNotFound
	case errors.Is(err, monitor.ErrNoSelection), errors.Is(err, monitor.ErrActionNotAllowed):
		status = http.StatusConflict
	case errors.Is(err, clock.ErrStopped), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
	}
	if status >= 500 {
		s.log.Error("admin request failed", "status", status, "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
