package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"surveyops/internal/telemetry"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:           srv.URL,
		MaxRetries:        2,
		BaseRetryDelay:    time.Millisecond,
		RequestsPerMinute: 6000,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != "ops@example.com" || body["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"status":401,"error":"Unauthorized","message":"Invalid email or password"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"jwt-1","tokenType":"Bearer","userId":7,"email":"ops@example.com","role":"OPERATOR"}`))
		case "/api/missions/m1":
			if r.Header.Get("Authorization") != "Bearer jwt-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"m1","name":"North field","status":"ACTIVE","actualStart":"2025-03-01T10:15:30.123"}`))
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	if _, err := c.Login(context.Background(), "ops@example.com", "wrong"); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	s, err := c.Login(context.Background(), "ops@example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.Role != "OPERATOR" || c.Token() != "jwt-1" {
		t.Fatalf("session %+v token %q", s, c.Token())
	}

	m, err := c.GetMission(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMission: %v", err)
	}
	if m.Status != telemetry.MissionActive {
		t.Fatalf("status = %s", m.Status)
	}
	want := time.Date(2025, 3, 1, 10, 15, 30, 123000000, time.UTC)
	if !m.ActualStart.Equal(want) {
		t.Fatalf("actualStart = %v, want %v", m.ActualStart.Time, want)
	}
	if !m.ActualEnd.IsZero() {
		t.Fatal("missing actualEnd should be zero")
	}
}

func TestListMissionsPagedAndArray(t *testing.T) {
	paged := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if paged {
			_, _ = w.Write([]byte(`{"content":[{"id":"a","name":"A","status":"PLANNED"},{"id":"b","name":"B","status":"ACTIVE"}],"totalElements":2}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"c","name":"C","status":"PAUSED"}]`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	ms, err := c.ListMissions(context.Background())
	if err != nil {
		t.Fatalf("ListMissions: %v", err)
	}
	if len(ms) != 2 || ms[1].Status != telemetry.MissionActive {
		t.Fatalf("paged missions = %+v", ms)
	}
	paged = false
	ms, err = c.ListMissions(context.Background())
	if err != nil {
		t.Fatalf("ListMissions: %v", err)
	}
	if len(ms) != 1 || ms[0].ID != "c" {
		t.Fatalf("array missions = %+v", ms)
	}
}

func TestControlAndSimulate(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		if r.URL.Path == "/api/missions/m1/simulate" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("Simulation started for mission m1 with 20 waypoints"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","name":"North field","status":"PAUSED"}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	m, err := c.Control(context.Background(), "m1", ActionPause)
	if err != nil {
		t.Fatalf("Control: %v", err)
	}
	if gotPath != "/api/missions/m1/pause" || m.Status != telemetry.MissionPaused {
		t.Fatalf("path %s status %s", gotPath, m.Status)
	}

	msg, err := c.Simulate(context.Background(), "m1", 20)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if gotQuery != "waypointCount=20" || msg == "" {
		t.Fatalf("query %q msg %q", gotQuery, msg)
	}
}

func TestFlightPathDecodesWaypoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/flight-paths/mission/m1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":404,"error":"Not Found","message":"Flight path not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"fp1","missionId":"m1","waypoints":"[{\"lat\":51.5,\"lng\":-0.09,\"alt\":100},{\"lat\":51.501,\"lng\":-0.089,\"alt\":100}]","totalDistance":1234.5,"estimatedDuration":15}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	fp, err := c.FlightPath(context.Background(), "m1")
	if err != nil {
		t.Fatalf("FlightPath: %v", err)
	}
	if len(fp.Waypoints) != 2 || fp.Waypoints[1].Lng != -0.089 || fp.TotalDistance != 1234.5 {
		t.Fatalf("flight path %+v", fp)
	}

	_, err = c.FlightPath(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	if _, err := c.ListMissions(context.Background()); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"error":"Bad Request","message":"Mission is not active"}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.Control(context.Background(), "m1", ActionComplete)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Mission is not active" {
		t.Fatalf("unexpected error %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestDoesNotRetryTransitionsOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	if _, err := c.Control(context.Background(), "m1", ActionStart); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.Simulate(context.Background(), "m1", 20); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want one per request", calls.Load())
	}
}

func TestRetriesRateLimitedTransitions(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","status":"ACTIVE"}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	m, err := c.Control(context.Background(), "m1", ActionStart)
	if err != nil {
		t.Fatalf("expected success after a 429: %v", err)
	}
	if m.Status != telemetry.MissionActive || calls.Load() != 2 {
		t.Fatalf("status = %s, calls = %d", m.Status, calls.Load())
	}
}

func TestActionAllowed(t *testing.T) {
	cases := []struct {
		action Action
		status telemetry.MissionStatus
		want   bool
	}{
		{ActionStart, telemetry.MissionPlanned, true},
		{ActionStart, telemetry.MissionActive, false},
		{ActionPause, telemetry.MissionActive, true},
		{ActionResume, telemetry.MissionPaused, true},
		{ActionComplete, telemetry.MissionPaused, false},
		{ActionAbort, telemetry.MissionPaused, true},
		{ActionAbort, telemetry.MissionCompleted, false},
		{ActionAbort, telemetry.MissionPlanned, false},
	}
	for _, tc := range cases {
		if got := tc.action.Allowed(tc.status); got != tc.want {
			t.Errorf("%s from %s = %v, want %v", tc.action, tc.status, got, tc.want)
		}
	}
	if _, err := ParseAction("launch"); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if a, err := ParseAction("Resume"); err != nil || a != ActionResume {
		t.Fatalf("ParseAction = %v %v", a, err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "not a url"}); err == nil {
		t.Fatal("expected error")
	}
}

