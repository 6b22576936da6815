package backend

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"surveyops/internal/telemetry"
)

// Memory is an in-process stand-in for the fleet backend. It holds missions
// in memory and applies control actions with the same transition rules, so
// the monitor can run without a server.
type Memory struct {
	mu       sync.Mutex
	missions map[string]Mission
	paths    map[string]FlightPath
	now      func() time.Time
}

// NewMemory creates a store seeded with missions.
func NewMemory(missions []Mission) *Memory {
	m := &Memory{
		missions: make(map[string]Mission, len(missions)),
		paths:    make(map[string]FlightPath),
		now:      time.Now,
	}
	for _, ms := range missions {
		if ms.Status == "" {
			ms.Status = telemetry.MissionPlanned
		}
		m.missions[ms.ID] = ms
	}
	return m
}

// ListMissions returns all missions ordered by ID.
func (m *Memory) ListMissions(ctx context.Context) ([]Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Mission, 0, len(m.missions))
	for _, ms := range m.missions {
		out = append(out, ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetMission returns one mission.
func (m *Memory) GetMission(ctx context.Context, id string) (*Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[id]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "Mission not found with id: " + id}
	}
	return &ms, nil
}

// Control applies an action if the mission's status allows it.
func (m *Memory) Control(ctx context.Context, id string, action Action) (*Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[id]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "Mission not found with id: " + id}
	}
	if !action.Allowed(ms.Status) {
		return nil, &APIError{
			StatusCode: http.StatusBadRequest,
			Message:    fmt.Sprintf("Cannot %s a mission in status %s", action, ms.Status),
		}
	}
	now := LocalTime{m.now().UTC()}
	switch action {
	case ActionStart:
		ms.Status = telemetry.MissionActive
		ms.ActualStart = now
	case ActionResume:
		ms.Status = telemetry.MissionActive
	case ActionPause:
		ms.Status = telemetry.MissionPaused
	case ActionComplete:
		ms.Status = telemetry.MissionCompleted
		ms.ActualEnd = now
	case ActionAbort:
		ms.Status = telemetry.MissionAborted
		ms.ActualEnd = now
	}
	ms.UpdatedAt = now
	m.missions[id] = ms
	return &ms, nil
}

// Simulate acknowledges the request; the memory store has no simulator of its own.
func (m *Memory) Simulate(ctx context.Context, id string, waypointCount int) (string, error) {
	if _, err := m.GetMission(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Simulation started for mission %s with %d waypoints", id, waypointCount), nil
}

// SetFlightPath stores the planned path for a mission.
func (m *Memory) SetFlightPath(fp FlightPath) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths[fp.MissionID] = fp
}

// FlightPath returns a mission's planned path, or a 404 when it has none.
func (m *Memory) FlightPath(ctx context.Context, missionID string) (*FlightPath, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.paths[missionID]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "Flight path not found for mission: " + missionID}
	}
	fp.Waypoints = append([]Waypoint(nil), fp.Waypoints...)
	return &fp, nil
}
