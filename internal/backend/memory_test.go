package backend

import (
	"context"
	"testing"

	"surveyops/internal/telemetry"
)

func TestMemoryTransitions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory([]Mission{{ID: "b", Name: "B"}, {ID: "a", Name: "A", Status: telemetry.MissionActive}})

	ms, _ := m.ListMissions(ctx)
	if len(ms) != 2 || ms[0].ID != "a" || ms[1].Status != telemetry.MissionPlanned {
		t.Fatalf("missions = %+v", ms)
	}

	if _, err := m.Control(ctx, "b", ActionPause); err == nil {
		t.Fatal("pause from PLANNED should fail")
	}
	got, err := m.Control(ctx, "b", ActionStart)
	if err != nil || got.Status != telemetry.MissionActive || got.ActualStart.IsZero() {
		t.Fatalf("start: %+v %v", got, err)
	}
	if got, _ = m.Control(ctx, "b", ActionPause); got.Status != telemetry.MissionPaused {
		t.Fatalf("pause: %s", got.Status)
	}
	if got, _ = m.Control(ctx, "b", ActionAbort); got.Status != telemetry.MissionAborted || got.ActualEnd.IsZero() {
		t.Fatalf("abort: %+v", got)
	}
	if _, err := m.GetMission(ctx, "zzz"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryFlightPath(t *testing.T) {
	ctx := context.Background()
	m := NewMemory([]Mission{{ID: "a"}})
	if _, err := m.FlightPath(ctx, "a"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	m.SetFlightPath(FlightPath{MissionID: "a", Waypoints: []Waypoint{{Lat: 1}, {Lat: 2}}, TotalDistance: 850})
	fp, err := m.FlightPath(ctx, "a")
	if err != nil || len(fp.Waypoints) != 2 || fp.TotalDistance != 850 {
		t.Fatalf("flight path = %+v, %v", fp, err)
	}
	fp.Waypoints[0].Lat = 9
	again, _ := m.FlightPath(ctx, "a")
	if again.Waypoints[0].Lat != 1 {
		t.Fatal("returned path aliases the stored waypoints")
	}
}
