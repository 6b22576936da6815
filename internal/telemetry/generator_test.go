package telemetry

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestSampleFields(t *testing.T) {
	gen := NewGenerator(DefaultParams(), rand.New(rand.NewSource(1)))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	s := gen.Sample("mission-1", 42.5, now)

	if s.MissionID != "mission-1" || s.DroneID != "mission-1" {
		t.Errorf("unexpected ids: %+v", s)
	}
	if s.ProgressPercentage != 42 {
		t.Errorf("progress = %d, want 42", s.ProgressPercentage)
	}
	if s.CurrentWaypointIndex != 8 {
		t.Errorf("waypoint = %d, want 8", s.CurrentWaypointIndex)
	}
	if s.Status != SampleActive {
		t.Errorf("status = %s, want ACTIVE", s.Status)
	}
	if s.BatteryLevel != 66 {
		t.Errorf("battery = %d", s.BatteryLevel)
	}
	if s.DistanceCovered != 2125 {
		t.Errorf("distance = %f, want 2125", s.DistanceCovered)
	}
	if s.Speed < 8 || s.Speed >= 12 {
		t.Errorf("speed out of range: %f", s.Speed)
	}
	if s.Position.Alt < 100 || s.Position.Alt >= 110 {
		t.Errorf("altitude out of range: %f", s.Position.Alt)
	}
	if s.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp not UTC: %v", s.Timestamp)
	}
}

func TestWaypointIndexClamp(t *testing.T) {
	cases := map[float64]int{
		0:     0,
		4.99:  0,
		5:     1,
		35:    7,
		99.99: 19,
		100:   19,
	}
	for p, want := range cases {
		if got := WaypointIndex(p, 20); got != want {
			t.Errorf("WaypointIndex(%v)=%d, want %d", p, got, want)
		}
	}
}

func TestSweepIsSerpentine(t *testing.T) {
	p := DefaultParams()
	p.JitterDeg = 0
	gen := NewGenerator(p, rand.New(rand.NewSource(1)))

	// Row 0 runs west to east, row 1 east to west.
	first := gen.sweepPosition(0)
	endRow0 := gen.sweepPosition(3)
	startRow1 := gen.sweepPosition(4)
	if endRow0.Lng <= first.Lng {
		t.Fatalf("row 0 should sweep east: %v -> %v", first, endRow0)
	}
	if startRow1.Lng != endRow0.Lng {
		t.Fatalf("row 1 should start above the end of row 0: %v vs %v", startRow1, endRow0)
	}
	if startRow1.Lat <= endRow0.Lat {
		t.Fatalf("row 1 should be north of row 0")
	}
	if math.Abs(first.Lat-(51.505-0.002)) > 1e-9 || math.Abs(first.Lng-(-0.09-0.003)) > 1e-9 {
		t.Fatalf("unexpected origin waypoint %v", first)
	}
}

func TestPathFollowsSweep(t *testing.T) {
	gen := NewGenerator(DefaultParams(), nil)
	path := gen.Path()
	if len(path) != 20 {
		t.Fatalf("len = %d", len(path))
	}
	for i, p := range path {
		want := gen.sweepPosition(i)
		if p.Lat != want.Lat || p.Lng != want.Lng || p.Alt != 100 {
			t.Fatalf("waypoint %d = %v, want %v at 100m", i, p, want)
		}
	}
}

func TestBatteryFloor(t *testing.T) {
	gen := NewGenerator(DefaultParams(), rand.New(rand.NewSource(1)))
	if got := gen.battery(0); got != 100 {
		t.Errorf("battery(0)=%d, want 100", got)
	}
	if got := gen.battery(100); got != 20 {
		t.Errorf("battery(100)=%d, want 20", got)
	}
	prev := 101
	for p := 0.0; p <= 100; p += 0.5 {
		b := gen.battery(p)
		if b > prev {
			t.Fatalf("battery increased at %v", p)
		}
		prev = b
	}
}

func TestAdvanceBounded(t *testing.T) {
	gen := NewGenerator(DefaultParams(), rand.New(rand.NewSource(7)))
	p := 0.0
	for i := 0; i < 200; i++ {
		next := gen.Advance(p)
		if next < p || next-p > 5 || next > 100 {
			t.Fatalf("step %d: %v -> %v", i, p, next)
		}
		p = next
	}
	if p != 100 {
		t.Fatalf("expected progress to reach 100, got %v", p)
	}
}

func TestProgressTableName(t *testing.T) {
	orig := ProgressTableName
	ProgressTableName = "custom"
	defer func() { ProgressTableName = orig }()
	if (MissionProgressSample{}).TableName() != "custom" {
		t.Errorf("expected custom table name, got %s", (MissionProgressSample{}).TableName())
	}
}
