package telemetry

import (
	"math"
	"math/rand"
	"time"
)

// Params shapes the synthetic survey flight.
type Params struct {
	WaypointCount   int     // implicit path length used for index derivation
	Columns         int     // waypoints per sweep row
	MaxIncrement    float64 // upper bound of the per-tick progress step
	OriginLat       float64
	OriginLng       float64
	RowPitchDeg     float64
	ColumnPitchDeg  float64
	JitterDeg       float64 // full width of the lat/lng noise band
	BaseAltitudeM   float64
	AltitudeJitterM float64
	BaseSpeedMPS    float64
	SpeedJitterMPS  float64
	TotalDistanceM  float64
	BatteryFloor    int
	BatteryPerPct   float64
}

// DefaultParams returns the reference survey: a 20 waypoint, 4 column
// lawn-mower sweep over a 5 km mission near 51.505, -0.09.
func DefaultParams() Params {
	return Params{
		WaypointCount:   20,
		Columns:         4,
		MaxIncrement:    5,
		OriginLat:       51.505,
		OriginLng:       -0.09,
		RowPitchDeg:     0.001,
		ColumnPitchDeg:  0.002,
		JitterDeg:       0.0001,
		BaseAltitudeM:   100,
		AltitudeJitterM: 10,
		BaseSpeedMPS:    8,
		SpeedJitterMPS:  4,
		TotalDistanceM:  5000,
		BatteryFloor:    20,
		BatteryPerPct:   0.8,
	}
}

// Generator produces synthetic progress samples.
type Generator struct {
	params Params
	rng    *rand.Rand
}

// NewGenerator creates a generator drawing noise from rng.
func NewGenerator(p Params, rng *rand.Rand) *Generator {
	if p.WaypointCount <= 0 {
		p.WaypointCount = 20
	}
	if p.Columns <= 0 {
		p.Columns = 4
	}
	return &Generator{params: p, rng: rng}
}

// Params returns the generator's configuration.
func (g *Generator) Params() Params { return g.params }

// Advance steps progress forward by a random amount, capped at 100.
func (g *Generator) Advance(progress float64) float64 {
	return math.Min(100, progress+g.rng.Float64()*g.params.MaxIncrement)
}

// WaypointIndex derives the waypoint index for progress, clamped to the path.
func (g *Generator) WaypointIndex(progress float64) int {
	return WaypointIndex(progress, g.params.WaypointCount)
}

// WaypointIndex returns floor(progress/100*count) clamped to [0, count-1].
func WaypointIndex(progress float64, count int) int {
	idx := int(math.Floor(progress * float64(count) / 100))
	if idx < 0 {
		return 0
	}
	if idx > count-1 {
		return count - 1
	}
	return idx
}

// Sample builds the sample for a mission at the given progress.
func (g *Generator) Sample(missionID string, progress float64, now time.Time) MissionProgressSample {
	idx := g.WaypointIndex(progress)
	pos := g.sweepPosition(idx)
	pos.Lat += (g.rng.Float64() - 0.5) * g.params.JitterDeg
	pos.Lng += (g.rng.Float64() - 0.5) * g.params.JitterDeg
	pos.Alt = g.params.BaseAltitudeM + g.rng.Float64()*g.params.AltitudeJitterM

	return MissionProgressSample{
		MissionID:            missionID,
		DroneID:              missionID,
		Position:             pos,
		BatteryLevel:         g.battery(progress),
		ProgressPercentage:   int(math.Floor(progress)),
		Status:               SampleActive,
		Timestamp:            now.UTC(),
		CurrentWaypointIndex: idx,
		DistanceCovered:      math.Floor(progress * g.params.TotalDistanceM / 100),
		Speed:                g.params.BaseSpeedMPS + g.rng.Float64()*g.params.SpeedJitterMPS,
	}
}

// Path returns the noise-free planned waypoints of the sweep.
func (g *Generator) Path() []Position {
	out := make([]Position, g.params.WaypointCount)
	for i := range out {
		out[i] = g.sweepPosition(i)
		out[i].Alt = g.params.BaseAltitudeM
	}
	return out
}

// sweepPosition places a waypoint on a serpentine grid centred on the origin.
// Odd rows run right to left so the path never crosses swept columns.
func (g *Generator) sweepPosition(idx int) Position {
	cols := g.params.Columns
	rows := (g.params.WaypointCount + cols - 1) / cols
	row := idx / cols
	col := idx % cols
	if row%2 == 1 {
		col = cols - 1 - col
	}
	return Position{
		Lat: g.params.OriginLat + float64(row-rows/2)*g.params.RowPitchDeg,
		Lng: g.params.OriginLng + (float64(col)-float64(cols-1)/2)*g.params.ColumnPitchDeg,
	}
}

// battery decays linearly with progress and never drops below the floor.
func (g *Generator) battery(progress float64) int {
	level := 100 - int(math.Floor(progress*g.params.BatteryPerPct))
	if level < g.params.BatteryFloor {
		return g.params.BatteryFloor
	}
	return level
}
