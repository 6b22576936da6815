// Mission progress structs shared by the feed, writers and monitor
package telemetry

import (
	"os"
	"time"
)

// SampleStatus is the generator's own view of a run, independent of the
// mission's authoritative status on the backend.
type SampleStatus string

// Sample status constants.
const (
	SampleActive    SampleStatus = "ACTIVE"
	SampleCompleted SampleStatus = "COMPLETED"
)

// MissionStatus is the authoritative mission state owned by the backend.
type MissionStatus string

// Mission status constants.
const (
	MissionPlanned   MissionStatus = "PLANNED"
	MissionActive    MissionStatus = "ACTIVE"
	MissionPaused    MissionStatus = "PAUSED"
	MissionCompleted MissionStatus = "COMPLETED"
	MissionAborted   MissionStatus = "ABORTED"
)

// Terminal reports whether no further transitions are possible.
func (s MissionStatus) Terminal() bool {
	return s == MissionCompleted || s == MissionAborted
}

// Position holds latitude, longitude, and altitude.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}

// MissionProgressSample is one synthetic telemetry sample for a mission.
type MissionProgressSample struct {
	MissionID            string       `json:"missionId"`            // TAG
	DroneID              string       `json:"droneId"`              // TAG
	Position             Position     `json:"currentPosition"`      // FIELD
	BatteryLevel         int          `json:"batteryLevel"`         // FIELD
	ProgressPercentage   int          `json:"progressPercentage"`   // FIELD
	Status               SampleStatus `json:"status"`               // FIELD
	Timestamp            time.Time    `json:"timestamp"`            // TIME INDEX
	CurrentWaypointIndex int          `json:"currentWaypointIndex"` // FIELD
	DistanceCovered      float64      `json:"distanceCovered"`      // FIELD
	Speed                float64      `json:"speed"`                // FIELD
}

// ProgressTableName holds the table name used when writing to GreptimeDB.
// It defaults to "mission_progress" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var ProgressTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "mission_progress"
}()

func (MissionProgressSample) TableName() string {
	return ProgressTableName
}
