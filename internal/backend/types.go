package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"surveyops/internal/telemetry"
)

// localTimeLayout is the zone-less timestamp format the backend emits.
const localTimeLayout = "2006-01-02T15:04:05.999999999"

// LocalTime is a backend timestamp without a zone, interpreted as UTC.
type LocalTime struct {
	time.Time
}

// UnmarshalJSON accepts zone-less and RFC 3339 timestamps, and null.
func (t *LocalTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(localTimeLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes the zone-less form, or null for the zero time.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(localTimeLayout))
}

// Mission is a survey mission as returned by the backend.
type Mission struct {
	ID                string                  `json:"id"`
	OrganizationID    int64                   `json:"organizationId,omitempty"`
	DroneID           string                  `json:"droneId,omitempty"`
	DroneName         string                  `json:"droneName,omitempty"`
	SurveyAreaID      string                  `json:"surveyAreaId,omitempty"`
	SurveyAreaName    string                  `json:"surveyAreaName,omitempty"`
	CreatedByName     string                  `json:"createdByName,omitempty"`
	Name              string                  `json:"name"`
	Description       string                  `json:"description,omitempty"`
	Type              string                  `json:"type,omitempty"`
	Status            telemetry.MissionStatus `json:"status"`
	ScheduledStart    LocalTime               `json:"scheduledStart"`
	ActualStart       LocalTime               `json:"actualStart"`
	ActualEnd         LocalTime               `json:"actualEnd"`
	FlightAltitude    int                     `json:"flightAltitude,omitempty"`
	Speed             float64                 `json:"speed,omitempty"`
	OverlapPercentage int                     `json:"overlapPercentage,omitempty"`
	PatternType       string                  `json:"patternType,omitempty"`
	CreatedAt         LocalTime               `json:"createdAt"`
	UpdatedAt         LocalTime               `json:"updatedAt"`
}

// Waypoint is one point of a planned flight path.
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}

// FlightPath is the planned path of a mission.
type FlightPath struct {
	ID                string     `json:"id"`
	MissionID         string     `json:"missionId"`
	Waypoints         []Waypoint `json:"-"`
	RawWaypoints      string     `json:"waypoints"`
	TotalDistance     float64    `json:"totalDistance"`
	EstimatedDuration int        `json:"estimatedDuration"`
	CreatedAt         LocalTime  `json:"createdAt"`
}

// decodeWaypoints parses the JSON string the backend stores waypoints in.
func (fp *FlightPath) decodeWaypoints() error {
	raw := strings.TrimSpace(fp.RawWaypoints)
	if raw == "" {
		fp.Waypoints = nil
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &fp.Waypoints); err != nil {
		return fmt.Errorf("invalid waypoints for mission %s: %w", fp.MissionID, err)
	}
	return nil
}

// Session is the result of a successful login.
type Session struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	UserID    int64  `json:"userId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// Action is a mission state transition exposed by the backend.
type Action string

// Mission control actions.
const (
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionAbort    Action = "abort"
	ActionComplete Action = "complete"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(s)); a {
	case ActionStart, ActionPause, ActionResume, ActionAbort, ActionComplete:
		return a, nil
	}
	return "", fmt.Errorf("unknown mission action %q", s)
}

// Allowed reports whether the action is valid from status, following the
// control panel: start from PLANNED, pause from ACTIVE, resume from PAUSED,
// complete from ACTIVE and abort from ACTIVE or PAUSED.
func (a Action) Allowed(status telemetry.MissionStatus) bool {
	switch a {
	case ActionStart:
		return status == telemetry.MissionPlanned
	case ActionPause, ActionComplete:
		return status == telemetry.MissionActive
	case ActionResume:
		return status == telemetry.MissionPaused
	case ActionAbort:
		return status == telemetry.MissionActive || status == telemetry.MissionPaused
	}
	return false
}
